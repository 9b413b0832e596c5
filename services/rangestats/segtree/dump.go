// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package segtree

import (
	"fmt"
	"strings"
)

// Dump renders the tree contents for debugging.
//
// Description:
//
//	Pre-order walk, one line per node, indented two spaces per level:
//
//	[0,3] sum=20 sumsq=120 n=4 var=5.0000
//	  [0,1] sum=12 sumsq=80 n=2 var=4.0000
//	    [0,0] sum=4 sumsq=16 n=1 var=0.0000
//
// The format is diagnostic and not stable. An empty tree renders as
// "(empty)".
func (st *SegmentTree) Dump() string {
	if st.size == 0 {
		return "(empty)\n"
	}

	var b strings.Builder
	st.dumpRec(&b, 0, 0, st.size-1, 0)
	return b.String()
}

func (st *SegmentTree) dumpRec(b *strings.Builder, node, left, right, depth int) {
	fmt.Fprintf(b, "%s[%d,%d] %v\n", strings.Repeat("  ", depth), left, right, st.tree[node])
	if left == right {
		return
	}
	mid := left + (right-left)/2
	st.dumpRec(b, 2*node+1, left, mid, depth+1)
	st.dumpRec(b, 2*node+2, mid+1, right, depth+1)
}
