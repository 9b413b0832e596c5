// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command rangestats serves and explores range statistics over numeric
// datasets.
//
//	rangestats serve --config config.yaml
//	rangestats query --file temps.yaml --left 12 --right 17
//	rangestats query --file grades.yaml --window 5
//	rangestats dump --file temps.yaml
//	rangestats demo
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
