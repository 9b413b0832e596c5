// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	var buf bytes.Buffer

	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"rich", ModeRich, false},
		{"PLAIN", ModePlain, false},
		{"machine", ModePlain, false},
		{"auto", ModePlain, false}, // a buffer is never a terminal
		{"", ModePlain, false},
		{"fancy", ModePlain, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in, &buf)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectMode_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, ModePlain, DetectMode(&bytes.Buffer{}))
}

func TestPrinter_Plain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, ModePlain)

	p.Title("Basic")
	p.Info("array: [4 8 6 2]")
	p.Success("done")
	p.Error("failed")
	p.KV("mean", "5.0000", "variance", "5.0000")
	p.Table([]string{"range", "mean"}, [][]string{{"[0,3]", "5.00"}, {"[1,2]", "7.00"}})

	want := "# Basic\n" +
		"array: [4 8 6 2]\n" +
		"OK: done\n" +
		"ERROR: failed\n" +
		"mean\t5.0000\n" +
		"variance\t5.0000\n" +
		"range\tmean\n" +
		"[0,3]\t5.00\n" +
		"[1,2]\t7.00\n"
	assert.Equal(t, want, buf.String())
}

func TestPrinter_RichTableContainsCells(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, ModeRich)
	assert.Equal(t, ModeRich, p.Mode())

	p.Table([]string{"Window", "Variance"}, [][]string{{"1", "0.24"}, {"4", "1000.00"}})
	out := buf.String()

	assert.Contains(t, out, "Window")
	assert.Contains(t, out, "1000.00")
	assert.Contains(t, out, "╭", "rounded border")
}

func TestPrinter_Box(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, ModePlain).Box("Dump", "[0,0] sum=5\n")
	assert.Equal(t, "Dump\n[0,0] sum=5\n", buf.String())
}
