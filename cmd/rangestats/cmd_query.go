// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rangestats/pkg/ux"
	"github.com/AleutianAI/rangestats/services/rangestats"
	"github.com/AleutianAI/rangestats/services/rangestats/segtree"
)

// queryOptions are the parsed query flags. Right < 0 means the last index.
type queryOptions struct {
	File   string
	Left   int
	Right  int
	Window int
	JSON   bool
}

func runQuery(cmd *cobra.Command, args []string) error {
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	return queryFile(cmd.Context(), p, cmd.OutOrStdout(), queryOptions{
		File:   datasetFile,
		Left:   queryLeft,
		Right:  queryRight,
		Window: queryWindow,
		JSON:   queryJSON,
	})
}

func runDump(cmd *cobra.Command, args []string) error {
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	return dumpFile(cmd.Context(), p, datasetFile)
}

// loadFile reads a dataset file into a fresh single-dataset Service.
func loadFile(ctx context.Context, path string) (*rangestats.Service, rangestats.DatasetInfo, error) {
	df, err := rangestats.LoadDatasetFile(path)
	if err != nil {
		return nil, rangestats.DatasetInfo{}, err
	}
	svc := rangestats.NewService(rangestats.ServiceConfig{
		MaxDatasetSize: segtree.MaxSize,
		MaxDatasets:    1,
	})
	info, err := svc.Create(ctx, df.Name, df.Values)
	if err != nil {
		return nil, rangestats.DatasetInfo{}, err
	}
	return svc, info, nil
}

func queryFile(ctx context.Context, p *ux.Printer, out io.Writer, opts queryOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	svc, info, err := loadFile(ctx, opts.File)
	if err != nil {
		return err
	}

	if opts.Window > 0 {
		report, err := svc.Windows(ctx, info.Name, opts.Window)
		if err != nil {
			return err
		}
		if opts.JSON {
			return writeJSON(out, report)
		}
		printWindows(p, report)
		return nil
	}

	right := opts.Right
	if right < 0 {
		right = info.Len - 1
	}
	sum, err := svc.Summarize(ctx, info.Name, opts.Left, right)
	if err != nil {
		return err
	}
	if opts.JSON {
		return writeJSON(out, sum)
	}
	p.Title(fmt.Sprintf("%s [%d, %d]", info.Name, sum.Left, sum.Right))
	printSummary(p, sum)
	return nil
}

func dumpFile(ctx context.Context, p *ux.Printer, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	svc, info, err := loadFile(ctx, path)
	if err != nil {
		return err
	}
	dump, err := svc.Dump(ctx, info.Name)
	if err != nil {
		return err
	}
	p.Box(fmt.Sprintf("%s (%d values)", info.Name, info.Len), dump)
	return nil
}

func printSummary(p *ux.Printer, s segtree.Summary) {
	p.KV(
		"count", strconv.Itoa(s.Count),
		"sum", formatFloat(s.Sum),
		"mean", formatFloat(s.Mean),
		"variance", formatFloat(s.Variance),
		"std_dev", formatFloat(s.StdDev),
	)
}

func printWindows(p *ux.Printer, report rangestats.WindowReport) {
	p.Title(fmt.Sprintf("%s, windows of %d", report.Name, report.Size))
	rows := make([][]string, 0, len(report.Windows))
	for _, w := range report.Windows {
		rows = append(rows, []string{
			strconv.Itoa(w.Number),
			fmt.Sprintf("[%d, %d]", w.Left, w.Right),
			formatFloat(w.Mean),
			formatFloat(w.Variance),
			formatFloat(w.StdDev),
			fmt.Sprintf("%.2f%%", w.CoefficientOfVariation),
		})
	}
	p.Table([]string{"Window", "Range", "Mean", "Variance", "StdDev", "CV"}, rows)
	p.KV(
		"most_stable", fmt.Sprintf("window %d (variance %s)", report.MostStable.Number, formatFloat(report.MostStable.Variance)),
		"most_volatile", fmt.Sprintf("window %d (variance %s)", report.MostVolatile.Number, formatFloat(report.MostVolatile.Variance)),
	)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
