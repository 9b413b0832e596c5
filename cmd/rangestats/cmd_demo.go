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
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rangestats/pkg/ux"
	"github.com/AleutianAI/rangestats/services/rangestats"
)

// scenario is one self-contained demo walkthrough.
type scenario struct {
	name  string
	title string
	run   func(ctx context.Context, d *demo) error
}

// demo carries what every scenario needs.
type demo struct {
	p    *ux.Printer
	svc  *rangestats.Service
	seed int64
}

var scenarios = []scenario{
	{"basic", "Basic range queries", runBasic},
	{"sensors", "Hourly temperature readings", runSensors},
	{"grades", "Exam grades by group", runGrades},
	{"finance", "Weekly price volatility", runFinance},
	{"dynamic", "Point updates", runDynamic},
	{"performance", "1000 random values", runPerformance},
	{"comparison", "Most and least stable ranges", runComparison},
}

func scenarioNames() string {
	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.name
	}
	return strings.Join(names, ", ")
}

func runDemo(cmd *cobra.Command, args []string) error {
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	return runScenarios(cmd.Context(), p, demoScenarios, demoSeed)
}

// runScenarios runs the named scenarios in order, or all of them when names
// is empty. Unknown names fail before anything runs.
func runScenarios(ctx context.Context, p *ux.Printer, names []string, seed int64) error {
	if ctx == nil {
		ctx = context.Background()
	}

	selected := scenarios
	if len(names) > 0 {
		selected = make([]scenario, 0, len(names))
		for _, name := range names {
			s, ok := findScenario(name)
			if !ok {
				return fmt.Errorf("unknown scenario %q (want one of: %s)", name, scenarioNames())
			}
			selected = append(selected, s)
		}
	}

	for i, s := range selected {
		if i > 0 {
			p.Newline()
		}
		p.Title(s.title)
		d := &demo{
			p:    p,
			svc:  rangestats.NewService(rangestats.DefaultServiceConfig()),
			seed: seed,
		}
		if err := s.run(ctx, d); err != nil {
			return fmt.Errorf("scenario %s: %w", s.name, err)
		}
	}
	return nil
}

func findScenario(name string) (scenario, bool) {
	for _, s := range scenarios {
		if s.name == name {
			return s, true
		}
	}
	return scenario{}, false
}

// load creates the named dataset and echoes its values.
func (d *demo) load(ctx context.Context, name string, values []float64) error {
	if _, err := d.svc.Create(ctx, name, values); err != nil {
		return err
	}
	d.p.Info(fmt.Sprintf("%s: %s", name, formatValues(values)))
	return nil
}

// rangeRow summarizes [left, right] as a table row labeled label.
func (d *demo) rangeRow(ctx context.Context, name, label string, left, right int) ([]string, error) {
	s, err := d.svc.Summarize(ctx, name, left, right)
	if err != nil {
		return nil, err
	}
	return []string{
		label,
		fmt.Sprintf("[%d, %d]", left, right),
		formatFloat(s.Mean),
		formatFloat(s.Variance),
		formatFloat(s.StdDev),
	}, nil
}

func (d *demo) rangeTable(ctx context.Context, name string, ranges []labeledRange) error {
	rows := make([][]string, 0, len(ranges))
	for _, r := range ranges {
		row, err := d.rangeRow(ctx, name, r.label, r.left, r.right)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	d.p.Table([]string{"Range", "Indices", "Mean", "Variance", "StdDev"}, rows)
	return nil
}

func (d *demo) variance(ctx context.Context, name string, left, right int) (float64, error) {
	s, err := d.svc.Summarize(ctx, name, left, right)
	if err != nil {
		return 0, err
	}
	return s.Variance, nil
}

type labeledRange struct {
	label       string
	left, right int
}

func runBasic(ctx context.Context, d *demo) error {
	if err := d.load(ctx, "basic", []float64{4, 8, 6, 2, 10, 12, 14, 16}); err != nil {
		return err
	}
	return d.rangeTable(ctx, "basic", []labeledRange{
		{"first half", 0, 3},
		{"middle", 2, 5},
		{"all", 0, 7},
		{"second half", 4, 7},
	})
}

func runSensors(ctx context.Context, d *demo) error {
	temps := []float64{18, 17, 16, 15, 16, 18, 20, 22, 25, 27, 29, 30,
		31, 32, 31, 30, 28, 26, 24, 22, 21, 20, 19, 18}
	if err := d.load(ctx, "temps", temps); err != nil {
		return err
	}
	if err := d.rangeTable(ctx, "temps", []labeledRange{
		{"night (0-5h)", 0, 5},
		{"morning (6-11h)", 6, 11},
		{"afternoon (12-17h)", 12, 17},
		{"evening (18-23h)", 18, 23},
	}); err != nil {
		return err
	}

	before, err := d.variance(ctx, "temps", 12, 17)
	if err != nil {
		return err
	}
	if _, err := d.svc.Update(ctx, "temps", 15, 33); err != nil {
		return err
	}
	after, err := d.variance(ctx, "temps", 12, 17)
	if err != nil {
		return err
	}
	d.p.Success("corrected reading at hour 15 to 33")
	d.p.KV("afternoon variance before", formatFloat(before), "afternoon variance after", formatFloat(after))
	return nil
}

func runGrades(ctx context.Context, d *demo) error {
	grades := []float64{85, 90, 78, 92, 88, 76, 95, 89, 91, 87,
		82, 94, 88, 90, 86, 93, 79, 91, 88, 84}
	if err := d.load(ctx, "grades", grades); err != nil {
		return err
	}
	all, err := d.svc.Summarize(ctx, "grades", 0, len(grades)-1)
	if err != nil {
		return err
	}
	d.p.KV("students", strconv.Itoa(all.Count), "mean", formatFloat(all.Mean),
		"variance", formatFloat(all.Variance), "std_dev", formatFloat(all.StdDev))

	report, err := d.svc.Windows(ctx, "grades", 5)
	if err != nil {
		return err
	}
	printWindows(d.p, report)
	return nil
}

func runFinance(ctx context.Context, d *demo) error {
	prices := make([]float64, 0, 30)
	for _, p := range []int{100, 102, 101, 103, 105, 104, 106, 108, 107, 109,
		111, 110, 112, 115, 114, 116, 115, 117, 119, 118,
		120, 122, 121, 123, 125, 124, 126, 128, 127, 129} {
		prices = append(prices, float64(p))
	}
	if err := d.load(ctx, "prices", prices); err != nil {
		return err
	}
	report, err := d.svc.Windows(ctx, "prices", 5)
	if err != nil {
		return err
	}
	printWindows(d.p, report)

	first := report.Windows[0].Variance
	last := report.Windows[len(report.Windows)-1].Variance
	d.p.KV("first week variance", formatFloat(first), "last week variance", formatFloat(last))
	switch {
	case first == 0:
		d.p.Info("first week was flat; no relative change")
	case last > first:
		d.p.Info(fmt.Sprintf("volatility rose %.2f%%", (last/first-1)*100))
	default:
		d.p.Info(fmt.Sprintf("volatility fell %.2f%%", (1-last/first)*100))
	}
	return nil
}

func runDynamic(ctx context.Context, d *demo) error {
	if err := d.load(ctx, "dynamic", []float64{10, 20, 30, 40, 50}); err != nil {
		return err
	}
	v, err := d.variance(ctx, "dynamic", 0, 4)
	if err != nil {
		return err
	}
	d.p.KV("variance", formatFloat(v))

	for _, u := range []struct {
		index int
		value float64
	}{{0, 30}, {4, 30}} {
		res, err := d.svc.Update(ctx, "dynamic", u.index, u.value)
		if err != nil {
			return err
		}
		info, err := d.svc.Get(ctx, "dynamic")
		if err != nil {
			return err
		}
		v, err := d.variance(ctx, "dynamic", 0, 4)
		if err != nil {
			return err
		}
		d.p.Success(fmt.Sprintf("update(%d, %s) -> %s, version %d",
			u.index, strconv.FormatFloat(u.value, 'g', -1, 64), formatValues(info.Values), res.Version))
		d.p.KV("variance", formatFloat(v))
	}
	return nil
}

func runPerformance(ctx context.Context, d *demo) error {
	const n = 1000
	rng := rand.New(rand.NewPCG(uint64(d.seed), 0))
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(rng.IntN(100) + 1)
	}
	if _, err := d.svc.Create(ctx, "random", values); err != nil {
		return err
	}
	d.p.Info(fmt.Sprintf("built a tree over %d values (seed %d)", n, d.seed))

	if err := d.rangeTable(ctx, "random", []labeledRange{
		{"first 10%", 0, 99},
		{"100-299", 100, 299},
		{"500-699", 500, 699},
		{"all", 0, n - 1},
	}); err != nil {
		return err
	}

	for _, idx := range []int{100, 500, 750} {
		value := float64(rng.IntN(100) + 1)
		if _, err := d.svc.Update(ctx, "random", idx, value); err != nil {
			return err
		}
		d.p.Success(fmt.Sprintf("index %d set to %s", idx, strconv.FormatFloat(value, 'g', -1, 64)))
	}

	v, err := d.variance(ctx, "random", 0, n-1)
	if err != nil {
		return err
	}
	d.p.KV("variance after updates", formatFloat(v))
	return nil
}

func runComparison(ctx context.Context, d *demo) error {
	data := []float64{
		10, 11, 10, 11, 10,
		20, 40, 15, 35, 25,
		30, 31, 30, 31, 30,
		50, 10, 90, 20, 80,
	}
	if err := d.load(ctx, "mixed", data); err != nil {
		return err
	}
	report, err := d.svc.Windows(ctx, "mixed", 5)
	if err != nil {
		return err
	}
	printWindows(d.p, report)
	return nil
}

func formatValues(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
