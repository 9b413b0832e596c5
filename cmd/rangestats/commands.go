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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rangestats/pkg/logging"
	"github.com/AleutianAI/rangestats/pkg/ux"
)

// --- Global Command Variables ---
var (
	outputMode string
	logLevel   string

	configPath string

	datasetFile string
	queryLeft   int
	queryRight  int
	queryWindow int
	queryJSON   bool

	demoScenarios []string
	demoSeed      int64

	cliLogger  *logging.Logger
	cliRestore func()

	rootCmd = &cobra.Command{
		Use:   "rangestats",
		Short: "Range statistics (sum, mean, variance) over numeric datasets",
		Long: `rangestats answers sum, mean, and variance queries over any contiguous
range of a dataset in O(log n), with O(log n) point updates.

Run it as an HTTP service, query dataset files from the shell, or walk
through the bundled demo scenarios.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			cliLogger = logging.New(logging.Config{
				Level:   level,
				Service: "rangestats",
				Output:  cmd.ErrOrStderr(),
			})
			cliRestore = cliLogger.Install()
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cliRestore != nil {
				cliRestore()
			}
			if cliLogger != nil {
				return cliLogger.Close()
			}
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the rangestats HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	queryCmd = &cobra.Command{
		Use:   "query",
		Short: "Summarize a range, or every window, of a dataset file",
		Example: `  rangestats query --file temps.yaml --left 12 --right 17
  rangestats query --file grades.yaml --window 5`,
		Args: cobra.NoArgs,
		RunE: runQuery, // Defined in cmd_query.go
	}

	dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Print the segment tree built from a dataset file",
		Args:  cobra.NoArgs,
		RunE:  runDump, // Defined in cmd_query.go
	}

	demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Walk through worked examples: sensors, grades, prices, updates",
		Args:  cobra.NoArgs,
		RunE:  runDemo, // Defined in cmd_demo.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputMode, "output", "o", "auto", "Output style: auto, rich, or plain")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config YAML (defaults and RANGESTATS_* env when empty)")

	for _, cmd := range []*cobra.Command{queryCmd, dumpCmd} {
		cmd.Flags().StringVarP(&datasetFile, "file", "f", "", "Dataset file (YAML or JSON)")
		_ = cmd.MarkFlagRequired("file")
	}
	queryCmd.Flags().IntVarP(&queryLeft, "left", "l", 0, "First index, inclusive (default: 0)")
	queryCmd.Flags().IntVarP(&queryRight, "right", "r", -1, "Last index, inclusive (default: last element)")
	queryCmd.Flags().IntVarP(&queryWindow, "window", "w", 0, "Summarize consecutive windows of this size instead of one range")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Print JSON instead of a table")

	demoCmd.Flags().StringSliceVarP(&demoScenarios, "scenario", "s", nil,
		fmt.Sprintf("Scenarios to run (default: all). One of: %s", scenarioNames()))
	demoCmd.Flags().Int64Var(&demoSeed, "seed", 42, "Seed for the performance scenario's random data")

	rootCmd.AddCommand(serveCmd, queryCmd, dumpCmd, demoCmd)
}

// newPrinter builds the output printer for cmd from --output.
func newPrinter(cmd *cobra.Command) (*ux.Printer, error) {
	out := cmd.OutOrStdout()
	mode, err := ux.ParseMode(outputMode, out)
	if err != nil {
		return nil, err
	}
	return ux.NewPrinter(out, mode), nil
}
