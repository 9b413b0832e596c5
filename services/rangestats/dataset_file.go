// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rangestats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/rangestats/services/rangestats/config"
)

// ErrInvalidDatasetFile wraps parse and validation failures of a dataset file.
var ErrInvalidDatasetFile = errors.New("invalid dataset file")

// maxParallelLoads bounds concurrent dataset file loads at startup.
const maxParallelLoads = 4

var fileValidate = validator.New()

var datasetFileLoads = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rangestats_dataset_file_loads_total",
		Help: "Dataset file loads by status",
	},
	[]string{"status"},
)

// DatasetFile is the on-disk dataset format. JSON documents are valid
// YAML and load the same way.
//
//	name: temperatures
//	values: [18, 17, 16, 15]
type DatasetFile struct {
	// Name defaults to the file's base name without extension.
	Name string `yaml:"name" validate:"omitempty,max=64"`

	// Values must be present; an explicit empty list is allowed.
	Values []float64 `yaml:"values" validate:"required"`
}

// LoadDatasetFile reads and validates the dataset file at path.
//
// Outputs:
//
//	DatasetFile - The parsed file, with Name filled in.
//	error - config.ErrFileTooLarge, ErrInvalidDatasetFile, or an I/O error.
func LoadDatasetFile(path string) (DatasetFile, error) {
	data, err := config.ReadYAMLFile(path)
	if err != nil {
		datasetFileLoads.WithLabelValues("error").Inc()
		return DatasetFile{}, err
	}

	var df DatasetFile
	if err := yaml.Unmarshal(data, &df); err != nil {
		datasetFileLoads.WithLabelValues("error").Inc()
		return DatasetFile{}, fmt.Errorf("%w: %s: %w", ErrInvalidDatasetFile, path, err)
	}
	if err := fileValidate.Struct(&df); err != nil {
		datasetFileLoads.WithLabelValues("error").Inc()
		return DatasetFile{}, fmt.Errorf("%w: %s: %w", ErrInvalidDatasetFile, path, err)
	}

	if df.Name == "" {
		base := filepath.Base(path)
		df.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	datasetFileLoads.WithLabelValues("success").Inc()
	return df, nil
}

// LoadDatasetFiles loads every file at paths into svc, replacing datasets
// with the same name. Files load in parallel; the first failure cancels the
// rest and is returned.
//
// Outputs:
//
//	map[string]string - Dataset name by file path for the loaded files.
//	error - The first load failure.
func LoadDatasetFiles(ctx context.Context, svc *Service, paths []string) (map[string]string, error) {
	names := make([]string, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoads)

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			df, err := LoadDatasetFile(path)
			if err != nil {
				return err
			}
			if _, err := svc.Replace(gctx, df.Name, df.Values); err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			names[i] = df.Name
			slog.Info("dataset file loaded", "path", path, "dataset", df.Name, "len", len(df.Values))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	byPath := make(map[string]string, len(paths))
	for i, path := range paths {
		byPath[path] = names[i]
	}
	return byPath, nil
}
