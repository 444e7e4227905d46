package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/iwvelando/capacity-trend/pkg/utilization"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ParseDataset decodes a YAML or JSON dataset. Unknown fields are rejected.
func ParseDataset(r io.Reader) (Dataset, error) {
	var ds Dataset
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&ds); err != nil {
		if errors.Is(err, io.EOF) {
			return Dataset{}, nil
		}
		return Dataset{}, fmt.Errorf("failed to parse dataset: %w", err)
	}
	return ds, nil
}

// DatasetSource serves a dataset held in memory.
type DatasetSource struct {
	dataset Dataset
}

// NewDatasetSource returns a source serving ds.
func NewDatasetSource(ds Dataset) *DatasetSource {
	return &DatasetSource{dataset: ds}
}

// FetchIterations implements Source.
func (s *DatasetSource) FetchIterations(ctx context.Context, start, end time.Time) ([]utilization.Iteration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iterations, err := ConvertIterations(s.dataset.Iterations)
	if err != nil {
		return nil, err
	}
	return InRange(iterations, start, end), nil
}

// FetchCapacityRecords implements Source.
func (s *DatasetSource) FetchCapacityRecords(ctx context.Context, iterationIDs []string) ([]utilization.CapacityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := ConvertCapacities(s.dataset.Capacities)
	if err != nil {
		return nil, err
	}
	return ForIterations(records, iterationIDs), nil
}

// Close implements Source.
func (s *DatasetSource) Close() error {
	return nil
}

// FileSource serves a dataset file. The file is re-read on every query so
// edits are picked up without a restart.
type FileSource struct {
	path   string
	logger *zap.Logger
}

// NewFileSource returns a source reading the dataset at path.
func NewFileSource(path string, logger *zap.Logger) *FileSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSource{path: path, logger: logger}
}

func (s *FileSource) load() (*DatasetSource, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, unavailable("failed to open %s: %v", s.path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.logger.Warn("failed to close dataset file",
				zap.String("op", "source.FileSource.load"),
				zap.String("path", s.path),
				zap.Error(closeErr),
			)
		}
	}()

	ds, err := ParseDataset(f)
	if err != nil {
		return nil, unavailable("%s: %v", s.path, err)
	}
	s.logger.Debug("dataset loaded",
		zap.String("op", "source.FileSource.load"),
		zap.String("path", s.path),
		zap.Int("iterations", len(ds.Iterations)),
		zap.Int("capacities", len(ds.Capacities)),
	)
	return NewDatasetSource(ds), nil
}

// FetchIterations implements Source.
func (s *FileSource) FetchIterations(ctx context.Context, start, end time.Time) ([]utilization.Iteration, error) {
	ds, err := s.load()
	if err != nil {
		return nil, err
	}
	return ds.FetchIterations(ctx, start, end)
}

// FetchCapacityRecords implements Source.
func (s *FileSource) FetchCapacityRecords(ctx context.Context, iterationIDs []string) ([]utilization.CapacityRecord, error) {
	ds, err := s.load()
	if err != nil {
		return nil, err
	}
	return ds.FetchCapacityRecords(ctx, iterationIDs)
}

// Close implements Source.
func (s *FileSource) Close() error {
	return nil
}
