// Package chart assembles the utilization chart: it selects the iterations of
// a date range, aggregates their capacity records and fits the utilization
// trend across them.
package chart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iwvelando/capacity-trend/internal/metrics"
	"github.com/iwvelando/capacity-trend/internal/source"
	"github.com/iwvelando/capacity-trend/pkg/constants"
	"github.com/iwvelando/capacity-trend/pkg/mathutil"
	"github.com/iwvelando/capacity-trend/pkg/trend"
	"github.com/iwvelando/capacity-trend/pkg/utilization"
	"go.uber.org/zap"
)

var (
	// ErrSourceUnavailable is returned when either fetch fails. No chart is
	// returned with it.
	ErrSourceUnavailable = source.ErrSourceUnavailable

	// ErrInsufficientData is returned, together with a chart without trend
	// values, when fewer than two iterations have capacity records.
	ErrInsufficientData = trend.ErrInsufficientData
)

// DataSource supplies the raw rows of a chart.
type DataSource interface {
	FetchIterations(ctx context.Context, start, end time.Time) ([]utilization.Iteration, error)
	FetchCapacityRecords(ctx context.Context, iterationIDs []string) ([]utilization.CapacityRecord, error)
}

// Query selects the iterations starting strictly between Start and End.
type Query struct {
	Start time.Time
	End   time.Time
}

// Row is one iteration of the chart.
type Row struct {
	Iteration      string    `json:"iteration"`
	IterationID    string    `json:"iterationId"`
	StartDate      time.Time `json:"startDate"`
	Estimate       float64   `json:"estimate"`
	Capacity       float64   `json:"capacity"`
	UtilizationPct float64   `json:"utilizationPct"`
	TrendValue     float64   `json:"trendValue"`
	HasTrend       bool      `json:"hasTrend"`
}

// Chart is the full output of one pipeline run.
type Chart struct {
	Start              time.Time   `json:"start"`
	End                time.Time   `json:"end"`
	Rows               []Row       `json:"rows"`
	Trend              *trend.Line `json:"trend,omitempty"`
	UtilizationAxisMax float64     `json:"utilizationAxisMax"`
}

// SelectIterations returns the iterations starting strictly between start
// and end, ordered by start date then ID. An inverted range selects nothing.
func SelectIterations(ctx context.Context, start, end time.Time, src DataSource) ([]utilization.Iteration, error) {
	iterations, err := src.FetchIterations(ctx, start, end)
	if err != nil {
		return nil, sourceError("fetch iterations", err)
	}
	selected := source.InRange(iterations, start, end)
	return selected, nil
}

// BuildChartData runs the full pipeline for q. On ErrInsufficientData the
// returned chart is complete except for trend values.
func BuildChartData(ctx context.Context, logger *zap.Logger, q Query, src DataSource) (*Chart, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	started := time.Now()

	c, err := build(ctx, logger, q, src)

	rows := 0
	if c != nil {
		rows = len(c.Rows)
	}
	metrics.ObservePipeline(outcome(err), time.Since(started), rows)
	return c, err
}

func build(ctx context.Context, logger *zap.Logger, q Query, src DataSource) (*Chart, error) {
	iterations, err := SelectIterations(ctx, q.Start, q.End, src)
	if err != nil {
		return nil, err
	}
	logger.Debug("iterations selected",
		zap.String("op", "chart.BuildChartData"),
		zap.Int("count", len(iterations)),
	)

	var records []utilization.CapacityRecord
	if len(iterations) > 0 {
		ids := make([]string, len(iterations))
		for i, it := range iterations {
			ids[i] = it.ID
		}
		records, err = src.FetchCapacityRecords(ctx, ids)
		if err != nil {
			return nil, sourceError("fetch capacity records", err)
		}
	}

	summaries := utilization.NewAggregator(logger).Aggregate(iterations, records)
	values := utilization.Utilizations(summaries)

	c := &Chart{
		Start:              q.Start,
		End:                q.End,
		Rows:               make([]Row, len(summaries)),
		UtilizationAxisMax: mathutil.AxisCeiling(values, constants.AxisStep),
	}
	for i, s := range summaries {
		c.Rows[i] = Row{
			Iteration:      s.Iteration.Label(),
			IterationID:    s.Iteration.ID,
			StartDate:      s.Iteration.StartDate,
			Estimate:       s.TotalEstimate,
			Capacity:       s.TotalCapacity,
			UtilizationPct: s.UtilizationPct,
		}
	}

	if len(summaries) < constants.MinTrendPoints {
		logger.Info("not enough iterations with capacity data for a trend",
			zap.String("op", "chart.BuildChartData"),
			zap.Int("iterations", len(summaries)),
		)
		return c, fmt.Errorf("%w: %d iteration(s) with capacity data", ErrInsufficientData, len(summaries))
	}

	line, err := trend.Fit(values)
	if err != nil {
		return c, err
	}
	c.Trend = &line
	for i, v := range line.ProjectAll(len(c.Rows)) {
		c.Rows[i].TrendValue = v
		c.Rows[i].HasTrend = true
	}

	logger.Debug("trend fitted",
		zap.String("op", "chart.BuildChartData"),
		zap.Float64("slope", line.Slope),
		zap.Float64("intercept", line.Intercept),
	)
	return c, nil
}

// sourceError makes sure a failed fetch is reported as ErrSourceUnavailable
// unless the caller gave up on it.
func sourceError(step string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", step, err)
	}
	if errors.Is(err, ErrSourceUnavailable) {
		return fmt.Errorf("%s: %w", step, err)
	}
	return fmt.Errorf("%s: %w: %v", step, ErrSourceUnavailable, err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrInsufficientData):
		return metrics.OutcomeInsufficientData
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCancelled
	case errors.Is(err, ErrSourceUnavailable):
		return metrics.OutcomeSourceUnavailable
	default:
		return metrics.OutcomeError
	}
}
