package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iwvelando/capacity-trend/internal/config"
	"github.com/iwvelando/capacity-trend/internal/session"
	"github.com/iwvelando/capacity-trend/internal/source"
	"github.com/iwvelando/capacity-trend/pkg/constants"
	"github.com/iwvelando/capacity-trend/pkg/testutil"
	"github.com/iwvelando/capacity-trend/pkg/utilization"
	"go.uber.org/zap"
)

func TestInitializeLogger(t *testing.T) {
	tests := []struct {
		name     string
		config   config.LoggingConfig
		override string
		wantErr  bool
	}{
		{name: "defaults", config: config.LoggingConfig{}},
		{name: "console debug", config: config.LoggingConfig{Level: "debug", Format: "console"}},
		{name: "override wins", config: config.LoggingConfig{Level: "bogus"}, override: "warn"},
		{name: "invalid level", config: config.LoggingConfig{Level: "loud"}, wantErr: true},
		{name: "invalid format", config: config.LoggingConfig{Format: "xml"}, wantErr: true},
		{name: "output file", config: config.LoggingConfig{OutputFile: filepath.Join(t.TempDir(), "logs", "app.log")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := initializeLogger(tt.config, tt.override)
			if (err != nil) != tt.wantErr {
				t.Fatalf("initializeLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if logger != nil {
				_ = logger.Sync()
			}
		})
	}
}

func TestRefreshRendersFormats(t *testing.T) {
	src := &testutil.FakeSource{
		Iterations: []utilization.Iteration{
			testutil.Iteration("A", "2025-01-01"),
			testutil.Iteration("B", "2025-01-15"),
		},
		Records: []utilization.CapacityRecord{
			testutil.Record("A", "ann", 5, 10),
			testutil.Record("B", "ann", 9, 10),
		},
	}
	conf := &config.Configuration{Query: config.QueryConfig{StartDate: "2024-12-01", EndDate: "2025-03-01"}}

	tests := []struct {
		format   string
		expected string
	}{
		{format: constants.OutputFormatPretty, expected: "Sprint B"},
		{format: constants.OutputFormatCSV, expected: "Sprint B,2025-01-15,9.00,10.00,90.00,90.00"},
		{format: constants.OutputFormatJSON, expected: `"utilizationPct": 90`},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			sess := newRenderingSession(src, zap.NewNop(), &renderer{out: &buf, format: tt.format})
			if err := refresh(context.Background(), zap.NewNop(), sess, conf); err != nil {
				t.Fatalf("refresh() error = %v", err)
			}
			if !strings.Contains(buf.String(), tt.expected) {
				t.Errorf("output missing %q:\n%s", tt.expected, buf.String())
			}
		})
	}
}

func TestRefreshRendersWithoutTrend(t *testing.T) {
	src := &testutil.FakeSource{
		Iterations: []utilization.Iteration{testutil.Iteration("A", "2025-01-01")},
		Records:    []utilization.CapacityRecord{testutil.Record("A", "ann", 5, 10)},
	}
	conf := &config.Configuration{Query: config.QueryConfig{StartDate: "2024-12-01", EndDate: "2025-03-01"}}

	var buf bytes.Buffer
	sess := newRenderingSession(src, zap.NewNop(), &renderer{out: &buf, format: constants.OutputFormatPretty})
	if err := refresh(context.Background(), zap.NewNop(), sess, conf); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Trend: not enough iterations") {
		t.Errorf("output missing trend notice:\n%s", buf.String())
	}
}

func TestSupersededRefreshIsNotRendered(t *testing.T) {
	src := &testutil.FakeSource{
		Iterations: []utilization.Iteration{
			testutil.Iteration("A", "2025-01-01"),
			testutil.Iteration("B", "2025-01-15"),
		},
		Records: []utilization.CapacityRecord{
			testutil.Record("A", "ann", 5, 10),
			testutil.Record("B", "ann", 9, 10),
		},
		Block: make(chan struct{}),
	}
	var buf bytes.Buffer
	sess := newRenderingSession(src, zap.NewNop(), &renderer{out: &buf, format: constants.OutputFormatCSV})

	older := &config.Configuration{Query: config.QueryConfig{StartDate: "2024-12-01", EndDate: "2025-03-01"}}
	newer := &config.Configuration{Query: config.QueryConfig{StartDate: "2025-01-10", EndDate: "2025-03-01"}}

	first := make(chan error, 1)
	go func() { first <- refresh(context.Background(), zap.NewNop(), sess, older) }()
	waitForIterationCalls(t, src, 1)

	second := make(chan error, 1)
	go func() { second <- refresh(context.Background(), zap.NewNop(), sess, newer) }()

	if err := <-first; !errors.Is(err, session.ErrSuperseded) {
		t.Fatalf("first refresh() error = %v, want ErrSuperseded", err)
	}
	close(src.Block)
	if err := <-second; err != nil {
		t.Fatalf("second refresh() error = %v", err)
	}

	if strings.Contains(buf.String(), "Sprint A") {
		t.Errorf("superseded chart was rendered:\n%s", buf.String())
	}
	if got := strings.Count(buf.String(), "iteration,start"); got != 1 {
		t.Errorf("rendered %d charts, want 1:\n%s", got, buf.String())
	}
}

func waitForIterationCalls(t *testing.T, src *testutil.FakeSource, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if calls, _ := src.Calls(); calls >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("source was not reached %d time(s)", n)
}

func TestImportDataset(t *testing.T) {
	if err := importDataset(context.Background(), &testutil.FakeSource{}, "../../test/sprints.yaml"); err == nil {
		t.Error("importDataset() expected error for a non-sql source")
	}

	db, err := source.OpenSQL("sqlite", filepath.Join(t.TempDir(), "import.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("OpenSQL() error = %v", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err := importDataset(context.Background(), db, "../../test/sprints.yaml"); err != nil {
		t.Fatalf("importDataset() error = %v", err)
	}
	records, err := db.FetchCapacityRecords(context.Background(), []string{"s1"})
	if err != nil {
		t.Fatalf("FetchCapacityRecords() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 imported records for s1, got %d", len(records))
	}
}
