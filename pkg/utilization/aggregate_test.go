package utilization

import (
	"math"
	"testing"
	"time"

	"github.com/iwvelando/capacity-trend/pkg/constants"
	"go.uber.org/zap"
)

func day(n int) time.Time {
	return time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func sampleIterations() []Iteration {
	return []Iteration{
		{ID: "I1", Name: "Sprint 1", StartDate: day(0), EndDate: day(9)},
		{ID: "I2", Name: "Sprint 2", StartDate: day(10), EndDate: day(19)},
		{ID: "I3", Name: "Sprint 3", StartDate: day(20), EndDate: day(29)},
	}
}

func TestAggregate(t *testing.T) {
	aggregator := NewAggregator(zap.NewNop())

	records := []CapacityRecord{
		{IterationID: "I1", User: "ana", Estimate: 30, Capacity: 60},
		{IterationID: "I1", User: "bo", Estimate: 20, Capacity: 40},
		{IterationID: "I2", User: "ana", Estimate: 80, Capacity: 100},
		{IterationID: "I3", User: "ana", Estimate: 90, Capacity: 90},
	}

	summaries := aggregator.Aggregate(sampleIterations(), records)

	expected := []struct {
		id          string
		estimate    float64
		capacity    float64
		utilization float64
		records     int
	}{
		{"I1", 50, 100, 50, 2},
		{"I2", 80, 100, 80, 1},
		{"I3", 90, 90, 100, 1},
	}

	if len(summaries) != len(expected) {
		t.Fatalf("Aggregate() returned %d summaries, expected %d", len(summaries), len(expected))
	}
	for i, want := range expected {
		got := summaries[i]
		if got.Iteration.ID != want.id {
			t.Errorf("summary %d iteration = %s, expected %s", i, got.Iteration.ID, want.id)
		}
		if got.TotalEstimate != want.estimate || got.TotalCapacity != want.capacity {
			t.Errorf("summary %s totals = %v/%v, expected %v/%v", want.id, got.TotalEstimate, got.TotalCapacity, want.estimate, want.capacity)
		}
		if math.Abs(got.UtilizationPct-want.utilization) > constants.Tolerance {
			t.Errorf("summary %s utilization = %v, expected %v", want.id, got.UtilizationPct, want.utilization)
		}
		if got.Records != want.records {
			t.Errorf("summary %s records = %d, expected %d", want.id, got.Records, want.records)
		}
	}
}

func TestAggregateDropsIterationsWithoutRecords(t *testing.T) {
	aggregator := NewAggregator(nil)

	records := []CapacityRecord{
		{IterationID: "I3", User: "ana", Estimate: 10, Capacity: 20},
		{IterationID: "I1", User: "ana", Estimate: 5, Capacity: 10},
	}

	summaries := aggregator.Aggregate(sampleIterations(), records)
	if len(summaries) != 2 {
		t.Fatalf("Aggregate() returned %d summaries, expected 2", len(summaries))
	}
	if summaries[0].Iteration.ID != "I1" || summaries[1].Iteration.ID != "I3" {
		t.Errorf("Aggregate() order = [%s %s], expected [I1 I3]", summaries[0].Iteration.ID, summaries[1].Iteration.ID)
	}
}

func TestAggregateIgnoresRecordOrder(t *testing.T) {
	aggregator := NewAggregator(zap.NewNop())

	forward := []CapacityRecord{
		{IterationID: "I1", User: "ana", Estimate: 0.1, Capacity: 7.3},
		{IterationID: "I2", User: "bo", Estimate: 0.2, Capacity: 1.1},
		{IterationID: "I1", User: "cy", Estimate: 0.7, Capacity: 2.9},
		{IterationID: "I1", User: "di", Estimate: 0.3, Capacity: 0.6},
		{IterationID: "I2", User: "ana", Estimate: 1.4, Capacity: 3.3},
	}
	reversed := make([]CapacityRecord, len(forward))
	for i, rec := range forward {
		reversed[len(forward)-1-i] = rec
	}

	a := aggregator.Aggregate(sampleIterations(), forward)
	b := aggregator.Aggregate(sampleIterations(), reversed)

	if len(a) != len(b) {
		t.Fatalf("summary counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("summary %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestAggregateZeroCapacityFallback(t *testing.T) {
	aggregator := NewAggregator(zap.NewNop())

	records := []CapacityRecord{
		{IterationID: "I1", User: "ana", Estimate: 40, Capacity: 0},
		{IterationID: "I2", User: "ana", Estimate: 0, Capacity: 0},
	}

	summaries := aggregator.Aggregate(sampleIterations(), records)
	if len(summaries) != 2 {
		t.Fatalf("Aggregate() returned %d summaries, expected 2", len(summaries))
	}

	loaded := summaries[0].UtilizationPct
	if math.IsInf(loaded, 0) || math.IsNaN(loaded) {
		t.Fatalf("utilization with zero capacity is not finite: %v", loaded)
	}
	if loaded <= 0 || loaded >= 1 {
		t.Errorf("utilization with zero capacity = %v, expected a small positive number", loaded)
	}
	if summaries[1].UtilizationPct != 0 {
		t.Errorf("utilization with no estimate and no capacity = %v, expected 0", summaries[1].UtilizationPct)
	}
}

func TestAggregateIgnoresUnknownAndDuplicateIterations(t *testing.T) {
	aggregator := NewAggregator(zap.NewNop())

	iterations := append(sampleIterations(), sampleIterations()[0])
	records := []CapacityRecord{
		{IterationID: "I1", User: "ana", Estimate: 10, Capacity: 10},
		{IterationID: "elsewhere", User: "ana", Estimate: 99, Capacity: 1},
	}

	summaries := aggregator.Aggregate(iterations, records)
	if len(summaries) != 1 {
		t.Fatalf("Aggregate() returned %d summaries, expected 1", len(summaries))
	}
	if summaries[0].TotalEstimate != 10 {
		t.Errorf("TotalEstimate = %v, expected 10", summaries[0].TotalEstimate)
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	aggregator := NewAggregator(zap.NewNop())
	if got := aggregator.Aggregate(nil, nil); len(got) != 0 {
		t.Errorf("Aggregate(nil, nil) = %v, expected empty", got)
	}
}

func TestUtilizations(t *testing.T) {
	summaries := []Summary{{UtilizationPct: 12.5}, {UtilizationPct: 80}}
	got := Utilizations(summaries)
	if len(got) != 2 || got[0] != 12.5 || got[1] != 80 {
		t.Errorf("Utilizations() = %v, expected [12.5 80]", got)
	}
}

func TestIterationLabel(t *testing.T) {
	if got := (Iteration{ID: "it-1", Name: "Sprint 1"}).Label(); got != "Sprint 1" {
		t.Errorf("Label() = %s, expected Sprint 1", got)
	}
	if got := (Iteration{ID: "it-1"}).Label(); got != "it-1" {
		t.Errorf("Label() = %s, expected it-1", got)
	}
}
