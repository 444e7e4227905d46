// Package utilization reduces per-person capacity records to one workload
// utilization figure per iteration.
package utilization

import (
	"cmp"
	"slices"
	"time"

	"github.com/iwvelando/capacity-trend/pkg/mathutil"
	"go.uber.org/zap"
)

// Iteration is a time-boxed work period.
type Iteration struct {
	ID        string
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

// Label returns the name used to present the iteration, falling back to its ID.
func (i Iteration) Label() string {
	if i.Name != "" {
		return i.Name
	}
	return i.ID
}

// CapacityRecord is one person's planned capacity and task estimates for an
// iteration. IterationID refers to Iteration.ID.
type CapacityRecord struct {
	IterationID string
	User        string
	Estimate    float64
	Capacity    float64
}

// Summary is the reduction of every record of one iteration.
type Summary struct {
	Iteration      Iteration
	Records        int
	TotalEstimate  float64
	TotalCapacity  float64
	UtilizationPct float64
}

// Aggregator groups capacity records by iteration.
type Aggregator struct {
	logger *zap.Logger
}

// NewAggregator creates a new aggregator with the given logger.
// If logger is nil, it will use a no-op logger to prevent panics.
func NewAggregator(logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{logger: logger}
}

// Aggregate returns one Summary per iteration that has at least one record,
// in the order of iterations. Iterations without records are dropped.
func (a *Aggregator) Aggregate(iterations []Iteration, records []CapacityRecord) []Summary {
	groups := make(map[string][]CapacityRecord, len(iterations))
	known := make(map[string]struct{}, len(iterations))
	for _, it := range iterations {
		known[it.ID] = struct{}{}
	}
	for _, rec := range records {
		if _, ok := known[rec.IterationID]; !ok {
			a.logger.Debug("ignoring record for unselected iteration",
				zap.String("op", "utilization.Aggregate"),
				zap.String("iteration", rec.IterationID),
				zap.String("user", rec.User),
			)
			continue
		}
		groups[rec.IterationID] = append(groups[rec.IterationID], rec)
	}

	summaries := make([]Summary, 0, len(groups))
	seen := make(map[string]struct{}, len(iterations))
	for _, it := range iterations {
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}

		group := groups[it.ID]
		if len(group) == 0 {
			a.logger.Debug("dropping iteration without capacity records",
				zap.String("op", "utilization.Aggregate"),
				zap.String("iteration", it.ID),
			)
			continue
		}
		// Summation order is fixed so totals do not depend on the order the
		// source returned records in.
		slices.SortFunc(group, compareRecords)
		summaries = append(summaries, Summarize(it, group))
	}
	return summaries
}

// Summarize sums estimates and capacities of records that all belong to it.
func Summarize(it Iteration, records []CapacityRecord) Summary {
	s := Summary{Iteration: it, Records: len(records)}
	for _, rec := range records {
		s.TotalEstimate += rec.Estimate
		s.TotalCapacity += rec.Capacity
	}
	s.UtilizationPct = mathutil.Utilization(s.TotalEstimate, s.TotalCapacity)
	return s
}

// Utilizations extracts the utilization series from summaries.
func Utilizations(summaries []Summary) []float64 {
	out := make([]float64, len(summaries))
	for i, s := range summaries {
		out[i] = s.UtilizationPct
	}
	return out
}

func compareRecords(a, b CapacityRecord) int {
	return cmp.Or(
		cmp.Compare(a.User, b.User),
		cmp.Compare(a.Estimate, b.Estimate),
		cmp.Compare(a.Capacity, b.Capacity),
	)
}

// SortByStart orders iterations by start date, breaking ties by ID so the
// order never depends on how a source happened to return them.
func SortByStart(iterations []Iteration) {
	slices.SortStableFunc(iterations, func(a, b Iteration) int {
		return cmp.Or(a.StartDate.Compare(b.StartDate), cmp.Compare(a.ID, b.ID))
	})
}
