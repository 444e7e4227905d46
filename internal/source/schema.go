// Package source adapts external work-tracking data to the iteration and
// capacity records the utilization engine consumes.
//
// Rows are validated against an explicit schema at this boundary. Any
// failure to reach a source or to make sense of what it returned is reported
// as ErrSourceUnavailable so callers can abort without rendering partial
// output.
package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/iwvelando/capacity-trend/pkg/datetime"
	"github.com/iwvelando/capacity-trend/pkg/utilization"
)

// ErrSourceUnavailable reports that a source could not be reached or returned
// data that does not match the schema.
var ErrSourceUnavailable = errors.New("data source unavailable")

// Source supplies iterations and capacity records.
type Source interface {
	// FetchIterations returns iterations starting strictly after start and
	// strictly before end, ordered by start date.
	FetchIterations(ctx context.Context, start, end time.Time) ([]utilization.Iteration, error)
	// FetchCapacityRecords returns the capacity records of the given iterations.
	FetchCapacityRecords(ctx context.Context, iterationIDs []string) ([]utilization.CapacityRecord, error)
	Close() error
}

// IterationRow is the wire schema of an iteration.
type IterationRow struct {
	ID        string `json:"id" yaml:"id" validate:"required"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	StartDate string `json:"startDate" yaml:"startDate" validate:"required,isodate"`
	EndDate   string `json:"endDate,omitempty" yaml:"endDate,omitempty" validate:"omitempty,isodate"`
}

// CapacityRow is the wire schema of one person's capacity for an iteration.
// Numeric fields are pointers so that a missing value is told apart from zero.
type CapacityRow struct {
	IterationID   string   `json:"iterationId" yaml:"iterationId" validate:"required"`
	User          string   `json:"user,omitempty" yaml:"user,omitempty"`
	TaskEstimates *float64 `json:"taskEstimates" yaml:"taskEstimates" validate:"required,finite"`
	Capacity      *float64 `json:"capacity" yaml:"capacity" validate:"required,finite"`
}

// Dataset is a complete set of rows, as held by fixture files and inline
// requests.
type Dataset struct {
	Iterations []IterationRow `json:"iterations" yaml:"iterations"`
	Capacities []CapacityRow  `json:"capacities" yaml:"capacities"`
}

// rowValidate is the validator instance for source rows.
// Initialized in init() with custom validators.
var rowValidate *validator.Validate

func init() {
	rowValidate = validator.New()

	if err := rowValidate.RegisterValidation("isodate", validateDate); err != nil {
		panic(fmt.Sprintf("failed to register date validator: %v", err))
	}
	if err := rowValidate.RegisterValidation("finite", validateFinite); err != nil {
		panic(fmt.Sprintf("failed to register finite validator: %v", err))
	}
}

func validateDate(fl validator.FieldLevel) bool {
	_, err := datetime.ParseDate(fl.Field().String())
	return err == nil
}

func validateFinite(fl validator.FieldLevel) bool {
	v := fl.Field().Float()
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSourceUnavailable, fmt.Sprintf(format, args...))
}

// ToIteration validates the row and converts it.
func (r IterationRow) ToIteration() (utilization.Iteration, error) {
	if err := rowValidate.Struct(r); err != nil {
		return utilization.Iteration{}, err
	}
	it := utilization.Iteration{ID: r.ID, Name: r.Name}
	it.StartDate, _ = datetime.ParseDate(r.StartDate)
	if r.EndDate != "" {
		it.EndDate, _ = datetime.ParseDate(r.EndDate)
	}
	return it, nil
}

// ToRecord validates the row and converts it.
func (r CapacityRow) ToRecord() (utilization.CapacityRecord, error) {
	if err := rowValidate.Struct(r); err != nil {
		return utilization.CapacityRecord{}, err
	}
	return utilization.CapacityRecord{
		IterationID: r.IterationID,
		User:        r.User,
		Estimate:    *r.TaskEstimates,
		Capacity:    *r.Capacity,
	}, nil
}

// ConvertIterations validates every row, failing fast on the first mismatch.
func ConvertIterations(rows []IterationRow) ([]utilization.Iteration, error) {
	out := make([]utilization.Iteration, 0, len(rows))
	for i, row := range rows {
		it, err := row.ToIteration()
		if err != nil {
			return nil, unavailable("iteration row %d (%q) does not match schema: %v", i, row.ID, err)
		}
		out = append(out, it)
	}
	return out, nil
}

// ConvertCapacities validates every row, failing fast on the first mismatch.
func ConvertCapacities(rows []CapacityRow) ([]utilization.CapacityRecord, error) {
	out := make([]utilization.CapacityRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := row.ToRecord()
		if err != nil {
			return nil, unavailable("capacity row %d (iteration %q) does not match schema: %v", i, row.IterationID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// InRange keeps the iterations starting strictly inside (start, end) and
// orders them by start date.
func InRange(iterations []utilization.Iteration, start, end time.Time) []utilization.Iteration {
	out := make([]utilization.Iteration, 0, len(iterations))
	for _, it := range iterations {
		if datetime.StrictlyBetween(it.StartDate, start, end) {
			out = append(out, it)
		}
	}
	utilization.SortByStart(out)
	return out
}

// ForIterations keeps the records belonging to one of the given iterations.
func ForIterations(records []utilization.CapacityRecord, iterationIDs []string) []utilization.CapacityRecord {
	out := make([]utilization.CapacityRecord, 0, len(records))
	for _, rec := range records {
		if slices.Contains(iterationIDs, rec.IterationID) {
			out = append(out, rec)
		}
	}
	return out
}
