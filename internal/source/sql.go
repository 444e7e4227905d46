package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iwvelando/capacity-trend/pkg/datetime"
	"github.com/iwvelando/capacity-trend/pkg/utilization"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Schema creates the tables the SQL source reads. Dates are text so range
// comparisons work the same on every driver. Load writes them as UTC RFC 3339,
// which sorts chronologically; rows holding plain YYYY-MM-DD dates still
// compare correctly against those bounds.
const Schema = `
CREATE TABLE IF NOT EXISTS iterations (
	id TEXT PRIMARY KEY,
	name TEXT,
	start_date TEXT NOT NULL,
	end_date TEXT
);
CREATE TABLE IF NOT EXISTS user_iteration_capacities (
	iteration_id TEXT NOT NULL,
	user_name TEXT,
	task_estimates DOUBLE PRECISION,
	capacity DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS user_iteration_capacities_iteration_idx
	ON user_iteration_capacities (iteration_id);
`

// SQLSource reads iterations and capacities from a database.
type SQLSource struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

// OpenSQL opens a database with the given driver ("sqlite" or "postgres").
func OpenSQL(driver, dsn string, logger *zap.Logger) (*SQLSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sql dsn is required")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == "sqlite" {
		// A single connection keeps in-memory databases shared across queries.
		db.SetMaxOpenConns(1)
	}
	return &SQLSource{db: db, driver: driver, logger: logger}, nil
}

// EnsureSchema creates the source tables if they do not exist.
func (s *SQLSource) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Load writes ds into the source tables, replacing any iteration with the
// same id together with its capacity rows. Rows are validated before anything
// is written.
func (s *SQLSource) Load(ctx context.Context, ds Dataset) (err error) {
	if _, err := ConvertIterations(ds.Iterations); err != nil {
		return err
	}
	if _, err := ConvertCapacities(ds.Capacities); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	starts := make([]string, len(ds.Iterations))
	ends := make([]sql.NullString, len(ds.Iterations))
	for i, row := range ds.Iterations {
		t, _ := datetime.ParseDate(row.StartDate)
		starts[i] = storedDate(t)
		if row.EndDate != "" {
			t, _ = datetime.ParseDate(row.EndDate)
			ends[i] = sql.NullString{String: storedDate(t), Valid: true}
		}
	}

	p1, p2, p3, p4 := s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4)
	replaced := make(map[string]struct{})
	for i, row := range ds.Iterations {
		if _, err = tx.ExecContext(ctx, "DELETE FROM user_iteration_capacities WHERE iteration_id = "+p1, row.ID); err != nil {
			return fmt.Errorf("clear capacities of %q: %w", row.ID, err)
		}
		if _, err = tx.ExecContext(ctx, "DELETE FROM iterations WHERE id = "+p1, row.ID); err != nil {
			return fmt.Errorf("clear iteration %q: %w", row.ID, err)
		}
		replaced[row.ID] = struct{}{}
		if _, err = tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO iterations (id, name, start_date, end_date) VALUES (%s, %s, %s, %s)", p1, p2, p3, p4),
			row.ID, nullable(row.Name), starts[i], ends[i]); err != nil {
			return fmt.Errorf("insert iteration %q: %w", row.ID, err)
		}
	}
	for _, row := range ds.Capacities {
		if _, ok := replaced[row.IterationID]; !ok {
			if _, err = tx.ExecContext(ctx, "DELETE FROM user_iteration_capacities WHERE iteration_id = "+p1, row.IterationID); err != nil {
				return fmt.Errorf("clear capacities of %q: %w", row.IterationID, err)
			}
			replaced[row.IterationID] = struct{}{}
		}
		if _, err = tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO user_iteration_capacities (iteration_id, user_name, task_estimates, capacity) VALUES (%s, %s, %s, %s)", p1, p2, p3, p4),
			row.IterationID, nullable(row.User), *row.TaskEstimates, *row.Capacity); err != nil {
			return fmt.Errorf("insert capacity of %q: %w", row.IterationID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit load: %w", err)
	}
	s.logger.Info("dataset loaded",
		zap.String("op", "source.SQLSource.Load"),
		zap.Int("iterations", len(ds.Iterations)),
		zap.Int("capacities", len(ds.Capacities)),
	)
	return nil
}

// storedDate renders t the way Load writes dates: fixed-width UTC, so text
// order is time order.
func storedDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// placeholder returns the n-th (1-based) bind parameter for the driver.
func (s *SQLSource) placeholder(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// FetchIterations implements Source.
func (s *SQLSource) FetchIterations(ctx context.Context, start, end time.Time) ([]utilization.Iteration, error) {
	query := fmt.Sprintf(`SELECT id, name, start_date, end_date FROM iterations
		WHERE start_date >= %s AND start_date <= %s
		ORDER BY start_date ASC, id ASC`, s.placeholder(1), s.placeholder(2))

	// The text bounds are inclusive and second-granular; InRange applies the
	// exact exclusive bounds.
	rows, err := s.db.QueryContext(ctx, query, storedDate(start), storedDate(end))
	if err != nil {
		return nil, s.queryError(ctx, "iterations", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []IterationRow
	for rows.Next() {
		var (
			id, startDate string
			name, endDate sql.NullString
		)
		if err := rows.Scan(&id, &name, &startDate, &endDate); err != nil {
			return nil, unavailable("scan iteration row: %v", err)
		}
		out = append(out, IterationRow{ID: id, Name: name.String, StartDate: startDate, EndDate: endDate.String})
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryError(ctx, "iterations", err)
	}

	iterations, err := ConvertIterations(out)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("iterations fetched",
		zap.String("op", "source.SQLSource.FetchIterations"),
		zap.Int("count", len(iterations)),
	)
	return InRange(iterations, start, end), nil
}

// FetchCapacityRecords implements Source.
func (s *SQLSource) FetchCapacityRecords(ctx context.Context, iterationIDs []string) ([]utilization.CapacityRecord, error) {
	if len(iterationIDs) == 0 {
		return nil, nil
	}

	marks := make([]string, len(iterationIDs))
	args := make([]any, len(iterationIDs))
	for i, id := range iterationIDs {
		marks[i] = s.placeholder(i + 1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT iteration_id, user_name, task_estimates, capacity
		FROM user_iteration_capacities WHERE iteration_id IN (%s)`, strings.Join(marks, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.queryError(ctx, "capacities", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []CapacityRow
	for rows.Next() {
		var (
			iterationID string
			user        sql.NullString
			estimate    sql.NullFloat64
			capacity    sql.NullFloat64
		)
		if err := rows.Scan(&iterationID, &user, &estimate, &capacity); err != nil {
			return nil, unavailable("scan capacity row: %v", err)
		}
		row := CapacityRow{IterationID: iterationID, User: user.String}
		if estimate.Valid {
			row.TaskEstimates = &estimate.Float64
		}
		if capacity.Valid {
			row.Capacity = &capacity.Float64
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryError(ctx, "capacities", err)
	}

	return ConvertCapacities(out)
}

// Close implements Source.
func (s *SQLSource) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLSource) queryError(ctx context.Context, table string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return unavailable("query %s: %v", table, err)
}
