// Package session keeps the chart of the most recent date-range selection.
//
// Every refresh supersedes the one before it: the older invocation's context
// is cancelled and, should it still complete, its result is discarded. Only
// the latest invocation ever publishes.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/capacity-trend/internal/chart"
	"github.com/iwvelando/capacity-trend/internal/metrics"
	"go.uber.org/zap"
)

// ErrSuperseded is returned by Refresh when a newer refresh started before
// this one completed.
var ErrSuperseded = errors.New("superseded by a newer refresh")

// ErrPublish wraps an error returned by the OnPublish callback.
var ErrPublish = errors.New("publish failed")

// Result is a published pipeline outcome. Err is nil or ErrInsufficientData
// when Chart is set.
type Result struct {
	ID          string
	Query       chart.Query
	Chart       *chart.Chart
	Err         error
	CompletedAt time.Time
}

// Session runs the chart pipeline against one data source.
type Session struct {
	source chart.DataSource
	logger *zap.Logger

	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelFunc
	latest  Result
	hasLast bool
	publish func(Result) error
}

// New creates a session over src.
func New(src chart.DataSource, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{source: src, logger: logger}
}

// OnPublish registers fn to be called with every published result. fn runs
// while the session is locked, so calls are never concurrent and never
// observe a result older than one already published.
func (s *Session) OnPublish(fn func(Result) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish = fn
}

// Refresh builds the chart for q, cancelling any refresh still in flight.
// The result is published only if no newer refresh started meanwhile;
// otherwise ErrSuperseded is returned. An error from the OnPublish callback
// is joined to the returned error.
func (s *Session) Refresh(ctx context.Context, q chart.Query) (*chart.Chart, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	id := uuid.NewString()
	logger := s.logger.With(zap.String("invocation", id))
	logger.Debug("refresh started",
		zap.String("op", "session.Refresh"),
		zap.Time("start", q.Start),
		zap.Time("end", q.End),
	)

	c, err := chart.BuildChartData(ctx, logger, q, s.source)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		metrics.ObserveSuperseded()
		logger.Debug("refresh superseded",
			zap.String("op", "session.Refresh"),
		)
		return nil, ErrSuperseded
	}
	s.cancel = nil
	s.latest = Result{ID: id, Query: q, Chart: c, Err: err, CompletedAt: time.Now()}
	s.hasLast = true

	if s.publish != nil {
		if perr := s.publish(s.latest); perr != nil {
			err = errors.Join(err, fmt.Errorf("%w: %w", ErrPublish, perr))
		}
	}

	if err != nil && !errors.Is(err, chart.ErrInsufficientData) {
		logger.Warn("refresh failed",
			zap.String("op", "session.Refresh"),
			zap.Error(err),
		)
	}
	return c, err
}

// Latest returns the most recently published result.
func (s *Session) Latest() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasLast
}

// Close cancels any refresh in flight. Its result will not be published.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
}
