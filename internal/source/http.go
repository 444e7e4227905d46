package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/iwvelando/capacity-trend/internal/config"
	"github.com/iwvelando/capacity-trend/pkg/constants"
	"github.com/iwvelando/capacity-trend/pkg/datetime"
	"github.com/iwvelando/capacity-trend/pkg/utilization"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxErrorBody caps how much of a failed response is quoted in errors.
const maxErrorBody = 512

// HTTPSource reads iterations and capacities from a JSON API:
//
//	GET {base}/iterations?start=YYYY-MM-DD&end=YYYY-MM-DD -> {"iterations": [...]}
//	GET {base}/capacities?iteration=ID&iteration=ID      -> {"capacities": [...]}
//
// Requests are paced by a token bucket so that rapid re-queries do not
// hammer the remote API.
type HTTPSource struct {
	baseURL *url.URL
	token   string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// The row lists are pointers so a body without the key, or with a null
// value, is told apart from an empty list.
type iterationsResponse struct {
	Iterations *[]IterationRow `json:"iterations"`
}

type capacitiesResponse struct {
	Capacities *[]CapacityRow `json:"capacities"`
}

// NewHTTPSource builds an HTTP source from configuration. The bearer token,
// if any, is read from the environment variable named by TokenEnv.
func NewHTTPSource(cfg config.HTTPSourceConfig, logger *zap.Logger) (*HTTPSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid http source base URL %q", cfg.BaseURL)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = constants.DefaultRequestsPerSecond
	}

	var token string
	if cfg.TokenEnv != "" {
		token = strings.TrimSpace(os.Getenv(cfg.TokenEnv))
	}

	return &HTTPSource{
		baseURL: base,
		token:   token,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}, nil
}

// FetchIterations implements Source.
func (s *HTTPSource) FetchIterations(ctx context.Context, start, end time.Time) ([]utilization.Iteration, error) {
	q := url.Values{}
	q.Set("start", datetime.Format(start))
	q.Set("end", datetime.Format(end))

	var resp iterationsResponse
	if err := s.get(ctx, "iterations", q, &resp); err != nil {
		return nil, err
	}
	if resp.Iterations == nil {
		return nil, unavailable("GET iterations: response has no %q list", "iterations")
	}
	iterations, err := ConvertIterations(*resp.Iterations)
	if err != nil {
		return nil, err
	}
	return InRange(iterations, start, end), nil
}

// FetchCapacityRecords implements Source.
func (s *HTTPSource) FetchCapacityRecords(ctx context.Context, iterationIDs []string) ([]utilization.CapacityRecord, error) {
	if len(iterationIDs) == 0 {
		return nil, nil
	}
	q := url.Values{}
	for _, id := range iterationIDs {
		q.Add("iteration", id)
	}

	var resp capacitiesResponse
	if err := s.get(ctx, "capacities", q, &resp); err != nil {
		return nil, err
	}
	if resp.Capacities == nil {
		return nil, unavailable("GET capacities: response has no %q list", "capacities")
	}
	records, err := ConvertCapacities(*resp.Capacities)
	if err != nil {
		return nil, err
	}
	return ForIterations(records, iterationIDs), nil
}

// Close implements Source.
func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPSource) get(ctx context.Context, resource string, query url.Values, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return unavailable("rate limiter: %v", err)
	}

	endpoint := s.baseURL.JoinPath(resource)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return unavailable("create request failed: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return unavailable("GET %s: %v", resource, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	s.logger.Debug("source request completed",
		zap.String("op", "source.HTTPSource.get"),
		zap.String("resource", resource),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return unavailable("GET %s: status %d: %s", resource, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return unavailable("GET %s: decode response: %v", resource, err)
	}
	return nil
}
