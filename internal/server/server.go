package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/iwvelando/capacity-trend/internal/chart"
	"github.com/iwvelando/capacity-trend/internal/config"
	"github.com/iwvelando/capacity-trend/internal/source"
	"github.com/iwvelando/capacity-trend/pkg/constants"
	"github.com/iwvelando/capacity-trend/pkg/output"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type handler struct {
	logger        *zap.Logger
	source        chart.DataSource
	maxUploadSize int64
	version       string
	now           func() time.Time
}

// NewHandler constructs the HTTP handler that serves the chart API. GET
// requests chart src; POST requests chart the dataset they carry.
func NewHandler(logger *zap.Logger, src chart.DataSource, maxUploadSize int64, version string) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	if maxUploadSize <= 0 {
		maxUploadSize = constants.DefaultMaxUploadSizeBytes
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{logger: logger, source: src, maxUploadSize: maxUploadSize, version: trimmedVersion, now: time.Now}

	mux := http.NewServeMux()

	// Chart API endpoint
	mux.HandleFunc("/api/chart", h.handleChart)

	// Version endpoint for UI metadata
	mux.HandleFunc("/api/version", h.handleVersion)

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

type chartResponse struct {
	Chart    *chart.Chart `json:"chart"`
	CSV      string       `json:"csv"`
	Warnings []string     `json:"warnings,omitempty"`
	Duration string       `json:"duration"`
}

// chartRequest is the body of POST /api/chart.
type chartRequest struct {
	Start   string         `json:"start,omitempty"`
	End     string         `json:"end,omitempty"`
	Dataset source.Dataset `json:"dataset"`
}

func (h *handler) handleChart(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleChartQuery(w, r)
	case http.MethodPost:
		h.handleChartDataset(w, r)
	default:
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleChartQuery(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleChartQuery"
	start := time.Now()

	if h.source == nil {
		h.respondErrorWithOp(w, http.StatusServiceUnavailable, "no data source configured", op)
		return
	}

	values := r.URL.Query()
	q, err := h.parseQuery(values.Get("start"), values.Get("end"))
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	h.runChart(r.Context(), w, q, h.source, start, op)
}

func (h *handler) handleChartDataset(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleChartDataset"
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	var req chartRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds limit of %d bytes", h.maxUploadSize), op)
			return
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err), op)
		return
	}

	q, err := h.parseQuery(req.Start, req.End)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	h.runChart(r.Context(), w, q, source.NewDatasetSource(req.Dataset), start, op)
}

func (h *handler) parseQuery(start, end string) (chart.Query, error) {
	qc := config.QueryConfig{
		StartDate:    strings.TrimSpace(start),
		EndDate:      strings.TrimSpace(end),
		LookbackDays: constants.DefaultLookbackDays,
	}
	from, to, err := qc.Range(h.now())
	if err != nil {
		return chart.Query{}, fmt.Errorf("failed to parse dates: %w", err)
	}
	return chart.Query{Start: from, End: to}, nil
}

func (h *handler) runChart(ctx context.Context, w http.ResponseWriter, q chart.Query, src chart.DataSource, start time.Time, op string) {
	c, err := chart.BuildChartData(ctx, h.logger, q, src)

	var warnings []string
	switch {
	case err == nil:
	case errors.Is(err, chart.ErrInsufficientData):
		warnings = append(warnings, err.Error())
	case errors.Is(err, chart.ErrSourceUnavailable):
		h.respondErrorWithOp(w, http.StatusBadGateway, err.Error(), op)
		return
	case errors.Is(err, context.DeadlineExceeded):
		h.respondErrorWithOp(w, http.StatusGatewayTimeout, err.Error(), op)
		return
	default:
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to build chart: %v", err), op)
		return
	}

	csvData, err := output.CsvString(c)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to render CSV: %v", err), op)
		return
	}

	h.writeJSON(w, http.StatusOK, chartResponse{
		Chart:    c,
		CSV:      csvData,
		Warnings: warnings,
		Duration: time.Since(start).String(),
	})
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("chart request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.String("op", "server.writeJSON"), zap.Error(err))
	}
}
