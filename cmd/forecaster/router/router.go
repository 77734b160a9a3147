// Package router configures the forecaster's HTTP API.
//
// Routes configured:
//   - POST /forecast?threshold=<t>&resource=<name> - Forecast the next 12 hours
//     from an uploaded history (multipart field "file", or a raw TSV body)
//   - GET /forecast/current?resource=<name> - Latest stored snapshot
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// POST /forecast answers with the bare JSON array of {timestamp, value}
// points. When resource is given the run is also stored as that resource's
// latest snapshot. Snapshots older than the stale threshold are served with
// an X-Plugcast-Stale header.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/plugcast/cmd/forecaster/metrics"
	"github.com/HatiCode/plugcast/pkg/forecast"
	"github.com/HatiCode/plugcast/pkg/httpx"
	"github.com/HatiCode/plugcast/pkg/series"
	"github.com/HatiCode/plugcast/pkg/storage"
)

const (
	// StaleHeader marks snapshots older than the stale threshold.
	StaleHeader = "X-Plugcast-Stale"
	// CachedHeader reports whether POST /forecast reused a cached model.
	CachedHeader = "X-Plugcast-Cached"

	multipartMemory = 8 << 20
)

var resourceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]{0,251}[a-zA-Z0-9])?$`)

// Options wires the handlers to their collaborators.
type Options struct {
	Store    storage.Store
	Pipeline *forecast.Pipeline
	Metrics  *metrics.Metrics
	// Forecast holds the hyperparameters and default threshold.
	Forecast       forecast.Options
	StaleAfter     time.Duration
	MaxUploadBytes int64
	// Health, when set, backs /healthz; a non-nil error answers 503.
	Health func() error
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// SetupRoutes returns the API handler wrapped in request-id, logging and
// recovery middleware.
func SetupRoutes(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Pipeline == nil {
		opts.Pipeline = forecast.NewPipeline(opts.Store, opts.Logger)
	}

	mux := http.NewServeMux()

	if opts.Health != nil {
		mux.Handle("GET /healthz", httpx.HealthHandlerWithCheck(opts.Health))
	} else {
		mux.Handle("GET /healthz", httpx.HealthHandler())
	}

	mux.HandleFunc("POST /forecast", handleForecast(opts))
	mux.HandleFunc("GET /forecast/current", handleGetSnapshot(opts))

	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return httpx.Chain(mux,
		httpx.RequestIDMiddleware(),
		httpx.LoggingMiddleware(opts.Logger),
		httpx.RecoveryMiddleware(opts.Logger),
	)
}

// handleForecast returns a handler for POST /forecast.
func handleForecast(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := opts.Logger.With("request_id", httpx.RequestID(r.Context()))

		runOpts := opts.Forecast
		if raw := r.URL.Query().Get("threshold"); raw != "" {
			threshold, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				httpx.WriteErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid threshold %q", raw))
				return
			}
			runOpts.Threshold = threshold
		}
		if err := forecast.ValidateThreshold(runOpts.Threshold); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}

		resource := r.URL.Query().Get("resource")
		if resource != "" && !resourceNameRegex.MatchString(resource) {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid resource name format")
			return
		}

		if opts.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, opts.MaxUploadBytes)
		}

		obs, err := readHistory(r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				httpx.WriteErrorMessage(w, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("history exceeds %d bytes", tooLarge.Limit))
			default:
				httpx.WriteError(w, http.StatusBadRequest, err)
			}
			opts.Metrics.RecordError("api", "bad_upload")
			return
		}

		res, err := opts.Pipeline.Run(r.Context(), obs, runOpts)
		if err != nil {
			switch {
			case errors.Is(err, series.ErrMalformedInput):
				opts.Metrics.RecordError("api", "malformed_input")
				httpx.WriteError(w, http.StatusBadRequest, err)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				opts.Metrics.RecordError("pipeline", "canceled")
				httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, "forecast canceled")
			default:
				opts.Metrics.RecordError("pipeline", "run_failed")
				logger.Error("forecast failed", "error", err)
				httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			}
			return
		}
		opts.Metrics.RecordRun(res)

		if resource != "" && opts.Store != nil {
			snapshot := storage.NewSnapshot(resource, res, runOpts.Threshold, time.Now())
			if err := opts.Store.Put(r.Context(), snapshot); err != nil {
				opts.Metrics.RecordError("store", "put_failed")
				logger.Warn("failed to store snapshot", "resource", resource, "error", err)
			}
		}

		logger.Info("forecast served",
			"resource", resource,
			"history_rows", res.HistoryRows,
			"occupied_slots", res.Occupied,
			"cached", res.Cached,
			"threshold", runOpts.Threshold,
		)

		w.Header().Set(CachedHeader, strconv.FormatBool(res.Cached))
		if err := httpx.WriteJSON(w, http.StatusOK, res.Points); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

var errMissingFile = errors.New(`multipart form requires a "file" field`)

// readHistory parses the uploaded TSV from the multipart "file" field, or
// from the raw body for any other content type.
func readHistory(r *http.Request) ([]series.Observation, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		return series.ParseTSV(r.Body)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, err
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, _, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, errMissingFile
		}
		return nil, err
	}
	defer file.Close()

	return series.ParseTSV(file)
}

// handleGetSnapshot returns a handler for GET /forecast/current?resource=<name>.
func handleGetSnapshot(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource := r.URL.Query().Get("resource")
		if resource == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "resource parameter required")
			return
		}

		if !resourceNameRegex.MatchString(resource) {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid resource name format")
			return
		}

		if opts.Store == nil {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("snapshot not found for resource %q", resource))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		snapshot, found, err := opts.Store.GetLatest(ctx, resource)
		if err != nil {
			opts.Logger.Error("failed to get snapshot", "resource", resource, "error", err)
			opts.Metrics.RecordError("store", "get_failed")
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("snapshot not found for resource %q", resource))
			return
		}

		if opts.StaleAfter > 0 && time.Since(snapshot.GeneratedAt) > opts.StaleAfter {
			w.Header().Set(StaleHeader, "true")
		}

		if err := httpx.WriteJSON(w, http.StatusOK, snapshot); err != nil {
			opts.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}
