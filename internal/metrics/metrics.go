package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheFilesScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisher_cache_files_scanned_total",
			Help: "Cache data files scanned, by outcome",
		},
		[]string{"status"},
	)

	URLsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisher_urls_extracted_total",
			Help: "Draw-history URLs extracted from cache files",
		},
		[]string{"game"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisher_api_requests_total",
			Help: "Draw-history API requests, by game and HTTP status or retcode",
		},
		[]string{"game", "status"},
	)

	APIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wisher_api_duration_seconds",
			Help:    "Duration of draw-history API requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"game"},
	)

	APIRetcodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisher_api_retcodes_total",
			Help: "Non-zero retcodes reported by the draw-history API",
		},
		[]string{"game", "retcode"},
	)

	PullsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisher_pulls_fetched_total",
			Help: "Draw records received from the API",
		},
		[]string{"game", "gacha_type"},
	)
)

// RecordScan counts one scanned cache file and the URLs it yielded.
func RecordScan(game string, urls int, err error) {
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case urls == 0:
		status = "empty"
	}
	CacheFilesScanned.WithLabelValues(status).Inc()
	if urls > 0 {
		URLsExtracted.WithLabelValues(game).Add(float64(urls))
	}
}

// RecordAPIRequest records one API round trip. status is the HTTP status, 0
// when no response arrived. Transport failures are labelled "error" and a
// failure carried by a 2xx response is labelled "api_error".
func RecordAPIRequest(game string, status int, d time.Duration, err error) {
	label := strconv.Itoa(status)
	switch {
	case err != nil && status == 0:
		label = "error"
	case err != nil && status >= 200 && status < 300:
		label = "api_error"
	}
	APIRequestsTotal.WithLabelValues(game, label).Inc()
	APIDuration.WithLabelValues(game).Observe(d.Seconds())
}

// RecordAPIRetcode counts a non-zero API retcode.
func RecordAPIRetcode(game string, code int) {
	APIRetcodes.WithLabelValues(game, strconv.Itoa(code)).Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", srv.Addr, "error", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
