package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtlprog/cdsrisk/internal/metrics"
	"github.com/mtlprog/cdsrisk/internal/snapshot"
)

// NewServer creates an HTTP server with all routes configured. POST routes
// require the admin key when one is set.
func NewServer(port string, valuations Valuator, snapshots *snapshot.Service, adminAPIKey string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewMux(valuations, snapshots, adminAPIKey),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute, // stress analyses run the engine several times
		IdleTimeout:  60 * time.Second,
	}
}

// NewMux builds the router.
func NewMux(valuations Valuator, snapshots *snapshot.Service, adminAPIKey string) http.Handler {
	snaps := NewSnapshotHandler(snapshots)
	risk := NewRiskHandler(valuations)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/snapshots/latest", snaps.GetLatest)
	mux.HandleFunc("GET /api/v1/snapshots/{date}", snaps.GetByDate)
	mux.HandleFunc("GET /api/v1/snapshots", snaps.List)
	mux.HandleFunc("GET /api/v1/runs/{runId}/snapshot", snaps.GetByRun)
	mux.HandleFunc("GET /api/v1/engine/health", risk.EngineHealth)

	protect := func(h http.HandlerFunc) http.Handler {
		if adminAPIKey == "" {
			return h
		}
		return requireAuth(adminAPIKey, h)
	}
	mux.Handle("POST /api/v1/risk/calculate", protect(risk.Calculate))
	mux.Handle("POST /api/v1/risk/stress", protect(risk.Stress))
	mux.Handle("POST /api/v1/risk/sensitivity", protect(risk.Sensitivity))

	return instrument(mux)
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument records request latency by matched route pattern.
func instrument(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestLatency.WithLabelValues(route, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}
