package handlers

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/google/uuid"

	"solar-analyzer/pkg/logging"
	"solar-analyzer/pkg/metrics"
)

const headerRequestID = "X-Request-ID"

// RequestID makes sure every request carries an ID, echoes it in the
// response and exposes it to loggers and outgoing calls through the context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// Recoverer turns a panic into a 500 response and an error log entry
func Recoverer(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error(r.Context(), "[API_PANIC] Handler panicked", logging.Fields{
						"path":  r.URL.Path,
						"stack": string(debug.Stack()),
					}, fmt.Errorf("panic: %v", rec))
					metricsCollector.RecordAPIError("panic", r.URL.Path)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder remembers the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request count and latency for endpoint
func (h *DashboardHandler) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues(endpoint))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		timer.ObserveDuration()
		h.metrics.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(rec.status))
	}
}
