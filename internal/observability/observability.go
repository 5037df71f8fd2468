package observability

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"
)

// System bundles the logger, metrics and health checks handed to the
// server and the sync components.
type System struct {
	Logger  *Logger
	Metrics *Metrics
	Health  *HealthManager
}

// NewSystem wires a System around logger. A nil logger discards output.
func NewSystem(logger *Logger, healthTimeout time.Duration) *System {
	if logger == nil {
		logger = NewNopLogger()
	}
	if healthTimeout <= 0 {
		healthTimeout = 5 * time.Second
	}
	return &System{
		Logger:  logger,
		Metrics: NewMetrics(),
		Health:  NewHealthManager(healthTimeout, logger.WithField("component", "health")),
	}
}

// InstrumentHTTPHandler tags the request with a trace id, records the
// request metrics and logs the outcome.
func (s *System) InstrumentHTTPHandler(route string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := WithTraceID(r.Context(), r.Header.Get(TraceHeader))
		r = r.WithContext(ctx)
		w.Header().Set(TraceHeader, GetTraceID(ctx))

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(wrapped, r)

		duration := time.Since(start)
		if s.Metrics != nil {
			s.Metrics.HTTPRequests.WithLabelValues(route, fmt.Sprint(wrapped.statusCode)).Inc()
			s.Metrics.HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
		}

		fields := map[string]interface{}{
			"method":      r.Method,
			"route":       route,
			"status_code": wrapped.statusCode,
			"duration_ms": duration.Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}
		logger := s.Logger.WithContext(ctx)
		if wrapped.statusCode >= http.StatusInternalServerError {
			logger.ErrorWithFields("HTTP request", fields)
			return
		}
		logger.InfoWithFields("HTTP request", fields)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
