package httpapi

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"qms/patient-queue/internal/metrics"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush and Hijack keep SockJS streaming and websocket transports working
// behind the middleware.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// LoggingMiddleware assigns a request ID when the caller did not send one,
// then logs and counts every request.
func LoggingMiddleware(logger zerolog.Logger, collector *metrics.Collector, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := requestIDFromRequest(r)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set("X-Request-ID", requestID)
		}
		w.Header().Set("X-Request-ID", requestID)

		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)
		latency := time.Since(start)
		route := routeLabel(r.URL.Path)
		collector.RecordHTTPRequest(r.Method, route, writer.status, latency)

		event := logger.Info()
		if writer.status >= http.StatusInternalServerError {
			event = logger.Error()
		} else if writer.status >= http.StatusBadRequest {
			event = logger.Warn()
		}
		event.
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", writer.status).
			Dur("latency", latency).
			Str("remote_ip", clientIP(r)).
			Msg("request")
	})
}

// routeLabel collapses entry IDs so metric labels stay bounded.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/realtime/"):
		return "/realtime"
	case path == "/api/queue/snapshot", path == "/api/queue/reload":
		return path
	case strings.HasPrefix(path, "/api/queue/"):
		parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/queue/"), "/"), "/")
		if len(parts) < 2 {
			return "/api/queue/{id}"
		}
		parts[0] = "{id}"
		return "/api/queue/" + strings.Join(parts, "/")
	case path == "/healthz", path == "/metrics", path == "/api/login", path == "/api/patients", path == "/api/queue":
		return path
	default:
		return "other"
	}
}
