package logger

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// protocol classifies a request as the OGC API - Processes JSON REST
// surface or the legacy WPS-1 KVP/POST surface (spec.md §6/§4.8), purely
// for the access log — both surfaces share every other middleware.
func protocol(r *http.Request) string {
	if r.URL.Query().Get("service") == "WPS" || r.URL.Query().Get("request") != "" {
		return "wps1-kvp"
	}
	return "ogc-api-processes"
}

// HTTPMiddleware logs one access-log line per request against either
// protocol surface this service exposes, and leaves the request-scoped
// logger in the request context so handlers downstream (jobs.go,
// processes.go, wps.go) can pull it via FromContext instead of logging
// through the server's bare top-level logger. correlationHeader is the
// inbound header to read a caller-supplied correlation id from
// (config.LogConfig.CorrelationHeader; some ADES/EMS peers use their own).
func HTTPMiddleware(logger *zap.Logger, correlationHeader string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Get or generate request ID
			requestID := middleware.GetReqID(r.Context())
			if requestID == "" {
				requestID = fmt.Sprintf("%d", middleware.NextRequestID())
			}

			// Get correlation ID from header if present
			correlationID := r.Header.Get(correlationHeader)
			if correlationID == "" {
				correlationID = requestID
			}

			// Create request-scoped logger
			reqLogger := logger.With(
				zap.String("request_id", requestID),
				zap.String("correlation_id", correlationID),
				zap.String("protocol", protocol(r)),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
			)

			// Add logger to context
			ctx := WithContext(r.Context(), reqLogger)
			r = r.WithContext(ctx)

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// Process request
			next.ServeHTTP(ww, r)

			// Log request completion
			duration := time.Since(start)
			reqLogger.Info("http request",
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", duration),
				zap.String("duration_ms", fmt.Sprintf("%.2f", float64(duration.Milliseconds()))),
			)
		})
	}
}

// CorrelationIDMiddleware echoes the correlation id back on the response
// under the same header HTTPMiddleware reads it from.
func CorrelationIDMiddleware(correlationHeader string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get(correlationHeader)
			if correlationID == "" {
				correlationID = middleware.GetReqID(r.Context())
			}
			w.Header().Set(correlationHeader, correlationID)
			next.ServeHTTP(w, r)
		})
	}
}
