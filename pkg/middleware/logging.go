package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// NewLoggingMiddleware logs every request with duration and response code.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			logger.Info("request started", appendLoggerFields(r,
				"method", r.Method,
				"path", r.URL.Path,
				"peer", r.RemoteAddr,
			)...)

			rec := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			if rec.status >= http.StatusInternalServerError {
				logger.Error("request failed", appendLoggerFields(r,
					"method", r.Method,
					"path", r.URL.Path,
					"status", rec.status,
					"duration", duration.String(),
					"duration_ms", duration.Milliseconds(),
					"response_size_bytes", rec.written,
				)...)
			} else {
				logger.Info("request completed", appendLoggerFields(r,
					"method", r.Method,
					"path", r.URL.Path,
					"status", rec.status,
					"duration", duration.String(),
					"duration_ms", duration.Milliseconds(),
					"response_size_bytes", rec.written,
				)...)
			}
		})
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status  int
	written int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

func appendLoggerFields(r *http.Request, base ...any) []any {
	if requestID, ok := RequestIDFromContext(r.Context()); ok && requestID != "" {
		base = append(base, "request_id", requestID)
	}
	return base
}
