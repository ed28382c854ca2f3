// Package middleware contains HTTP middleware.
package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// responseWriter records the status code and byte count.
// http.ResponseWriter has no getter for either, so the only way to log them
// is to sit in front of WriteHeader and Write and count on the way through.
type responseWriter struct {
	http.ResponseWriter       // everything we don't override passes through
	statusCode          int   // defaults to 200: handlers that only Write never call WriteHeader
	written             int64 // body bytes
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Logger logs each request and attaches a request-scoped logger to the
// context. Health probes are logged at debug so they do not flood the log.
func Logger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := logger.With().Str("request_id", chimiddleware.GetReqID(r.Context())).Logger()
			r = r.WithContext(reqLog.WithContext(r.Context()))

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			ev := reqLog.Debug()
			if wrapped.statusCode >= http.StatusInternalServerError {
				ev = reqLog.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Int64("bytes", wrapped.written).
				Msg("request completed")
		})
	}
}
