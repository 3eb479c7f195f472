// Package middleware holds the HTTP wrappers shared by every route: request
// logging, security headers, panic recovery and authentication.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jimgabang/apperr"
	"jimgabang/utils"
)

const RequestIDHeader = "X-Request-ID"

// SecurityHeaders applies a set of recommended HTTP security headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "frame-ancestors 'none'")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next.ServeHTTP(w, r)
	})
}

// RequestLogger assigns a request id and logs method, path, status, size
// and duration of every request.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			sw := utils.NewStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(utils.WithRequestID(r.Context(), id)))

			log.Info("http",
				zap.String("request_id", id),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.Status),
				zap.Int("bytes", sw.Bytes),
				zap.Duration("dur", time.Since(start)),
				zap.String("remote", utils.ClientIP(r)),
			)
		})
	}
}

// Recover turns a panicking handler into a 500.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic",
						zap.Any("reason", rec),
						zap.ByteString("stack", debug.Stack()),
						zap.String("request_id", utils.RequestID(r)),
						zap.String("path", r.URL.Path),
					)
					apperr.Write(w, apperr.New(apperr.Internal, "internal server error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
