package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Logger logs one line per request once it completes. Health probes are
// logged at debug level.
func Logger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := r.URL.Path
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			fields := []any{
				"request_id", RequestIDFrom(r.Context()),
				"method", r.Method,
				"path", path,
				"status", ww.Status(),
				"ip", clientIP(r),
				"latency", time.Since(start),
				"response_bytes", ww.BytesWritten(),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if phase := rctx.URLParam("phase"); phase != "" {
					fields = append(fields, "phase", phase)
				}
				if courseID := rctx.URLParam("courseId"); courseID != "" {
					fields = append(fields, "course_id", courseID)
				}
			}

			logger := zap.S().Named("http")
			switch {
			case ww.Status() >= 500:
				logger.Errorw("request completed", fields...)
			case ww.Status() >= 400:
				logger.Warnw("request completed", fields...)
			case r.Method == http.MethodGet && path == "/health":
				logger.Debugw("request completed", fields...)
			default:
				logger.Infow("request completed", fields...)
			}
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
