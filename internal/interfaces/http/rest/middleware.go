package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"arbiter-backend/internal/infrastructure/observability"
	"arbiter-backend/pkg/api"
)

// requestLogger logs every handled request with its status, size, and
// latency. Server errors log at error level, client errors at warn.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(wrapped, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.Status()),
				zap.Int("bytes", wrapped.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", chimiddleware.GetReqID(r.Context())),
			}
			switch {
			case wrapped.Status() >= 500:
				logger.Error("request failed", fields...)
			case wrapped.Status() >= 400:
				logger.Warn("request rejected", fields...)
			default:
				logger.Info("request completed", fields...)
			}
		})
	}
}

// errHandlerFailed marks a handler response with a 5xx status so the
// breaker counts it. The response has already been written when it
// surfaces.
var errHandlerFailed = errors.New("handler returned a server error")

// circuitBreaker sheds API requests once handlers keep failing, so a
// broken dependency does not drag every caller through its timeout.
// While the breaker is open, requests are answered with 503 without
// reaching the handler.
func circuitBreaker(name string, logger *zap.Logger) func(http.Handler) http.Handler {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.8
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("api circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, err := cb.Execute(func() (interface{}, error) {
				wrapped := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
				next.ServeHTTP(wrapped, r)
				if wrapped.Status() >= 500 {
					return nil, errHandlerFailed
				}
				return nil, nil
			})

			switch {
			case err == nil || errors.Is(err, errHandlerFailed):
				// The handler ran and wrote its own response.
			default:
				logger.Warn("api circuit breaker rejected request",
					zap.String("breaker", name),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path))
				api.Error(w, http.StatusServiceUnavailable, "service temporarily unavailable")
			}
		})
	}
}

// httpMetrics records request counts and latencies per route pattern,
// so /api/v1/rounds/{roundID} stays one series whatever the id.
func httpMetrics(metrics *observability.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(wrapped, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			metrics.ObserveHTTP(r.Method, route, strconv.Itoa(wrapped.Status()), time.Since(start))
		})
	}
}
