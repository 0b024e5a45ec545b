// internal/middleware/correlation.go
package middleware

import (
	"context"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CorrelationHeader is the trace token carried across every service boundary.
const CorrelationHeader = "X-Correlation-ID"

type contextKey string

const (
	correlationKey contextKey = "correlation-id"
	authKey        contextKey = "authorization"
	userKey        contextKey = "user-id"
)

// WithCorrelationID stores the request trace token in the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationID returns the request trace token, or "" when none is set.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// WithAuthorization stores the raw Authorization header for downstream calls.
func WithAuthorization(ctx context.Context, header string) context.Context {
	return context.WithValue(ctx, authKey, header)
}

// Authorization returns the inbound Authorization header, or "" when absent.
func Authorization(ctx context.Context) string {
	header, _ := ctx.Value(authKey).(string)
	return header
}

// Correlation reads the trace token from the inbound request or generates one,
// echoes it on the response, stores it in the context, and logs the request
// outcome with its latency.
func Correlation(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get(CorrelationHeader)
			if correlationID == "" {
				correlationID = uuid.NewString()
			}
			w.Header().Set(CorrelationHeader, correlationID)

			ctx := WithCorrelationID(r.Context(), correlationID)

			log := logger.With().Str("correlation_id", correlationID).Logger()
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("request started")

			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}
