package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"weather-udp/message"
	"weather-udp/observability"
)

// RateLimitMiddleware applies a token bucket across all clients.
// Requests over the limit get no reply, the same as a lost datagram, and are
// counted under reason "rate_limit" when m is not nil.
// Register it first so limited datagrams skip the reverse lookup and logging.
func RateLimitMiddleware(r float64, burst int, m *observability.Metrics) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.WeatherRequest) *message.WeatherResponse {
			if !limiter.Allow() {
				if m != nil {
					m.DatagramsDropped.WithLabelValues(observability.DropRateLimit).Inc()
				}
				return nil
			}
			return next(ctx, req)
		}
	}
}
