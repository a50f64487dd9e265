package middleware

import (
	"context"

	"github.com/jonboulle/clockwork"

	"weather-udp/message"
	"weather-udp/observability"
)

type MetricsOption func(*metricsOptions)

type metricsOptions struct {
	clock clockwork.Clock
}

func WithMetricsClock(c clockwork.Clock) MetricsOption {
	return func(o *metricsOptions) { o.clock = c }
}

// MetricsMiddleware counts answered requests by type and status and observes
// handling time. Register it after LoggingMiddleware to keep the reverse
// lookup out of the histogram.
func MetricsMiddleware(m *observability.Metrics, opts ...MetricsOption) Middleware {
	o := metricsOptions{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.WeatherRequest) *message.WeatherResponse {
			start := o.clock.Now()
			resp := next(ctx, req)
			m.HandleDuration.Observe(o.clock.Since(start).Seconds())

			if resp != nil {
				m.Requests.WithLabelValues(req.Type.String(), resp.Status.String()).Inc()
			}
			return resp
		}
	}
}
