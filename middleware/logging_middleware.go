package middleware

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"weather-udp/message"
)

// Resolver performs reverse lookups. *net.Resolver satisfies it.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

type loggingOptions struct {
	resolver Resolver
	timeout  time.Duration
	clock    clockwork.Clock
}

type LoggingOption func(*loggingOptions)

// WithResolver replaces net.DefaultResolver. Pass nil to skip reverse lookups.
func WithResolver(r Resolver) LoggingOption {
	return func(o *loggingOptions) { o.resolver = r }
}

// WithLookupTimeout bounds each reverse lookup.
func WithLookupTimeout(d time.Duration) LoggingOption {
	return func(o *loggingOptions) { o.timeout = d }
}

func WithClock(c clockwork.Clock) LoggingOption {
	return func(o *loggingOptions) { o.clock = c }
}

// LoggingMiddleware logs every request with the client's hostname, IP,
// requested type and city, then the outcome and handling time.
// A failed or slow reverse lookup falls back to the numeric IP.
func LoggingMiddleware(logger *slog.Logger, opts ...LoggingOption) Middleware {
	o := loggingOptions{
		resolver: net.DefaultResolver,
		timeout:  500 * time.Millisecond,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.WeatherRequest) *message.WeatherResponse {
			start := o.clock.Now()

			host, ip := "", ""
			if addr, ok := PeerFromContext(ctx); ok {
				ip = hostIP(addr)
				host = lookupHost(ctx, o.resolver, o.timeout, ip)
			}

			resp := next(ctx, req)

			attrs := []any{
				"client_host", host,
				"client_ip", ip,
				"type", req.Type.Code(),
				"city", req.City,
				"duration", o.clock.Since(start),
			}
			if resp == nil {
				logger.Warn("request dropped", attrs...)
				return nil
			}
			logger.Info("request handled", append(attrs, "status", resp.Status.String())...)
			return resp
		}
	}
}

func hostIP(addr net.Addr) string {
	if a, ok := addr.(*net.UDPAddr); ok {
		return a.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func lookupHost(ctx context.Context, resolver Resolver, timeout time.Duration, ip string) string {
	if resolver == nil || ip == "" {
		return ip
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	names, err := resolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ip
	}
	return strings.TrimSuffix(names[0], ".")
}
