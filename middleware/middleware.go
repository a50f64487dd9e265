package middleware

import (
	"context"
	"net"

	"weather-udp/message"
)

// HandlerFunc answers one decoded request. Returning nil drops the datagram:
// nothing is sent back.
type HandlerFunc func(ctx context.Context, req *message.WeatherRequest) *message.WeatherResponse

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type peerKey struct{}

// WithPeer attaches the sender of the datagram to ctx.
func WithPeer(ctx context.Context, addr net.Addr) context.Context {
	return context.WithValue(ctx, peerKey{}, addr)
}

// PeerFromContext returns the sender attached by WithPeer.
func PeerFromContext(ctx context.Context) (net.Addr, bool) {
	addr, ok := ctx.Value(peerKey{}).(net.Addr)
	return addr, ok && addr != nil
}
