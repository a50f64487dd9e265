// Package server implements the UDP weather server.
//
// Request processing pipeline, one datagram at a time:
//
//	ReadFrom → BinaryCodec.Decode (drop if too short)
//	  → Middleware Chain → weather handler → BinaryCodec.Encode → WriteTo
//
// The next datagram is read only after the previous one has been answered.
// Nothing is kept between datagrams.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"weather-udp/codec"
	"weather-udp/message"
	"weather-udp/middleware"
	"weather-udp/observability"
	"weather-udp/protocol"
	"weather-udp/registry"
)

var ErrNotServing = errors.New("server: not serving")

// Server answers weather requests on a datagram socket.
type Server struct {
	mu            sync.Mutex
	conn          net.PacketConn          // Bound UDP socket, guarded by mu
	shutdown      atomic.Bool             // Set during shutdown to suppress read errors
	serving       atomic.Bool             // True while the read loop runs
	done          chan struct{}           // Closed when Serve returns
	middlewares   []middleware.Middleware // Registered middlewares (applied in order)
	base          middleware.HandlerFunc  // Answers a validated request
	handler       middleware.HandlerFunc  // middleware(middleware(...(base)))
	codec         codec.Codec             // Wire format
	registry      registry.Registry       // nil when not using discovery
	registryTTL   int64
	advertiseAddr string
	logger        *slog.Logger
	metrics       *observability.Metrics // nil disables metrics
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRegistry registers advertiseAddr under protocol.ServiceName when
// serving starts, and removes it on Shutdown. An empty advertiseAddr means
// the socket's local address.
func WithRegistry(reg registry.Registry, advertiseAddr string, ttl int64) Option {
	return func(s *Server) {
		s.registry = reg
		s.advertiseAddr = advertiseAddr
		s.registryTTL = ttl
	}
}

// NewServer creates a server that answers with handler, typically weather.Service.Handle.
func NewServer(handler middleware.HandlerFunc, opts ...Option) *Server {
	s := &Server{
		base:        handler,
		codec:       codec.GetCodec(codec.CodecTypeBinary),
		done:        make(chan struct{}),
		registryTTL: 10,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// ListenAndServe binds address ("udp4", ":56700") and serves until Shutdown.
func (svr *Server) ListenAndServe(network, address string) error {
	conn, err := net.ListenPacket(network, address)
	if err != nil {
		return err
	}
	return svr.Serve(conn)
}

// Serve answers datagrams on conn until Shutdown. It returns nil after a
// Shutdown and an error if the socket fails for any other reason.
func (svr *Server) Serve(conn net.PacketConn) error {
	defer close(svr.done)
	svr.mu.Lock()
	if svr.shutdown.Load() {
		svr.mu.Unlock()
		conn.Close()
		return nil
	}
	svr.conn = conn
	if svr.advertiseAddr == "" {
		svr.advertiseAddr = conn.LocalAddr().String()
	}
	advertiseAddr := svr.advertiseAddr
	svr.mu.Unlock()

	// Build the middleware chain once at startup (not per datagram)
	svr.handler = middleware.Chain(svr.middlewares...)(svr.base)

	if svr.registry != nil {
		err := svr.registry.Register(context.Background(), protocol.ServiceName, registry.ServiceInstance{
			Addr:    advertiseAddr,
			Weight:  1,
			Version: protocol.Version,
		}, svr.registryTTL)
		if err != nil {
			conn.Close()
			return fmt.Errorf("register %s: %w", advertiseAddr, err)
		}
	}

	svr.serving.Store(true)
	defer svr.serving.Store(false)
	if svr.metrics != nil {
		svr.metrics.ServerRunning.Set(1)
		defer svr.metrics.ServerRunning.Set(0)
	}
	svr.logger.Info("udp server listening", "addr", conn.LocalAddr().String())

	buf := make([]byte, protocol.RequestSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			svr.logger.Warn("read datagram failed", "error", err)
			continue
		}
		if n <= 0 {
			continue
		}
		svr.handleDatagram(conn, addr, buf[:n])
	}
}

// handleDatagram answers one datagram. Failures never stop the loop.
func (svr *Server) handleDatagram(conn net.PacketConn, addr net.Addr, data []byte) {
	if svr.metrics != nil {
		svr.metrics.DatagramsReceived.Inc()
	}

	req := &message.WeatherRequest{}
	if err := svr.codec.Decode(data, req); err != nil {
		svr.logger.Debug("datagram dropped", "client", addr.String(), "size", len(data), "error", err)
		if svr.metrics != nil {
			svr.metrics.DatagramsDropped.WithLabelValues(observability.DropDecode).Inc()
		}
		return
	}

	resp := svr.handler(middleware.WithPeer(context.Background(), addr), req)
	if resp == nil {
		return
	}

	out, err := svr.codec.Encode(resp)
	if err != nil {
		svr.logger.Error("encode response failed", "client", addr.String(), "error", err)
		return
	}
	n, err := conn.WriteTo(out, addr)
	if err == nil && n != len(out) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(out))
	}
	if err != nil {
		svr.logger.Error("send response failed", "client", addr.String(), "error", err)
		if svr.metrics != nil {
			svr.metrics.SendErrors.Inc()
		}
	}
}

// Addr returns the bound address, or nil before Serve.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.conn == nil {
		return nil
	}
	return svr.conn.LocalAddr()
}

// CheckReadiness implements observability.ReadinessChecker.
func (svr *Server) CheckReadiness(context.Context) error {
	if !svr.serving.Load() {
		return ErrNotServing
	}
	return nil
}

// Shutdown stops the server:
//  1. Set the shutdown flag so the read error is recognised as intentional
//  2. Deregister from the registry (clients stop picking this instance)
//  3. Close the socket, which unblocks ReadFrom
//  4. Wait for the datagram in progress to finish (with timeout)
func (svr *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	svr.mu.Lock()
	svr.shutdown.Store(true)
	conn, advertiseAddr := svr.conn, svr.advertiseAddr
	svr.mu.Unlock()

	if svr.registry != nil && conn != nil {
		if err := svr.registry.Deregister(ctx, protocol.ServiceName, advertiseAddr); err != nil {
			svr.logger.Warn("deregister failed", "addr", advertiseAddr, "error", err)
		}
	}

	if conn == nil {
		return nil // Never served; a later Serve returns at once
	}
	conn.Close()

	select {
	case <-svr.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for the datagram in progress to finish")
	}
}
