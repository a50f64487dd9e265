// Package client queries weather servers over UDP.
//
// Query flow: encode → cached instances → balancer pick (keyed by city) →
// borrow a socket from that instance's pool → exchange one datagram pair → decode.
//
// The instance list is read from the registry on first use and then kept
// current by a registry watch. Pools of instances that leave are closed.
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"weather-udp/codec"
	"weather-udp/loadbalance"
	"weather-udp/message"
	"weather-udp/protocol"
	"weather-udp/registry"
	"weather-udp/transport"
)

type Client struct {
	registry  registry.Registry // Where to find server instances
	balancer  loadbalance.Balancer
	codec     codec.Codec
	mu        sync.Mutex
	instances []registry.ServiceInstance     // Latest list from Discover or Watch, guarded by mu
	stopWatch context.CancelFunc             // nil until the first successful Discover
	pools     map[string]*transport.ConnPool // One socket pool per instance address
	closed    bool
	poolSize  int
	timeout   time.Duration
	dial      transport.Dialer
}

type Option func(*Client)

// WithTimeout bounds each exchange when the caller's ctx has no earlier deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithPoolSize sets the number of sockets kept per server.
func WithPoolSize(n int) Option {
	return func(c *Client) { c.poolSize = n }
}

// WithDialer replaces transport.DialUDP.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.dial = d }
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, opts ...Option) *Client {
	c := &Client{
		registry: reg,
		balancer: bal,
		codec:    codec.GetCodec(codec.CodecTypeBinary),
		pools:    make(map[string]*transport.ConnPool),
		poolSize: 4,
		timeout:  2 * time.Second,
		dial:     transport.DialUDP,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial returns a client bound to a single server address.
func Dial(addr string, opts ...Option) *Client {
	return NewClient(registry.NewStaticRegistryFor(protocol.ServiceName, addr), &loadbalance.RoundRobinBalancer{}, opts...)
}

func (c *Client) getPool(addr string) *transport.ConnPool {
	c.mu.Lock()
	defer c.mu.Unlock()

	pool, ok := c.pools[addr]
	if !ok {
		pool = transport.NewConnPool(addr, c.poolSize, c.dial)
		c.pools[addr] = pool
	}
	return pool
}

// discover returns the cached instance list. An empty cache falls back to
// the registry, and the first successful lookup starts the watch.
func (c *Client) discover(ctx context.Context) ([]registry.ServiceInstance, error) {
	c.mu.Lock()
	cached := c.instances
	c.mu.Unlock()
	if len(cached) > 0 {
		return cached, nil
	}

	instances, err := c.registry.Discover(ctx, protocol.ServiceName)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances = instances
	if c.stopWatch == nil && !c.closed {
		watchCtx, cancel := context.WithCancel(context.Background())
		c.stopWatch = cancel
		go c.watch(c.registry.Watch(watchCtx, protocol.ServiceName))
	}
	return instances, nil
}

func (c *Client) watch(updates <-chan []registry.ServiceInstance) {
	for instances := range updates {
		c.mu.Lock()
		c.instances = instances
		c.prunePoolsLocked(instances)
		c.mu.Unlock()
	}
}

// prunePoolsLocked closes the pools of instances that are no longer registered.
func (c *Client) prunePoolsLocked(instances []registry.ServiceInstance) {
	live := make(map[string]bool, len(instances))
	for _, inst := range instances {
		live[inst.Addr] = true
	}
	for addr, pool := range c.pools {
		if !live[addr] {
			pool.Close()
			delete(c.pools, addr)
		}
	}
}

// Query asks one server for a metric. Protocol-level rejections are returned
// as a response with a non-OK status, not as an error. Errors mean the
// request could not be built, sent or answered in time.
func (c *Client) Query(ctx context.Context, t protocol.Type, city string) (*message.WeatherResponse, error) {
	request, err := c.codec.Encode(&message.WeatherRequest{Type: t, City: city})
	if err != nil {
		return nil, err
	}

	instances, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}
	instance, err := c.balancer.Pick(instances, strings.ToLower(city))
	if err != nil {
		return nil, err
	}

	pool := c.getPool(instance.Addr)
	conn, err := pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", instance.Addr, err)
	}
	defer conn.Release()

	// One spare byte so an oversized reply is detected instead of truncated
	buf := make([]byte, protocol.ResponseSize+1)
	n, err := transport.Exchange(ctx, conn, request, buf, c.timeout)
	if err != nil {
		// A late reply could still land on this socket and confuse the next query
		conn.MarkUnusable()
		return nil, fmt.Errorf("query %s: %w", instance.Addr, err)
	}

	resp := &message.WeatherResponse{}
	if err := c.codec.Decode(buf[:n], resp); err != nil {
		conn.MarkUnusable()
		return nil, err
	}
	return resp, nil
}

// Close stops the registry watch and releases every socket pool.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.stopWatch != nil {
		c.stopWatch()
	}
	for addr, pool := range c.pools {
		pool.Close()
		delete(c.pools, addr)
	}
	return nil
}
