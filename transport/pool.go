// Package transport provides the client side of the datagram exchange.
//
// The protocol has no sequence numbers, so a reply can only be matched to its
// request by the socket it arrives on. Every exchange therefore borrows a
// connected UDP socket exclusively from a ConnPool, writes one request and
// reads one reply.
//
// Pool design: uses a buffered channel as a natural FIFO queue.
// Buffered channels are concurrency-safe, and blocking on empty is built-in.
package transport

import (
	"context"
	"errors"
	"net"
	"sync"
)

var (
	ErrPoolClosed = errors.New("transport: pool closed")
)

// Dialer opens a connected datagram socket to addr.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// DialUDP is the default Dialer.
func DialUDP(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "udp", addr)
}

// ConnPool manages reusable sockets to a single server address.
type ConnPool struct {
	mu       sync.Mutex
	conns    chan *PoolConn // Idle sockets
	addr     string
	maxConns int
	curConns int // Open sockets, idle or borrowed
	closed   bool
	dial     Dialer
}

// PoolConn wraps a net.Conn with pool metadata.
type PoolConn struct {
	net.Conn
	pool     *ConnPool
	unusable bool // A timed-out socket may still receive the late reply
}

// Release hands the socket back to the pool it came from.
func (c *PoolConn) Release() {
	c.pool.Put(c)
}

// MarkUnusable makes Put close the socket instead of reusing it.
func (c *PoolConn) MarkUnusable() {
	c.unusable = true
}

// NewConnPool creates a pool of at most maxConns sockets.
// Sockets are created lazily: the pool starts empty and grows on demand.
func NewConnPool(addr string, maxConns int, dial Dialer) *ConnPool {
	if maxConns < 1 {
		maxConns = 1
	}
	if dial == nil {
		dial = DialUDP
	}
	return &ConnPool{
		conns:    make(chan *PoolConn, maxConns),
		addr:     addr,
		maxConns: maxConns,
		dial:     dial,
	}
}

// Get borrows a socket:
//  1. reuse an idle one if available
//  2. otherwise open a new one if under the limit
//  3. otherwise wait until one is returned or ctx is done
func (p *ConnPool) Get(ctx context.Context) (*PoolConn, error) {
	select {
	case conn, ok := <-p.conns:
		if !ok {
			return nil, ErrPoolClosed
		}
		return conn, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.curConns < p.maxConns {
		p.curConns++
		p.mu.Unlock()
		return p.createNew(ctx)
	}
	p.mu.Unlock()

	select {
	case conn, ok := <-p.conns:
		if !ok {
			return nil, ErrPoolClosed
		}
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a socket to the pool. Unusable sockets are closed and their
// slot is freed.
func (p *ConnPool) Put(conn *PoolConn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn.unusable || p.closed {
		conn.Conn.Close()
		p.curConns--
		return
	}
	p.conns <- conn
}

// Close shuts down the pool and closes all idle sockets.
// Borrowed sockets are closed when they are returned.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.conns)
	for conn := range p.conns {
		conn.Conn.Close()
		p.curConns--
	}
	return nil
}

// Len reports how many sockets are open.
func (p *ConnPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curConns
}

// createNew opens a socket for a slot already reserved by Get.
func (p *ConnPool) createNew(ctx context.Context) (*PoolConn, error) {
	netConn, err := p.dial(ctx, p.addr)
	if err != nil {
		p.mu.Lock()
		p.curConns--
		p.mu.Unlock()
		return nil, err
	}
	return &PoolConn{Conn: netConn, pool: p}, nil
}
