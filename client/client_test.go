package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-udp/codec"
	"weather-udp/loadbalance"
	"weather-udp/protocol"
	"weather-udp/registry"
	"weather-udp/server"
	"weather-udp/weather"
)

func startServer(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	svr := server.NewServer(weather.NewService(weather.NewSource(1)).Handle,
		server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	go svr.Serve(conn)
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return conn.LocalAddr().String()
}

// silentServer reads datagrams and never answers.
func silentServer(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })
	go func() {
		buf := make([]byte, 128)
		for {
			if _, _, err := pc.ReadFrom(buf); err != nil {
				return
			}
		}
	}()
	return pc.LocalAddr().String()
}

func TestQuery(t *testing.T) {
	cli := Dial(startServer(t))
	defer cli.Close()

	for _, typ := range protocol.Types {
		resp, err := cli.Query(context.Background(), typ, "Firenze")
		require.NoError(t, err)
		assert.Equal(t, protocol.StatusOK, resp.Status)
		assert.Equal(t, typ, resp.Type)

		m, _ := weather.MetricFor(typ)
		assert.GreaterOrEqual(t, resp.Value, m.Min)
		assert.LessOrEqual(t, resp.Value, m.Max)
	}
}

func TestQuery_RejectionsAreResponses(t *testing.T) {
	cli := Dial(startServer(t))
	defer cli.Close()

	resp, err := cli.Query(context.Background(), protocol.TypeTemperature, "atlantis")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusCityNotFound, resp.Status)
	assert.Equal(t, protocol.TypeNone, resp.Type)

	resp, err = cli.Query(context.Background(), 'x', "roma")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusInvalidRequest, resp.Status)
}

func TestQuery_EncodeErrorsBeforeSending(t *testing.T) {
	cli := Dial("127.0.0.1:1")
	defer cli.Close()

	_, err := cli.Query(context.Background(), protocol.TypeTemperature, "x")
	assert.ErrorIs(t, err, codec.ErrShortRequest)
}

func TestQuery_Timeout(t *testing.T) {
	cli := Dial(silentServer(t), WithTimeout(50*time.Millisecond))
	defer cli.Close()

	_, err := cli.Query(context.Background(), protocol.TypeWind, "roma")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded), "got %v", err)
}

func TestQuery_ContextDeadline(t *testing.T) {
	cli := Dial(silentServer(t), WithTimeout(10*time.Second))
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := cli.Query(ctx, protocol.TypeWind, "roma")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestQuery_NoInstances(t *testing.T) {
	cli := NewClient(registry.NewStaticRegistry(), &loadbalance.RoundRobinBalancer{})
	_, err := cli.Query(context.Background(), protocol.TypeWind, "roma")
	assert.ErrorIs(t, err, registry.ErrNoInstances)
}

func TestQuery_ConsistentHashAcrossInstances(t *testing.T) {
	reg := registry.NewStaticRegistryFor(protocol.ServiceName, startServer(t), startServer(t))
	cli := NewClient(reg, loadbalance.NewConsistentHashBalancer(), WithPoolSize(2))
	defer cli.Close()

	for _, city := range weather.SupportedCities() {
		resp, err := cli.Query(context.Background(), protocol.TypeHumidity, city)
		require.NoError(t, err)
		assert.Equal(t, protocol.StatusOK, resp.Status, city)
	}
}

func TestQuery_Concurrent(t *testing.T) {
	cli := Dial(startServer(t), WithPoolSize(3))
	defer cli.Close()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			typ := protocol.Types[n%len(protocol.Types)]
			resp, err := cli.Query(context.Background(), typ, "Palermo")
			if err != nil {
				t.Errorf("query %d: %v", n, err)
				return
			}
			if resp.Type != typ {
				t.Errorf("query %d: expect type %s, got %s", n, typ, resp.Type)
			}
		}(i)
	}
	wg.Wait()
}

// countingRegistry records how often the client falls back to Discover.
type countingRegistry struct {
	*registry.StaticRegistry
	discovers atomic.Int32
}

func (r *countingRegistry) Discover(ctx context.Context, serviceName string) ([]registry.ServiceInstance, error) {
	r.discovers.Add(1)
	return r.StaticRegistry.Discover(ctx, serviceName)
}

func (c *Client) poolAddrs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var addrs []string
	for addr := range c.pools {
		addrs = append(addrs, addr)
	}
	return addrs
}

func TestQuery_InstancesFollowRegistryWatch(t *testing.T) {
	first, second := startServer(t), startServer(t)
	reg := &countingRegistry{StaticRegistry: registry.NewStaticRegistryFor(protocol.ServiceName, first)}
	cli := NewClient(reg, &loadbalance.RoundRobinBalancer{})
	defer cli.Close()

	for i := 0; i < 3; i++ {
		_, err := cli.Query(context.Background(), protocol.TypeTemperature, "roma")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), reg.discovers.Load(), "later queries use the watched list")
	assert.Equal(t, []string{first}, cli.poolAddrs())

	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, protocol.ServiceName, registry.ServiceInstance{Addr: second, Weight: 1}, 10))
	require.NoError(t, reg.Deregister(ctx, protocol.ServiceName, first))

	// The pool of the departed instance is closed once the update lands
	require.Eventually(t, func() bool { return len(cli.poolAddrs()) == 0 }, time.Second, 5*time.Millisecond)

	resp, err := cli.Query(context.Background(), protocol.TypeTemperature, "roma")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, resp.Status)
	assert.Equal(t, []string{second}, cli.poolAddrs())
	assert.Equal(t, int32(1), reg.discovers.Load())
}

func TestQuery_EmptyWatchFallsBackToDiscover(t *testing.T) {
	addr := startServer(t)
	reg := &countingRegistry{StaticRegistry: registry.NewStaticRegistryFor(protocol.ServiceName, addr)}
	cli := NewClient(reg, &loadbalance.RoundRobinBalancer{})
	defer cli.Close()

	_, err := cli.Query(context.Background(), protocol.TypeWind, "bari")
	require.NoError(t, err)

	require.NoError(t, reg.Deregister(context.Background(), protocol.ServiceName, addr))
	require.Eventually(t, func() bool {
		_, err := cli.Query(context.Background(), protocol.TypeWind, "bari")
		return errors.Is(err, registry.ErrNoInstances)
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, reg.discovers.Load(), int32(2))
}
