package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-udp/codec"
	"weather-udp/message"
	"weather-udp/middleware"
	"weather-udp/observability"
	"weather-udp/protocol"
	"weather-udp/registry"
	"weather-udp/weather"
)

// midpoint makes generated values predictable.
type midpoint struct{}

func (midpoint) Float(min, max float32) float32 { return (min + max) / 2 }

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// startServer serves on a loopback port and returns the server, its address
// and a channel carrying Serve's result.
func startServer(t *testing.T, opts []Option, mws ...middleware.Middleware) (*Server, string, <-chan error) {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	svr := NewServer(weather.NewService(midpoint{}).Handle, append([]Option{WithLogger(quietLogger)}, opts...)...)
	for _, mw := range mws {
		svr.Use(mw)
	}

	errc := make(chan error, 1)
	go func() { errc <- svr.Serve(conn) }()

	require.Eventually(t, func() bool {
		return svr.CheckReadiness(context.Background()) == nil
	}, time.Second, 5*time.Millisecond)

	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return svr, conn.LocalAddr().String(), errc
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// roundTrip sends raw bytes and returns the decoded reply, or nil if none
// arrives within the wait.
func roundTrip(t *testing.T, conn net.Conn, datagram []byte, wait time.Duration) *message.WeatherResponse {
	t.Helper()
	_, err := conn.Write(datagram)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(wait))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return nil
	}
	require.NoError(t, err)
	require.Equal(t, protocol.ResponseSize, n, "response must be exactly 9 bytes")

	resp, err := codec.DecodeResponse(buf[:n])
	require.NoError(t, err)
	return resp
}

func TestServer_Scenarios(t *testing.T) {
	_, addr, _ := startServer(t, nil)
	conn := dial(t, addr)

	resp := roundTrip(t, conn, []byte("tRoma"), time.Second)
	require.NotNil(t, resp)
	assert.Equal(t, protocol.StatusOK, resp.Status)
	assert.Equal(t, protocol.TypeTemperature, resp.Type)
	assert.Equal(t, float32(15), resp.Value)

	resp = roundTrip(t, conn, []byte("txyz"), time.Second)
	require.NotNil(t, resp)
	assert.Equal(t, *message.Failure(protocol.StatusCityNotFound), *resp)

	resp = roundTrip(t, conn, []byte("zroma"), time.Second)
	require.NotNil(t, resp)
	assert.Equal(t, *message.Failure(protocol.StatusInvalidRequest), *resp)

	resp = roundTrip(t, conn, []byte("tro@a"), time.Second)
	require.NotNil(t, resp)
	assert.Equal(t, *message.Failure(protocol.StatusInvalidRequest), *resp)
}

func TestServer_ShortDatagramDropped(t *testing.T) {
	m := observability.NewMetricsForTesting()
	_, addr, _ := startServer(t, []Option{WithMetrics(m)})
	conn := dial(t, addr)

	assert.Nil(t, roundTrip(t, conn, []byte("tr"), 100*time.Millisecond))

	// The loop keeps going after a dropped datagram
	resp := roundTrip(t, conn, []byte("pbari"), time.Second)
	require.NotNil(t, resp)
	assert.Equal(t, protocol.StatusOK, resp.Status)
	assert.Equal(t, float32(1000), resp.Value)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.DatagramsDropped.WithLabelValues(observability.DropDecode)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DatagramsReceived))
}

func TestServer_OversizedDatagramTruncated(t *testing.T) {
	_, addr, _ := startServer(t, nil)
	conn := dial(t, addr)

	// A valid city followed by NUL and padding far beyond the buffer
	datagram := append([]byte("hvenezia\x00"), strings.Repeat("#", 200)...)
	resp := roundTrip(t, conn, datagram, time.Second)
	require.NotNil(t, resp)
	assert.Equal(t, protocol.StatusOK, resp.Status)

	// City at full capacity: read but unknown
	resp = roundTrip(t, conn, append([]byte("h"), strings.Repeat("a", protocol.MaxCityLen)...), time.Second)
	require.NotNil(t, resp)
	assert.Equal(t, protocol.StatusCityNotFound, resp.Status)
}

func TestServer_RateLimitDropsSilently(t *testing.T) {
	m := observability.NewMetricsForTesting()
	_, addr, _ := startServer(t, []Option{WithMetrics(m)},
		middleware.RateLimitMiddleware(0.001, 1, m),
		middleware.MetricsMiddleware(m),
	)
	conn := dial(t, addr)

	require.NotNil(t, roundTrip(t, conn, []byte("wroma"), time.Second))
	assert.Nil(t, roundTrip(t, conn, []byte("wroma"), 100*time.Millisecond))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues("wind", "OK")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DatagramsDropped.WithLabelValues(observability.DropRateLimit)))
}

func TestServer_PeerReachesMiddleware(t *testing.T) {
	peers := make(chan net.Addr, 1)
	capture := func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, req *message.WeatherRequest) *message.WeatherResponse {
			addr, _ := middleware.PeerFromContext(ctx)
			peers <- addr
			return next(ctx, req)
		}
	}
	_, addr, _ := startServer(t, nil, capture)
	conn := dial(t, addr)

	require.NotNil(t, roundTrip(t, conn, []byte("tbari"), time.Second))
	assert.Equal(t, conn.LocalAddr().String(), (<-peers).String())
}

func TestServer_RegistersAndShutsDown(t *testing.T) {
	reg := registry.NewStaticRegistry()
	svr, addr, errc := startServer(t, []Option{WithRegistry(reg, "", 5)})

	instances, err := reg.Discover(context.Background(), protocol.ServiceName)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, addr, instances[0].Addr)
	assert.Equal(t, addr, svr.Addr().String())

	require.NoError(t, svr.Shutdown(time.Second))
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	_, err = reg.Discover(context.Background(), protocol.ServiceName)
	assert.ErrorIs(t, err, registry.ErrNoInstances)
	assert.ErrorIs(t, svr.CheckReadiness(context.Background()), ErrNotServing)
}

func TestServer_ShutdownBeforeServe(t *testing.T) {
	svr := NewServer(weather.NewService(midpoint{}).Handle, WithLogger(quietLogger))
	assert.NoError(t, svr.Shutdown(100*time.Millisecond))
	assert.Nil(t, svr.Addr())

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- svr.Serve(conn) }()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		conn.Close()
		t.Fatal("Serve kept running after Shutdown")
	}

	// Serve closed the socket it was handed
	_, _, err = conn.ReadFrom(make([]byte, 1))
	assert.ErrorIs(t, err, net.ErrClosed)
	assert.ErrorIs(t, svr.CheckReadiness(context.Background()), ErrNotServing)
}
