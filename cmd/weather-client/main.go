package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/spf13/cobra"

	"weather-udp/client"
	"weather-udp/codec"
	"weather-udp/loadbalance"
	"weather-udp/message"
	"weather-udp/protocol"
	"weather-udp/registry"
	"weather-udp/weather"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type options struct {
	server   string
	port     int
	request  string
	timeout  time.Duration
	etcd     string
	balancer string
	json     bool
	list     bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	var o options

	cmd := &cobra.Command{
		Use:   "weather-client [-s server] [-p port] -r \"type city\"",
		Short: "Query a weather server over UDP",
		Example: `  weather-client -r "t roma"
  weather-client -s 10.0.0.5 -p 56700 -r "p Reggio Calabria"
  weather-client --etcd localhost:2379 --balancer hash -r "h napoli"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.list {
				for _, city := range weather.SupportedCities() {
					fmt.Fprintln(out, city)
				}
				return nil
			}
			return query(cmd.Context(), out, o)
		},
	}

	host, _, _ := net.SplitHostPort(protocol.DefaultAddr)
	cmd.Flags().StringVarP(&o.server, "server", "s", host, "server host")
	cmd.Flags().IntVarP(&o.port, "port", "p", protocol.ServerPort, "server port")
	cmd.Flags().StringVarP(&o.request, "request", "r", "", `request as "type city", type one of t, h, w, p`)
	cmd.Flags().DurationVar(&o.timeout, "timeout", 2*time.Second, "time to wait for the reply")
	cmd.Flags().StringVar(&o.etcd, "etcd", "", "discover servers through these etcd endpoints instead of --server")
	cmd.Flags().StringVar(&o.balancer, "balancer", "roundrobin", "roundrobin, weighted or hash")
	cmd.Flags().BoolVar(&o.json, "json", false, "print the response as JSON")
	cmd.Flags().BoolVar(&o.list, "list-cities", false, "print the supported cities and exit")
	return cmd
}

// parseRequest splits "t roma" into a type and a city. The city may contain spaces.
func parseRequest(s string) (protocol.Type, string, error) {
	s = strings.TrimSpace(s)
	typ, city, ok := strings.Cut(s, " ")
	if !ok || len(typ) != 1 {
		return 0, "", fmt.Errorf("invalid request %q: want \"type city\"", s)
	}
	return protocol.Type(typ[0]), strings.TrimSpace(city), nil
}

func newClient(o options) (*client.Client, func(), error) {
	bal := loadbalance.New(o.balancer)
	if bal == nil {
		return nil, nil, fmt.Errorf("unknown balancer %q", o.balancer)
	}

	if o.etcd == "" {
		if o.port < 1 || o.port > 65535 {
			return nil, nil, fmt.Errorf("port %d out of range", o.port)
		}
		addr := net.JoinHostPort(o.server, strconv.Itoa(o.port))
		reg := registry.NewStaticRegistryFor(protocol.ServiceName, addr)
		return client.NewClient(reg, bal, client.WithTimeout(o.timeout), client.WithPoolSize(1)), func() {}, nil
	}

	reg, err := registry.NewEtcdRegistry(sharedcfg.ParseBrokers(o.etcd))
	if err != nil {
		return nil, nil, err
	}
	return client.NewClient(reg, bal, client.WithTimeout(o.timeout), client.WithPoolSize(1)), func() { reg.Close() }, nil
}

func query(ctx context.Context, out io.Writer, o options) error {
	typ, city, err := parseRequest(o.request)
	if err != nil {
		return err
	}

	cli, cleanup, err := newClient(o)
	if err != nil {
		return err
	}
	defer cleanup()
	defer cli.Close()

	resp, err := cli.Query(ctx, typ, city)
	if err != nil {
		return err
	}

	if o.json {
		data, err := codec.GetCodec(codec.CodecTypeJSON).Encode(resp)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	fmt.Fprintln(out, format(city, resp))
	if !resp.OK() {
		return errors.New(resp.Status.String())
	}
	return nil
}

func format(city string, resp *message.WeatherResponse) string {
	switch resp.Status {
	case protocol.StatusOK:
		m, _ := weather.MetricFor(resp.Type)
		return fmt.Sprintf("%s: %s = %.1f%s", capitalize(city), resp.Type, resp.Value, m.Unit)
	case protocol.StatusCityNotFound:
		return "city not available"
	case protocol.StatusInvalidRequest:
		return "invalid request"
	}
	return fmt.Sprintf("unexpected status %s", resp.Status)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
