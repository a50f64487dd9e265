package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"weather-udp/protocol"
)

// Config holds all server settings, populated from environment variables.
// Command-line flags override individual fields after Load.
type Config struct {
	Port          int
	BindHost      string
	AdvertiseAddr string
	LogLevel      string
	LogFormat     string
	LookupTimeout time.Duration

	ShutdownTimeout time.Duration

	// Service registration; disabled when no endpoints are set.
	EtcdEndpoints []string
	RegistryTTL   int64

	// Health and metrics endpoints; disabled when empty.
	MetricsAddr string

	// Token bucket over all clients; disabled when RateLimit is 0.
	RateLimit float64
	RateBurst int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	port, err := ParsePort(sharedcfg.EnvOrDefault("WEATHER_PORT", strconv.Itoa(protocol.ServerPort)))
	if err != nil {
		return nil, fmt.Errorf("invalid WEATHER_PORT: %w", err)
	}

	lookupTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("LOOKUP_TIMEOUT", "500ms"))
	if err != nil || lookupTimeout <= 0 {
		return nil, errors.New("invalid LOOKUP_TIMEOUT")
	}
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	ttl, err := strconv.ParseInt(sharedcfg.EnvOrDefault("REGISTRY_TTL", "10"), 10, 64)
	if err != nil || ttl <= 0 {
		return nil, errors.New("invalid REGISTRY_TTL")
	}

	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("RATE_LIMIT", "0"), 64)
	if err != nil || rateLimit < 0 {
		return nil, errors.New("invalid RATE_LIMIT")
	}
	rateBurst, err := strconv.Atoi(sharedcfg.EnvOrDefault("RATE_BURST", "100"))
	if err != nil || rateBurst < 1 {
		return nil, errors.New("invalid RATE_BURST")
	}

	cfg := &Config{
		Port:            port,
		BindHost:        sharedcfg.EnvOrDefault("WEATHER_BIND", "0.0.0.0"),
		AdvertiseAddr:   os.Getenv("WEATHER_ADVERTISE_ADDR"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		LookupTimeout:   lookupTimeout,
		ShutdownTimeout: shutdownTimeout,
		EtcdEndpoints:   sharedcfg.ParseBrokers(os.Getenv("ETCD_ENDPOINTS")),
		RegistryTTL:     ttl,
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		RateLimit:       rateLimit,
		RateBurst:       rateBurst,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks fields that flags may have changed after Load.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid LOG_FORMAT %q", c.LogFormat)
	}
	if len(c.EtcdEndpoints) > 0 && c.AdvertiseAddr == "" {
		return errors.New("WEATHER_ADVERTISE_ADDR is required when ETCD_ENDPOINTS is set")
	}
	return nil
}

// ListenAddr is the UDP address to bind.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.Port))
}

// ParsePort parses a UDP port number.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}
