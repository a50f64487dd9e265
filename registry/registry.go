// Package registry tracks which addresses serve the weather protocol.
//
// Servers register their advertised UDP address on start and deregister on
// shutdown; clients discover the current list before each query.
package registry

import (
	"context"
	"errors"
)

// ErrNoInstances is returned by Discover when a service has no live instances.
var ErrNoInstances = errors.New("registry: no instances available")

type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // Weight for load balancing
	Version string `json:"version"`
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
