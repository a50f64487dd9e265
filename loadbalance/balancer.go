// Package loadbalance chooses which server instance answers a query.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity instances
//   - WeightedRandom:  instances with different capacity
//   - ConsistentHash:  the same city keeps hitting the same instance
package loadbalance

import (
	"errors"

	"weather-udp/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each query.
type Balancer interface {
	// Pick selects one instance from the available list. key identifies the
	// query (the lower-cased city); strategies that do not need it ignore it.
	// Called on every query, so it must be goroutine-safe.
	Pick(instances []registry.ServiceInstance, key string) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the strategy with the given name, or nil if unknown.
func New(name string) Balancer {
	switch name {
	case "roundrobin", "":
		return &RoundRobinBalancer{}
	case "weighted":
		return &WeightedRandomBalancer{}
	case "hash":
		return NewConsistentHashBalancer()
	}
	return nil
}
