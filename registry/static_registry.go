package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// StaticRegistry keeps instances in memory. It backs direct addressing
// (a client pointed at one server) and tests. TTLs are ignored.
type StaticRegistry struct {
	mu       sync.Mutex
	services map[string][]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		services: make(map[string][]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
}

// NewStaticRegistryFor returns a registry holding one instance per address, weight 1.
func NewStaticRegistryFor(serviceName string, addrs ...string) *StaticRegistry {
	r := NewStaticRegistry()
	for _, addr := range addrs {
		r.services[serviceName] = append(r.services[serviceName], ServiceInstance{Addr: addr, Weight: 1})
	}
	return r
}

func (r *StaticRegistry) Register(_ context.Context, serviceName string, instance ServiceInstance, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := slices.DeleteFunc(r.services[serviceName], func(i ServiceInstance) bool { return i.Addr == instance.Addr })
	r.services[serviceName] = append(list, instance)
	r.notifyLocked(serviceName)
	return nil
}

func (r *StaticRegistry) Deregister(_ context.Context, serviceName string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.services[serviceName] = slices.DeleteFunc(r.services[serviceName], func(i ServiceInstance) bool { return i.Addr == addr })
	r.notifyLocked(serviceName)
	return nil
}

func (r *StaticRegistry) Discover(_ context.Context, serviceName string) ([]ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.services[serviceName]) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInstances, serviceName)
	}
	return slices.Clone(r.services[serviceName]), nil
}

// Watch emits the current list right away and again after every change.
// Slow watchers only ever see the latest list.
func (r *StaticRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	r.mu.Lock()
	r.watchers[serviceName] = append(r.watchers[serviceName], ch)
	ch <- slices.Clone(r.services[serviceName])
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		r.watchers[serviceName] = slices.DeleteFunc(r.watchers[serviceName], func(c chan []ServiceInstance) bool { return c == ch })
		close(ch)
	}()
	return ch
}

func (r *StaticRegistry) notifyLocked(serviceName string) {
	snapshot := r.services[serviceName]
	for _, ch := range r.watchers[serviceName] {
		// Replace a pending, unread list with the newer one
		select {
		case <-ch:
		default:
		}
		ch <- slices.Clone(snapshot)
	}
}
