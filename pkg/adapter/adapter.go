// Package adapter registers register access ops by adapter name so upper
// layers can find them without depending on the bus.
package adapter

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/glog"
)

// DefaultName is used when a device doesn't specify an adapter name.
const DefaultName = "cyttsp4_spi_adapter"

var (
	// ErrExists indicates the name is already registered.
	ErrExists = errors.New("adapter exists")
	// ErrNotFound indicates the name is not registered.
	ErrNotFound = errors.New("adapter not found")
)

// Ops provides register access.
type Ops interface {
	// Read reads len(buf) bytes starting at register addr.
	Read(addr uint16, buf []byte) error
	// Write writes data starting at register addr.
	Write(addr uint16, data []byte) error
}

// Registry maps adapter names to Ops.
type Registry struct {
	adapters map[string]Ops
	lock     sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Ops)}
}

// Add registers ops with name.
func (r *Registry) Add(name string, ops Ops) error {
	if name == "" {
		return fmt.Errorf("empty adapter name")
	}
	if ops == nil {
		return fmt.Errorf("adapter %q: nil ops", name)
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.adapters == nil {
		r.adapters = make(map[string]Ops)
	}
	if _, ok := r.adapters[name]; ok {
		return fmt.Errorf("%w: %q", ErrExists, name)
	}
	r.adapters[name] = ops
	glog.V(2).Infof("adapter %q added", name)
	return nil
}

// Del unregisters the adapter.
func (r *Registry) Del(name string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.adapters[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(r.adapters, name)
	glog.V(2).Infof("adapter %q removed", name)
	return nil
}

// Get looks up the adapter.
func (r *Registry) Get(name string) (Ops, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	ops, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return ops, nil
}

// Names returns sorted names of all adapters.
func (r *Registry) Names() []string {
	r.lock.RLock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	r.lock.RUnlock()
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Default returns the process wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Add registers ops in the default registry.
func Add(name string, ops Ops) error {
	return defaultRegistry.Add(name, ops)
}

// Del unregisters name from the default registry.
func Del(name string) error {
	return defaultRegistry.Del(name)
}

// Get looks up name in the default registry.
func Get(name string) (Ops, error) {
	return defaultRegistry.Get(name)
}

// Names lists the default registry.
func Names() []string {
	return defaultRegistry.Names()
}
