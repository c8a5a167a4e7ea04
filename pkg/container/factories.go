package container

import (
	"fmt"
	"sort"
	"sync"
)

// BeanFactories maps bean names used in deployment manifests to factories.
type BeanFactories struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewBeanFactories creates an empty BeanFactories.
func NewBeanFactories() *BeanFactories {
	return &BeanFactories{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Registering a name twice fails.
func (f *BeanFactories) Register(name string, factory Factory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.factories[name]; ok {
		return fmt.Errorf("container:factories - bean %q already registered", name)
	}
	f.factories[name] = factory
	return nil
}

// Lookup returns the factory registered under name.
func (f *BeanFactories) Lookup(name string) (Factory, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	factory, ok := f.factories[name]
	if !ok {
		return nil, fmt.Errorf("container:factories - no bean factory named %q", name)
	}
	return factory, nil
}

// Names returns registered names in sorted order.
func (f *BeanFactories) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.factories))
	for n := range f.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
