package container

import (
	"context"
	"sync"

	"github.com/morezero/beanserver/pkg/commsutil"
)

// SingletonContainer holds one lazily created instance; calls are serialized.
type SingletonContainer struct {
	id      string
	factory Factory

	mu   sync.Mutex
	bean Bean
}

// NewSingletonContainer creates a SingletonContainer.
func NewSingletonContainer(id string, factory Factory) *SingletonContainer {
	return &SingletonContainer{id: id, factory: factory}
}

func (c *SingletonContainer) Start(context.Context) error { return nil }

// Stop drops the instance.
func (c *SingletonContainer) Stop() { c.Discard() }

// Invoke calls method on the instance, creating it on first use.
func (c *SingletonContainer) Invoke(ctx context.Context, method string, args commsutil.Args) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bean == nil {
		bean, err := build(c.factory)
		if err != nil {
			return nil, err
		}
		if err := create(ctx, bean, nil); err != nil {
			return nil, err
		}
		c.bean = bean
	}
	return invoke(ctx, c.bean, method, args)
}

// Discard drops the instance; the next call creates a new one.
func (c *SingletonContainer) Discard() {
	c.mu.Lock()
	c.bean = nil
	c.mu.Unlock()
}
