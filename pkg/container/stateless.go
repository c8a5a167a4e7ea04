package container

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/morezero/beanserver/pkg/commsutil"
)

// DefaultPoolSize bounds a stateless pool when no size is configured.
const DefaultPoolSize = 10

// StatelessContainer keeps a bounded pool of interchangeable instances.
type StatelessContainer struct {
	id      string
	factory Factory
	slots   chan struct{}

	mu      sync.Mutex
	idle    []Bean
	stopped bool
}

// NewStatelessContainer creates a pool of at most poolSize instances built by factory.
func NewStatelessContainer(id string, factory Factory, poolSize int) *StatelessContainer {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	return &StatelessContainer{
		id:      id,
		factory: factory,
		slots:   make(chan struct{}, poolSize),
	}
}

// Start reopens a stopped pool.
func (c *StatelessContainer) Start(context.Context) error {
	c.mu.Lock()
	c.stopped = false
	c.mu.Unlock()
	return nil
}

// Stop drops idle instances and rejects further Obtain calls.
func (c *StatelessContainer) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.idle = nil
	c.mu.Unlock()
}

// Obtain checks out an instance, blocking until one is free or ctx ends.
func (c *StatelessContainer) Obtain(ctx context.Context) (Bean, error) {
	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("container:stateless - %s: waiting for instance: %w", c.id, ctx.Err())
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		<-c.slots
		return nil, fmt.Errorf("container:stateless - %s: %w", c.id, ErrStopped)
	}
	if n := len(c.idle); n > 0 {
		bean := c.idle[n-1]
		c.idle = c.idle[:n-1]
		c.mu.Unlock()
		return bean, nil
	}
	c.mu.Unlock()
	bean, err := build(c.factory)
	if err != nil {
		<-c.slots
		return nil, err
	}
	return bean, nil
}

// Release returns an instance to the pool.
func (c *StatelessContainer) Release(bean Bean) {
	c.mu.Lock()
	if !c.stopped {
		c.idle = append(c.idle, bean)
	}
	c.mu.Unlock()
	<-c.slots
}

// Discard drops an instance after a system failure and frees its slot.
func (c *StatelessContainer) Discard(Bean) {
	<-c.slots
}

// Invoke obtains an instance, calls method and releases or discards it.
func (c *StatelessContainer) Invoke(ctx context.Context, method string, args commsutil.Args) (interface{}, error) {
	bean, err := c.Obtain(ctx)
	if err != nil {
		var sysErr *SystemError
		if errors.As(err, &sysErr) {
			return nil, err
		}
		return nil, &SystemError{Cause: err}
	}
	result, err := invoke(ctx, bean, method, args)
	if IsSystemFailure(err) {
		c.Discard(bean)
		return nil, err
	}
	c.Release(bean)
	return result, err
}

// Idle returns the number of pooled idle instances.
func (c *StatelessContainer) Idle() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.idle)
}
