package keygen

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const managedLogPrefix = "keygen:managed"

// Managed owns a delegate generator and its lifecycle. A delegate is created on
// Start and dropped on Stop or on a failed Start, so a stopped generator never
// reaches a stale delegate.
type Managed struct {
	name        string
	newDelegate func() Generator

	mu       sync.RWMutex
	delegate Generator
}

// NewManaged creates a Managed generator that builds its delegate with newDelegate.
func NewManaged(name string, newDelegate func() Generator) *Managed {
	return &Managed{name: name, newDelegate: newDelegate}
}

// Start creates and starts the delegate. It is a no-op when already started.
func (m *Managed) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delegate != nil {
		return nil
	}

	d := m.newDelegate()
	if err := d.Start(ctx); err != nil {
		d.Stop()
		slog.Error(fmt.Sprintf("%s - %s failed to start: %v", managedLogPrefix, m.name, err))
		return newKeyGenerationError(m.name, err)
	}
	m.delegate = d
	slog.Info(fmt.Sprintf("%s - %s started", managedLogPrefix, m.name))
	return nil
}

// Stop stops and drops the delegate.
func (m *Managed) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delegate == nil {
		return
	}
	m.delegate.Stop()
	m.delegate = nil
	slog.Info(fmt.Sprintf("%s - %s stopped", managedLogPrefix, m.name))
}

// Started reports whether a delegate is running.
func (m *Managed) Started() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.delegate != nil
}

// NextKey delegates to the running generator, or fails with ErrNotStarted.
func (m *Managed) NextKey(ctx context.Context, row Row) (Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.delegate == nil {
		return 0, newKeyGenerationError(m.name, ErrNotStarted)
	}
	return m.delegate.NextKey(ctx, row)
}

// UpdateCache delegates to the running generator, or records the row directly.
func (m *Managed) UpdateCache(cache *TxCache, txID string, key Key, row Row) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.delegate == nil {
		updateCache(cache, txID, key, row)
		return
	}
	m.delegate.UpdateCache(cache, txID, key, row)
}
