package keygen

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const sequenceLogPrefix = "keygen:sequence"

// DefaultBatchSize is used when SequenceConfig.BatchSize is not positive.
const DefaultBatchSize = 100

// SequenceStore claims contiguous key ranges from a named sequence.
type SequenceStore interface {
	// ClaimBatch atomically reserves size keys and returns the first one.
	ClaimBatch(ctx context.Context, name string, size int) (Key, error)
}

// SequenceConfig configures a SequenceGenerator.
type SequenceConfig struct {
	Name      string
	BatchSize int
}

// SequenceGenerator hands out keys from batches pre-allocated in a SequenceStore.
type SequenceGenerator struct {
	store SequenceStore
	cfg   SequenceConfig

	mu      sync.Mutex
	started bool
	next    Key
	limit   Key
}

// NewSequenceGenerator creates a SequenceGenerator over store.
func NewSequenceGenerator(store SequenceStore, cfg SequenceConfig) *SequenceGenerator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &SequenceGenerator{store: store, cfg: cfg}
}

// Start marks the generator usable.
func (g *SequenceGenerator) Start(_ context.Context) error {
	if g.cfg.Name == "" {
		return fmt.Errorf("%s - sequence name is required", sequenceLogPrefix)
	}
	g.mu.Lock()
	g.started = true
	g.mu.Unlock()
	return nil
}

// Stop discards the unused remainder of the current batch.
func (g *SequenceGenerator) Stop() {
	g.mu.Lock()
	g.started = false
	g.next, g.limit = 0, 0
	g.mu.Unlock()
}

// NextKey returns the next key of the current batch, claiming a new batch when exhausted.
func (g *SequenceGenerator) NextKey(ctx context.Context, _ Row) (Key, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return 0, newKeyGenerationError(g.cfg.Name, ErrNotStarted)
	}

	if g.next >= g.limit {
		start, err := g.store.ClaimBatch(ctx, g.cfg.Name, g.cfg.BatchSize)
		if err != nil {
			return 0, newKeyGenerationError(g.cfg.Name, fmt.Errorf("%s - claim batch: %w", sequenceLogPrefix, err))
		}
		g.next = start
		g.limit = start + Key(g.cfg.BatchSize)
		slog.Debug(fmt.Sprintf("%s - %s claimed [%d, %d)", sequenceLogPrefix, g.cfg.Name, g.next, g.limit))
	}

	k := g.next
	g.next++
	return k, nil
}

// UpdateCache records row under key for txID.
func (g *SequenceGenerator) UpdateCache(cache *TxCache, txID string, key Key, row Row) {
	updateCache(cache, txID, key, row)
}
