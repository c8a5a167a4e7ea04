package keygen

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"go.etcd.io/bbolt"
)

type memSequenceStore struct {
	mu     sync.Mutex
	next   map[string]Key
	claims int
	err    error
}

func (s *memSequenceStore) ClaimBatch(_ context.Context, name string, size int) (Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if s.next == nil {
		s.next = make(map[string]Key)
	}
	start := s.next[name]
	if start == 0 {
		start = 1
	}
	s.next[name] = start + Key(size)
	s.claims++
	return start, nil
}

func openTestBoltStore(t *testing.T) *BoltSequenceStore {
	t.Helper()
	store, err := OpenBoltSequenceStore(filepath.Join(t.TempDir(), "keygen.db"), &bbolt.Options{NoSync: true})
	if err != nil {
		t.Fatalf("keygen:sequence_test - open bolt store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSequenceGenerator_BatchesClaims(t *testing.T) {
	store := &memSequenceStore{}
	g := NewSequenceGenerator(store, SequenceConfig{Name: "orders", BatchSize: 10})
	ctx := context.Background()
	if err := g.Start(ctx); err != nil {
		t.Fatalf("keygen:sequence_test - Start: %v", err)
	}

	for want := Key(1); want <= 25; want++ {
		k, err := g.NextKey(ctx, nil)
		if err != nil {
			t.Fatalf("keygen:sequence_test - NextKey: %v", err)
		}
		if k != want {
			t.Fatalf("keygen:sequence_test - NextKey = %d, want %d", k, want)
		}
	}
	if store.claims != 3 {
		t.Errorf("keygen:sequence_test - claims = %d, want 3", store.claims)
	}
}

func TestSequenceGenerator_NotStarted(t *testing.T) {
	g := NewSequenceGenerator(&memSequenceStore{}, SequenceConfig{Name: "orders"})
	if _, err := g.NextKey(context.Background(), nil); !errors.Is(err, ErrNotStarted) {
		t.Errorf("keygen:sequence_test - expected ErrNotStarted, got %v", err)
	}
}

func TestSequenceGenerator_ClaimFailure(t *testing.T) {
	g := NewSequenceGenerator(&memSequenceStore{err: errors.New("disk full")}, SequenceConfig{Name: "orders"})
	g.Start(context.Background())
	_, err := g.NextKey(context.Background(), nil)
	var kgErr *KeyGenerationError
	if !errors.As(err, &kgErr) {
		t.Errorf("keygen:sequence_test - expected KeyGenerationError, got %v", err)
	}
}

func TestSequenceGenerator_DefaultBatchSize(t *testing.T) {
	g := NewSequenceGenerator(&memSequenceStore{}, SequenceConfig{Name: "orders"})
	if g.cfg.BatchSize != DefaultBatchSize {
		t.Errorf("keygen:sequence_test - BatchSize = %d, want %d", g.cfg.BatchSize, DefaultBatchSize)
	}
}

func TestBoltSequenceStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keygen.db")
	store, err := OpenBoltSequenceStore(path, nil)
	if err != nil {
		t.Fatalf("keygen:sequence_test - open: %v", err)
	}
	ctx := context.Background()
	first, _ := store.ClaimBatch(ctx, "orders", 5)
	second, _ := store.ClaimBatch(ctx, "orders", 5)
	store.Close()
	if first != 1 || second != 6 {
		t.Fatalf("keygen:sequence_test - claims = %d, %d, want 1, 6", first, second)
	}

	store, err = OpenBoltSequenceStore(path, nil)
	if err != nil {
		t.Fatalf("keygen:sequence_test - reopen: %v", err)
	}
	defer store.Close()
	third, err := store.ClaimBatch(ctx, "orders", 5)
	if err != nil || third != 11 {
		t.Errorf("keygen:sequence_test - claim after reopen = %d, %v, want 11", third, err)
	}
	other, _ := store.ClaimBatch(ctx, "invoices", 5)
	if other != 1 {
		t.Errorf("keygen:sequence_test - independent sequence started at %d", other)
	}
}

// Two generators share one store, standing in for two transactions claiming
// batches from the same sequence table concurrently.
func TestSequenceGenerator_ConcurrentAllocationsAreDistinct(t *testing.T) {
	const (
		workers   = 50
		perWorker = 200
	)
	store := openTestBoltStore(t)
	ctx := context.Background()

	gens := []*SequenceGenerator{
		NewSequenceGenerator(store, SequenceConfig{Name: "orders", BatchSize: 7}),
		NewSequenceGenerator(store, SequenceConfig{Name: "orders", BatchSize: 13}),
	}
	for _, g := range gens {
		if err := g.Start(ctx); err != nil {
			t.Fatalf("keygen:sequence_test - Start: %v", err)
		}
	}

	keys := make(chan Key, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(g *SequenceGenerator) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				k, err := g.NextKey(ctx, nil)
				if err != nil {
					t.Errorf("keygen:sequence_test - NextKey: %v", err)
					return
				}
				keys <- k
			}
		}(gens[w%len(gens)])
	}
	wg.Wait()
	close(keys)

	seen := make(map[Key]bool, workers*perWorker)
	for k := range keys {
		if seen[k] {
			t.Fatalf("keygen:sequence_test - duplicate key %d", k)
		}
		seen[k] = true
	}
	if len(seen) != workers*perWorker {
		t.Errorf("keygen:sequence_test - got %d distinct keys, want %d", len(seen), workers*perWorker)
	}
}
