package container

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/morezero/beanserver/pkg/commsutil"
	"github.com/morezero/beanserver/pkg/keygen"
)

// MemoryStore is an in-memory EntityStore. It supports findAll and
// findBy<Field> finders, matching the row field with a lower-cased first letter.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]keygen.Row
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]keygen.Row)}
}

// Load returns a copy of the row for pk.
func (s *MemoryStore) Load(_ context.Context, pk string) (keygen.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[pk]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return copyRow(row), nil
}

// Save stores a copy of row under pk.
func (s *MemoryStore) Save(_ context.Context, pk string, row keygen.Row) error {
	s.mu.Lock()
	s.rows[pk] = copyRow(row)
	s.mu.Unlock()
	return nil
}

// Delete removes pk.
func (s *MemoryStore) Delete(_ context.Context, pk string) error {
	s.mu.Lock()
	delete(s.rows, pk)
	s.mu.Unlock()
	return nil
}

// Find returns keys in sorted order.
func (s *MemoryStore) Find(_ context.Context, method string, args commsutil.Args) ([]string, error) {
	var match func(keygen.Row) bool
	switch {
	case method == "findAll":
		match = func(keygen.Row) bool { return true }
	case strings.HasPrefix(method, "findBy") && len(method) > len("findBy"):
		field := lowerFirst(strings.TrimPrefix(method, "findBy"))
		var want interface{}
		if err := args.Decode(0, &want); err != nil {
			return nil, err
		}
		match = func(row keygen.Row) bool {
			return fmt.Sprint(row[field]) == fmt.Sprint(want)
		}
	default:
		return nil, fmt.Errorf("container:store - unsupported finder %q", method)
	}

	s.mu.RLock()
	var keys []string
	for pk, row := range s.rows {
		if match(row) {
			keys = append(keys, pk)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

func lowerFirst(s string) string {
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func copyRow(row keygen.Row) keygen.Row {
	cp := make(keygen.Row, len(row))
	for k, v := range row {
		cp[k] = v
	}
	return cp
}
