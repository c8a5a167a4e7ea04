// Package keygen provides pluggable primary key generators for entity deployments.
package keygen

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrNotStarted is returned by NextKey on a generator that is not running.
var ErrNotStarted = errors.New("key generator not started")

// Key is a generated primary key.
type Key int64

func (k Key) String() string { return strconv.FormatInt(int64(k), 10) }

// ParseKey parses a primary key produced by Key.String.
func ParseKey(s string) (Key, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("keygen:keygen - invalid key %q: %w", s, err)
	}
	return Key(v), nil
}

// Row is the persistent state of the instance a key is generated for.
type Row = map[string]interface{}

// Generator allocates unique primary keys.
type Generator interface {
	// Start initializes the generator. Calling Start on a running generator is a no-op.
	Start(ctx context.Context) error
	Stop()
	NextKey(ctx context.Context, row Row) (Key, error)
	// UpdateCache records a freshly keyed row in the transaction's write-behind cache.
	UpdateCache(cache *TxCache, txID string, key Key, row Row)
}

// KeyGenerationError reports a failed key allocation.
type KeyGenerationError struct {
	Generator string
	Cause     error
}

func (e *KeyGenerationError) Error() string {
	return fmt.Sprintf("key generation failed for %s: %v", e.Generator, e.Cause)
}

func (e *KeyGenerationError) Unwrap() error { return e.Cause }

func newKeyGenerationError(name string, cause error) *KeyGenerationError {
	return &KeyGenerationError{Generator: name, Cause: cause}
}

func updateCache(cache *TxCache, txID string, key Key, row Row) {
	if cache == nil || txID == "" {
		return
	}
	cache.Put(txID, key, row)
}

type txKey struct{}

// WithTxID returns a child of ctx bound to the transaction txID.
func WithTxID(ctx context.Context, txID string) context.Context {
	return context.WithValue(ctx, txKey{}, txID)
}

// TxIDFromContext returns the transaction bound to ctx, or "".
func TxIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(txKey{}).(string)
	return id
}
