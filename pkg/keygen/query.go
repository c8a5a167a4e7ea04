package keygen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const queryLogPrefix = "keygen:query"

// SQLSTATE codes for objects that already exist (duplicate_table, duplicate_object).
const (
	sqlStateDuplicateTable  = "42P07"
	sqlStateDuplicateObject = "42710"
)

// Querier is the subset of *pgxpool.Pool used by QueryGenerator.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QueryConfig configures a QueryGenerator.
type QueryConfig struct {
	Name string
	// InitSQL runs once on Start, e.g. "CREATE SEQUENCE order_ids".
	InitSQL string
	// Query returns one integer column, e.g. "SELECT nextval('order_ids')".
	Query string
}

// QueryGenerator obtains each key by running a configured query.
type QueryGenerator struct {
	db  Querier
	cfg QueryConfig

	mu          sync.Mutex
	initialized bool
}

// NewQueryGenerator creates a QueryGenerator over db.
func NewQueryGenerator(db Querier, cfg QueryConfig) *QueryGenerator {
	return &QueryGenerator{db: db, cfg: cfg}
}

// Start runs InitSQL once. Init failures do not fail Start: the structure may
// already exist from a previous run, and NextKey surfaces any real problem.
func (g *QueryGenerator) Start(ctx context.Context) error {
	if g.cfg.Query == "" {
		return fmt.Errorf("%s - %s: query is required", queryLogPrefix, g.cfg.Name)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initialized {
		return nil
	}
	if g.cfg.InitSQL != "" {
		if _, err := g.db.Exec(ctx, g.cfg.InitSQL); err != nil {
			if isAlreadyExists(err) {
				slog.Debug(fmt.Sprintf("%s - %s: init structure already exists", queryLogPrefix, g.cfg.Name))
			} else {
				slog.Warn(fmt.Sprintf("%s - %s: init statement failed, continuing: %v", queryLogPrefix, g.cfg.Name, err))
			}
		}
	}
	g.initialized = true
	return nil
}

// Stop is a no-op; the pool belongs to the caller.
func (g *QueryGenerator) Stop() {}

// NextKey runs the key query.
func (g *QueryGenerator) NextKey(ctx context.Context, _ Row) (Key, error) {
	var v int64
	if err := g.db.QueryRow(ctx, g.cfg.Query).Scan(&v); err != nil {
		return 0, newKeyGenerationError(g.cfg.Name, fmt.Errorf("%s - key query: %w", queryLogPrefix, err))
	}
	return Key(v), nil
}

// UpdateCache records row under key for txID.
func (g *QueryGenerator) UpdateCache(cache *TxCache, txID string, key Key, row Row) {
	updateCache(cache, txID, key, row)
}

func isAlreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateDuplicateTable || pgErr.Code == sqlStateDuplicateObject
}
