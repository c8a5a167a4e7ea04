package keygen

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxBeginner is the subset of *pgxpool.Pool used by PGSequenceStore.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PGSequenceStore claims batches from the key_sequences table. Each claim is
// one transaction; the row lock taken by UPDATE isolates concurrent claims.
type PGSequenceStore struct {
	db TxBeginner
}

// NewPGSequenceStore creates a PGSequenceStore over db.
func NewPGSequenceStore(db TxBeginner) *PGSequenceStore {
	return &PGSequenceStore{db: db}
}

// ClaimBatch reserves size keys from the named sequence.
func (s *PGSequenceStore) ClaimBatch(ctx context.Context, name string, size int) (Key, error) {
	var next int64
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO key_sequences (name, next_value) VALUES ($1, 1) ON CONFLICT (name) DO NOTHING`,
			name); err != nil {
			return fmt.Errorf("ensure sequence row: %w", err)
		}
		return tx.QueryRow(ctx,
			`UPDATE key_sequences SET next_value = next_value + $2 WHERE name = $1 RETURNING next_value`,
			name, size).Scan(&next)
	})
	if err != nil {
		return 0, fmt.Errorf("keygen:sequence_pg - claim %s: %w", name, err)
	}
	return Key(next - int64(size)), nil
}
