package storage

import (
	"context"
	"fmt"

	"github.com/addrtx/scanner/internal/types"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GapStore persists a worked gap's result atomically: the transactions
// it found plus the Coverage row recording how far it actually reached.
// It satisfies worker.Store.
type GapStore struct {
	pool         *pgxpool.Pool
	transactions *TransactionRepository
	coverage     *CoverageRepository
}

// NewGapStore builds a GapStore over pool, delegating to the given
// transaction and coverage repositories for the statements it runs.
func NewGapStore(pool *pgxpool.Pool, transactions *TransactionRepository, coverage *CoverageRepository) *GapStore {
	return &GapStore{pool: pool, transactions: transactions, coverage: coverage}
}

// PersistGapResult inserts txs and upserts a Coverage row covering
// [fromBlock, actualEnd] for address, committing both in a single
// durable transaction. Callers must never observe the transactions
// without the Coverage row that vouches for them, or vice versa.
func (s *GapStore) PersistGapResult(ctx context.Context, address types.Address, fromBlock, actualEnd uint64, txs []types.Transaction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("gap store: begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(txs) > 0 {
		if err := s.transactions.InsertBatchTx(ctx, tx, txs); err != nil {
			return fmt.Errorf("gap store: insert transactions: %w", err)
		}
	}

	if err := s.coverage.InsertTx(ctx, tx, address, types.BlockRange{FromBlock: fromBlock, ToBlock: actualEnd}); err != nil {
		return fmt.Errorf("gap store: insert coverage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("gap store: commit transaction: %w", err)
	}
	return nil
}
