package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/addrtx/scanner/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BalanceRepository persists the most recently fetched native balance
// for each address. A refresh overwrites the row unless the stored
// snapshot is from a later block; there is no balance history.
type BalanceRepository struct {
	pool *pgxpool.Pool
}

// NewBalanceRepository builds a BalanceRepository over pool.
func NewBalanceRepository(pool *pgxpool.Pool) *BalanceRepository {
	return &BalanceRepository{pool: pool}
}

// Get returns the stored Balance for address, or (nil, nil) if none has
// ever been fetched.
func (r *BalanceRepository) Get(ctx context.Context, address types.Address) (*types.Balance, error) {
	var bal types.Balance
	var addr string
	err := r.pool.QueryRow(ctx, `
		SELECT address, balance_wei, block_number, updated_at
		FROM balance WHERE address = $1`,
		string(address),
	).Scan(&addr, &bal.BalanceWei, &bal.BlockNumber, &bal.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance for %s: %w", address, err)
	}
	bal.Address = types.Address(addr)
	return &bal, nil
}

// Upsert overwrites the stored balance for address with a freshly
// fetched snapshot, unless the stored snapshot is from a later block.
func (r *BalanceRepository) Upsert(ctx context.Context, bal types.Balance) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO balance (address, balance_wei, block_number, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET
			balance_wei = EXCLUDED.balance_wei,
			block_number = EXCLUDED.block_number,
			updated_at = EXCLUDED.updated_at
		WHERE EXCLUDED.block_number >= balance.block_number`,
		string(bal.Address), bal.BalanceWei, bal.BlockNumber, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert balance for %s: %w", bal.Address, err)
	}
	return nil
}
