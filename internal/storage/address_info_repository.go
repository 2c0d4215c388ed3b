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

// AddressInfoRepository persists the contract-or-not classification and
// creation block resolved for each address, written exactly once per
// address and read thereafter.
type AddressInfoRepository struct {
	pool *pgxpool.Pool
}

// NewAddressInfoRepository builds an AddressInfoRepository over pool.
func NewAddressInfoRepository(pool *pgxpool.Pool) *AddressInfoRepository {
	return &AddressInfoRepository{pool: pool}
}

// Get returns the AddressInfo row for address, or (nil, nil) if it has
// never been resolved.
func (r *AddressInfoRepository) Get(ctx context.Context, address types.Address) (*types.AddressInfo, error) {
	var info types.AddressInfo
	var addr string
	err := r.pool.QueryRow(ctx, `
		SELECT address, is_contract, creation_block, updated_at
		FROM address_info WHERE address = $1`,
		string(address),
	).Scan(&addr, &info.IsContract, &info.CreationBlock, &info.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get address_info for %s: %w", address, err)
	}
	info.Address = types.Address(addr)
	return &info, nil
}

// Upsert records the resolved classification for address, overwriting
// any prior row. Resolution is expected to happen once per address, but
// upsert semantics keep a re-resolve idempotent.
func (r *AddressInfoRepository) Upsert(ctx context.Context, info types.AddressInfo) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO address_info (address, is_contract, creation_block, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET
			is_contract = EXCLUDED.is_contract,
			creation_block = EXCLUDED.creation_block,
			updated_at = EXCLUDED.updated_at`,
		string(info.Address), info.IsContract, info.CreationBlock, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert address_info for %s: %w", info.Address, err)
	}
	return nil
}
