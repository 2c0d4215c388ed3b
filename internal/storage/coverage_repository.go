package storage

import (
	"context"
	"fmt"

	"github.com/addrtx/scanner/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CoverageRepository persists Coverage rows. Rows are append-only: once a
// range is recorded as covered it is never deleted, only merged for
// observability by the caller via coverage.MergeCoverage.
type CoverageRepository struct {
	pool *pgxpool.Pool
}

// NewCoverageRepository builds a CoverageRepository over pool.
func NewCoverageRepository(pool *pgxpool.Pool) *CoverageRepository {
	return &CoverageRepository{pool: pool}
}

// Insert records a new covered range for address. It does not merge
// with existing rows; overlapping or touching ranges are acceptable
// and reconciled at read time. A duplicate (address, from_block,
// to_block) collapses into the existing row.
func (r *CoverageRepository) Insert(ctx context.Context, address types.Address, rng types.BlockRange) error {
	return r.insert(ctx, r.pool, address, rng)
}

// InsertTx is Insert scoped to a caller-supplied transaction, so a
// Coverage row can be committed atomically with the transactions it
// covers.
func (r *CoverageRepository) InsertTx(ctx context.Context, tx pgx.Tx, address types.Address, rng types.BlockRange) error {
	return r.insert(ctx, tx, address, rng)
}

func (r *CoverageRepository) insert(ctx context.Context, q execer, address types.Address, rng types.BlockRange) error {
	_, err := q.Exec(ctx, `
		INSERT INTO coverage (address, from_block, to_block)
		VALUES ($1, $2, $3)
		ON CONFLICT (address, from_block, to_block) DO NOTHING`,
		string(address), rng.FromBlock, rng.ToBlock,
	)
	if err != nil {
		return fmt.Errorf("insert coverage for %s [%d,%d]: %w", address, rng.FromBlock, rng.ToBlock, err)
	}
	return nil
}

// ListByAddress returns every Coverage row recorded for address,
// unordered, for the caller to feed into coverage.FindGaps.
func (r *CoverageRepository) ListByAddress(ctx context.Context, address types.Address) ([]types.BlockRange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT from_block, to_block FROM coverage WHERE address = $1`,
		string(address),
	)
	if err != nil {
		return nil, fmt.Errorf("list coverage for %s: %w", address, err)
	}
	defer rows.Close()

	var ranges []types.BlockRange
	for rows.Next() {
		var rng types.BlockRange
		if err := rows.Scan(&rng.FromBlock, &rng.ToBlock); err != nil {
			return nil, fmt.Errorf("scan coverage row: %w", err)
		}
		ranges = append(ranges, rng)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coverage rows: %w", err)
	}

	return ranges, nil
}
