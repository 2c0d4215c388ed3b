package storage

import (
	"context"
	"fmt"

	"github.com/addrtx/scanner/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// execer is satisfied by both pgxpool.Pool and pgx.Tx, letting
// insertBatch run either standalone or nested in a caller's transaction.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// TransactionRepository persists normalized transactions, keyed by hash
// plus owning address.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository builds a TransactionRepository over pool.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// InsertBatch inserts txs with one statement per transaction, using ON CONFLICT DO
// NOTHING so a row already persisted by a prior attempt at the same gap
// is silently skipped rather than erroring. It does not open its own
// transaction; callers persisting alongside a Coverage upsert should run
// both through the same pgx.Tx via InsertBatchTx.
func (r *TransactionRepository) InsertBatch(ctx context.Context, txs []types.Transaction) error {
	return r.insertBatch(ctx, r.pool, txs)
}

// InsertBatchTx is the same insert, scoped to caller-supplied tx so it
// can be committed atomically with a Coverage upsert.
func (r *TransactionRepository) InsertBatchTx(ctx context.Context, tx pgx.Tx, txs []types.Transaction) error {
	return r.insertBatch(ctx, tx, txs)
}

func (r *TransactionRepository) insertBatch(ctx context.Context, q execer, txs []types.Transaction) error {
	for _, tx := range txs {
		_, err := q.Exec(ctx, `
			INSERT INTO transaction (
				hash, address, block_number, from_address, to_address, value,
				gas_price, gas_used, gas, function_name, receipt_status,
				contract_address, timestamp
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (hash, address) DO NOTHING`,
			tx.Hash, string(tx.Address), tx.BlockNumber, tx.From, tx.To, tx.Value,
			tx.GasPrice, tx.GasUsed, tx.Gas, tx.FunctionName, tx.ReceiptStatus,
			tx.ContractAddress, tx.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", tx.Hash, err)
		}
	}
	return nil
}

// Filters narrows a transaction listing query.
type Filters struct {
	FromBlock uint64
	ToBlock   uint64
	Order     types.Order
	Limit     int
	Offset    int
}

// ListByAddress returns transactions for address within [FromBlock,
// ToBlock], paginated and ordered per filters.
func (r *TransactionRepository) ListByAddress(ctx context.Context, address types.Address, f Filters) ([]types.Transaction, error) {
	order := "ASC"
	if f.Order == types.OrderDesc {
		order = "DESC"
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT hash, address, block_number, from_address, to_address, value,
			gas_price, gas_used, gas, function_name, receipt_status,
			contract_address, timestamp
		FROM transaction
		WHERE address = $1 AND block_number BETWEEN $2 AND $3
		ORDER BY block_number %s, hash %s
		LIMIT $4 OFFSET $5`, order, order),
		string(address), f.FromBlock, f.ToBlock, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", address, err)
	}
	defer rows.Close()

	var txs []types.Transaction
	for rows.Next() {
		var tx types.Transaction
		var addr string
		if err := rows.Scan(
			&tx.Hash, &addr, &tx.BlockNumber, &tx.From, &tx.To, &tx.Value,
			&tx.GasPrice, &tx.GasUsed, &tx.Gas, &tx.FunctionName, &tx.ReceiptStatus,
			&tx.ContractAddress, &tx.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		tx.Address = types.Address(addr)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}

	return txs, nil
}

// CountByAddress returns the number of persisted transactions for
// address, irrespective of block range.
func (r *TransactionRepository) CountByAddress(ctx context.Context, address types.Address) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM transaction WHERE address = $1`, string(address)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transactions for %s: %w", address, err)
	}
	return count, nil
}
