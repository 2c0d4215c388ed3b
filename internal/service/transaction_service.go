// Package service orchestrates the durable store, the KV cache, the
// coverage engine, and the upstream adapters into the public read path:
// get_transactions, get_balance, and get_stored_count.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/addrtx/scanner/internal/coverage"
	"github.com/addrtx/scanner/internal/errors"
	"github.com/addrtx/scanner/internal/job"
	"github.com/addrtx/scanner/internal/logging"
	"github.com/addrtx/scanner/internal/resolver"
	"github.com/addrtx/scanner/internal/storage"
	"github.com/addrtx/scanner/internal/types"
)

// NodeRPC is the slice of adapter.NodeRPC the service needs directly
// (the resolver already wraps the getCode calls it needs internally).
type NodeRPC interface {
	BlockNumber(ctx context.Context) (uint64, error)
	Balance(ctx context.Context, address types.Address) (string, uint64, error)
}

// Explorer is the slice of adapter.Explorer the service needs.
type Explorer interface {
	TxList(ctx context.Context, address types.Address, fromBlock, toBlock uint64, page, offset int, sort types.Order) ([]types.Transaction, error)
}

// TransactionStore is the slice of storage.TransactionRepository the
// service needs, satisfied structurally by *storage.TransactionRepository.
type TransactionStore interface {
	ListByAddress(ctx context.Context, address types.Address, f storage.Filters) ([]types.Transaction, error)
	CountByAddress(ctx context.Context, address types.Address) (int64, error)
}

// CoverageStore is the slice of storage.CoverageRepository the service
// needs, satisfied structurally by *storage.CoverageRepository.
type CoverageStore interface {
	ListByAddress(ctx context.Context, address types.Address) ([]types.BlockRange, error)
}

// BalanceStore is the slice of storage.BalanceRepository the service
// needs, satisfied structurally by *storage.BalanceRepository.
type BalanceStore interface {
	Get(ctx context.Context, address types.Address) (*types.Balance, error)
	Upsert(ctx context.Context, bal types.Balance) error
}

// AddressResolver is the slice of resolver.Resolver the service needs,
// satisfied structurally by *resolver.Resolver.
type AddressResolver interface {
	StartingBlockFor(ctx context.Context, address types.Address) uint64
}

// Scheduler is the slice of job.Scheduler the service needs, satisfied
// structurally by *job.Scheduler.
type Scheduler interface {
	Submit(ctx context.Context, jobs []*job.Job) error
}

// Metadata annotates a transactions response with how complete and how
// fresh it is.
type Metadata struct {
	Incomplete           bool
	BackgroundProcessing bool
}

// TransactionsResponse is the result of GetTransactions.
type TransactionsResponse struct {
	Transactions []types.Transaction
	HasMore      bool
	Source       types.Source
	FromCache    bool
	Metadata     Metadata
}

// GetTransactionsInput carries get_transactions's parameters. From/To
// are nil when the caller did not bound that end of the range.
type GetTransactionsInput struct {
	Address types.Address
	From    *uint64
	To      *uint64
	Page    int
	Limit   int
	Order   types.Order
}

// TransactionService is the read-path orchestrator: KV cache, coverage
// gaps, durable store, and the upstream adapters, with background gap
// fill scheduled after every query that touches an uncovered range.
type TransactionService struct {
	cache        *storage.Cache
	transactions TransactionStore
	coverage     CoverageStore
	balances     BalanceStore
	resolver     AddressResolver
	node         NodeRPC
	explorer     Explorer
	scheduler    Scheduler

	txQueryTTL time.Duration
	txCountTTL time.Duration
	balanceTTL time.Duration
}

// Config configures a TransactionService.
type Config struct {
	Cache        *storage.Cache
	Transactions TransactionStore
	Coverage     CoverageStore
	Balances     BalanceStore
	Resolver     AddressResolver
	Node         NodeRPC
	Explorer     Explorer
	Scheduler    Scheduler
	TxQueryTTL   time.Duration
	TxCountTTL   time.Duration
	BalanceTTL   time.Duration
}

var (
	_ TransactionStore = (*storage.TransactionRepository)(nil)
	_ CoverageStore    = (*storage.CoverageRepository)(nil)
	_ BalanceStore     = (*storage.BalanceRepository)(nil)
	_ Scheduler        = (*job.Scheduler)(nil)
	_ AddressResolver  = (*resolver.Resolver)(nil)
)

// New builds a TransactionService from cfg.
func New(cfg Config) *TransactionService {
	return &TransactionService{
		cache:        cfg.Cache,
		transactions: cfg.Transactions,
		coverage:     cfg.Coverage,
		balances:     cfg.Balances,
		resolver:     cfg.Resolver,
		node:         cfg.Node,
		explorer:     cfg.Explorer,
		scheduler:    cfg.Scheduler,
		txQueryTTL:   cfg.TxQueryTTL,
		txCountTTL:   cfg.TxCountTTL,
		balanceTTL:   cfg.BalanceTTL,
	}
}

// GetTransactions implements the read-through, gap-filling query:
// KV cache, then coverage gaps against the durable store. A fully covered
// range is served from the store; if any gap exists the whole range is
// fetched from the explorer, and a background backfill is scheduled for
// every gap this query touched.
func (s *TransactionService) GetTransactions(ctx context.Context, in GetTransactionsInput) (*TransactionsResponse, error) {
	address, err := types.ParseAddress(string(in.Address))
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput, "service.GetTransactions", "invalid address", err)
	}
	if in.Limit < 1 || in.Limit > 1000 {
		return nil, errors.New(errors.InvalidInput, "service.GetTransactions", "limit must be between 1 and 1000")
	}
	if in.Page < 1 {
		return nil, errors.New(errors.InvalidInput, "service.GetTransactions", "page must be >= 1")
	}
	if in.From != nil && in.To != nil && *in.From > *in.To {
		return nil, errors.New(errors.InvalidInput, "service.GetTransactions", "from must be <= to")
	}

	effFrom, effTo, err := s.effectiveBounds(ctx, address, in.From, in.To)
	if err != nil {
		return nil, err
	}
	if effFrom > effTo {
		return &TransactionsResponse{Transactions: nil, HasMore: false, Source: types.SourceDatabase}, nil
	}

	cacheKey := storage.Key(storage.KeyKindTransactions, string(address),
		fmt.Sprintf("%d-%d-%d-%d-%s", effFrom, effTo, in.Page, in.Limit, in.Order))

	var cached TransactionsResponse
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		cached.FromCache = true
		cached.Source = types.SourceCache
		return &cached, nil
	}

	ranges, err := s.coverage.ListByAddress(ctx, address)
	if err != nil {
		return nil, errors.Wrap(errors.StorageError, "service.GetTransactions", "list coverage", err)
	}
	gaps := coverage.FindGaps(ranges, effFrom, effTo)

	var resp *TransactionsResponse
	if len(gaps) == 0 {
		resp, err = s.serveFromDatabase(ctx, address, effFrom, effTo, in)
	} else {
		resp, err = s.serveFromExplorer(ctx, address, effFrom, effTo, in)
	}
	if err != nil {
		return nil, err
	}

	if len(gaps) > 0 {
		resp.Metadata.BackgroundProcessing = true
		s.scheduleBackfill(ctx, address, gaps)
	}

	if err := s.cache.Set(ctx, cacheKey, resp, s.txQueryTTL); err != nil {
		logging.FromContext(ctx).Warn("failed to cache transactions response", "address", address, "error", err)
	}
	return resp, nil
}

func (s *TransactionService) effectiveBounds(ctx context.Context, address types.Address, from, to *uint64) (uint64, uint64, error) {
	var effFrom uint64
	if from != nil {
		effFrom = *from
	} else {
		effFrom = s.resolver.StartingBlockFor(ctx, address)
	}

	var effTo uint64
	if to != nil {
		effTo = *to
	} else {
		chainHead, err := s.node.BlockNumber(ctx)
		if err != nil {
			return 0, 0, errors.Wrap(errors.UpstreamTransient, "service.effectiveBounds", "fetch chain head", err)
		}
		effTo = chainHead
	}

	return effFrom, effTo, nil
}

func (s *TransactionService) serveFromDatabase(ctx context.Context, address types.Address, from, to uint64, in GetTransactionsInput) (*TransactionsResponse, error) {
	txs, err := s.transactions.ListByAddress(ctx, address, storage.Filters{
		FromBlock: from,
		ToBlock:   to,
		Order:     in.Order,
		Limit:     in.Limit,
		Offset:    (in.Page - 1) * in.Limit,
	})
	if err != nil {
		return nil, errors.Wrap(errors.StorageError, "service.serveFromDatabase", "list transactions", err)
	}
	return &TransactionsResponse{
		Transactions: txs,
		HasMore:      len(txs) == in.Limit,
		Source:       types.SourceDatabase,
	}, nil
}

// serveFromExplorer calls the explorer for [from,to]. On a query-timeout
// it retries once with a halved range before falling back to the
// durable store with an incomplete-data annotation.
func (s *TransactionService) serveFromExplorer(ctx context.Context, address types.Address, from, to uint64, in GetTransactionsInput) (*TransactionsResponse, error) {
	txs, err := s.explorer.TxList(ctx, address, from, to, in.Page, in.Limit, in.Order)
	if err == nil {
		return &TransactionsResponse{
			Transactions: txs,
			HasMore:      len(txs) == in.Limit,
			Source:       types.SourceExplorer,
		}, nil
	}
	if errors.KindOf(err) != errors.UpstreamTimeout {
		return nil, errors.Wrap(errors.UpstreamTransient, "service.serveFromExplorer", "fetch transactions", err)
	}

	mid := from + (to-from)/2
	halfFrom, halfTo := from, mid
	if in.Order == types.OrderDesc {
		halfFrom, halfTo = mid+1, to
	}

	txs, retryErr := s.explorer.TxList(ctx, address, halfFrom, halfTo, in.Page, in.Limit, in.Order)
	if retryErr != nil {
		resp, dbErr := s.serveFromDatabase(ctx, address, from, to, in)
		if dbErr != nil {
			return nil, dbErr
		}
		resp.Metadata.Incomplete = true
		return resp, nil
	}
	return &TransactionsResponse{
		Transactions: txs,
		HasMore:      len(txs) == in.Limit,
		Source:       types.SourceExplorer,
	}, nil
}

// scheduleBackfill enqueues every gap this query touched through the
// gap scheduler. Failure is logged, never surfaced: the response has
// already been computed from what was available.
func (s *TransactionService) scheduleBackfill(ctx context.Context, address types.Address, gaps []types.BlockRange) {
	jobs := job.Plan(address, gaps, time.Now())
	if len(jobs) == 0 {
		return
	}
	if err := s.scheduler.Submit(ctx, jobs); err != nil {
		logging.FromContext(ctx).Warn("failed to schedule background gap fill", "address", address, "error", err)
	}
}

// GetBalance implements KV -> upstream refresh -> durable snapshot
// upsert -> cache write, falling back to the last durable snapshot on
// an upstream failure.
func (s *TransactionService) GetBalance(ctx context.Context, address types.Address) (*types.Balance, types.Source, error) {
	key := storage.Key(storage.KeyKindBalance, string(address))

	var cached types.Balance
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, types.SourceCache, nil
	}

	balanceWei, block, err := s.node.Balance(ctx, address)
	if err != nil {
		snapshot, storeErr := s.balances.Get(ctx, address)
		if storeErr != nil {
			return nil, "", errors.Wrap(errors.StorageError, "service.GetBalance", "load fallback snapshot", storeErr)
		}
		if snapshot == nil {
			return nil, "", errors.Wrap(errors.UpstreamTransient, "service.GetBalance", "refresh balance", err)
		}
		return snapshot, types.SourceDatabase, nil
	}

	balance := types.Balance{Address: address, BalanceWei: balanceWei, BlockNumber: block, UpdatedAt: time.Now()}
	if err := s.balances.Upsert(ctx, balance); err != nil {
		logging.FromContext(ctx).Warn("failed to persist balance snapshot", "address", address, "error", err)
	}
	if err := s.cache.Set(ctx, key, balance, s.balanceTTL); err != nil {
		logging.FromContext(ctx).Warn("failed to cache balance", "address", address, "error", err)
	}
	return &balance, types.SourceProvider, nil
}

// GetStoredCount implements KV -> durable COUNT(*) -> cache.
func (s *TransactionService) GetStoredCount(ctx context.Context, address types.Address) (int64, error) {
	key := storage.Key(storage.KeyKindTxCount, string(address))

	var cached int64
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	count, err := s.transactions.CountByAddress(ctx, address)
	if err != nil {
		return 0, errors.Wrap(errors.StorageError, "service.GetStoredCount", "count transactions", err)
	}

	if err := s.cache.Set(ctx, key, count, s.txCountTTL); err != nil {
		logging.FromContext(ctx).Warn("failed to cache stored count", "address", address, "error", err)
	}
	return count, nil
}
