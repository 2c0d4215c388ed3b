// Package main provides a one-shot CLI for the read path: get_transactions,
// get_balance, and get_stored_count, run directly against the durable store,
// KV cache, and upstream adapters configured for the deployment.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/addrtx/scanner/internal/adapter"
	"github.com/addrtx/scanner/internal/config"
	"github.com/addrtx/scanner/internal/job"
	"github.com/addrtx/scanner/internal/logging"
	"github.com/addrtx/scanner/internal/ratelimit"
	"github.com/addrtx/scanner/internal/resolver"
	"github.com/addrtx/scanner/internal/service"
	"github.com/addrtx/scanner/internal/storage"
	"github.com/addrtx/scanner/internal/types"
)

func main() {
	action := flag.String("action", "transactions", "Query to run: transactions, balance, count")
	address := flag.String("address", "", "Account address")
	from := flag.Uint64("from", 0, "Start block (transactions only, 0 = unset)")
	to := flag.Uint64("to", 0, "End block (transactions only, 0 = unset)")
	page := flag.Int("page", 1, "Page number (transactions only)")
	limit := flag.Int("limit", 100, "Page size (transactions only)")
	order := flag.String("order", "asc", "Sort order: asc or desc (transactions only)")
	flag.Parse()

	if *address == "" {
		fmt.Fprintln(os.Stderr, "-address is required")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, logging.ParseFormat(cfg.Logging.Format))
	slog.SetDefault(logger)

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redis.Close()

	explorerLimiter := ratelimit.New(cfg.RateLimit.TokensPerSecond, cfg.RateLimit.MaxConcurrent)
	explorer := adapter.NewExplorer(cfg.Upstream.ExplorerAPIURL, cfg.Upstream.ExplorerAPIKey, cfg.Upstream.ExplorerTimeout, explorerLimiter)

	// NodeRPC has no rate limit contract of its own; it gets a limiter
	// generous enough to never throttle in practice, so it never shares
	// admission with the Explorer-scoped limiter above.
	nodeLimiter := ratelimit.New(1000, 50)
	nodeRPC, err := adapter.NewNodeRPC(cfg.Upstream.NodeRPCURL, nodeLimiter, cfg.Upstream.RPCTimeout)
	if err != nil {
		logger.Error("failed to dial node RPC", "error", err)
		os.Exit(1)
	}
	defer nodeRPC.Close()

	transactions := storage.NewTransactionRepository(postgres.Pool())
	coverage := storage.NewCoverageRepository(postgres.Pool())
	addressInfo := storage.NewAddressInfoRepository(postgres.Pool())
	balances := storage.NewBalanceRepository(postgres.Pool())
	jobRepo := storage.NewJobRepository(postgres.Pool())
	queryCache := storage.NewCache(redis)

	scheduler := job.NewScheduler(jobRepo)
	ctx := logging.WithContext(context.Background(), logger)
	if err := scheduler.Load(ctx); err != nil {
		logger.Error("failed to load queued jobs from durable store", "error", err)
		os.Exit(1)
	}

	addressResolver := resolver.New(queryCache, addressInfo, nodeRPC)
	txService := service.New(service.Config{
		Cache:        queryCache,
		Transactions: transactions,
		Coverage:     coverage,
		Balances:     balances,
		Resolver:     addressResolver,
		Node:         nodeRPC,
		Explorer:     explorer,
		Scheduler:    scheduler,
		TxQueryTTL:   cfg.Cache.TxQueryTTL,
		TxCountTTL:   cfg.Cache.TxCountTTL,
		BalanceTTL:   cfg.Cache.BalanceTTL,
	})

	var result interface{}
	switch *action {
	case "transactions":
		in := service.GetTransactionsInput{
			Address: types.Address(*address),
			Page:    *page,
			Limit:   *limit,
			Order:   types.Order(*order),
		}
		if *from != 0 {
			in.From = from
		}
		if *to != 0 {
			in.To = to
		}
		result, err = txService.GetTransactions(ctx, in)
	case "balance":
		var bal *types.Balance
		var source types.Source
		bal, source, err = txService.GetBalance(ctx, types.Address(*address))
		result = map[string]interface{}{"balance": bal, "source": source}
	case "count":
		var count int64
		count, err = txService.GetStoredCount(ctx, types.Address(*address))
		result = map[string]interface{}{"address": *address, "count": count}
	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", *action)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("query failed", "action", *action, "error", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Error("failed to marshal result", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
