// Package worker runs the gap backfill worker pool: a small number of
// long-lived goroutines that pull jobs from the scheduler and execute
// process_gap against the explorer, persisting results under a single
// durable transaction per job.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/addrtx/scanner/internal/adapter"
	"github.com/addrtx/scanner/internal/errors"
	"github.com/addrtx/scanner/internal/job"
	"github.com/addrtx/scanner/internal/logging"
	"github.com/addrtx/scanner/internal/metrics"
	"github.com/addrtx/scanner/internal/storage"
	"github.com/addrtx/scanner/internal/types"
)

var (
	_ Explorer = (*adapter.Explorer)(nil)
	_ Store    = (*storage.GapStore)(nil)
)

// MaxFetchIterations bounds how many pages process_gap will fetch for a
// single job before giving up, matching the fetch loop's own iteration
// cap regardless of how the explorer paginates.
const MaxFetchIterations = 100

// Explorer is the slice of adapter.Explorer the worker needs.
type Explorer interface {
	TxList(ctx context.Context, address types.Address, fromBlock, toBlock uint64, page, offset int, sort types.Order) ([]types.Transaction, error)
}

// Store is the durable persistence the worker needs: an atomic
// transaction-batch-insert-plus-coverage-upsert, keyed by address.
type Store interface {
	PersistGapResult(ctx context.Context, address types.Address, fromBlock, actualEnd uint64, txs []types.Transaction) error
}

// Pool runs Concurrency long-lived workers pulling from scheduler.
type Pool struct {
	scheduler        *job.Scheduler
	explorer         Explorer
	store            Store
	concurrency      int
	maxTxPerBatch    int
	retryAttempts    int
	retryBackoffBase time.Duration
	pollInterval     time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Config configures a Pool.
type Config struct {
	Scheduler        *job.Scheduler
	Explorer         Explorer
	Store            Store
	Concurrency      int
	MaxTxPerBatch    int
	RetryAttempts    int
	RetryBackoffBase time.Duration
	PollInterval     time.Duration
}

// New builds a Pool from cfg, applying the spec's defaults for any zero
// field.
func New(cfg Config) *Pool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	maxTxPerBatch := cfg.MaxTxPerBatch
	if maxTxPerBatch <= 0 {
		maxTxPerBatch = 5000
	}
	retryAttempts := cfg.RetryAttempts
	if retryAttempts <= 0 {
		retryAttempts = 3
	}
	retryBackoffBase := cfg.RetryBackoffBase
	if retryBackoffBase <= 0 {
		retryBackoffBase = 2 * time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}

	return &Pool{
		scheduler:        cfg.Scheduler,
		explorer:         cfg.Explorer,
		store:            cfg.Store,
		concurrency:      concurrency,
		maxTxPerBatch:    maxTxPerBatch,
		retryAttempts:    retryAttempts,
		retryBackoffBase: retryBackoffBase,
		pollInterval:     pollInterval,
		stopCh:           make(chan struct{}),
	}
}

// Start launches the worker pool. It returns immediately; workers run
// until the pool's context is cancelled or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Stop signals every worker to finish its in-flight job and return, then
// blocks until all have drained. A second call to Stop after the first
// has returned is a no-op.
func (p *Pool) Stop() {
	select {
	case <-p.stopCh:
		return
	default:
		close(p.stopCh)
	}
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	logger := logging.FromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			j, ok := p.scheduler.Next(time.Now())
			if !ok {
				continue
			}
			logger.Info("worker picked up job", "worker", id, "key", j.Key,
				"address", j.Address, "from", j.FromBlock, "to", j.ToBlock)
			p.runJob(ctx, j)
		}
	}
}

func (p *Pool) runJob(ctx context.Context, j *job.Job) {
	logger := logging.FromContext(ctx)

	j.Attempts++
	if err := p.scheduler.MarkInProgress(ctx, j.Key, j.Attempts); err != nil {
		logger.Warn("failed to record job in_progress", "key", j.Key, "error", err)
	}

	actualEnd, err := p.processGap(ctx, j.Address, j.FromBlock, j.ToBlock)
	if err != nil {
		p.handleJobError(ctx, j, err)
		return
	}

	if err := p.scheduler.MarkCompleted(ctx, j.Key, j.Attempts); err != nil {
		logger.Warn("failed to record job completion", "key", j.Key, "error", err)
	}
	metrics.JobsCompletedTotal.WithLabelValues("success").Inc()

	if actualEnd < j.ToBlock {
		followUp := &job.Job{
			Address:    j.Address,
			FromBlock:  actualEnd + 1,
			ToBlock:    j.ToBlock,
			Priority:   job.PriorityFor(j.ToBlock - actualEnd),
			TotalJobs:  1,
			CurrentJob: 1,
			CreatedAt:  time.Now(),
			RunAfter:   time.Now(),
		}
		followUp.Key = job.KeyFor(followUp.Address, followUp.FromBlock, followUp.ToBlock)
		followUp.Status = job.StatusQueued
		if err := p.scheduler.Submit(ctx, []*job.Job{followUp}); err != nil {
			logger.Warn("failed to enqueue partial-range follow-up", "key", followUp.Key, "error", err)
		}
	}
}

// handleJobError implements the two recovery paths named for worker
// failures: a query timeout re-chunks the remaining range into
// 1000-block pieces and re-enqueues them, completing the current job
// rather than retrying in place; any other error retries with
// exponential backoff up to retryAttempts, after which the job is
// parked in the failed tail.
func (p *Pool) handleJobError(ctx context.Context, j *job.Job, err error) {
	logger := logging.FromContext(ctx)

	if errors.KindOf(err) == errors.UpstreamTimeout {
		p.rechunkAndRequeue(ctx, j)
		if err := p.scheduler.MarkCompleted(ctx, j.Key, j.Attempts); err != nil {
			logger.Warn("failed to record job completion after timeout recovery", "key", j.Key, "error", err)
		}
		metrics.JobsCompletedTotal.WithLabelValues("recovered").Inc()
		return
	}

	if j.Attempts >= p.retryAttempts {
		logger.Error("job failed after max attempts", "key", j.Key, "attempts", j.Attempts, "error", err)
		if markErr := p.scheduler.MarkFailed(ctx, j.Key, j.Attempts, err.Error()); markErr != nil {
			logger.Warn("failed to record job failure", "key", j.Key, "error", markErr)
		}
		metrics.JobsCompletedTotal.WithLabelValues("failed").Inc()
		return
	}

	delay := p.retryBackoffBase * time.Duration(1<<uint(j.Attempts-1))
	logger.Warn("job failed, retrying with backoff", "key", j.Key, "attempts", j.Attempts, "delay", delay, "error", err)

	j.RunAfter = time.Now().Add(delay)
	if err := p.scheduler.Submit(ctx, []*job.Job{j}); err != nil {
		logger.Warn("failed to re-enqueue retry", "key", j.Key, "error", err)
	}
}

// rechunkAndRequeue splits [fromBlock, toBlock] into 1000-block chunks
// and submits them as fresh jobs, for ranges the explorer refuses to
// serve whole.
func (p *Pool) rechunkAndRequeue(ctx context.Context, j *job.Job) {
	const chunkSize = 1000
	var chunks []*job.Job
	now := time.Now()

	cursor := j.FromBlock
	for cursor <= j.ToBlock {
		end := cursor + chunkSize - 1
		if end > j.ToBlock || end < cursor {
			end = j.ToBlock
		}
		chunks = append(chunks, &job.Job{
			Address:    j.Address,
			FromBlock:  cursor,
			ToBlock:    end,
			Priority:   job.PriorityFor(end - cursor + 1),
			TotalJobs:  1,
			CurrentJob: 1,
			Status:     job.StatusQueued,
			CreatedAt:  now,
			RunAfter:   now,
			Key:        job.KeyFor(j.Address, cursor, end),
		})
		if end == j.ToBlock {
			break
		}
		cursor = end + 1
	}

	if err := p.scheduler.Submit(ctx, chunks); err != nil {
		logging.FromContext(ctx).Warn("failed to re-enqueue chunked timeout recovery", "key", j.Key, "error", err)
	}
}

// processGap executes the fetch-filter-persist loop for a single gap,
// returning the last block it actually reached. A returned actualEnd
// less than toBlock means the caller should re-enqueue the remainder.
func (p *Pool) processGap(ctx context.Context, address types.Address, fromBlock, toBlock uint64) (uint64, error) {
	currentStart := fromBlock
	var actualEnd uint64
	progressed := false
	iters := 0

	var buf []types.Transaction

	for currentStart <= toBlock && iters <= MaxFetchIterations {
		rows, err := p.explorer.TxList(ctx, address, currentStart, toBlock, 1, p.maxTxPerBatch, types.OrderAsc)
		if err != nil {
			return 0, fmt.Errorf("worker: fetch page for %s [%d,%d]: %w", address, currentStart, toBlock, err)
		}

		if len(rows) == 0 {
			actualEnd = toBlock
			progressed = true
			break
		}

		for _, row := range rows {
			if row.BlockNumber >= currentStart && row.BlockNumber <= toBlock {
				buf = append(buf, row)
			}
		}

		if len(rows) == p.maxTxPerBatch {
			last := rows[len(rows)-1].BlockNumber
			candidate := last
			if last > 0 {
				candidate = last - 1
			}
			if !progressed || candidate > actualEnd {
				actualEnd = candidate
				progressed = true
			}
			if last > 0 {
				currentStart = last - 1
			} else {
				currentStart = last
			}
			iters++
			continue
		}

		actualEnd = toBlock
		progressed = true
		break
	}

	if !progressed {
		// Reached only when the loop body never ran (fromBlock > toBlock):
		// every fetched page sets progressed, including a full page that
		// ends the loop at the iteration cap.
		if currentStart > fromBlock {
			actualEnd = currentStart - 1
		} else {
			actualEnd = fromBlock
		}
	}

	if err := p.store.PersistGapResult(ctx, address, fromBlock, actualEnd, buf); err != nil {
		return 0, fmt.Errorf("worker: persist gap result for %s [%d,%d]: %w", address, fromBlock, actualEnd, err)
	}

	return actualEnd, nil
}

