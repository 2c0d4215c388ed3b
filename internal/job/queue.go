package job

import (
	"container/heap"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/addrtx/scanner/internal/metrics"
)

// jobHeap implements heap.Interface over pending jobs: higher Priority
// first, and among equal priorities the job whose RunAfter comes sooner.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].RunAfter.Before(h[j].RunAfter)
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x interface{}) { *h = append(*h, x.(*Job)) }

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Repository is the durable persistence the Scheduler needs. It is
// satisfied by storage.JobRepository.
type Repository interface {
	InsertBatch(ctx context.Context, jobs []*Job) error
	GetQueued(ctx context.Context, limit int) ([]*Job, error)
	UpdateStatus(ctx context.Context, key string, status Status, attempts int, errMsg *string) error
}

// Scheduler is the in-memory priority queue backing the durable job
// store. Submission persists jobs first, then admits them to the heap;
// a job whose key is already queued in memory is not re-admitted, so
// duplicate submissions for the same (address, range) collapse. A key
// stops counting as pending once Next hands its job out.
type Scheduler struct {
	mu      sync.Mutex
	heap    jobHeap
	repo    Repository
	pending map[string]bool
}

// NewScheduler builds a Scheduler over repo.
func NewScheduler(repo Repository) *Scheduler {
	return &Scheduler{repo: repo, pending: make(map[string]bool)}
}

// Load populates the in-memory heap from every queued job in the durable
// store, for use on process startup.
func (s *Scheduler) Load(ctx context.Context) error {
	jobs, err := s.repo.GetQueued(ctx, 10000)
	if err != nil {
		return fmt.Errorf("scheduler: load queued jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.heap = make(jobHeap, 0, len(jobs))
	heap.Init(&s.heap)
	for _, j := range jobs {
		if s.pending[j.Key] {
			continue
		}
		s.pending[j.Key] = true
		heap.Push(&s.heap, j)
	}
	return nil
}

// Submit persists jobs as a single bulk operation, then admits each one
// not already pending to the in-memory queue.
func (s *Scheduler) Submit(ctx context.Context, jobs []*Job) error {
	if len(jobs) == 0 {
		return nil
	}
	if err := s.repo.InsertBatch(ctx, jobs); err != nil {
		return fmt.Errorf("scheduler: submit jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range jobs {
		if s.pending[j.Key] {
			continue
		}
		s.pending[j.Key] = true
		heap.Push(&s.heap, j)
		metrics.JobsEnqueuedTotal.WithLabelValues(strconv.Itoa(j.Priority)).Inc()
	}
	return nil
}

// Next pops the highest-priority job whose RunAfter has elapsed. It
// returns (nil, false) if the queue is empty or every job is still
// waiting out its staggered delay.
func (s *Scheduler) Next(now time.Time) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := -1
	for i, candidate := range s.heap {
		if candidate.RunAfter.After(now) {
			continue
		}
		if best == -1 || s.heap.Less(i, best) {
			best = i
		}
	}
	if best == -1 {
		return nil, false
	}
	j := heap.Remove(&s.heap, best).(*Job)
	delete(s.pending, j.Key)
	return j, true
}

// Len returns the number of jobs currently queued in memory.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}

// MarkInProgress, MarkCompleted, and MarkFailed record a job's terminal
// or in-flight state in the durable store. The in-memory queue has
// already released the job by the time any of these is called.
func (s *Scheduler) MarkInProgress(ctx context.Context, key string, attempts int) error {
	return s.repo.UpdateStatus(ctx, key, StatusInProgress, attempts, nil)
}

func (s *Scheduler) MarkCompleted(ctx context.Context, key string, attempts int) error {
	return s.repo.UpdateStatus(ctx, key, StatusCompleted, attempts, nil)
}

func (s *Scheduler) MarkFailed(ctx context.Context, key string, attempts int, errMsg string) error {
	return s.repo.UpdateStatus(ctx, key, StatusFailed, attempts, &errMsg)
}
