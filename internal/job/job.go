// Package job implements the gap backfill job model: planning jobs from
// coverage gaps, a priority queue shared between the serving path and the
// worker pool, and durable persistence for at-least-once delivery.
package job

import (
	"fmt"
	"time"

	"github.com/addrtx/scanner/internal/types"
)

// MaxBlocksPerJob caps the size of a single job's block range.
const MaxBlocksPerJob = 5000

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is a single unit of gap backfill work.
type Job struct {
	Key         string
	Address     types.Address
	FromBlock   uint64
	ToBlock     uint64
	TotalJobs   int
	CurrentJob  int
	Priority    int
	Status      Status
	Attempts    int
	Error       *string
	CreatedAt   time.Time
	RunAfter    time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// KeyFor builds the deterministic job key that collapses duplicate
// submissions for the same address and range.
func KeyFor(address types.Address, fromBlock, toBlock uint64) string {
	return fmt.Sprintf("%s-%d-%d", address, fromBlock, toBlock)
}

// PriorityFor returns the scheduling priority for a gap of size blocks:
// smaller gaps run first so short queries resolve quickly.
func PriorityFor(size uint64) int {
	switch {
	case size <= 100:
		return 10
	case size <= 1000:
		return 5
	default:
		return 1
	}
}

// Plan splits gaps into jobs of at most MaxBlocksPerJob blocks, computing
// each job's priority and its position in the overall progress
// denominator (TotalJobs/CurrentJob) before any job is submitted. Jobs are
// staggered by CurrentJob-1 seconds (the first job is ready at once) so a
// burst of gaps does not hit the explorer all at once.
func Plan(address types.Address, gaps []types.BlockRange, now time.Time) []*Job {
	var jobs []*Job
	for _, gap := range gaps {
		if !gap.Valid() {
			continue
		}
		cursor := gap.FromBlock
		for {
			end := cursor + MaxBlocksPerJob - 1
			if end > gap.ToBlock || end < cursor {
				end = gap.ToBlock
			}
			jobs = append(jobs, &Job{
				Address:   address,
				FromBlock: cursor,
				ToBlock:   end,
				Priority:  PriorityFor(end - cursor + 1),
			})
			if end == gap.ToBlock {
				break
			}
			cursor = end + 1
		}
	}

	total := len(jobs)
	for i, j := range jobs {
		j.TotalJobs = total
		j.CurrentJob = i + 1
		j.Key = KeyFor(j.Address, j.FromBlock, j.ToBlock)
		j.Status = StatusQueued
		j.CreatedAt = now
		j.RunAfter = now.Add(time.Duration(i) * time.Second)
	}
	return jobs
}
