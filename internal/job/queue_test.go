package job

import (
	"context"
	"testing"
	"time"
)

type fakeRepo struct {
	inserted []*Job
	queued   []*Job
}

func (f *fakeRepo) InsertBatch(ctx context.Context, jobs []*Job) error {
	f.inserted = append(f.inserted, jobs...)
	return nil
}

func (f *fakeRepo) GetQueued(ctx context.Context, limit int) ([]*Job, error) {
	return f.queued, nil
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, key string, status Status, attempts int, errMsg *string) error {
	return nil
}

func TestSchedulerNextRespectsPriority(t *testing.T) {
	now := time.Now()
	s := NewScheduler(&fakeRepo{})

	low := &Job{Key: "low", Priority: 1, RunAfter: now}
	high := &Job{Key: "high", Priority: 10, RunAfter: now}
	mid := &Job{Key: "mid", Priority: 5, RunAfter: now}

	if err := s.Submit(context.Background(), []*Job{low, high, mid}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	first, ok := s.Next(now)
	if !ok || first.Key != "high" {
		t.Fatalf("Next() = %v, ok=%v, want high", first, ok)
	}
	second, ok := s.Next(now)
	if !ok || second.Key != "mid" {
		t.Fatalf("Next() = %v, ok=%v, want mid", second, ok)
	}
	third, ok := s.Next(now)
	if !ok || third.Key != "low" {
		t.Fatalf("Next() = %v, ok=%v, want low", third, ok)
	}
}

func TestSchedulerNextHonorsRunAfter(t *testing.T) {
	now := time.Now()
	s := NewScheduler(&fakeRepo{})

	future := &Job{Key: "future", Priority: 10, RunAfter: now.Add(time.Minute)}
	if err := s.Submit(context.Background(), []*Job{future}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if _, ok := s.Next(now); ok {
		t.Error("Next() returned a job before its RunAfter elapsed")
	}
	if _, ok := s.Next(now.Add(2 * time.Minute)); !ok {
		t.Error("Next() should return the job once RunAfter has elapsed")
	}
}

func TestSchedulerSubmitCollapsesDuplicateKeys(t *testing.T) {
	now := time.Now()
	repo := &fakeRepo{}
	s := NewScheduler(repo)

	j := &Job{Key: "dup", Priority: 5, RunAfter: now}
	if err := s.Submit(context.Background(), []*Job{j}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := s.Submit(context.Background(), []*Job{j}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if got := s.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 after submitting a duplicate key twice", got)
	}
}

func TestSchedulerLoadPopulatesFromRepository(t *testing.T) {
	now := time.Now()
	repo := &fakeRepo{queued: []*Job{
		{Key: "a", Priority: 1, RunAfter: now},
		{Key: "b", Priority: 10, RunAfter: now},
	}}
	s := NewScheduler(repo)

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := s.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}

	first, ok := s.Next(now)
	if !ok || first.Key != "b" {
		t.Errorf("Next() = %v, ok=%v, want b (highest priority)", first, ok)
	}
}
