package job

import (
	"testing"
	"time"

	"github.com/addrtx/scanner/internal/types"
)

func TestPlanSplitsGapsAtMaxBlocksPerJob(t *testing.T) {
	gaps := []types.BlockRange{{FromBlock: 0, ToBlock: 12000}}
	jobs := Plan("0x1", gaps, time.Now())

	if len(jobs) != 3 {
		t.Fatalf("Plan() produced %d jobs, want 3", len(jobs))
	}
	want := []types.BlockRange{{FromBlock: 0, ToBlock: 4999}, {FromBlock: 5000, ToBlock: 9999}, {FromBlock: 10000, ToBlock: 12000}}
	for i, j := range jobs {
		if j.FromBlock != want[i].FromBlock || j.ToBlock != want[i].ToBlock {
			t.Errorf("job %d = [%d,%d], want [%d,%d]", i, j.FromBlock, j.ToBlock, want[i].FromBlock, want[i].ToBlock)
		}
		if j.TotalJobs != 3 {
			t.Errorf("job %d TotalJobs = %d, want 3", i, j.TotalJobs)
		}
		if j.CurrentJob != i+1 {
			t.Errorf("job %d CurrentJob = %d, want %d", i, j.CurrentJob, i+1)
		}
	}
}

func TestPlanAssignsPriorityBySize(t *testing.T) {
	gaps := []types.BlockRange{
		{FromBlock: 0, ToBlock: 50},     // 51 blocks -> 10
		{FromBlock: 100, ToBlock: 600},  // 501 blocks -> 5
		{FromBlock: 700, ToBlock: 3000}, // 2301 blocks -> 1
	}
	jobs := Plan("0x1", gaps, time.Now())
	if len(jobs) != 3 {
		t.Fatalf("Plan() produced %d jobs, want 3", len(jobs))
	}
	wantPriority := []int{10, 5, 1}
	for i, j := range jobs {
		if j.Priority != wantPriority[i] {
			t.Errorf("job %d Priority = %d, want %d", i, j.Priority, wantPriority[i])
		}
	}
}

func TestPlanStaggersRunAfter(t *testing.T) {
	now := time.Now()
	gaps := []types.BlockRange{{FromBlock: 0, ToBlock: 10000}}
	jobs := Plan("0x1", gaps, now)

	for i, j := range jobs {
		wantDelay := time.Duration(i) * time.Second
		if got := j.RunAfter.Sub(now); got != wantDelay {
			t.Errorf("job %d RunAfter delay = %v, want %v", i, got, wantDelay)
		}
	}
}

func TestPlanDeterministicJobKey(t *testing.T) {
	gaps := []types.BlockRange{{FromBlock: 100, ToBlock: 200}}
	a := Plan("0xabc", gaps, time.Now())
	b := Plan("0xabc", gaps, time.Now())

	if a[0].Key != b[0].Key {
		t.Errorf("Key = %q and %q, want identical keys for the same address/range", a[0].Key, b[0].Key)
	}
}

func TestPlanSkipsInvalidGaps(t *testing.T) {
	gaps := []types.BlockRange{{FromBlock: 200, ToBlock: 100}}
	jobs := Plan("0x1", gaps, time.Now())
	if len(jobs) != 0 {
		t.Errorf("Plan() produced %d jobs for an invalid gap, want 0", len(jobs))
	}
}
