// Package coverage implements the pure interval-set algebra used to find
// missing block ranges and to (optionally) compact an address's recorded
// coverage for observability. Neither function touches storage; callers
// are responsible for loading Coverage rows and persisting results.
package coverage

import (
	"sort"

	"github.com/addrtx/scanner/internal/types"
)

// FindGaps returns the ordered, pairwise-disjoint list of maximal
// sub-intervals of [lo, hi] not contained in the union of ranges. Input
// ranges may be unsorted, overlapping, or extend outside [lo, hi].
func FindGaps(ranges []types.BlockRange, lo, hi uint64) []types.BlockRange {
	if lo > hi {
		return nil
	}

	sorted := make([]types.BlockRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FromBlock < sorted[j].FromBlock
	})

	var gaps []types.BlockRange
	cursor := lo

	for _, r := range sorted {
		if !r.Valid() {
			continue
		}
		if r.ToBlock < cursor {
			continue
		}
		if r.FromBlock > hi {
			break
		}
		if cursor < r.FromBlock {
			gapEnd := r.FromBlock - 1
			if gapEnd > hi {
				gapEnd = hi
			}
			gaps = append(gaps, types.BlockRange{FromBlock: cursor, ToBlock: gapEnd})
		}
		if r.ToBlock+1 > cursor {
			cursor = r.ToBlock + 1
		}
	}

	if cursor <= hi {
		gaps = append(gaps, types.BlockRange{FromBlock: cursor, ToBlock: hi})
	}

	return gaps
}

// MergeCoverage collapses overlapping or touching ranges into their
// minimal disjoint, sorted cover. It is a pure transform used only for
// observability (reporting an address's effective covered set); it is
// never invoked on the write path, since Coverage rows stay append-only.
func MergeCoverage(ranges []types.BlockRange) []types.BlockRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]types.BlockRange, 0, len(ranges))
	for _, r := range ranges {
		if r.Valid() {
			sorted = append(sorted, r)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FromBlock < sorted[j].FromBlock
	})

	merged := []types.BlockRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.FromBlock <= last.ToBlock+1 {
			if r.ToBlock > last.ToBlock {
				last.ToBlock = r.ToBlock
			}
			continue
		}
		merged = append(merged, r)
	}

	return merged
}
