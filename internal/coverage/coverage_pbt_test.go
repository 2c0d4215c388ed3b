package coverage

import (
	"testing"

	"github.com/addrtx/scanner/internal/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// rawBoundsGen produces a flat slice of uint64 values that buildRanges
// pairs up into (from, to) bounds. Using a flat slice instead of a custom
// struct generator keeps the generator composition to gopter's primitives.
func rawBoundsGen(maxBlock uint64, maxPairs int) gopter.Gen {
	return gen.SliceOfN(maxPairs*2, gen.UInt64Range(0, maxBlock))
}

func buildRanges(bounds []uint64) []types.BlockRange {
	ranges := make([]types.BlockRange, 0, len(bounds)/2)
	for i := 0; i+1 < len(bounds); i += 2 {
		a, b := bounds[i], bounds[i+1]
		if a > b {
			a, b = b, a
		}
		ranges = append(ranges, types.BlockRange{FromBlock: a, ToBlock: b})
	}
	return ranges
}

func union(ranges []types.BlockRange, lo, hi uint64) map[uint64]bool {
	covered := make(map[uint64]bool)
	for _, r := range ranges {
		from := r.FromBlock
		if from < lo {
			from = lo
		}
		to := r.ToBlock
		if to > hi {
			to = hi
		}
		for b := from; b <= to && b >= from; b++ {
			covered[b] = true
			if b == hi {
				break
			}
		}
	}
	return covered
}

func TestFindGapsCompleteness(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("gaps plus covered union equals the requested range", prop.ForAll(
		func(bounds []uint64, lo, span uint64) bool {
			ranges := buildRanges(bounds)
			hi := lo + span%200

			gaps := FindGaps(ranges, lo, hi)
			covered := union(ranges, lo, hi)

			for _, g := range gaps {
				for b := g.FromBlock; b <= g.ToBlock && b >= g.FromBlock; b++ {
					if covered[b] {
						return false
					}
					if b == g.ToBlock {
						break
					}
				}
			}
			for b := lo; b <= hi && b >= lo; b++ {
				inGap := false
				for _, g := range gaps {
					if b >= g.FromBlock && b <= g.ToBlock {
						inGap = true
						break
					}
				}
				if !covered[b] && !inGap {
					return false
				}
				if b == hi {
					break
				}
			}
			return true
		},
		rawBoundsGen(500, 6),
		gen.UInt64Range(0, 300),
		gen.UInt64Range(0, 200),
	))

	properties.Property("gaps are pairwise disjoint and ordered by fromBlock", prop.ForAll(
		func(bounds []uint64, lo, span uint64) bool {
			ranges := buildRanges(bounds)
			hi := lo + span%200
			gaps := FindGaps(ranges, lo, hi)
			for i := 1; i < len(gaps); i++ {
				if gaps[i-1].ToBlock >= gaps[i].FromBlock {
					return false
				}
				if gaps[i-1].FromBlock > gaps[i].FromBlock {
					return false
				}
			}
			return true
		},
		rawBoundsGen(500, 6),
		gen.UInt64Range(0, 300),
		gen.UInt64Range(0, 200),
	))

	properties.TestingRun(t)
}

func TestFindGapsEdgeCases(t *testing.T) {
	if got := FindGaps(nil, 10, 20); len(got) != 1 || got[0] != (types.BlockRange{FromBlock: 10, ToBlock: 20}) {
		t.Errorf("FindGaps(nil, 10, 20) = %v, want [[10,20]]", got)
	}

	full := []types.BlockRange{{FromBlock: 0, ToBlock: 1000}}
	if got := FindGaps(full, 10, 20); len(got) != 0 {
		t.Errorf("FindGaps(fully covering range) = %v, want []", got)
	}

	single := []types.BlockRange{{FromBlock: 100, ToBlock: 100}}
	if got := FindGaps(single, 100, 100); len(got) != 0 {
		t.Errorf("FindGaps(single block, covered) = %v, want []", got)
	}
	if got := FindGaps(nil, 100, 100); len(got) != 1 {
		t.Errorf("FindGaps(single block, uncovered) = %v, want [[100,100]]", got)
	}
}

func TestMergeCoverageSoundness(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("merge preserves the union and yields a disjoint, non-touching cover", prop.ForAll(
		func(bounds []uint64) bool {
			ranges := buildRanges(bounds)
			merged := MergeCoverage(ranges)

			const hiBound = 2000
			before := union(ranges, 0, hiBound)
			after := union(merged, 0, hiBound)
			if len(before) != len(after) {
				return false
			}
			for b := range before {
				if !after[b] {
					return false
				}
			}

			for i := 1; i < len(merged); i++ {
				if merged[i-1].ToBlock+1 >= merged[i].FromBlock {
					return false
				}
			}
			return true
		},
		rawBoundsGen(300, 6),
	))

	properties.TestingRun(t)
}
