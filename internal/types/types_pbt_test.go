package types

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// mixCase applies mask[i] as "uppercase this hex digit" to s, a lowercase
// hex string, leaving digits untouched since they have no case.
func mixCase(s string, mask []bool) string {
	var b strings.Builder
	for i, c := range s {
		if i < len(mask) && mask[i] && c >= 'a' && c <= 'f' {
			b.WriteRune(c - 'a' + 'A')
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func TestParseAddressNormalizationIsIdempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("lowercasing a validated address is a fixed point", prop.ForAll(
		func(raw []byte, caseMask []bool) bool {
			canonical := "0x" + hex.EncodeToString(raw)
			mixed := "0x" + mixCase(canonical[2:], caseMask)

			first, err := ParseAddress(mixed)
			if err != nil {
				return false
			}
			if string(first) != canonical {
				return false
			}

			second, err := ParseAddress(string(first))
			if err != nil {
				return false
			}
			return first == second
		},
		gen.SliceOfN(20, gen.UInt8Range(0, 255)),
		gen.SliceOfN(40, gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestParseAddressRejectsMalformedInput(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("wrong-length hex payloads are rejected", prop.ForAll(
		func(raw []byte) bool {
			if len(raw) == 20 {
				return true
			}
			_, err := ParseAddress("0x" + hex.EncodeToString(raw))
			return err != nil
		},
		gen.SliceOf(gen.UInt8Range(0, 255)),
	))

	properties.Property("a non-hex character anywhere in the payload is rejected", prop.ForAll(
		func(raw []byte, pos int) bool {
			hexStr := hex.EncodeToString(raw)
			pos = pos % len(hexStr)
			corrupted := hexStr[:pos] + "z" + hexStr[pos+1:]
			_, err := ParseAddress("0x" + corrupted)
			return err != nil
		},
		gen.SliceOfN(20, gen.UInt8Range(0, 255)),
		gen.IntRange(0, 39),
	))

	properties.TestingRun(t)
}

func TestBlockRangeValidMatchesFromLessEqualTo(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Valid() holds exactly when FromBlock <= ToBlock", prop.ForAll(
		func(from, to uint64) bool {
			rng := BlockRange{FromBlock: from, ToBlock: to}
			return rng.Valid() == (from <= to)
		},
		gen.UInt64Range(0, 1<<53-1),
		gen.UInt64Range(0, 1<<53-1),
	))

	properties.TestingRun(t)
}
