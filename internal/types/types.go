// Package types provides the core data model for the transaction index.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Order represents the sort direction for a paginated transaction query.
type Order string

const (
	// OrderAsc sorts by ascending block number.
	OrderAsc Order = "asc"
	// OrderDesc sorts by descending block number.
	OrderDesc Order = "desc"
)

// Source identifies which tier of the cache hierarchy answered a query.
type Source string

const (
	SourceCache    Source = "cache"
	SourceDatabase Source = "database"
	SourceExplorer Source = "explorer"
	SourceProvider Source = "provider"
)

// Address is a 20-byte account identifier, always stored and compared in its
// normalized (lowercase, 0x-prefixed) form.
type Address string

// ParseAddress validates and normalizes a hex address string. It accepts any
// case and returns the lowercase canonical form.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("address must start with 0x: %q", s)
	}
	hexPart := s[2:]
	if len(hexPart) != 40 {
		return "", fmt.Errorf("address must have exactly 40 hex digits, got %d: %q", len(hexPart), s)
	}
	for _, c := range hexPart {
		if !isHexDigit(c) {
			return "", fmt.Errorf("address contains non-hex character %q: %q", c, s)
		}
	}
	return Address("0x" + strings.ToLower(hexPart)), nil
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// Checksummed returns the EIP-55 checksummed display form of the address.
func (a Address) Checksummed() string {
	return common.HexToAddress(string(a)).Hex()
}

func (a Address) String() string {
	return string(a)
}

// BlockRange is an inclusive, half-open-free interval [FromBlock, ToBlock].
type BlockRange struct {
	FromBlock uint64
	ToBlock   uint64
}

// Valid reports whether the range satisfies 0 <= FromBlock <= ToBlock.
func (r BlockRange) Valid() bool {
	return r.FromBlock <= r.ToBlock
}

// Len returns the number of blocks covered by the range, inclusive.
func (r BlockRange) Len() uint64 {
	if !r.Valid() {
		return 0
	}
	return r.ToBlock - r.FromBlock + 1
}

// Transaction is a single normalized, address-owned transaction record.
type Transaction struct {
	Hash            string
	Address         Address
	BlockNumber     uint64
	From            string
	To              *string
	Value           string
	GasPrice        string
	GasUsed         *uint64
	Gas             *uint64
	FunctionName    *string
	ReceiptStatus   string
	ContractAddress *string
	Timestamp       time.Time
}

// Coverage records that every transaction for Address within
// [FromBlock, ToBlock] has been durably persisted.
type Coverage struct {
	Address   Address
	FromBlock uint64
	ToBlock   uint64
	CreatedAt time.Time
}

// Range returns the Coverage row's interval as a BlockRange.
func (c Coverage) Range() BlockRange {
	return BlockRange{FromBlock: c.FromBlock, ToBlock: c.ToBlock}
}

// AddressInfo records whether an address is a contract, and if so, the
// block at which it was created.
type AddressInfo struct {
	Address       Address
	IsContract    bool
	CreationBlock *uint64
	UpdatedAt     time.Time
}

// Balance is a point-in-time snapshot of an address's native balance.
// It is never used for arithmetic, only for display and caching.
type Balance struct {
	Address     Address
	BalanceWei  string
	BlockNumber uint64
	UpdatedAt   time.Time
}
