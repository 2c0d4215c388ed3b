// Package resolver determines whether an address is an externally-owned
// account or a contract, and for contracts finds the block at which it
// was first deployed.
package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/addrtx/scanner/internal/adapter"
	"github.com/addrtx/scanner/internal/errors"
	"github.com/addrtx/scanner/internal/logging"
	"github.com/addrtx/scanner/internal/metrics"
	"github.com/addrtx/scanner/internal/storage"
	"github.com/addrtx/scanner/internal/types"
)

const addressInfoTTL = 24 * time.Hour

// nodeRPC is the slice of adapter.NodeRPC the resolver needs, narrowed
// to an interface so discovery can be exercised against a fake node.
type nodeRPC interface {
	BlockNumber(ctx context.Context) (uint64, error)
	CodeAt(ctx context.Context, address types.Address, blockNumber uint64) ([]byte, error)
}

var _ nodeRPC = (*adapter.NodeRPC)(nil)

// Resolver implements the tiered resolve(address) contract: KV cache,
// then the durable store, then a discovery call to the node that pins
// down a contract's creation block via binary search.
type Resolver struct {
	cache *storage.Cache
	repo  *storage.AddressInfoRepository
	node  nodeRPC
}

// New builds a Resolver over cache, repo, and node.
func New(cache *storage.Cache, repo *storage.AddressInfoRepository, node nodeRPC) *Resolver {
	return &Resolver{cache: cache, repo: repo, node: node}
}

// Resolve returns the classification for address, consulting the KV
// cache, then the durable store, then performing discovery against the
// node. A concurrent second call for the same address, once the first
// has persisted, performs zero upstream work.
func (r *Resolver) Resolve(ctx context.Context, address types.Address) (*types.AddressInfo, error) {
	key := storage.Key(storage.KeyKindAddressInfo, string(address))

	var cached types.AddressInfo
	if hit, _ := r.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	if info, err := r.repo.Get(ctx, address); err == nil && info != nil {
		_ = r.cache.Set(ctx, key, info, addressInfoTTL)
		return info, nil
	} else if err != nil {
		return nil, fmt.Errorf("resolver: lookup address_info for %s: %w", address, err)
	}

	info, err := r.discover(ctx, address)
	if err != nil {
		return nil, err
	}

	// Persist to both tiers concurrently; neither failure should mask the
	// other's success, and neither should fail Resolve once discovery
	// succeeded. A failed durable write is retried by a later Resolve that
	// misses the KV tier: the next one if the KV write also failed,
	// otherwise the first one after the KV entry expires.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.repo.Upsert(ctx, *info); err != nil {
			logging.FromContext(ctx).Warn("failed to persist address_info",
				"address", address, "error", err)
		}
	}()
	if err := r.cache.Set(ctx, key, info, addressInfoTTL); err != nil {
		logging.FromContext(ctx).Warn("failed to cache address_info",
			"address", address, "error", err)
	}
	wg.Wait()

	return info, nil
}

// StartingBlockFor returns the resolved creation block for address if it
// is a contract with a known creation block, else 0. It is the
// resolver's only contract toward effective-range substitution.
func (r *Resolver) StartingBlockFor(ctx context.Context, address types.Address) uint64 {
	info, err := r.Resolve(ctx, address)
	if err != nil || info == nil || info.CreationBlock == nil {
		return 0
	}
	return *info.CreationBlock
}

func (r *Resolver) discover(ctx context.Context, address types.Address) (*types.AddressInfo, error) {
	head, err := r.node.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolver: fetch chain head: %w", err)
	}

	code, err := r.node.CodeAt(ctx, address, head)
	if err != nil {
		return nil, fmt.Errorf("resolver: getCode at head for %s: %w", address, err)
	}
	if len(code) == 0 {
		return &types.AddressInfo{Address: address, IsContract: false}, nil
	}

	creationBlock, err := r.binarySearchCreationBlock(ctx, address, head)
	if err != nil {
		return nil, err
	}

	return &types.AddressInfo{
		Address:       address,
		IsContract:    true,
		CreationBlock: &creationBlock,
	}, nil
}

// binarySearchCreationBlock finds the smallest block b for which
// getCode(address, b) is non-empty, given that getCode at latest is
// already known to be non-empty. It performs O(log latest) calls. A
// transient error evaluating mid biases the search upward rather than
// failing outright, since an RPC hiccup at one height says nothing
// about contract presence there.
func (r *Resolver) binarySearchCreationBlock(ctx context.Context, address types.Address, latest uint64) (uint64, error) {
	lo, hi := uint64(0), latest
	calls := 0

	for lo < hi {
		mid := lo + (hi-lo)/2
		calls++

		code, err := r.node.CodeAt(ctx, address, mid)
		if err != nil {
			if errors.KindOf(err) == errors.UpstreamTimeout || errors.KindOf(err) == errors.UpstreamTransient {
				lo = mid + 1
				continue
			}
			metrics.ResolverBinarySearchCalls.Observe(float64(calls))
			return 0, fmt.Errorf("resolver: getCode at block %d for %s: %w", mid, address, err)
		}

		if len(code) == 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	metrics.ResolverBinarySearchCalls.Observe(float64(calls))
	return lo, nil
}
