package resolver

import (
	"context"
	"testing"

	"github.com/addrtx/scanner/internal/errors"
	"github.com/addrtx/scanner/internal/types"
)

// fakeNode implements nodeRPC with a deployment block and a set of
// block heights at which getCode should return a transient error.
type fakeNode struct {
	head            uint64
	deployedAt      uint64
	transientAtMid  map[uint64]int
	callsAtHeight   map[uint64]int
}

func (f *fakeNode) BlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeNode) CodeAt(ctx context.Context, address types.Address, blockNumber uint64) ([]byte, error) {
	if f.callsAtHeight == nil {
		f.callsAtHeight = map[uint64]int{}
	}
	f.callsAtHeight[blockNumber]++

	if remaining, ok := f.transientAtMid[blockNumber]; ok && remaining > 0 {
		f.transientAtMid[blockNumber]--
		return nil, errors.New(errors.UpstreamTransient, "fakeNode.CodeAt", "simulated transient failure")
	}

	if blockNumber >= f.deployedAt {
		return []byte{0x60, 0x60}, nil
	}
	return nil, nil
}

func TestBinarySearchCreationBlockFindsExactBoundary(t *testing.T) {
	node := &fakeNode{head: 1000, deployedAt: 437}
	r := &Resolver{node: node}

	got, err := r.binarySearchCreationBlock(context.Background(), "0x1", node.head)
	if err != nil {
		t.Fatalf("binarySearchCreationBlock() error = %v", err)
	}
	if got != 437 {
		t.Errorf("binarySearchCreationBlock() = %d, want 437", got)
	}
}

func TestBinarySearchCreationBlockBiasesUpwardOnTransientError(t *testing.T) {
	node := &fakeNode{
		head:           1000,
		deployedAt:     600,
		transientAtMid: map[uint64]int{500: 1},
	}
	r := &Resolver{node: node}

	got, err := r.binarySearchCreationBlock(context.Background(), "0x1", node.head)
	if err != nil {
		t.Fatalf("binarySearchCreationBlock() error = %v", err)
	}
	if got != 600 {
		t.Errorf("binarySearchCreationBlock() = %d, want 600", got)
	}
}

func TestBinarySearchCreationBlockDeployedAtGenesis(t *testing.T) {
	node := &fakeNode{head: 500, deployedAt: 0}
	r := &Resolver{node: node}

	got, err := r.binarySearchCreationBlock(context.Background(), "0x1", node.head)
	if err != nil {
		t.Fatalf("binarySearchCreationBlock() error = %v", err)
	}
	if got != 0 {
		t.Errorf("binarySearchCreationBlock() = %d, want 0", got)
	}
}

func TestDiscoverReportsEOA(t *testing.T) {
	node := &fakeNode{head: 1000, deployedAt: 1_000_000}
	r := &Resolver{node: node}

	info, err := r.discover(context.Background(), "0x1")
	if err != nil {
		t.Fatalf("discover() error = %v", err)
	}
	if info.IsContract {
		t.Error("discover() IsContract = true, want false for an EOA")
	}
	if info.CreationBlock != nil {
		t.Error("discover() CreationBlock should be nil for an EOA")
	}
}

func TestDiscoverReportsContractCreationBlock(t *testing.T) {
	node := &fakeNode{head: 1000, deployedAt: 250}
	r := &Resolver{node: node}

	info, err := r.discover(context.Background(), "0x1")
	if err != nil {
		t.Fatalf("discover() error = %v", err)
	}
	if !info.IsContract {
		t.Fatal("discover() IsContract = false, want true")
	}
	if info.CreationBlock == nil || *info.CreationBlock != 250 {
		t.Errorf("discover() CreationBlock = %v, want 250", info.CreationBlock)
	}
}
