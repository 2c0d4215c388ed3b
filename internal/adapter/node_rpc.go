// Package adapter implements the two upstream collaborators named in the
// data model: NodeRPC, a thin wrapper over go-ethereum's ethclient, and
// Explorer, an Etherscan-style HTTP client. Both return the package's own
// structured errors so callers never branch on raw RPC or HTTP error text.
package adapter

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/addrtx/scanner/internal/circuitbreaker"
	"github.com/addrtx/scanner/internal/errors"
	"github.com/addrtx/scanner/internal/metrics"
	"github.com/addrtx/scanner/internal/ratelimit"
	"github.com/addrtx/scanner/internal/retry"
	"github.com/addrtx/scanner/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// rpcRetryConfig retries a single blip (a dropped connection, a momentary
// node hiccup) a couple of times before the circuit breaker ever sees a
// failure; it is deliberately short so a genuinely down node still trips
// the breaker quickly rather than piling up retries behind it.
func rpcRetryConfig() *retry.RetryConfig {
	return &retry.RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}
}

// NodeRPC wraps a JSON-RPC endpoint for the three calls the resolver and
// balance cache need: getBlockNumber, getBalance, and getCode.
type NodeRPC struct {
	client  *ethclient.Client
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
}

// NewNodeRPC dials url and wraps the resulting client. Every call made
// through the returned NodeRPC is rate-limited through limiter, guarded
// by a circuit breaker so a stuck node stops absorbing request latency,
// and bounded by timeout regardless of the deadline the caller's own ctx
// carries.
func NewNodeRPC(url string, limiter *ratelimit.Limiter, timeout time.Duration) (*NodeRPC, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, errors.Wrap(errors.UpstreamTransient, "adapter.NewNodeRPC", "failed to dial node", err)
	}
	return &NodeRPC{
		client:  client,
		limiter: limiter,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("noderpc")),
		timeout: timeout,
	}, nil
}

// BlockNumber returns the current chain head.
func (n *NodeRPC) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	release, err := n.limiter.Acquire(ctx)
	if err != nil {
		return 0, errors.Wrap(errors.Internal, "adapter.BlockNumber", "rate limiter wait cancelled", err)
	}
	defer release()

	var block uint64
	cbErr := n.breaker.Execute(ctx, func() error {
		result := retry.WithExponentialBackoff(ctx, rpcRetryConfig(), func(ctx context.Context, attempt int) error {
			var rpcErr error
			block, rpcErr = n.client.BlockNumber(ctx)
			return rpcErr
		})
		return result.LastError
	})
	recordOutcome("noderpc", "BlockNumber", cbErr)
	if cbErr != nil {
		return 0, wrapBreakerOrRPCError("adapter.BlockNumber", cbErr, nil)
	}
	return block, nil
}

// Balance returns the native balance of address at the chain head, as a
// decimal wei string.
func (n *NodeRPC) Balance(ctx context.Context, address types.Address) (string, uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	release, err := n.limiter.Acquire(ctx)
	if err != nil {
		return "", 0, errors.Wrap(errors.Internal, "adapter.Balance", "rate limiter wait cancelled", err)
	}
	defer release()

	var block uint64
	var balance *big.Int
	cbErr := n.breaker.Execute(ctx, func() error {
		result := retry.WithExponentialBackoff(ctx, rpcRetryConfig(), func(ctx context.Context, attempt int) error {
			var rpcErr error
			block, rpcErr = n.client.BlockNumber(ctx)
			if rpcErr != nil {
				return rpcErr
			}
			balance, rpcErr = n.client.BalanceAt(ctx, common.HexToAddress(string(address)), new(big.Int).SetUint64(block))
			return rpcErr
		})
		return result.LastError
	})
	recordOutcome("noderpc", "Balance", cbErr)
	if cbErr != nil {
		return "", 0, wrapBreakerOrRPCError("adapter.Balance", cbErr, map[string]interface{}{"address": address})
	}

	return balance.String(), block, nil
}

// CodeAt returns the deployed bytecode at address as of blockNumber. An
// empty result means address held no contract code at that block.
func (n *NodeRPC) CodeAt(ctx context.Context, address types.Address, blockNumber uint64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	release, err := n.limiter.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.Internal, "adapter.CodeAt", "rate limiter wait cancelled", err)
	}
	defer release()

	var code []byte
	cbErr := n.breaker.Execute(ctx, func() error {
		result := retry.WithExponentialBackoff(ctx, rpcRetryConfig(), func(ctx context.Context, attempt int) error {
			var rpcErr error
			code, rpcErr = n.client.CodeAt(ctx, common.HexToAddress(string(address)), new(big.Int).SetUint64(blockNumber))
			return rpcErr
		})
		return result.LastError
	})
	recordOutcome("noderpc", "CodeAt", cbErr)
	if cbErr != nil {
		return nil, wrapBreakerOrRPCError("adapter.CodeAt", cbErr, map[string]interface{}{
			"address": address, "blockNumber": blockNumber,
		})
	}
	return code, nil
}

// Close releases the underlying connection.
func (n *NodeRPC) Close() {
	n.client.Close()
}

// wrapBreakerOrRPCError distinguishes an open-circuit rejection, which never
// touched the node, from an actual RPC failure.
func wrapBreakerOrRPCError(op string, cause error, details map[string]interface{}) error {
	if cause == circuitbreaker.ErrCircuitOpen || cause == circuitbreaker.ErrTooManyRequests {
		e := errors.Wrap(errors.UpstreamTransient, op, "node RPC circuit breaker open", cause)
		if details != nil {
			e = e.WithDetails(details)
		}
		return e
	}
	return wrapRPCError(op, cause, details)
}

func wrapRPCError(op string, cause error, details map[string]interface{}) error {
	kind := errors.UpstreamTransient
	if errIsDeadlineLike(cause) {
		kind = errors.UpstreamTimeout
	}
	e := errors.Wrap(kind, op, "node RPC call failed", cause)
	if details != nil {
		e = e.WithDetails(details)
	}
	return e
}

func errIsDeadlineLike(err error) bool {
	return err == context.DeadlineExceeded || fmt.Sprint(err) == "context deadline exceeded"
}

func recordOutcome(adapterName, method string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(adapterName, method, outcome).Inc()
}
