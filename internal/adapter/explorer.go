package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/addrtx/scanner/internal/circuitbreaker"
	"github.com/addrtx/scanner/internal/errors"
	"github.com/addrtx/scanner/internal/ratelimit"
	"github.com/addrtx/scanner/internal/types"
)

// Explorer is an Etherscan-style HTTP client for the paginated txlist
// endpoint, scoped to a single address and block range per call.
type Explorer struct {
	apiURL  string
	apiKey  string
	http    *http.Client
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

// NewExplorer builds an Explorer client bound to apiURL/apiKey, with calls
// rate-limited through limiter and a timeout of timeout per HTTP round trip.
// A dedicated circuit breaker trips on a sustained run of explorer errors so
// a degraded upstream stops absorbing worker and request-path capacity.
func NewExplorer(apiURL, apiKey string, timeout time.Duration, limiter *ratelimit.Limiter) *Explorer {
	return &Explorer{
		apiURL:  apiURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("explorer")),
	}
}

// explorerTransaction mirrors the txlist row shape byte-for-byte; every
// field arrives as a JSON string regardless of its logical type.
type explorerTransaction struct {
	Hash            string `json:"hash"`
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	Gas             string `json:"gas"`
	GasPrice        string `json:"gasPrice"`
	GasUsed         string `json:"gasUsed"`
	IsError         string `json:"isError"`
	TxReceiptStatus string `json:"txreceipt_status"`
	FunctionName    string `json:"functionName"`
	Input           string `json:"input"`
	ContractAddress string `json:"contractAddress"`
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// TxList fetches page offset of transactions for address in
// [fromBlock, toBlock], sorted per sort. A response with no transactions
// is a valid, non-error result.
func (e *Explorer) TxList(ctx context.Context, address types.Address, fromBlock, toBlock uint64, page, offset int, sort types.Order) ([]types.Transaction, error) {
	release, err := e.limiter.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.Internal, "adapter.TxList", "rate limiter wait cancelled", err)
	}
	defer release()

	url := fmt.Sprintf("%s?module=account&action=txlist&address=%s&startblock=%d&endblock=%d&page=%d&offset=%d&sort=%s&apikey=%s",
		e.apiURL, string(address), fromBlock, toBlock, page, offset, sort, e.apiKey)

	var body []byte
	cbErr := e.breaker.Execute(ctx, func() error {
		var reqErr error
		body, reqErr = e.doRequest(ctx, url)
		return reqErr
	})
	recordOutcome("explorer", "txlist", cbErr)
	if cbErr != nil {
		if cbErr == circuitbreaker.ErrCircuitOpen || cbErr == circuitbreaker.ErrTooManyRequests {
			return nil, errors.Wrap(errors.UpstreamTransient, "adapter.TxList", "explorer circuit breaker open", cbErr)
		}
		return nil, cbErr
	}

	var resp explorerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(errors.UpstreamInvalid, "adapter.TxList", "malformed explorer response", err)
	}

	if resp.Status != "1" {
		if isEmptyResultMessage(resp.Message, resp.Result) {
			return nil, nil
		}
		if strings.Contains(strings.ToLower(string(resp.Result)), "timeout") {
			return nil, errors.New(errors.UpstreamTimeout, "adapter.TxList", "explorer query timed out").
				WithDetails(map[string]interface{}{"message": resp.Message})
		}
		return nil, errors.New(errors.UpstreamTransient, "adapter.TxList", "explorer returned non-OK status").
			WithDetails(map[string]interface{}{"message": resp.Message})
	}

	var rows []explorerTransaction
	if err := json.Unmarshal(resp.Result, &rows); err != nil {
		return nil, errors.Wrap(errors.UpstreamInvalid, "adapter.TxList", "malformed transaction list", err)
	}

	txs := make([]types.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, convErr := convertTransaction(row, address)
		if convErr != nil {
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func isEmptyResultMessage(message string, result json.RawMessage) bool {
	if message == "No transactions found" {
		return true
	}
	return message == "NOTOK" && strings.Contains(string(result), "No record")
}

func convertTransaction(row explorerTransaction, owner types.Address) (types.Transaction, error) {
	blockNumber, err := strconv.ParseUint(row.BlockNumber, 10, 64)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("invalid blockNumber %q: %w", row.BlockNumber, err)
	}
	timestampSec, err := strconv.ParseInt(row.TimeStamp, 10, 64)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("invalid timeStamp %q: %w", row.TimeStamp, err)
	}

	tx := types.Transaction{
		Hash:          row.Hash,
		Address:       owner,
		BlockNumber:   blockNumber,
		From:          strings.ToLower(row.From),
		Value:         row.Value,
		GasPrice:      row.GasPrice,
		ReceiptStatus: resolveReceiptStatus(row),
		Timestamp:     time.Unix(timestampSec, 0).UTC(),
	}

	if row.To != "" {
		to := strings.ToLower(row.To)
		tx.To = &to
	}
	if fn := functionNameOf(row); fn != "" {
		tx.FunctionName = &fn
	}
	if row.ContractAddress != "" {
		addr := strings.ToLower(row.ContractAddress)
		tx.ContractAddress = &addr
	}
	if gasUsed, err := strconv.ParseUint(row.GasUsed, 10, 64); err == nil {
		tx.GasUsed = &gasUsed
	}
	if gas, err := strconv.ParseUint(row.Gas, 10, 64); err == nil {
		tx.Gas = &gas
	}

	return tx, nil
}

// functionNameOf returns row's functionName, falling back to the first 4
// bytes of input (its method selector) when the explorer left
// functionName blank and input carries a real call.
func functionNameOf(row explorerTransaction) string {
	if row.FunctionName != "" {
		return row.FunctionName
	}
	if row.Input == "" || row.Input == "0x" {
		return ""
	}
	selector := row.Input
	if len(selector) > 10 {
		selector = selector[:10]
	}
	return selector
}

// resolveReceiptStatus consults both isError and txreceipt_status so a
// pre-Byzantium row with an empty receipt status still resolves. The
// result mirrors Etherscan's own txreceipt_status domain: "1" success,
// "0" failed.
func resolveReceiptStatus(row explorerTransaction) string {
	if row.IsError == "1" {
		return "0"
	}
	switch row.TxReceiptStatus {
	case "0":
		return "0"
	default:
		return "1"
	}
}

func (e *Explorer) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.Internal, "adapter.doRequest", "failed to build request", err)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		if te, ok := err.(interface{ Timeout() bool }); ctx.Err() != nil || (ok && te.Timeout()) {
			return nil, errors.Wrap(errors.UpstreamTimeout, "adapter.doRequest", "explorer query timed out", err)
		}
		return nil, errors.Wrap(errors.UpstreamTransient, "adapter.doRequest", "explorer request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.UpstreamTransient, "adapter.doRequest", "failed to read explorer response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, errors.New(errors.UpstreamTransient, "adapter.doRequest", "explorer returned a transient HTTP error").
			WithDetails(map[string]interface{}{"status": resp.StatusCode})
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.UpstreamInvalid, "adapter.doRequest", "explorer returned an unexpected HTTP status").
			WithDetails(map[string]interface{}{"status": resp.StatusCode})
	}

	return body, nil
}
