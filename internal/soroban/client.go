package soroban

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AIAleph/admin_wallet_audit/internal/ledger"
	"github.com/AIAleph/admin_wallet_audit/internal/logging"
)

// Client is the ledger-data surface the resolver needs. Concrete transports
// (the JSON-RPC client below, test fakes) satisfy it.
type Client interface {
	// InstanceStorage returns the instance-scope storage map of a contract.
	// A deployed contract with no instance storage yields an empty map.
	InstanceStorage(ctx context.Context, contract ledger.Address) ([]ledger.MapEntry, error)

	// PersistentEntries fetches the persistent contract-data entries for the
	// given candidate keys in one round trip. Absent keys are simply omitted
	// from the result; absence is not an error.
	PersistentEntries(ctx context.Context, contract ledger.Address, keys []ledger.Val) ([]ledger.ContractData, error)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// httpClient is a minimal Soroban JSON-RPC client. Retry policy mirrors the
// rest of the codebase: bounded attempts with exponential backoff on network
// errors, 429 and 5xx; JSON-RPC level errors are not retried.
type httpClient struct {
	endpoint    string
	hc          httpDoer
	maxRetries  int
	backoffBase time.Duration
}

// Option tweaks the constructed client.
type Option func(*httpClient)

// WithHTTPClient injects the underlying HTTP client (tests, custom transports).
func WithHTTPClient(d httpDoer) Option { return func(c *httpClient) { c.hc = d } }

// WithRetry overrides the retry budget and backoff base.
func WithRetry(retries int, backoffBase time.Duration) Option {
	return func(c *httpClient) {
		if retries >= 0 {
			c.maxRetries = retries
		}
		if backoffBase > 0 {
			c.backoffBase = backoffBase
		}
	}
}

// New constructs a JSON-RPC client for the given Soroban RPC endpoint.
func New(endpoint string, opts ...Option) (Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("soroban: empty endpoint")
	}
	c := &httpClient{
		endpoint:    endpoint,
		hc:          &http.Client{Timeout: 30 * time.Second},
		maxRetries:  2,
		backoffBase: 100 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      int64           `json:"id"`
}

type ledgerEntriesParams struct {
	Keys []string `json:"keys"`
}

type ledgerEntriesResult struct {
	Entries []struct {
		KeyXDR       string `json:"key"`
		XDR          string `json:"xdr"`
		LastModified uint32 `json:"lastModifiedLedgerSeq"`
	} `json:"entries"`
	LatestLedger uint32 `json:"latestLedger"`
}

func (c *httpClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	reqBody, _ := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	var lastErr error
	attempts := c.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.hc.Do(req)
		retriable := true
		if err != nil {
			lastErr = err
		} else {
			func() {
				defer func() { _ = resp.Body.Close() }()
				if resp.StatusCode/100 != 2 {
					b, _ := io.ReadAll(resp.Body)
					lastErr = fmt.Errorf("soroban: http %d: %s", resp.StatusCode, string(b))
					if resp.StatusCode != 429 && resp.StatusCode < 500 {
						retriable = false
					}
					return
				}
				var rr rpcResponse
				if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
					lastErr = fmt.Errorf("soroban: decode response: %w", err)
					return
				}
				if rr.Error != nil {
					// JSON-RPC errors arrive over HTTP 200; retrying won't help.
					lastErr = fmt.Errorf("soroban: rpc %d: %s", rr.Error.Code, rr.Error.Message)
					retriable = false
					return
				}
				lastErr = json.Unmarshal(rr.Result, out)
			}()
			if lastErr == nil {
				return nil
			}
		}
		if !retriable {
			break
		}
		if attempt < attempts-1 {
			logging.Logger().Warn("soroban retry", "method", method, "attempt", attempt+1, "error", lastErr)
			t := time.NewTimer(c.backoffBase * (1 << attempt))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return lastErr
}

func (c *httpClient) ledgerEntries(ctx context.Context, keys [][]byte) ([]ledger.ContractData, error) {
	encoded := make([]string, 0, len(keys))
	for _, k := range keys {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(k))
	}
	var res ledgerEntriesResult
	if err := c.call(ctx, "getLedgerEntries", ledgerEntriesParams{Keys: encoded}, &res); err != nil {
		return nil, err
	}
	out := make([]ledger.ContractData, 0, len(res.Entries))
	for _, e := range res.Entries {
		raw, err := base64.StdEncoding.DecodeString(e.XDR)
		if err != nil {
			return nil, fmt.Errorf("soroban: entry xdr is not base64: %w", err)
		}
		data, err := ledger.DecodeContractData(raw)
		if err != nil {
			return nil, fmt.Errorf("soroban: decode ledger entry: %w", err)
		}
		out = append(out, data)
	}
	return out, nil
}

func (c *httpClient) InstanceStorage(ctx context.Context, contract ledger.Address) ([]ledger.MapEntry, error) {
	key, err := ledger.InstanceKeyXDR(contract)
	if err != nil {
		return nil, fmt.Errorf("soroban: build instance key for %s: %w", contract, err)
	}
	entries, err := c.ledgerEntries(ctx, [][]byte{key})
	if err != nil {
		return nil, fmt.Errorf("soroban: fetch instance storage for %s: %w", contract, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("soroban: contract %s has no instance entry", contract)
	}
	v := entries[0].Val
	if v.Type != ledger.TypeContractInstance || v.Instance == nil {
		return nil, fmt.Errorf("soroban: instance entry for %s holds %s, not a contract instance", contract, v.Type)
	}
	return v.Instance.Storage, nil
}

func (c *httpClient) PersistentEntries(ctx context.Context, contract ledger.Address, keys []ledger.Val) ([]ledger.ContractData, error) {
	raw := make([][]byte, 0, len(keys))
	for _, k := range keys {
		b, err := ledger.ContractDataKeyXDR(contract, k, ledger.DurabilityPersistent)
		if err != nil {
			return nil, fmt.Errorf("soroban: build persistent key for %s: %w", contract, err)
		}
		raw = append(raw, b)
	}
	entries, err := c.ledgerEntries(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("soroban: fetch persistent storage for %s: %w", contract, err)
	}
	return entries, nil
}
