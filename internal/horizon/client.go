package horizon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AIAleph/admin_wallet_audit/internal/logging"
)

// ErrAccountNotFound reports an address that does not resolve to a funded
// account on the queried network.
var ErrAccountNotFound = errors.New("account not found")

// transactionPageLimit is Horizon's maximum page size; a short page means the
// stream is drained.
const transactionPageLimit = 200

// Signer is one entry of an account's signer list.
type Signer struct {
	Key    string `json:"key"`
	Weight uint32 `json:"weight"`
}

// Thresholds are the per-account weight levels for low/medium/high security
// operations.
type Thresholds struct {
	Low    uint32 `json:"low_threshold"`
	Medium uint32 `json:"med_threshold"`
	High   uint32 `json:"high_threshold"`
}

// AccountDetail is the slice of a Horizon account record the analyzer needs.
type AccountDetail struct {
	ID         string     `json:"id"`
	Signers    []Signer   `json:"signers"`
	Thresholds Thresholds `json:"thresholds"`
}

// Transaction is one history record. Ledger is the close sequence used as a
// time proxy; FeeAccount differs from SourceAccount for fee-bump wrappers.
type Transaction struct {
	Ledger        uint32    `json:"ledger"`
	PagingToken   string    `json:"paging_token"`
	SourceAccount string    `json:"source_account"`
	FeeAccount    string    `json:"fee_account"`
	CreatedAt     time.Time `json:"created_at"`
}

// Client is the account/history surface the analyzer needs.
type Client interface {
	// AccountDetail fetches signers and thresholds for an account.
	AccountDetail(ctx context.Context, accountID string) (AccountDetail, error)

	// Transactions drains the account's transaction history: every page is
	// fetched, records are deduplicated by paging token and filtered to those
	// the account itself submitted or paid for. Order is as served; callers
	// sort before computing gaps.
	Transactions(ctx context.Context, accountID string) ([]Transaction, error)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type httpClient struct {
	base        string
	hc          httpDoer
	maxRetries  int
	backoffBase time.Duration
}

// Option tweaks the constructed client.
type Option func(*httpClient)

// WithHTTPClient injects the underlying HTTP client.
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

// New constructs a Horizon REST client for the given base URL.
func New(base string, opts ...Option) (Client, error) {
	if base == "" {
		return nil, fmt.Errorf("horizon: empty base URL")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("horizon: bad base URL: %w", err)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	c := &httpClient{
		base:        base,
		hc:          &http.Client{Timeout: 30 * time.Second},
		maxRetries:  2,
		backoffBase: 100 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// get fetches a URL into out with the shared retry policy. 404 maps to
// ErrAccountNotFound since every endpoint this client touches is account
// scoped.
func (c *httpClient) get(ctx context.Context, rawURL string, out interface{}) error {
	var lastErr error
	attempts := c.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.hc.Do(req)
		retriable := true
		if err != nil {
			lastErr = err
		} else {
			func() {
				defer func() { _ = resp.Body.Close() }()
				switch {
				case resp.StatusCode == http.StatusNotFound:
					lastErr = ErrAccountNotFound
					retriable = false
				case resp.StatusCode/100 != 2:
					b, _ := io.ReadAll(resp.Body)
					lastErr = fmt.Errorf("horizon: http %d: %s", resp.StatusCode, string(b))
					if resp.StatusCode != 429 && resp.StatusCode < 500 {
						retriable = false
					}
				default:
					if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
						lastErr = fmt.Errorf("horizon: decode response: %w", err)
						retriable = false
					} else {
						lastErr = nil
					}
				}
			}()
			if lastErr == nil {
				return nil
			}
		}
		if !retriable {
			break
		}
		if attempt < attempts-1 {
			logging.Logger().Warn("horizon retry", "url", rawURL, "attempt", attempt+1, "error", lastErr)
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

func (c *httpClient) AccountDetail(ctx context.Context, accountID string) (AccountDetail, error) {
	var detail AccountDetail
	u := c.base + "accounts/" + url.PathEscape(accountID)
	if err := c.get(ctx, u, &detail); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return AccountDetail{}, fmt.Errorf("horizon: account %s: %w", accountID, err)
		}
		return AccountDetail{}, fmt.Errorf("horizon: fetch account %s: %w", accountID, err)
	}
	return detail, nil
}

type transactionsPage struct {
	Links struct {
		Next struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
	Embedded struct {
		Records []Transaction `json:"records"`
	} `json:"_embedded"`
}

func (c *httpClient) Transactions(ctx context.Context, accountID string) ([]Transaction, error) {
	next := fmt.Sprintf("%saccounts/%s/transactions?limit=%d&include_failed=false",
		c.base, url.PathEscape(accountID), transactionPageLimit)
	var records []Transaction
	for {
		var page transactionsPage
		if err := c.get(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("horizon: fetch transactions for %s: %w", accountID, err)
		}
		records = append(records, page.Embedded.Records...)
		if len(page.Embedded.Records) < transactionPageLimit {
			break
		}
		next = page.Links.Next.Href
		if next == "" {
			break
		}
	}
	return filterOwn(records, accountID), nil
}

// filterOwn deduplicates by paging token and keeps records the account either
// sourced or paid fees for (fee-bump transactions list the inner source).
func filterOwn(records []Transaction, accountID string) []Transaction {
	seen := make(map[string]struct{}, len(records))
	out := make([]Transaction, 0, len(records))
	for _, r := range records {
		if r.SourceAccount != accountID && r.FeeAccount != accountID {
			continue
		}
		if _, dup := seen[r.PagingToken]; dup {
			continue
		}
		seen[r.PagingToken] = struct{}{}
		out = append(out, r)
	}
	return out
}
