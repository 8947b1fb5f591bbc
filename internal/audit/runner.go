package audit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/AIAleph/admin_wallet_audit/internal/classify"
	"github.com/AIAleph/admin_wallet_audit/internal/horizon"
	"github.com/AIAleph/admin_wallet_audit/internal/ledger"
	"github.com/AIAleph/admin_wallet_audit/internal/resolve"
	"github.com/AIAleph/admin_wallet_audit/internal/soroban"
)

// Options configure one audit run.
type Options struct {
	RPCURL     string
	HorizonURL string
	// StorageKey is the logical admin key name probed in contract storage.
	StorageKey string
	Policy     classify.Policy
	Timeout    time.Duration

	HTTPRetries     int
	HTTPBackoffBase time.Duration
}

// Report is the final output of a run: the identity the verdict applies to
// and how it was reached.
type Report struct {
	Target   string           `json:"target"`
	Admin    string           `json:"admin"`
	Resolved bool             `json:"resolved"` // false when the admin was supplied explicitly
	Verdict  classify.Verdict `json:"verdict"`
}

// Runner wires the resolver and analyzer to concrete clients. Each Run is
// stateless; nothing is cached between invocations.
type Runner struct {
	rpc     soroban.Client
	history horizon.Client
	opts    Options
}

// New builds a Runner with HTTP clients for the configured endpoints. The
// RPC URL may be empty when only explicit-admin runs are intended.
func New(opts Options) (*Runner, error) {
	if opts.StorageKey == "" {
		opts.StorageKey = "admin"
	}
	hc := &http.Client{Timeout: httpTimeout(opts.Timeout)}
	var rpc soroban.Client
	if opts.RPCURL != "" {
		var err error
		rpc, err = soroban.New(opts.RPCURL,
			soroban.WithHTTPClient(hc),
			soroban.WithRetry(opts.HTTPRetries, opts.HTTPBackoffBase))
		if err != nil {
			return nil, err
		}
	}
	history, err := horizon.New(opts.HorizonURL,
		horizon.WithHTTPClient(hc),
		horizon.WithRetry(opts.HTTPRetries, opts.HTTPBackoffBase))
	if err != nil {
		return nil, err
	}
	return NewWithClients(opts, rpc, history), nil
}

// NewWithClients injects concrete clients; production wiring and tests both
// go through here.
func NewWithClients(opts Options, rpc soroban.Client, history horizon.Client) *Runner {
	if opts.StorageKey == "" {
		opts.StorageKey = "admin"
	}
	return &Runner{rpc: rpc, history: history, opts: opts}
}

func httpTimeout(t time.Duration) time.Duration {
	if t <= 0 {
		return 30 * time.Second
	}
	return t
}

// Run resolves the admin of target from on-chain storage and classifies it.
func (r *Runner) Run(ctx context.Context, target ledger.Address) (Report, error) {
	if r.rpc == nil {
		return Report{}, fmt.Errorf("audit: no RPC endpoint configured for admin resolution")
	}
	admin, err := resolve.New(r.rpc).Admin(ctx, target, r.opts.StorageKey)
	if err != nil {
		return Report{}, fmt.Errorf("audit: %w", err)
	}
	verdict, err := r.classify(ctx, admin)
	if err != nil {
		return Report{}, err
	}
	return Report{Target: target.String(), Admin: admin.String(), Resolved: true, Verdict: verdict}, nil
}

// RunExplicit classifies an already-known admin address, bypassing storage
// resolution entirely.
func (r *Runner) RunExplicit(ctx context.Context, admin ledger.Address) (Report, error) {
	verdict, err := r.classify(ctx, admin)
	if err != nil {
		return Report{}, err
	}
	return Report{Target: admin.String(), Admin: admin.String(), Resolved: false, Verdict: verdict}, nil
}

func (r *Runner) classify(ctx context.Context, admin ledger.Address) (classify.Verdict, error) {
	if classify.Identity(admin) == classify.IdentityContract {
		return classify.ContractVerdict(admin), nil
	}
	verdict, err := classify.NewAnalyzer(r.history, r.opts.Policy).Analyze(ctx, admin.String())
	if err != nil {
		return classify.Verdict{}, fmt.Errorf("audit: analyze %s: %w", admin, err)
	}
	return verdict, nil
}
