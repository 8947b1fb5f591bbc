package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/AIAleph/admin_wallet_audit/internal/classify"
	"github.com/AIAleph/admin_wallet_audit/internal/horizon"
	"github.com/AIAleph/admin_wallet_audit/internal/ledger"
	"github.com/AIAleph/admin_wallet_audit/internal/logging"
	"github.com/AIAleph/admin_wallet_audit/internal/resolve"
)

func init() { logging.DiscardLogging() }

var (
	target       = ledger.ContractAddress([32]byte{0xC9})
	adminEOA     = ledger.AccountAddress([32]byte{0xE0})
	adminContr   = ledger.ContractAddress([32]byte{0xE1})
	singleSigner = horizon.AccountDetail{
		ID:         "x",
		Signers:    []horizon.Signer{{Key: "k", Weight: 1}},
		Thresholds: horizon.Thresholds{Low: 1, Medium: 1, High: 1},
	}
)

type fakeRPC struct {
	instance []ledger.MapEntry
	err      error
}

func (f *fakeRPC) InstanceStorage(context.Context, ledger.Address) ([]ledger.MapEntry, error) {
	return f.instance, f.err
}

func (f *fakeRPC) PersistentEntries(context.Context, ledger.Address, []ledger.Val) ([]ledger.ContractData, error) {
	return nil, f.err
}

type fakeHistory struct {
	detail horizon.AccountDetail
	txs    []horizon.Transaction
	calls  int
}

func (f *fakeHistory) AccountDetail(context.Context, string) (horizon.AccountDetail, error) {
	f.calls++
	return f.detail, nil
}

func (f *fakeHistory) Transactions(context.Context, string) ([]horizon.Transaction, error) {
	f.calls++
	return f.txs, nil
}

func adminStoredAs(admin ledger.Address) *fakeRPC {
	return &fakeRPC{instance: []ledger.MapEntry{
		{Key: ledger.SymbolVal("admin"), Val: ledger.AddressVal(admin)},
	}}
}

func TestRunContractAdminSkipsAnalyzer(t *testing.T) {
	history := &fakeHistory{}
	r := NewWithClients(Options{}, adminStoredAs(adminContr), history)
	report, err := r.Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Verdict.Kind != classify.AdminIsContract {
		t.Fatalf("kind = %s, want AdminIsContract", report.Verdict.Kind)
	}
	if report.Admin != adminContr.String() || !report.Resolved {
		t.Fatalf("unexpected report: %+v", report)
	}
	if history.calls != 0 {
		t.Fatal("contract admin must never reach the wallet analyzer")
	}
}

func TestRunEOAAdminAnalyzed(t *testing.T) {
	history := &fakeHistory{detail: singleSigner, txs: []horizon.Transaction{
		{Ledger: 100, PagingToken: "a", SourceAccount: adminEOA.String(), FeeAccount: adminEOA.String()},
		{Ledger: 110, PagingToken: "b", SourceAccount: adminEOA.String(), FeeAccount: adminEOA.String()},
	}}
	r := NewWithClients(Options{Policy: classify.DefaultPolicy()}, adminStoredAs(adminEOA), history)
	report, err := r.Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Verdict.Kind != classify.AdminIsLikelyHotWallet {
		t.Fatalf("kind = %s, want AdminIsLikelyHotWallet", report.Verdict.Kind)
	}
}

func TestExplicitAdminMatchesResolvedPath(t *testing.T) {
	history := &fakeHistory{detail: singleSigner}
	r := NewWithClients(Options{Policy: classify.DefaultPolicy()}, adminStoredAs(adminEOA), history)

	resolved, err := r.Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	explicit, err := r.RunExplicit(context.Background(), adminEOA)
	if err != nil {
		t.Fatalf("RunExplicit: %v", err)
	}
	if explicit.Verdict.Kind != resolved.Verdict.Kind {
		t.Fatalf("explicit verdict %s differs from resolved verdict %s", explicit.Verdict.Kind, resolved.Verdict.Kind)
	}
	if explicit.Resolved {
		t.Fatal("explicit run must not be marked resolved")
	}
}

func TestRunExplicitContractNeedsNoClients(t *testing.T) {
	r := NewWithClients(Options{}, nil, nil)
	report, err := r.RunExplicit(context.Background(), adminContr)
	if err != nil {
		t.Fatalf("RunExplicit: %v", err)
	}
	if report.Verdict.Kind != classify.AdminIsContract {
		t.Fatalf("kind = %s, want AdminIsContract", report.Verdict.Kind)
	}
}

func TestRunPropagatesResolutionFailure(t *testing.T) {
	r := NewWithClients(Options{}, &fakeRPC{}, &fakeHistory{})
	_, err := r.Run(context.Background(), target)
	if !errors.Is(err, resolve.ErrAdminNotFound) {
		t.Fatalf("got %v, want ErrAdminNotFound", err)
	}
}

func TestRunWithoutRPC(t *testing.T) {
	r := NewWithClients(Options{}, nil, &fakeHistory{})
	if _, err := r.Run(context.Background(), target); err == nil {
		t.Fatal("resolution without an RPC client must fail")
	}
}

func TestNewBuildsClients(t *testing.T) {
	r, err := New(Options{RPCURL: "http://localhost:8000/soroban/rpc", HorizonURL: "http://localhost:8000"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.rpc == nil || r.history == nil {
		t.Fatal("both clients must be wired")
	}
	if r.opts.StorageKey != "admin" {
		t.Fatalf("default storage key = %q, want admin", r.opts.StorageKey)
	}

	if _, err := New(Options{HorizonURL: ""}); err == nil {
		t.Fatal("empty horizon URL must fail")
	}
}
