package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/AIAleph/admin_wallet_audit/internal/audit"
	"github.com/AIAleph/admin_wallet_audit/internal/classify"
	"github.com/AIAleph/admin_wallet_audit/internal/horizon"
	"github.com/AIAleph/admin_wallet_audit/internal/ledger"
	"github.com/AIAleph/admin_wallet_audit/internal/logging"
	"github.com/AIAleph/admin_wallet_audit/internal/resolve"
)

func init() { logging.DiscardLogging() }

func withFreshFlags(t *testing.T, args []string, fn func()) {
	t.Helper()
	oldFlags, oldArgs := flag.CommandLine, os.Args
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	var buf bytes.Buffer
	flag.CommandLine.SetOutput(&buf)
	os.Args = append([]string{"adminaudit"}, args...)
	defer func() {
		flag.CommandLine, os.Args = oldFlags, oldArgs
	}()
	fn()
}

func captureStd(t *testing.T, fn func()) (stdout, stderr string) {
	t.Helper()
	oldOut, oldErr := os.Stdout, os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout, os.Stderr = wOut, wErr
	defer func() {
		os.Stdout, os.Stderr = oldOut, oldErr
	}()
	doneOut := make(chan struct{})
	doneErr := make(chan struct{})
	var outBuf, errBuf bytes.Buffer
	go func() { _, _ = outBuf.ReadFrom(rOut); close(doneOut) }()
	go func() { _, _ = errBuf.ReadFrom(rErr); close(doneErr) }()
	fn()
	_ = wOut.Close()
	_ = wErr.Close()
	<-doneOut
	<-doneErr
	return outBuf.String(), errBuf.String()
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SOROBAN_NETWORK", "SOROBAN_RPC_URL", "HORIZON_URL", "ADMIN_STORAGE_KEY",
		"HOT_GAP_LEDGERS", "AUDIT_TIMEOUT", "HTTP_RETRIES", "HTTP_BACKOFF_BASE",
	} {
		t.Setenv(k, "")
	}
}

type fakeRunner struct {
	report      audit.Report
	err         error
	ranExplicit bool
	ranResolved bool
}

func (f *fakeRunner) Run(_ context.Context, target ledger.Address) (audit.Report, error) {
	f.ranResolved = true
	return f.report, f.err
}

func (f *fakeRunner) RunExplicit(_ context.Context, admin ledger.Address) (audit.Report, error) {
	f.ranExplicit = true
	return f.report, f.err
}

func run(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	code = 0
	oldExit := exit
	exit = func(c int) { code = c }
	defer func() { exit = oldExit }()
	withFreshFlags(t, args, func() {
		stdout, stderr = captureStd(t, main)
	})
	return code, stdout, stderr
}

func TestVersionFlag(t *testing.T) {
	clearEnv(t)
	defer wireDefaults()
	code, out, _ := run(t, "--version")
	if code != 0 || !strings.Contains(out, version) {
		t.Fatalf("version run: code=%d out=%q", code, out)
	}
}

func TestUsageErrors(t *testing.T) {
	clearEnv(t)
	defer wireDefaults()
	acc := ledger.AccountAddress([32]byte{1}).String()
	con := ledger.ContractAddress([32]byte{1}).String()
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"no target", nil, "exactly one of"},
		{"both targets", []string{"--contract-id", con, "--admin", acc}, "exactly one of"},
		{"bad address", []string{"--contract-id", "not-an-address", "--network", "testnet"}, "invalid address"},
		{"no endpoints", []string{"--contract-id", con}, "--rpc-url or --network"},
		{"bad hot gap", []string{"--contract-id", con, "--network", "testnet", "--hot-gap", "0"}, "--hot-gap"},
		{"local without horizon", []string{"--admin", acc, "--network", "local"}, "Horizon"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, stderr := run(t, tc.args...)
			if code != 2 {
				t.Fatalf("code = %d, want 2 (stderr %q)", code, stderr)
			}
			if !strings.Contains(stderr, tc.want) {
				t.Fatalf("stderr %q does not mention %q", stderr, tc.want)
			}
		})
	}
}

func TestExplicitAdminUsesFakeRunner(t *testing.T) {
	clearEnv(t)
	defer wireDefaults()
	acc := ledger.AccountAddress([32]byte{2}).String()
	fake := &fakeRunner{report: audit.Report{
		Target: acc,
		Admin:  acc,
		Verdict: classify.Verdict{
			Kind:     classify.AdminIsLikelyColdWallet,
			Admin:    acc,
			Evidence: classify.Evidence{MinLedgerGap: 900, HotGapLedgers: 720, TransactionCount: 3},
		},
	}}
	newRunner = func(opts audit.Options) (runner, error) {
		if opts.StorageKey != "admin" {
			t.Errorf("storage key = %q, want admin", opts.StorageKey)
		}
		return fake, nil
	}

	code, out, _ := run(t, "--admin", acc, "--horizon", "https://horizon.example/")
	if code != 0 {
		t.Fatalf("code = %d, want 0", code)
	}
	if !fake.ranExplicit || fake.ranResolved {
		t.Fatalf("explicit admin must bypass resolution: %+v", fake)
	}
	if !strings.Contains(out, "Likely Cold Wallet") {
		t.Fatalf("stdout %q missing verdict", out)
	}
}

func TestContractAuditJSONOutput(t *testing.T) {
	clearEnv(t)
	defer wireDefaults()
	con := ledger.ContractAddress([32]byte{3}).String()
	adminCon := ledger.ContractAddress([32]byte{4}).String()
	fake := &fakeRunner{report: audit.Report{
		Target:   con,
		Admin:    adminCon,
		Resolved: true,
		Verdict:  classify.Verdict{Kind: classify.AdminIsContract, Admin: adminCon},
	}}
	newRunner = func(audit.Options) (runner, error) { return fake, nil }

	code, out, _ := run(t, "--contract-id", con, "--network", "testnet", "--json")
	if code != 0 {
		t.Fatalf("code = %d, want 0", code)
	}
	if !fake.ranResolved || fake.ranExplicit {
		t.Fatalf("contract target must go through resolution: %+v", fake)
	}
	if !strings.Contains(out, `"resolved": true`) || !strings.Contains(out, adminCon) {
		t.Fatalf("json output %q missing fields", out)
	}
}

func TestFailureExitCode(t *testing.T) {
	clearEnv(t)
	defer wireDefaults()
	con := ledger.ContractAddress([32]byte{5}).String()
	fake := &fakeRunner{err: fmt.Errorf("audit: %w", resolve.ErrAdminNotFound)}
	newRunner = func(audit.Options) (runner, error) { return fake, nil }

	code, _, stderr := run(t, "--contract-id", con, "--network", "testnet")
	if code != 1 {
		t.Fatalf("code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "admin resolution failed") {
		t.Fatalf("stderr %q must name the failing stage", stderr)
	}
}

func TestDescribeFailure(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", resolve.ErrAdminNotFound), "admin resolution failed"},
		{fmt.Errorf("x: %w", resolve.ErrAdminDecode), "admin decoding failed"},
		{fmt.Errorf("x: %w", resolve.ErrAdminConflict), "admin decoding failed"},
		{fmt.Errorf("x: %w", horizon.ErrAccountNotFound), "account lookup failed"},
		{fmt.Errorf("x: %w", classify.ErrNoSigners), "account analysis failed"},
		{errors.New("connection refused"), "audit failed"},
	}
	for _, tc := range cases {
		if got := describeFailure(tc.err); !strings.Contains(got, tc.want) {
			t.Fatalf("describeFailure(%v) = %q, want prefix %q", tc.err, got, tc.want)
		}
	}
}
