package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/AIAleph/admin_wallet_audit/internal/audit"
	"github.com/AIAleph/admin_wallet_audit/internal/classify"
	cfgpkg "github.com/AIAleph/admin_wallet_audit/internal/config"
	"github.com/AIAleph/admin_wallet_audit/internal/horizon"
	"github.com/AIAleph/admin_wallet_audit/internal/ledger"
	"github.com/AIAleph/admin_wallet_audit/internal/logging"
	"github.com/AIAleph/admin_wallet_audit/internal/netconf"
	"github.com/AIAleph/admin_wallet_audit/internal/resolve"
)

var (
	// version is set via -ldflags "-X main.version=..."
	version = "dev"
	// exit is aliased to os.Exit to allow overriding in tests.
	exit = os.Exit
	// function variables allow tests to inject stubs
	newRunner func(audit.Options) (runner, error)
)

// runner is the slice of audit.Runner the CLI needs; tests substitute fakes.
type runner interface {
	Run(ctx context.Context, target ledger.Address) (audit.Report, error)
	RunExplicit(ctx context.Context, admin ledger.Address) (audit.Report, error)
}

func defaultNewRunner(opts audit.Options) (runner, error) { return audit.New(opts) }

func wireDefaults() { newRunner = defaultNewRunner }

func init() { wireDefaults() }

func printUsage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "\nUsage:\n  %s --contract-id C... [flags]\n  %s --admin G...|C... [flags]\n\n", os.Args[0], os.Args[0])
	fmt.Fprintln(out, "Flags:")
	flag.PrintDefaults()
	fmt.Fprintln(out, "\nEnvironment variables (defaults):")
	fmt.Fprintln(out, "  SOROBAN_NETWORK    Named network (mainnet|testnet|futurenet|local|custom)")
	fmt.Fprintln(out, "  SOROBAN_RPC_URL    Soroban RPC endpoint (overrides network RPC)")
	fmt.Fprintln(out, "  HORIZON_URL        Horizon endpoint (overrides network Horizon)")
	fmt.Fprintln(out, "  ADMIN_STORAGE_KEY  Admin storage key name (default admin)")
	fmt.Fprintln(out, "  HOT_GAP_LEDGERS    Hot-wallet ledger gap threshold (default 720)")
	fmt.Fprintln(out, "  HTTP_RETRIES       HTTP retries on 5xx/429/network (default 2)")
	fmt.Fprintln(out, "  HTTP_BACKOFF_BASE  Backoff base for retries (default 100ms)")
	fmt.Fprintln(out, "  AUDIT_TIMEOUT      Overall request timeout (default 30s)")
	fmt.Fprintln(out, "\nExamples:")
	fmt.Fprintln(out, "  Audit a contract's admin on testnet:")
	fmt.Fprintln(out, "    adminaudit --contract-id CA7QYNF7... --network testnet")
	fmt.Fprintln(out, "  Classify a known admin account directly:")
	fmt.Fprintln(out, "    adminaudit --admin GBZXN7PI... --network mainnet")
}

func main() {
	defaults := cfgpkg.Load()
	var (
		contractID  string
		adminAddr   string
		rpcURL      string
		network     string
		key         string
		horizonURL  string
		hotGap      int
		timeout     time.Duration
		asJSON      bool
		verbose     bool
		showVersion bool
	)

	flag.Usage = printUsage
	flag.StringVar(&contractID, "contract-id", "", "Target contract ID (C...) whose admin is audited")
	flag.StringVar(&adminAddr, "admin", "", "Explicit admin address (G... or C...); skips storage resolution")
	flag.StringVar(&rpcURL, "rpc-url", defaults.RPCURL, "Soroban RPC URL (SOROBAN_RPC_URL)")
	flag.StringVar(&network, "network", defaults.Network, "Named network: mainnet|testnet|futurenet|local|standalone or an imported stellar-cli network (SOROBAN_NETWORK)")
	flag.StringVar(&key, "key", defaults.StorageKey, "Admin storage key name to search for (ADMIN_STORAGE_KEY)")
	flag.StringVar(&horizonURL, "horizon", defaults.HorizonURL, "Horizon URL; inferred from --network when empty (HORIZON_URL)")
	flag.IntVar(&hotGap, "hot-gap", defaults.HotGapLedgers, "Ledger gap below which a centralized account counts as hot (HOT_GAP_LEDGERS)")
	flag.DurationVar(&timeout, "timeout", defaults.Timeout, "Overall audit timeout (AUDIT_TIMEOUT)")
	flag.BoolVar(&asJSON, "json", false, "Emit the report as JSON")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}
	if verbose {
		logging.Verbose()
	}

	if (contractID == "") == (adminAddr == "") {
		fmt.Fprintln(os.Stderr, "exactly one of --contract-id or --admin is required; see --help")
		exit(2)
		return
	}
	if hotGap <= 0 {
		fmt.Fprintln(os.Stderr, "--hot-gap must be > 0")
		exit(2)
		return
	}

	target := contractID
	if adminAddr != "" {
		target = adminAddr
	}
	addr, err := ledger.ParseAddress(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid address %q: %v\n", target, err)
		exit(2)
		return
	}

	// Explicit contract admins need no endpoint at all; account analysis
	// needs Horizon; storage resolution additionally needs RPC.
	needRPC := adminAddr == ""
	needHorizon := !(adminAddr != "" && addr.IsContract())

	if needRPC && rpcURL == "" {
		if network == "" {
			fmt.Fprintln(os.Stderr, "either --rpc-url or --network is required; see --help")
			exit(2)
			return
		}
		rpcURL, err = netconf.RPCURL(network)
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolve RPC URL: %v\n", err)
			exit(2)
			return
		}
	}
	if needHorizon && horizonURL == "" {
		if network == "" {
			fmt.Fprintln(os.Stderr, "either --horizon or --network is required; see --help")
			exit(2)
			return
		}
		horizonURL, err = netconf.HorizonURL(network)
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolve Horizon URL: %v\n", err)
			exit(2)
			return
		}
	}
	if horizonURL == "" {
		// The runner always wants a history client; explicit contract admins
		// never call it, so any syntactically valid placeholder works.
		horizonURL = "https://horizon.stellar.org/"
	}

	policy := classify.DefaultPolicy()
	policy.HotGapLedgers = uint32(hotGap)

	r, err := newRunner(audit.Options{
		RPCURL:          rpcURL,
		HorizonURL:      horizonURL,
		StorageKey:      key,
		Policy:          policy,
		Timeout:         timeout,
		HTTPRetries:     defaults.HTTPRetries,
		HTTPBackoffBase: defaults.HTTPBackoffBase,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		exit(1)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var report audit.Report
	if adminAddr != "" {
		report, err = r.RunExplicit(ctx, addr)
	} else {
		report, err = r.Run(ctx, addr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", describeFailure(err))
		exit(1)
		return
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}
	fmt.Printf("Admin:   %s\n", report.Admin)
	fmt.Printf("Verdict: %s\n", report.Verdict)
}

// describeFailure prefixes errors with the stage that produced them so a
// failed run is diagnosable without verbose flags.
func describeFailure(err error) string {
	switch {
	case errors.Is(err, resolve.ErrAdminNotFound):
		return fmt.Sprintf("admin resolution failed: %v", err)
	case errors.Is(err, resolve.ErrAdminDecode), errors.Is(err, resolve.ErrAdminConflict):
		return fmt.Sprintf("admin decoding failed: %v", err)
	case errors.Is(err, horizon.ErrAccountNotFound):
		return fmt.Sprintf("account lookup failed: %v", err)
	case errors.Is(err, classify.ErrNoSigners):
		return fmt.Sprintf("account analysis failed: %v", err)
	default:
		return fmt.Sprintf("audit failed: %v", err)
	}
}
