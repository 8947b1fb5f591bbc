package classify

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/AIAleph/admin_wallet_audit/internal/horizon"
	"github.com/AIAleph/admin_wallet_audit/internal/ledger"
	"github.com/AIAleph/admin_wallet_audit/internal/logging"
)

// Package classify turns a resolved admin identity into a verdict: contracts
// are reported as such; accounts are checked for signer-topology
// centralization and, when a single key controls the account, for how hot
// its signing pattern looks.

// IdentityKind is the contract-vs-EOA split of an admin identity.
type IdentityKind int

const (
	IdentityContract IdentityKind = iota
	IdentityEOA
)

// Identity classifies an address. Total: an Address is always exactly one of
// the two kinds.
func Identity(a ledger.Address) IdentityKind {
	if a.IsContract() {
		return IdentityContract
	}
	return IdentityEOA
}

// VerdictKind enumerates the possible audit outcomes.
type VerdictKind int

const (
	// AdminIsContract: the admin slot holds another contract.
	AdminIsContract VerdictKind = iota
	// AdminIsCentralizedEOA: single-key account, but too little history to
	// judge hot vs cold.
	AdminIsCentralizedEOA
	// AdminIsMultisigEOA: authorization needs multiple cooperating signers.
	AdminIsMultisigEOA
	// AdminIsLikelyHotWallet: single-key account that has signed in rapid
	// succession at least once.
	AdminIsLikelyHotWallet
	// AdminIsLikelyColdWallet: single-key account whose signatures are always
	// far apart.
	AdminIsLikelyColdWallet
	// AdminIsDeactivated: the signer weights cannot reach the authority
	// threshold at all; the account cannot transact.
	AdminIsDeactivated
)

func (k VerdictKind) String() string {
	switch k {
	case AdminIsContract:
		return "Contract"
	case AdminIsCentralizedEOA:
		return "Centralized EOA"
	case AdminIsMultisigEOA:
		return "Multisig EOA"
	case AdminIsLikelyHotWallet:
		return "Likely Hot Wallet"
	case AdminIsLikelyColdWallet:
		return "Likely Cold Wallet"
	case AdminIsDeactivated:
		return "Deactivated Account"
	}
	return fmt.Sprintf("verdict(%d)", int(k))
}

// Evidence carries the observations a verdict rests on. Zero-valued fields
// are stages the classification never reached.
type Evidence struct {
	SignerCount       int    `json:"signer_count,omitempty"`
	MaxSignerWeight   uint32 `json:"max_signer_weight,omitempty"`
	AuthorityWeight   uint32 `json:"authority_weight,omitempty"`
	RequiredSigners   int    `json:"required_signers,omitempty"`
	TransactionCount  int    `json:"transaction_count"`
	MinLedgerGap      uint32 `json:"min_ledger_gap,omitempty"`
	HotGapLedgers     uint32 `json:"hot_gap_ledgers,omitempty"`
	InsufficientHistory bool `json:"insufficient_history,omitempty"`
}

// Verdict is the audit outcome for one admin identity.
type Verdict struct {
	Kind     VerdictKind `json:"kind"`
	Admin    string      `json:"admin"`
	Evidence Evidence    `json:"evidence"`
}

func (v Verdict) String() string {
	switch v.Kind {
	case AdminIsMultisigEOA:
		return fmt.Sprintf("%s (%d of %d signers required)", v.Kind, v.Evidence.RequiredSigners, v.Evidence.SignerCount)
	case AdminIsCentralizedEOA:
		if v.Evidence.InsufficientHistory {
			return fmt.Sprintf("%s (insufficient history: %d transactions)", v.Kind, v.Evidence.TransactionCount)
		}
		return v.Kind.String()
	case AdminIsLikelyHotWallet, AdminIsLikelyColdWallet:
		return fmt.Sprintf("%s (min gap %d ledgers, threshold %d)", v.Kind, v.Evidence.MinLedgerGap, v.Evidence.HotGapLedgers)
	default:
		return v.Kind.String()
	}
}

// ThresholdLevel names which account threshold counts as "authorizes a
// transaction" for the centralization check.
type ThresholdLevel int

const (
	LowThreshold ThresholdLevel = iota
	MediumThreshold
	HighThreshold
)

func (l ThresholdLevel) pick(t horizon.Thresholds) uint32 {
	switch l {
	case MediumThreshold:
		return t.Medium
	case HighThreshold:
		return t.High
	default:
		return t.Low
	}
}

// DefaultHotGapLedgers is the frequency boundary: roughly one hour of chain
// time at the ~5s target ledger close interval. Two transactions closer than
// this mark the key as operationally hot.
const DefaultHotGapLedgers uint32 = 720

// Policy is the tunable classification policy. The zero value is not usable;
// start from DefaultPolicy.
type Policy struct {
	// HotGapLedgers is the consecutive-transaction gap below which an account
	// is considered hot.
	HotGapLedgers uint32
	// AuthorityThreshold is the account threshold a single signer must meet
	// for the account to count as centralized.
	AuthorityThreshold ThresholdLevel
}

// DefaultPolicy returns the documented defaults (720-ledger gap, low
// threshold).
func DefaultPolicy() Policy {
	return Policy{HotGapLedgers: DefaultHotGapLedgers, AuthorityThreshold: LowThreshold}
}

// ErrNoSigners reports an account record without a single signer, which a
// valid account cannot have.
var ErrNoSigners = errors.New("account has no signers")

// Analyzer runs the wallet-risk classification for EOA admins.
type Analyzer struct {
	history horizon.Client
	policy  Policy
}

func NewAnalyzer(history horizon.Client, policy Policy) *Analyzer {
	if policy.HotGapLedgers == 0 {
		policy.HotGapLedgers = DefaultHotGapLedgers
	}
	return &Analyzer{history: history, policy: policy}
}

// Analyze fetches signer topology and history for an account and produces a
// verdict. Transport and decode failures surface as errors; a short history
// is a low-confidence verdict, not a failure.
func (a *Analyzer) Analyze(ctx context.Context, accountID string) (Verdict, error) {
	detail, err := a.history.AccountDetail(ctx, accountID)
	if err != nil {
		return Verdict{}, err
	}
	if len(detail.Signers) == 0 {
		return Verdict{}, fmt.Errorf("account %s: %w", accountID, ErrNoSigners)
	}

	verdict, centralized := a.signerTopology(accountID, detail)
	if !centralized {
		return verdict, nil
	}

	txs, err := a.history.Transactions(ctx, accountID)
	if err != nil {
		return Verdict{}, err
	}
	return a.frequency(verdict, txs), nil
}

// signerTopology applies the centralization check. The returned verdict is
// final unless centralized is true, in which case it is the evidence-seeded
// base for frequency analysis.
func (a *Analyzer) signerTopology(accountID string, detail horizon.AccountDetail) (Verdict, bool) {
	authority := a.policy.AuthorityThreshold.pick(detail.Thresholds)

	weights := make([]uint32, 0, len(detail.Signers))
	var maxWeight uint32
	for _, s := range detail.Signers {
		if s.Weight == 0 {
			continue
		}
		weights = append(weights, s.Weight)
		if s.Weight > maxWeight {
			maxWeight = s.Weight
		}
	}

	v := Verdict{
		Admin: accountID,
		Evidence: Evidence{
			SignerCount:     len(weights),
			MaxSignerWeight: maxWeight,
			AuthorityWeight: authority,
		},
	}

	if maxWeight == 0 {
		v.Kind = AdminIsDeactivated
		return v, false
	}
	if maxWeight >= authority {
		v.Kind = AdminIsCentralizedEOA
		return v, true
	}

	// True multisig: count how many of the heaviest signers must cooperate.
	sort.Slice(weights, func(i, j int) bool { return weights[i] > weights[j] })
	var sum uint32
	for i, w := range weights {
		sum += w
		if sum >= authority {
			v.Kind = AdminIsMultisigEOA
			v.Evidence.RequiredSigners = i + 1
			return v, false
		}
	}
	// Even all signers together cannot authorize anything.
	v.Kind = AdminIsDeactivated
	return v, false
}

// frequency classifies a centralized account by its tightest consecutive
// ledger gap. The history arrives in whatever order Horizon served it; sort
// before differencing.
func (a *Analyzer) frequency(base Verdict, txs []horizon.Transaction) Verdict {
	base.Evidence.TransactionCount = len(txs)
	base.Evidence.HotGapLedgers = a.policy.HotGapLedgers

	if len(txs) < 2 {
		base.Kind = AdminIsCentralizedEOA
		base.Evidence.InsufficientHistory = true
		return base
	}

	ledgers := make([]uint32, len(txs))
	for i, tx := range txs {
		ledgers[i] = tx.Ledger
	}
	sort.Slice(ledgers, func(i, j int) bool { return ledgers[i] < ledgers[j] })

	minGap := ledgers[1] - ledgers[0]
	for i := 2; i < len(ledgers); i++ {
		if gap := ledgers[i] - ledgers[i-1]; gap < minGap {
			minGap = gap
		}
	}
	base.Evidence.MinLedgerGap = minGap

	logging.Logger().Debug("frequency analysis",
		"account", base.Admin, "transactions", len(txs), "min_gap", minGap, "threshold", a.policy.HotGapLedgers)

	if minGap < a.policy.HotGapLedgers {
		base.Kind = AdminIsLikelyHotWallet
	} else {
		base.Kind = AdminIsLikelyColdWallet
	}
	return base
}

// ContractVerdict is the terminal outcome for contract admins; no account
// analysis applies.
func ContractVerdict(admin ledger.Address) Verdict {
	return Verdict{Kind: AdminIsContract, Admin: admin.String()}
}
