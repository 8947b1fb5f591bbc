package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AIAleph/admin_wallet_audit/internal/ledger"
	"github.com/AIAleph/admin_wallet_audit/internal/logging"
	"github.com/AIAleph/admin_wallet_audit/internal/soroban"
)

// Package resolve locates a contract's declared admin identity. Contracts
// written against different SDK generations store the same logical key under
// different encodings and in different scopes, so resolution probes an
// ordered candidate set across instance storage first, persistent second.

var (
	// ErrAdminNotFound: no storage entry matched any candidate key in either
	// scope.
	ErrAdminNotFound = errors.New("admin not found")
	// ErrAdminDecode: an entry matched but its value does not unwrap to an
	// account or contract identity.
	ErrAdminDecode = errors.New("admin value decode failed")
	// ErrAdminConflict: several distinct persistent entries matched different
	// candidate keys; the admin slot is ambiguous.
	ErrAdminConflict = errors.New("multiple admin entries found")
)

// maxUnwrapDepth bounds the container-unwrapping loop in DecodeAdmin. Real
// contracts nest at most address-in-vec-in-map; anything deeper is malformed.
const maxUnwrapDepth = 8

// CandidateKeys builds the ordered storage-key encodings probed for a logical
// key name. Case mutations of the name come first-level (lower, UPPER,
// Capitalized), and for each mutation three encodings are emitted in priority
// order: Symbol, enum variant (unit variant as a one-element vec of the
// symbol), plain string. Duplicates from case-insensitive names collapse.
func CandidateKeys(name string) []ledger.Val {
	out := make([]ledger.Val, 0, 9)
	for _, m := range mutations(name) {
		out = append(out,
			ledger.SymbolVal(m),
			ledger.VecVal(ledger.SymbolVal(m)),
			ledger.StringVal(m),
		)
	}
	return out
}

func mutations(name string) []string {
	lower := strings.ToLower(name)
	upper := strings.ToUpper(name)
	capitalized := lower
	if len(lower) > 0 {
		capitalized = strings.ToUpper(lower[:1]) + lower[1:]
	}
	muts := make([]string, 0, 3)
	for _, m := range []string{lower, upper, capitalized} {
		dup := false
		for _, have := range muts {
			if have == m {
				dup = true
				break
			}
		}
		if !dup {
			muts = append(muts, m)
		}
	}
	return muts
}

// DecodeAdmin unwraps a raw storage value down to its terminal identity.
// Unwrapping is iterative and bounded: a one-element vec yields its element,
// a one-element map yields its value, an address terminates. Re-decoding a
// terminal value returns it unchanged.
func DecodeAdmin(v ledger.Val) (ledger.Address, error) {
	cur := v
	for depth := 0; depth < maxUnwrapDepth; depth++ {
		switch cur.Type {
		case ledger.TypeAddress:
			return cur.Addr, nil
		case ledger.TypeVec:
			if len(cur.Vec) != 1 {
				return ledger.Address{}, fmt.Errorf("%w: vec of %d elements at depth %d", ErrAdminDecode, len(cur.Vec), depth)
			}
			cur = cur.Vec[0]
		case ledger.TypeMap:
			if len(cur.Map) != 1 {
				return ledger.Address{}, fmt.Errorf("%w: map of %d entries at depth %d", ErrAdminDecode, len(cur.Map), depth)
			}
			cur = cur.Map[0].Val
		default:
			return ledger.Address{}, fmt.Errorf("%w: terminal %s value at depth %d", ErrAdminDecode, cur.Type, depth)
		}
	}
	return ledger.Address{}, fmt.Errorf("%w: nesting deeper than %d layers", ErrAdminDecode, maxUnwrapDepth)
}

// Resolver finds admin identities through a ledger-data client.
type Resolver struct {
	rpc soroban.Client
}

func New(rpc soroban.Client) *Resolver { return &Resolver{rpc: rpc} }

// Admin resolves the admin identity of target under the logical key name.
// A target that is itself an account address is already the identity.
func (r *Resolver) Admin(ctx context.Context, target ledger.Address, keyName string) (ledger.Address, error) {
	if target.IsAccount() {
		return target, nil
	}

	candidates := CandidateKeys(keyName)

	instance, err := r.rpc.InstanceStorage(ctx, target)
	if err != nil {
		return ledger.Address{}, fmt.Errorf("resolve %q on %s: instance storage: %w", keyName, target, err)
	}
	for _, cand := range candidates {
		for _, entry := range instance {
			if entry.Key.Equal(cand) {
				admin, err := DecodeAdmin(entry.Val)
				if err != nil {
					return ledger.Address{}, fmt.Errorf("resolve %q on %s (instance): %w", keyName, target, err)
				}
				return admin, nil
			}
		}
	}

	logging.Logger().Debug("admin key not in instance storage, probing persistent",
		"contract", target.String(), "key", keyName)

	entries, err := r.rpc.PersistentEntries(ctx, target, candidates)
	if err != nil {
		return ledger.Address{}, fmt.Errorf("resolve %q on %s: persistent storage: %w", keyName, target, err)
	}
	switch len(entries) {
	case 0:
		return ledger.Address{}, fmt.Errorf("resolve %q on %s: %w", keyName, target, ErrAdminNotFound)
	case 1:
	default:
		return ledger.Address{}, fmt.Errorf("resolve %q on %s: %w (%d entries)", keyName, target, ErrAdminConflict, len(entries))
	}
	admin, err := DecodeAdmin(entries[0].Val)
	if err != nil {
		return ledger.Address{}, fmt.Errorf("resolve %q on %s (persistent): %w", keyName, target, err)
	}
	return admin, nil
}
