package ledger

import (
	"bytes"
	"fmt"
)

// Package ledger models the subset of Stellar ledger values the auditor
// works with: Soroban contract values (ScVal), strkey addresses and the XDR
// framing used by contract-data ledger entries. Values are plain Go data;
// construction never allocates network resources.

// ValType tags a Val with its Soroban value form. The numeric order matches
// the on-chain ScValType discriminants so the XDR codec can switch on it
// directly.
type ValType int32

const (
	TypeBool ValType = iota
	TypeVoid
	TypeError
	TypeU32
	TypeI32
	TypeU64
	TypeI64
	TypeTimepoint
	TypeDuration
	TypeU128
	TypeI128
	TypeU256
	TypeI256
	TypeBytes
	TypeString
	TypeSymbol
	TypeVec
	TypeMap
	TypeAddress
	TypeContractInstance
	TypeLedgerKeyContractInstance
	TypeLedgerKeyNonce
)

func (t ValType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeVoid:
		return "void"
	case TypeError:
		return "error"
	case TypeU32:
		return "u32"
	case TypeI32:
		return "i32"
	case TypeU64:
		return "u64"
	case TypeI64:
		return "i64"
	case TypeTimepoint:
		return "timepoint"
	case TypeDuration:
		return "duration"
	case TypeU128:
		return "u128"
	case TypeI128:
		return "i128"
	case TypeU256:
		return "u256"
	case TypeI256:
		return "i256"
	case TypeBytes:
		return "bytes"
	case TypeString:
		return "string"
	case TypeSymbol:
		return "symbol"
	case TypeVec:
		return "vec"
	case TypeMap:
		return "map"
	case TypeAddress:
		return "address"
	case TypeContractInstance:
		return "contract-instance"
	case TypeLedgerKeyContractInstance:
		return "ledger-key-contract-instance"
	case TypeLedgerKeyNonce:
		return "ledger-key-nonce"
	}
	return fmt.Sprintf("valtype(%d)", int32(t))
}

// Val is a tagged union over the Soroban value forms. Only the field matching
// Type is meaningful; the zero Val is a valid false Bool but callers should
// construct values through the helpers below.
type Val struct {
	Type ValType

	Bool bool
	U32  uint32
	I32  int32
	U64  uint64 // also timepoint, duration and the packed error words
	I64  int64  // also ledger-key nonce

	// Big holds the raw big-endian payload of 128/256-bit integers.
	Big []byte

	Bytes []byte
	Str   string // string and symbol payloads

	Vec []Val
	Map []MapEntry

	Addr     Address
	Instance *ContractInstance
}

// MapEntry is one key/value pair of an ScMap.
type MapEntry struct {
	Key Val
	Val Val
}

// ContractInstance is the value stored under a contract's instance key:
// its executable reference plus the instance-scope storage map.
type ContractInstance struct {
	Executable Executable
	Storage    []MapEntry
}

// ExecutableKind discriminates contract executables.
type ExecutableKind int32

const (
	ExecutableWasm ExecutableKind = iota
	ExecutableStellarAsset
)

// Executable references what a contract runs: a Wasm hash or the built-in
// Stellar Asset Contract.
type Executable struct {
	Kind     ExecutableKind
	WasmHash [32]byte
}

func BoolVal(b bool) Val       { return Val{Type: TypeBool, Bool: b} }
func VoidVal() Val             { return Val{Type: TypeVoid} }
func U32Val(v uint32) Val      { return Val{Type: TypeU32, U32: v} }
func I32Val(v int32) Val       { return Val{Type: TypeI32, I32: v} }
func U64Val(v uint64) Val      { return Val{Type: TypeU64, U64: v} }
func I64Val(v int64) Val       { return Val{Type: TypeI64, I64: v} }
func BytesVal(b []byte) Val    { return Val{Type: TypeBytes, Bytes: b} }
func StringVal(s string) Val   { return Val{Type: TypeString, Str: s} }
func SymbolVal(s string) Val   { return Val{Type: TypeSymbol, Str: s} }
func VecVal(elems ...Val) Val  { return Val{Type: TypeVec, Vec: elems} }
func AddressVal(a Address) Val { return Val{Type: TypeAddress, Addr: a} }

func MapVal(entries ...MapEntry) Val { return Val{Type: TypeMap, Map: entries} }

// InstanceKeyVal is the ScVal ledger key under which a contract's instance
// entry lives.
func InstanceKeyVal() Val { return Val{Type: TypeLedgerKeyContractInstance} }

// Equal reports deep structural equality of two values. Lookup against
// candidate storage keys uses this, so it must treat every field of the
// matching arm, not just the tag.
func (v Val) Equal(o Val) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeBool:
		return v.Bool == o.Bool
	case TypeVoid, TypeLedgerKeyContractInstance:
		return true
	case TypeError:
		return v.U64 == o.U64
	case TypeU32:
		return v.U32 == o.U32
	case TypeI32:
		return v.I32 == o.I32
	case TypeU64, TypeTimepoint, TypeDuration:
		return v.U64 == o.U64
	case TypeI64, TypeLedgerKeyNonce:
		return v.I64 == o.I64
	case TypeU128, TypeI128, TypeU256, TypeI256:
		return bytes.Equal(v.Big, o.Big)
	case TypeBytes:
		return bytes.Equal(v.Bytes, o.Bytes)
	case TypeString, TypeSymbol:
		return v.Str == o.Str
	case TypeVec:
		if len(v.Vec) != len(o.Vec) {
			return false
		}
		for i := range v.Vec {
			if !v.Vec[i].Equal(o.Vec[i]) {
				return false
			}
		}
		return true
	case TypeMap:
		if len(v.Map) != len(o.Map) {
			return false
		}
		for i := range v.Map {
			if !v.Map[i].Key.Equal(o.Map[i].Key) || !v.Map[i].Val.Equal(o.Map[i].Val) {
				return false
			}
		}
		return true
	case TypeAddress:
		return v.Addr == o.Addr
	case TypeContractInstance:
		if (v.Instance == nil) != (o.Instance == nil) {
			return false
		}
		if v.Instance == nil {
			return true
		}
		if v.Instance.Executable != o.Instance.Executable {
			return false
		}
		if len(v.Instance.Storage) != len(o.Instance.Storage) {
			return false
		}
		for i := range v.Instance.Storage {
			a, b := v.Instance.Storage[i], o.Instance.Storage[i]
			if !a.Key.Equal(b.Key) || !a.Val.Equal(b.Val) {
				return false
			}
		}
		return true
	}
	return false
}
