package ledger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// XDR framing for the slice of the ledger the auditor touches: ScVal trees,
// ScAddress, contract-data ledger keys and contract-data ledger entries.
// Big-endian, 4-byte alignment, length-prefixed variable data per RFC 4506.

// Durability selects the contract-data storage scope on chain.
type Durability int32

const (
	DurabilityTemporary Durability = iota
	DurabilityPersistent
)

// ContractData is the decoded form of a CONTRACT_DATA ledger entry.
type ContractData struct {
	Contract   Address
	Key        Val
	Durability Durability
	Val        Val
}

const (
	ledgerEntryTypeContractData = 6
	scAddressTypeAccount        = 0
	scAddressTypeContract       = 1
	publicKeyTypeEd25519        = 0
)

var ErrXDR = errors.New("xdr decode")

// --- encoding ---

type xdrWriter struct {
	buf bytes.Buffer
}

func (w *xdrWriter) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *xdrWriter) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *xdrWriter) i32(v int32) { w.u32(uint32(v)) }
func (w *xdrWriter) i64(v int64) { w.u64(uint64(v)) }

func (w *xdrWriter) fixed(b []byte) { w.buf.Write(b) }

func (w *xdrWriter) opaque(b []byte) {
	w.u32(uint32(len(b)))
	w.buf.Write(b)
	if pad := len(b) % 4; pad != 0 {
		w.buf.Write(make([]byte, 4-pad))
	}
}

func (w *xdrWriter) address(a Address) {
	if a.Kind == KindContract {
		w.u32(scAddressTypeContract)
		w.fixed(a.Raw[:])
		return
	}
	w.u32(scAddressTypeAccount)
	w.u32(publicKeyTypeEd25519)
	w.fixed(a.Raw[:])
}

func (w *xdrWriter) val(v Val) error {
	w.i32(int32(v.Type))
	switch v.Type {
	case TypeBool:
		if v.Bool {
			w.u32(1)
		} else {
			w.u32(0)
		}
	case TypeVoid, TypeLedgerKeyContractInstance:
		// no body
	case TypeError:
		w.u32(uint32(v.U64 >> 32))
		w.u32(uint32(v.U64))
	case TypeU32:
		w.u32(v.U32)
	case TypeI32:
		w.i32(v.I32)
	case TypeU64, TypeTimepoint, TypeDuration:
		w.u64(v.U64)
	case TypeI64, TypeLedgerKeyNonce:
		w.i64(v.I64)
	case TypeU128, TypeI128:
		return w.fixedBig(v.Big, 16)
	case TypeU256, TypeI256:
		return w.fixedBig(v.Big, 32)
	case TypeBytes:
		w.opaque(v.Bytes)
	case TypeString, TypeSymbol:
		w.opaque([]byte(v.Str))
	case TypeVec:
		w.u32(1) // option present
		w.u32(uint32(len(v.Vec)))
		for _, e := range v.Vec {
			if err := w.val(e); err != nil {
				return err
			}
		}
	case TypeMap:
		w.u32(1)
		w.u32(uint32(len(v.Map)))
		for _, e := range v.Map {
			if err := w.val(e.Key); err != nil {
				return err
			}
			if err := w.val(e.Val); err != nil {
				return err
			}
		}
	case TypeAddress:
		w.address(v.Addr)
	case TypeContractInstance:
		if v.Instance == nil {
			return fmt.Errorf("encode: contract instance value without instance body")
		}
		if v.Instance.Executable.Kind == ExecutableStellarAsset {
			w.u32(1)
		} else {
			w.u32(0)
			w.fixed(v.Instance.Executable.WasmHash[:])
		}
		if v.Instance.Storage == nil {
			w.u32(0)
		} else {
			w.u32(1)
			w.u32(uint32(len(v.Instance.Storage)))
			for _, e := range v.Instance.Storage {
				if err := w.val(e.Key); err != nil {
					return err
				}
				if err := w.val(e.Val); err != nil {
					return err
				}
			}
		}
	default:
		return fmt.Errorf("encode: unsupported value type %s", v.Type)
	}
	return nil
}

func (w *xdrWriter) fixedBig(b []byte, n int) error {
	if len(b) != n {
		return fmt.Errorf("encode: want %d-byte payload, got %d", n, len(b))
	}
	w.fixed(b)
	return nil
}

// EncodeVal serializes an ScVal tree.
func EncodeVal(v Val) ([]byte, error) {
	var w xdrWriter
	if err := w.val(v); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

// ContractDataKeyXDR builds the LedgerKey for one contract-data slot. This is
// what getLedgerEntries expects, base64'd by the transport.
func ContractDataKeyXDR(contract Address, key Val, d Durability) ([]byte, error) {
	var w xdrWriter
	w.u32(ledgerEntryTypeContractData)
	w.address(contract)
	if err := w.val(key); err != nil {
		return nil, err
	}
	w.i32(int32(d))
	return w.buf.Bytes(), nil
}

// InstanceKeyXDR is the LedgerKey of the contract's instance entry, which
// always lives in persistent scope.
func InstanceKeyXDR(contract Address) ([]byte, error) {
	return ContractDataKeyXDR(contract, InstanceKeyVal(), DurabilityPersistent)
}

// EncodeContractData serializes a CONTRACT_DATA LedgerEntryData. The RPC
// server produces these; the auditor only encodes them in tests.
func EncodeContractData(d ContractData) ([]byte, error) {
	var w xdrWriter
	w.u32(ledgerEntryTypeContractData)
	w.u32(0) // ext: void
	w.address(d.Contract)
	if err := w.val(d.Key); err != nil {
		return nil, err
	}
	w.i32(int32(d.Durability))
	if err := w.val(d.Val); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

// --- decoding ---

type xdrReader struct {
	b   []byte
	off int
}

func (r *xdrReader) remaining() int { return len(r.b) - r.off }

func (r *xdrReader) take(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("%w: truncated at offset %d (need %d bytes)", ErrXDR, r.off, n)
	}
	b := r.b[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *xdrReader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *xdrReader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *xdrReader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *xdrReader) opaque() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if int(n) > r.remaining() {
		return nil, fmt.Errorf("%w: opaque length %d exceeds input", ErrXDR, n)
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	if pad := int(n) % 4; pad != 0 {
		if _, err := r.take(4 - pad); err != nil {
			return nil, err
		}
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// count guards vector lengths against malformed input: every element needs at
// least 4 bytes of discriminant, so a count larger than that bound is bogus.
func (r *xdrReader) count() (int, error) {
	n, err := r.u32()
	if err != nil {
		return 0, err
	}
	if int(n) > r.remaining()/4 {
		return 0, fmt.Errorf("%w: element count %d exceeds input", ErrXDR, n)
	}
	return int(n), nil
}

func (r *xdrReader) address() (Address, error) {
	kind, err := r.u32()
	if err != nil {
		return Address{}, err
	}
	var a Address
	switch kind {
	case scAddressTypeAccount:
		pk, err := r.u32()
		if err != nil {
			return Address{}, err
		}
		if pk != publicKeyTypeEd25519 {
			return Address{}, fmt.Errorf("%w: unsupported public key type %d", ErrXDR, pk)
		}
		a.Kind = KindAccount
	case scAddressTypeContract:
		a.Kind = KindContract
	default:
		return Address{}, fmt.Errorf("%w: unsupported ScAddress type %d", ErrXDR, kind)
	}
	raw, err := r.take(32)
	if err != nil {
		return Address{}, err
	}
	copy(a.Raw[:], raw)
	return a, nil
}

func (r *xdrReader) val() (Val, error) {
	disc, err := r.i32()
	if err != nil {
		return Val{}, err
	}
	v := Val{Type: ValType(disc)}
	switch v.Type {
	case TypeBool:
		b, err := r.u32()
		if err != nil {
			return Val{}, err
		}
		v.Bool = b != 0
	case TypeVoid, TypeLedgerKeyContractInstance:
		// no body
	case TypeError:
		errType, err := r.u32()
		if err != nil {
			return Val{}, err
		}
		code, err := r.u32()
		if err != nil {
			return Val{}, err
		}
		v.U64 = uint64(errType)<<32 | uint64(code)
	case TypeU32:
		if v.U32, err = r.u32(); err != nil {
			return Val{}, err
		}
	case TypeI32:
		if v.I32, err = r.i32(); err != nil {
			return Val{}, err
		}
	case TypeU64, TypeTimepoint, TypeDuration:
		if v.U64, err = r.u64(); err != nil {
			return Val{}, err
		}
	case TypeI64, TypeLedgerKeyNonce:
		u, err := r.u64()
		if err != nil {
			return Val{}, err
		}
		v.I64 = int64(u)
	case TypeU128, TypeI128:
		b, err := r.take(16)
		if err != nil {
			return Val{}, err
		}
		v.Big = append([]byte(nil), b...)
	case TypeU256, TypeI256:
		b, err := r.take(32)
		if err != nil {
			return Val{}, err
		}
		v.Big = append([]byte(nil), b...)
	case TypeBytes:
		if v.Bytes, err = r.opaque(); err != nil {
			return Val{}, err
		}
	case TypeString, TypeSymbol:
		b, err := r.opaque()
		if err != nil {
			return Val{}, err
		}
		v.Str = string(b)
	case TypeVec:
		present, err := r.u32()
		if err != nil {
			return Val{}, err
		}
		if present == 0 {
			break
		}
		n, err := r.count()
		if err != nil {
			return Val{}, err
		}
		v.Vec = make([]Val, 0, n)
		for i := 0; i < n; i++ {
			e, err := r.val()
			if err != nil {
				return Val{}, err
			}
			v.Vec = append(v.Vec, e)
		}
	case TypeMap:
		present, err := r.u32()
		if err != nil {
			return Val{}, err
		}
		if present == 0 {
			break
		}
		if v.Map, err = r.mapEntries(); err != nil {
			return Val{}, err
		}
	case TypeAddress:
		if v.Addr, err = r.address(); err != nil {
			return Val{}, err
		}
	case TypeContractInstance:
		inst := &ContractInstance{}
		execKind, err := r.u32()
		if err != nil {
			return Val{}, err
		}
		switch execKind {
		case 0:
			inst.Executable.Kind = ExecutableWasm
			h, err := r.take(32)
			if err != nil {
				return Val{}, err
			}
			copy(inst.Executable.WasmHash[:], h)
		case 1:
			inst.Executable.Kind = ExecutableStellarAsset
		default:
			return Val{}, fmt.Errorf("%w: unsupported executable kind %d", ErrXDR, execKind)
		}
		present, err := r.u32()
		if err != nil {
			return Val{}, err
		}
		if present != 0 {
			if inst.Storage, err = r.mapEntries(); err != nil {
				return Val{}, err
			}
		}
		v.Instance = inst
	default:
		return Val{}, fmt.Errorf("%w: unsupported ScVal type %d", ErrXDR, disc)
	}
	return v, nil
}

func (r *xdrReader) mapEntries() ([]MapEntry, error) {
	n, err := r.count()
	if err != nil {
		return nil, err
	}
	entries := make([]MapEntry, 0, n)
	for i := 0; i < n; i++ {
		k, err := r.val()
		if err != nil {
			return nil, err
		}
		v, err := r.val()
		if err != nil {
			return nil, err
		}
		entries = append(entries, MapEntry{Key: k, Val: v})
	}
	return entries, nil
}

// DecodeVal parses a single ScVal and requires the input to be fully
// consumed.
func DecodeVal(b []byte) (Val, error) {
	r := xdrReader{b: b}
	v, err := r.val()
	if err != nil {
		return Val{}, err
	}
	if r.remaining() != 0 {
		return Val{}, fmt.Errorf("%w: %d trailing bytes after value", ErrXDR, r.remaining())
	}
	return v, nil
}

// DecodeContractData parses a LedgerEntryData and requires it to be a
// CONTRACT_DATA entry.
func DecodeContractData(b []byte) (ContractData, error) {
	r := xdrReader{b: b}
	entryType, err := r.u32()
	if err != nil {
		return ContractData{}, err
	}
	if entryType != ledgerEntryTypeContractData {
		return ContractData{}, fmt.Errorf("%w: ledger entry type %d is not contract data", ErrXDR, entryType)
	}
	ext, err := r.u32()
	if err != nil {
		return ContractData{}, err
	}
	if ext != 0 {
		return ContractData{}, fmt.Errorf("%w: unsupported contract data extension %d", ErrXDR, ext)
	}
	var d ContractData
	if d.Contract, err = r.address(); err != nil {
		return ContractData{}, err
	}
	if d.Key, err = r.val(); err != nil {
		return ContractData{}, err
	}
	dur, err := r.i32()
	if err != nil {
		return ContractData{}, err
	}
	d.Durability = Durability(dur)
	if d.Val, err = r.val(); err != nil {
		return ContractData{}, err
	}
	if r.remaining() != 0 {
		return ContractData{}, fmt.Errorf("%w: %d trailing bytes after entry", ErrXDR, r.remaining())
	}
	return d, nil
}
