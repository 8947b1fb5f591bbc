package ledger

import (
	"encoding/base32"
	"errors"
	"fmt"
)

// AddressKind discriminates the two identity kinds an admin value can decode
// to. There is deliberately no third case.
type AddressKind int32

const (
	KindAccount AddressKind = iota
	KindContract
)

func (k AddressKind) String() string {
	if k == KindContract {
		return "contract"
	}
	return "account"
}

// Address is a Stellar identity: an ed25519 account key or a contract id,
// both 32 raw bytes rendered as strkey (G... / C...).
type Address struct {
	Kind AddressKind
	Raw  [32]byte
}

// strkey version bytes, per SEP-23.
const (
	versionAccount  byte = 6 << 3 // 'G'
	versionContract byte = 2 << 3 // 'C'
)

var strkeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

var (
	ErrBadAddress = errors.New("malformed address")
)

func AccountAddress(raw [32]byte) Address  { return Address{Kind: KindAccount, Raw: raw} }
func ContractAddress(raw [32]byte) Address { return Address{Kind: KindContract, Raw: raw} }

func (a Address) IsAccount() bool  { return a.Kind == KindAccount }
func (a Address) IsContract() bool { return a.Kind == KindContract }

// String renders the strkey form: version byte, 32 payload bytes and a
// little-endian CRC16-XModem checksum, base32 without padding.
func (a Address) String() string {
	version := versionAccount
	if a.Kind == KindContract {
		version = versionContract
	}
	payload := make([]byte, 0, 35)
	payload = append(payload, version)
	payload = append(payload, a.Raw[:]...)
	crc := crc16XModem(payload)
	payload = append(payload, byte(crc), byte(crc>>8))
	return strkeyEncoding.EncodeToString(payload)
}

// ParseAddress decodes a strkey account (G...) or contract (C...) address.
func ParseAddress(s string) (Address, error) {
	if len(s) != 56 {
		return Address{}, fmt.Errorf("%w: want 56 chars, got %d", ErrBadAddress, len(s))
	}
	raw, err := strkeyEncoding.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	if len(raw) != 35 {
		return Address{}, fmt.Errorf("%w: bad payload length %d", ErrBadAddress, len(raw))
	}
	body, sum := raw[:33], raw[33:]
	if crc := crc16XModem(body); sum[0] != byte(crc) || sum[1] != byte(crc>>8) {
		return Address{}, fmt.Errorf("%w: checksum mismatch", ErrBadAddress)
	}
	var a Address
	switch body[0] {
	case versionAccount:
		a.Kind = KindAccount
	case versionContract:
		a.Kind = KindContract
	default:
		return Address{}, fmt.Errorf("%w: unsupported version byte %#x", ErrBadAddress, body[0])
	}
	copy(a.Raw[:], body[1:])
	return a, nil
}

// crc16XModem is the checksum strkey uses (poly 0x1021, init 0).
func crc16XModem(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
