// Package types defines core primitive types shared across the wallet.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AddressSize is the length of an address in bytes.
const AddressSize = 20

// Address represents a 160-bit account address (public key hash).
type Address [AddressSize]byte

// ParseAddress decodes a "0x"-prefixed hex address string.
func ParseAddress(s string) (Address, error) {
	var addr Address
	raw := strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(raw) != AddressSize*2 {
		return addr, fmt.Errorf("address must be %d hex chars, got %d", AddressSize*2, len(raw))
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return addr, fmt.Errorf("decode address: %w", err)
	}
	copy(addr[:], b)
	return addr, nil
}

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the "0x"-prefixed hex encoding.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Bytes returns a copy of the address as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as a hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a hex string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
