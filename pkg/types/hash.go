package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash represents a 256-bit hash value, used for transaction identifiers
// on the chain side.
type Hash [HashSize]byte

// ParseHash decodes a hex string (with or without "0x" prefix) into a hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw := strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(raw) != HashSize*2 {
		return h, fmt.Errorf("hash must be %d hex chars, got %d", HashSize*2, len(raw))
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return h, fmt.Errorf("decode hash: %w", err)
	}
	copy(h[:], b)
	return h, nil
}

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the "0x"-prefixed hex encoding.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
