// Package signer produces signed raw payloads for submitted transfers.
// The wallet core only consumes the Signer interface; key material never
// crosses into the ledger or the synchronizer.
package signer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// ErrUnknownSigner is returned when no key is available for the sender address.
var ErrUnknownSigner = errors.New("no key for sender address")

// Transfer is the value-level description of what to sign.
type Transfer struct {
	Sender    types.Address   `json:"sender"`
	Recipient types.Address   `json:"recipient"`
	Value     decimal.Decimal `json:"value"`
	Token     string          `json:"token"`
}

// Signer signs a transfer on behalf of its sender address and returns the
// raw payload ready for chain submission.
type Signer interface {
	SignTransfer(t Transfer) ([]byte, error)
}

// envelope is the wire form of a signed transfer: the canonical transfer
// body plus a Schnorr signature over its BLAKE3 digest.
type envelope struct {
	Transfer  Transfer `json:"transfer"`
	PublicKey []byte   `json:"public_key"`
	Signature []byte   `json:"signature"`
}

// signEnvelope hashes the canonical transfer encoding and wraps it with the
// signature and compressed public key.
func signEnvelope(t Transfer, key *crypto.PrivateKey) ([]byte, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}

	digest := crypto.Hash(body)
	sig, err := key.Sign(digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign transfer: %w", err)
	}

	raw, err := json.Marshal(envelope{
		Transfer:  t,
		PublicKey: key.PublicKey(),
		Signature: sig,
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return raw, nil
}

// VerifyPayload checks a raw payload's signature and that the embedded public
// key matches the declared sender. Used in tests and by anyone replaying
// payloads out of the ledger.
func VerifyPayload(raw []byte) (Transfer, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Transfer{}, fmt.Errorf("decode envelope: %w", err)
	}

	if crypto.AddressFromPubKey(env.PublicKey) != env.Transfer.Sender {
		return Transfer{}, errors.New("public key does not match sender")
	}

	body, err := json.Marshal(env.Transfer)
	if err != nil {
		return Transfer{}, fmt.Errorf("encode transfer: %w", err)
	}
	digest := crypto.Hash(body)
	if !crypto.VerifySignature(digest[:], env.Signature, env.PublicKey) {
		return Transfer{}, errors.New("invalid signature")
	}
	return env.Transfer, nil
}
