package signer

import (
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// HDSigner derives signing keys on demand from the wallet's master seed.
// It keeps an address-to-index map so a sender address can be resolved back
// to its derivation index without touching the ledger.
type HDSigner struct {
	mu      sync.RWMutex
	master  *wallet.HDKey
	indices map[types.Address]uint32
}

// NewHDSigner creates a signer over the master seed. The seed is read-only
// and used only to rebuild the master key once.
func NewHDSigner(seed []byte) (*HDSigner, error) {
	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	return &HDSigner{
		master:  master,
		indices: make(map[types.Address]uint32),
	}, nil
}

// Register records that address was derived at index, making the signer able
// to sign for it. Called whenever an account is created or restored.
func (s *HDSigner) Register(acct wallet.Account) {
	s.mu.Lock()
	s.indices[acct.Address] = acct.Index
	s.mu.Unlock()
}

// SignTransfer derives the sender's key and produces the signed raw payload.
// The derived private key lives only for the duration of the call.
func (s *HDSigner) SignTransfer(t Transfer) ([]byte, error) {
	s.mu.RLock()
	index, ok := s.indices[t.Sender]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSigner, t.Sender)
	}

	child, err := s.master.DeriveAccountKey(index)
	if err != nil {
		return nil, err
	}

	key, err := child.Signer()
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	return signEnvelope(t, key)
}
