package wallet

import (
	"errors"
	"fmt"

	"github.com/tyler-smith/go-bip32"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// ErrDerivation indicates a malformed seed or derivation index. It is fatal
// to the calling operation, never to the process.
var ErrDerivation = errors.New("derivation failed")

// Account is a derived wallet account: a derivation index and the address
// deterministically produced for it. Immutable once derived.
type Account struct {
	Index   uint32        `json:"index"`
	Address types.Address `json:"address"`
}

// Derive produces the account at the given index from a master seed.
// Pure and deterministic: the same (seed, index) pair always yields the same
// address, and it holds no state, so concurrent calls are safe.
func Derive(seed []byte, index uint32) (Account, error) {
	if index >= bip32.FirstHardenedChild {
		return Account{}, fmt.Errorf("%w: index %d out of range", ErrDerivation, index)
	}

	master, err := NewMasterKey(seed)
	if err != nil {
		return Account{}, err
	}

	child, err := master.DeriveAccountKey(index)
	if err != nil {
		return Account{}, err
	}

	return Account{Index: index, Address: child.Address()}, nil
}
