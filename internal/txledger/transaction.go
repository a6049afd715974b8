// Package txledger keeps the append-only ledger of submitted transfers and
// drives each record through its lifecycle.
package txledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Transaction is one submitted transfer. Records reference assets and
// accounts by value (symbol and address strings), never by live reference,
// so untracking an asset leaves history intact.
type Transaction struct {
	// ID is the wallet-local identifier, assigned at submission.
	ID string `json:"id"`

	// Seq is the submission counter, assigned at submission and persisted so
	// listing order survives reloads even when CreatedAt collides.
	Seq uint64 `json:"seq"`

	// Hash is the chain-side transaction id. Zero until the raw payload has
	// been accepted by a node.
	Hash types.Hash `json:"hash"`

	Sender    types.Address   `json:"sender"`
	Recipient types.Address   `json:"recipient"`
	Value     decimal.Decimal `json:"value"`
	Token     string          `json:"token"`

	Status Status `json:"status"`
	// Reason carries the collaborator-supplied rejection reason for failed
	// transactions.
	Reason string `json:"reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Broadcast reports whether the transaction has a chain-side hash yet.
func (t Transaction) Broadcast() bool {
	return !t.Hash.IsZero()
}
