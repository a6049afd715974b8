// Package chainsync reconciles local wallet state with the chain without
// blocking user-issued commands.
package chainsync

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

var (
	// ErrUnavailable means the chain collaborator cannot be reached right
	// now. Callers treat it as "stale data, retry later", never as fatal:
	// local state is untouched when it is returned.
	ErrUnavailable = errors.New("chain access unavailable")

	// ErrReceiptNotFound means the chain has not seen the transaction yet.
	// The transaction stays pending; this is an expected outcome, not a fault.
	ErrReceiptNotFound = errors.New("receipt not found")
)

// ReceiptStatus is the chain-side verdict on a transaction.
type ReceiptStatus int

const (
	// ReceiptSuccess means the transaction was included and succeeded.
	ReceiptSuccess ReceiptStatus = iota
	// ReceiptRejected means the chain definitively rejected the transaction.
	ReceiptRejected
)

// Receipt is the on-chain execution result for a transaction.
type Receipt struct {
	Status      ReceiptStatus
	BlockHash   types.Hash
	BlockHeight uint64
	// Reason carries the rejection reason for ReceiptRejected.
	Reason string
}

// ChainAccess is the external collaborator providing balance queries,
// receipt lookups and raw transaction submission. Implementations may block
// on the network; every method takes a context for cancellation.
type ChainAccess interface {
	// GetBalance returns the current balance of address for the given asset.
	GetBalance(ctx context.Context, address types.Address, symbol string) (decimal.Decimal, error)

	// GetTransactionReceipt looks the transaction up by its chain hash.
	// Returns ErrReceiptNotFound while the transaction is unseen.
	GetTransactionReceipt(ctx context.Context, hash types.Hash) (Receipt, error)

	// SendRawTransaction submits a signed raw payload and returns the
	// chain-side transaction hash.
	SendRawTransaction(ctx context.Context, payload []byte) (types.Hash, error)
}
