package txledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

var (
	// ErrUnknownTransaction is returned for an id that was never submitted.
	ErrUnknownTransaction = errors.New("unknown transaction")

	// ErrInvalidValue is returned when submitting a non-positive transfer value.
	ErrInvalidValue = errors.New("invalid transfer value")

	// ErrAlreadyFinalized reports an attempted transition out of a terminal
	// state. It is benign: the record is left untouched and callers treat it
	// as a no-op, not a failure.
	ErrAlreadyFinalized = errors.New("transaction already finalized")

	// ErrAlreadyBroadcast is returned when recording a second, different
	// chain hash for the same transaction.
	ErrAlreadyBroadcast = errors.New("transaction already broadcast")
)

// Filter narrows List results. Zero-valued fields match everything.
type Filter struct {
	Sender    types.Address
	Recipient types.Address
	Token     string
}

// Tracker owns the append-only transaction ledger. Submit is the only entry
// point that creates records; status transitions run through MarkConfirmed
// and MarkFailed so monotonicity is enforced in one place. Safe for
// concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	txs     map[string]*Transaction
	nextSeq uint64
}

// NewTracker creates an empty transaction tracker.
func NewTracker() *Tracker {
	return &Tracker{
		txs: make(map[string]*Transaction),
	}
}

// Submit records a new pending transfer and returns the created record.
// Value must be strictly positive.
func (tr *Tracker) Submit(sender, recipient types.Address, value decimal.Decimal, token string) (Transaction, error) {
	if !value.IsPositive() {
		return Transaction{}, fmt.Errorf("%w: %s", ErrInvalidValue, value)
	}

	tx := &Transaction{
		ID:        uuid.NewString(),
		Sender:    sender,
		Recipient: recipient,
		Value:     value,
		Token:     token,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	tr.mu.Lock()
	tx.Seq = tr.nextSeq
	tr.nextSeq++
	tr.txs[tx.ID] = tx
	tr.mu.Unlock()

	log.Tx.Info().
		Str("id", tx.ID).
		Str("token", token).
		Str("value", value.String()).
		Str("recipient", recipient.String()).
		Msg("transaction submitted")
	return *tx, nil
}

// Get returns a copy of the record with the given id.
func (tr *Tracker) Get(id string) (Transaction, error) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	tx, ok := tr.txs[id]
	if !ok {
		return Transaction{}, fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	return *tx, nil
}

// MarkBroadcast records the chain-side hash returned when the raw payload
// was accepted by a node. Re-recording the same hash is a no-op; recording a
// different one is refused.
func (tr *Tracker) MarkBroadcast(id string, hash types.Hash) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tx, ok := tr.txs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	if tx.Hash == hash {
		return nil
	}
	if !tx.Hash.IsZero() {
		return fmt.Errorf("%w: %s has hash %s", ErrAlreadyBroadcast, id, tx.Hash)
	}

	tx.Hash = hash
	log.Tx.Debug().Str("id", id).Str("hash", hash.String()).Msg("transaction broadcast")
	return nil
}

// MarkConfirmed moves a pending transaction to confirmed. Confirming an
// already-confirmed transaction is a silent no-op so duplicate receipt
// notifications are harmless; confirming a failed one reports
// ErrAlreadyFinalized without touching the record.
func (tr *Tracker) MarkConfirmed(id string) error {
	return tr.finalize(id, StatusConfirmed, "")
}

// MarkFailed moves a pending transaction to failed with the collaborator's
// rejection reason. Idempotent like MarkConfirmed.
func (tr *Tracker) MarkFailed(id, reason string) error {
	return tr.finalize(id, StatusFailed, reason)
}

func (tr *Tracker) finalize(id string, target Status, reason string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tx, ok := tr.txs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}

	if tx.Status == target {
		return nil // Duplicate notification of the same terminal state.
	}
	if tx.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyFinalized, id, tx.Status)
	}

	tx.Status = target
	tx.Reason = reason

	evt := log.Tx.Info().Str("id", id).Str("status", string(target))
	if reason != "" {
		evt = evt.Str("reason", reason)
	}
	evt.Msg("transaction finalized")
	return nil
}

// List returns a fresh snapshot of matching transactions ordered by
// CreatedAt ascending, with the persisted submission counter breaking ties.
func (tr *Tracker) List(f Filter) []Transaction {
	tr.mu.RLock()
	out := make([]Transaction, 0, len(tr.txs))
	for _, tx := range tr.txs {
		if !f.Sender.IsZero() && tx.Sender != f.Sender {
			continue
		}
		if !f.Recipient.IsZero() && tx.Recipient != f.Recipient {
			continue
		}
		if f.Token != "" && tx.Token != f.Token {
			continue
		}
		out = append(out, *tx)
	}
	tr.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Pending returns transactions that are not yet finalized, oldest first.
// Used by the synchronizer to decide what to broadcast and poll.
func (tr *Tracker) Pending() []Transaction {
	all := tr.List(Filter{})
	out := all[:0]
	for _, tx := range all {
		if tx.Status == StatusPending {
			out = append(out, tx)
		}
	}
	return out
}

// restore replays a persisted record. Used by Store.Load only.
func (tr *Tracker) restore(tx Transaction) error {
	if tx.ID == "" || !tx.Status.Valid() {
		return fmt.Errorf("malformed transaction record %q", tx.ID)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	if _, ok := tr.txs[tx.ID]; ok {
		return fmt.Errorf("duplicate transaction record %s", tx.ID)
	}
	cp := tx
	tr.txs[tx.ID] = &cp
	if tx.Seq >= tr.nextSeq {
		tr.nextSeq = tx.Seq + 1
	}
	return nil
}
