package chainsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/txledger"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Config holds synchronizer timing knobs.
type Config struct {
	// RefreshInterval is the period between sync rounds in Run.
	RefreshInterval time.Duration
	// PollTimeout bounds a single receipt lookup. Exceeding it is
	// inconclusive: the transaction stays pending and is retried later.
	PollTimeout time.Duration
	// BackoffMin/BackoffMax bound the retry delay while the chain
	// collaborator is unavailable.
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// DefaultConfig returns conservative defaults for a desktop wallet.
func DefaultConfig() Config {
	return Config{
		RefreshInterval: 15 * time.Second,
		PollTimeout:     10 * time.Second,
		BackoffMin:      2 * time.Second,
		BackoffMax:      2 * time.Minute,
	}
}

// Synchronizer merges external chain truth into the asset ledger and the
// transaction tracker. It is the only writer of balances and transaction
// statuses; user commands never wait on it.
type Synchronizer struct {
	chain   ChainAccess
	ledger  *ledger.Ledger
	tracker *txledger.Tracker
	signer  signer.Signer
	breaker *gobreaker.CircuitBreaker
	cfg     Config

	assetMu *keyedMutex
	txMu    *keyedMutex
}

// New creates a synchronizer over the given collaborators.
func New(chain ChainAccess, l *ledger.Ledger, tr *txledger.Tracker, sg signer.Signer, cfg Config) *Synchronizer {
	if cfg.RefreshInterval <= 0 {
		cfg = DefaultConfig()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "chain-access",
		Timeout: cfg.BackoffMax,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// A missing receipt is an answer, not an outage.
			return err == nil || errors.Is(err, ErrReceiptNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Sync.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Synchronizer{
		chain:   chain,
		ledger:  l,
		tracker: tr,
		signer:  sg,
		breaker: breaker,
		cfg:     cfg,
		assetMu: newKeyedMutex(),
		txMu:    newKeyedMutex(),
	}
}

// RefreshBalances queries the chain for every account tracked under symbol
// and merges the results into the ledger. A failing account does not abort
// the others; after a partial failure the asset is flagged stale and no
// error escapes. Only when the collaborator is unreachable for every account
// does it return ErrUnavailable. Refreshes of the same asset are serialized.
func (s *Synchronizer) RefreshBalances(ctx context.Context, symbol string) error {
	unlock := s.assetMu.lock(symbol)
	defer unlock()

	asset, err := s.ledger.GetAsset(symbol)
	if err != nil {
		return err
	}

	var failures, outages int
	for _, acct := range asset.Accounts {
		if ctx.Err() != nil {
			s.ledger.MarkStale(symbol)
			return ctx.Err()
		}

		amount, err := s.getBalance(ctx, acct.Address, symbol)
		if err != nil {
			failures++
			if errors.Is(err, ErrUnavailable) {
				outages++
			}
			log.Sync.Warn().
				Str("symbol", symbol).
				Uint32("index", acct.Index).
				Err(err).
				Msg("balance query failed")
			continue
		}

		// A cancelled refresh must not half-apply: check again between the
		// network call and the write.
		if ctx.Err() != nil {
			s.ledger.MarkStale(symbol)
			return ctx.Err()
		}
		if err := s.ledger.ApplyBalance(symbol, acct.Index, amount); err != nil {
			failures++
			log.Sync.Warn().
				Str("symbol", symbol).
				Uint32("index", acct.Index).
				Err(err).
				Msg("balance update dropped")
		}
	}

	if failures == 0 {
		s.ledger.MarkSynced(symbol, time.Now().UTC())
		return nil
	}

	s.ledger.MarkStale(symbol)
	if len(asset.Accounts) > 0 && outages == len(asset.Accounts) {
		return fmt.Errorf("refresh %s: %w", symbol, ErrUnavailable)
	}
	return nil
}

// PollTransaction checks a transaction's on-chain fate. A successful receipt
// confirms it, a definitive rejection fails it, a missing receipt leaves it
// pending. A transaction that has not been broadcast yet is signed and sent
// first. Finalized transactions are left alone. Polls of the same
// transaction are serialized.
func (s *Synchronizer) PollTransaction(ctx context.Context, id string) error {
	unlock := s.txMu.lock(id)
	defer unlock()

	tx, err := s.tracker.Get(id)
	if err != nil {
		return err
	}
	if tx.Status.Terminal() {
		return nil
	}
	if !tx.Broadcast() {
		return s.broadcast(ctx, tx)
	}

	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	defer cancel()

	rcpt, err := s.getReceipt(pollCtx, tx.Hash)
	switch {
	case errors.Is(err, ErrReceiptNotFound):
		return nil // Still pending; the scheduler retries later.
	case errors.Is(err, context.DeadlineExceeded):
		// Inconclusive: never promote a timeout to failed.
		return fmt.Errorf("poll %s: %w", id, ErrUnavailable)
	case err != nil:
		return err
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	switch rcpt.Status {
	case ReceiptSuccess:
		err = s.tracker.MarkConfirmed(id)
	case ReceiptRejected:
		err = s.tracker.MarkFailed(id, rcpt.Reason)
	}
	if errors.Is(err, txledger.ErrAlreadyFinalized) {
		log.Sync.Debug().Str("id", id).Msg("late receipt for finalized transaction")
		return nil
	}
	return err
}

// broadcast signs the pending transfer and submits the raw payload. Node
// rejection is terminal; unreachability leaves the transaction pending for
// the next round.
func (s *Synchronizer) broadcast(ctx context.Context, tx txledger.Transaction) error {
	payload, err := s.signer.SignTransfer(signer.Transfer{
		Sender:    tx.Sender,
		Recipient: tx.Recipient,
		Value:     tx.Value,
		Token:     tx.Token,
	})
	if err != nil {
		// Signing failures are local and definitive.
		return s.tracker.MarkFailed(tx.ID, fmt.Sprintf("signing failed: %v", err))
	}

	hash, err := s.sendRaw(ctx, payload)
	if err != nil {
		if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("broadcast %s: %w", tx.ID, ErrUnavailable)
		}
		// The node answered and rejected the payload.
		return s.tracker.MarkFailed(tx.ID, err.Error())
	}

	return s.tracker.MarkBroadcast(tx.ID, hash)
}

// Run drives periodic sync rounds until ctx is cancelled, backing off
// exponentially while the chain collaborator is unavailable.
func (s *Synchronizer) Run(ctx context.Context) {
	bo := newBackoff(s.cfg.BackoffMin, s.cfg.BackoffMax)
	delay := s.cfg.RefreshInterval

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if s.syncOnce(ctx) {
			delay = bo.Next()
			log.Sync.Debug().Dur("delay", delay).Msg("chain unavailable, backing off")
		} else {
			bo.Reset()
			delay = s.cfg.RefreshInterval
		}
	}
}

// syncOnce runs one full round: every asset's balances, then every pending
// transaction. Reports whether the chain looked unavailable.
func (s *Synchronizer) syncOnce(ctx context.Context) (unavailable bool) {
	for _, asset := range s.ledger.ListAssets() {
		if ctx.Err() != nil {
			return unavailable
		}
		if err := s.RefreshBalances(ctx, asset.Symbol); err != nil {
			if errors.Is(err, ErrUnavailable) {
				unavailable = true
			}
		}
	}

	for _, tx := range s.tracker.Pending() {
		if ctx.Err() != nil {
			return unavailable
		}
		if err := s.PollTransaction(ctx, tx.ID); err != nil {
			if errors.Is(err, ErrUnavailable) {
				unavailable = true
			} else {
				log.Sync.Warn().Str("id", tx.ID).Err(err).Msg("poll failed")
			}
		}
	}
	return unavailable
}

// getBalance wraps the chain call in the circuit breaker.
func (s *Synchronizer) getBalance(ctx context.Context, address types.Address, symbol string) (decimal.Decimal, error) {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		return s.chain.GetBalance(ctx, address, symbol)
	})
	if err != nil {
		return decimal.Zero, s.mapBreakerErr(err)
	}
	return v.(decimal.Decimal), nil
}

// getReceipt wraps the chain call in the circuit breaker.
func (s *Synchronizer) getReceipt(ctx context.Context, hash types.Hash) (Receipt, error) {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		return s.chain.GetTransactionReceipt(ctx, hash)
	})
	if err != nil {
		if errors.Is(err, ErrReceiptNotFound) {
			return Receipt{}, err
		}
		return Receipt{}, s.mapBreakerErr(err)
	}
	return v.(Receipt), nil
}

// sendRaw wraps the chain call in the circuit breaker.
func (s *Synchronizer) sendRaw(ctx context.Context, payload []byte) (types.Hash, error) {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		return s.chain.SendRawTransaction(ctx, payload)
	})
	if err != nil {
		return types.Hash{}, s.mapBreakerErr(err)
	}
	return v.(types.Hash), nil
}

// mapBreakerErr folds breaker-open states into ErrUnavailable so callers see
// one sentinel for "the chain cannot be reached right now".
func (s *Synchronizer) mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
