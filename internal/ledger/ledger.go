package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

// Deriver produces the account for a derivation index. The Ledger never sees
// the master seed; the closure is built by the wallet session owner so the
// secret stays in the caller's context.
type Deriver func(index uint32) (wallet.Account, error)

// Ledger owns the set of tracked assets. Each asset holds its own account
// map (index to derived address), the selected account index and per-account
// balances. All methods are safe for concurrent use; user commands mutate
// in-memory state only and never touch the network.
type Ledger struct {
	mu     sync.RWMutex
	derive Deriver
	assets map[string]*asset
}

// New creates an empty ledger using the given deriver.
func New(derive Deriver) *Ledger {
	return &Ledger{
		derive: derive,
		assets: make(map[string]*asset),
	}
}

// TrackAsset starts tracking an asset. The asset begins with an empty account
// map and no selected account.
func (l *Ledger) TrackAsset(symbol, name, logoPath string) (Asset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.assets[symbol]; ok {
		return Asset{}, fmt.Errorf("%w: %s", ErrAlreadyTracked, symbol)
	}

	a := &asset{
		symbol:   symbol,
		name:     name,
		logoPath: logoPath,
		accounts: make(map[uint32]wallet.Account),
		balances: make(map[uint32]decimal.Decimal),
	}
	l.assets[symbol] = a

	log.Ledger.Info().Str("symbol", symbol).Str("name", name).Msg("asset tracked")
	return a.snapshot(), nil
}

// UntrackAsset removes an asset and its account map. Historical transaction
// records are unaffected; they reference the symbol as a plain string.
func (l *Ledger) UntrackAsset(symbol string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.assets[symbol]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	delete(l.assets, symbol)

	log.Ledger.Info().Str("symbol", symbol).Msg("asset untracked")
	return nil
}

// GetAsset returns a snapshot of a tracked asset.
func (l *Ledger) GetAsset(symbol string) (Asset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.assets[symbol]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	return a.snapshot(), nil
}

// ListAssets returns snapshots of all tracked assets, ordered by symbol.
func (l *Ledger) ListAssets() []Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Asset, 0, len(l.assets))
	for _, a := range l.assets {
		out = append(out, a.snapshot())
	}
	// Map iteration order is random; keep the view stable for consumers.
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// CreateAccount derives the account at index for the asset and inserts it
// into the asset's account map. The first account of an asset becomes the
// selected account so the selection invariant never dangles.
func (l *Ledger) CreateAccount(symbol string, index uint32) (wallet.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[symbol]
	if !ok {
		return wallet.Account{}, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	if _, exists := a.accounts[index]; exists {
		return wallet.Account{}, fmt.Errorf("%w: %s index %d", ErrDuplicateIndex, symbol, index)
	}

	acct, err := l.derive(index)
	if err != nil {
		return wallet.Account{}, fmt.Errorf("derive account %d: %w", index, err)
	}

	a.accounts[index] = acct
	if !a.hasSel {
		a.selected = index
		a.hasSel = true
	}

	log.Ledger.Info().
		Str("symbol", symbol).
		Uint32("index", index).
		Str("address", acct.Address.String()).
		Msg("account created")
	return acct, nil
}

// ListAccounts returns the asset's accounts ordered by index ascending.
func (l *Ledger) ListAccounts(symbol string) ([]wallet.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.assets[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	return a.snapshot().Accounts, nil
}

// SelectAccount makes index the active account for the asset. The index must
// already exist in the account map.
func (l *Ledger) SelectAccount(symbol string, index uint32) (Asset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[symbol]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	if _, exists := a.accounts[index]; !exists {
		return Asset{}, fmt.Errorf("%w: %s index %d", ErrUnknownAccount, symbol, index)
	}

	a.selected = index
	a.hasSel = true
	return a.snapshot(), nil
}

// ApplyBalance sets the balance observed for (symbol, index). Negative
// amounts are rejected with ErrInvalidBalance and dropped. Re-applying the
// same amount is a no-op, so repeated sync deliveries are harmless.
func (l *Ledger) ApplyBalance(symbol string, index uint32, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	if _, exists := a.accounts[index]; !exists {
		return fmt.Errorf("%w: %s index %d", ErrUnknownAccount, symbol, index)
	}
	if amount.IsNegative() {
		log.Ledger.Warn().
			Str("symbol", symbol).
			Uint32("index", index).
			Str("amount", amount.String()).
			Msg("dropping negative balance update")
		return fmt.Errorf("%w: %s for %s index %d", ErrInvalidBalance, amount, symbol, index)
	}

	if prev, ok := a.balances[index]; ok && prev.Equal(amount) {
		return nil
	}
	a.balances[index] = amount
	return nil
}

// MarkSynced records a fully successful balance refresh for the asset.
func (l *Ledger) MarkSynced(symbol string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if a, ok := l.assets[symbol]; ok {
		a.lastSync = at
		a.stale = false
	}
}

// MarkStale flags the asset's balances as stale after a partial or failed
// refresh. The last successful sync time is preserved.
func (l *Ledger) MarkStale(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if a, ok := l.assets[symbol]; ok {
		a.stale = true
	}
}

// restore rebuilds an asset from a persisted record. Used by Load only.
func (l *Ledger) restore(rec assetRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.assets[rec.Symbol]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyTracked, rec.Symbol)
	}

	a := &asset{
		symbol:   rec.Symbol,
		name:     rec.Name,
		logoPath: rec.LogoPath,
		accounts: make(map[uint32]wallet.Account, len(rec.Accounts)),
		balances: make(map[uint32]decimal.Decimal),
	}
	for _, acct := range rec.Accounts {
		if _, exists := a.accounts[acct.Index]; exists {
			return fmt.Errorf("%w: %s index %d", ErrDuplicateIndex, rec.Symbol, acct.Index)
		}
		a.accounts[acct.Index] = acct
	}
	if rec.HasSelected {
		if _, exists := a.accounts[rec.SelectedAccount]; !exists {
			return fmt.Errorf("%w: %s index %d", ErrUnknownAccount, rec.Symbol, rec.SelectedAccount)
		}
		a.selected = rec.SelectedAccount
		a.hasSel = true
	}

	l.assets[rec.Symbol] = a
	return nil
}
