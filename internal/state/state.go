// Package state assembles the wallet session: the asset ledger, the
// transaction tracker, the signer and persistence, behind one aggregate that
// is constructed per session and passed by reference. There are no
// process-wide singletons.
package state

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/internal/txledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// ErrNoSelectedAccount is returned when submitting a transfer for an asset
// that has no account selected yet.
var ErrNoSelectedAccount = errors.New("asset has no selected account")

// WalletState is the per-session aggregate owning all in-memory wallet
// state. User commands run synchronously against it and never touch the
// network; the chain synchronizer works against the same ledger and tracker
// through their own interfaces.
type WalletState struct {
	ledger  *ledger.Ledger
	tracker *txledger.Tracker
	signer  *signer.HDSigner

	assets *ledger.Store
	txs    *txledger.Store

	bus *Bus
}

// Open builds a wallet session from the master seed and a storage backend,
// replaying any persisted assets and transactions. The seed itself stays in
// the derivation closure and the signer; nothing else retains it.
func Open(seed []byte, db storage.DB) (*WalletState, error) {
	l := ledger.New(func(index uint32) (wallet.Account, error) {
		return wallet.Derive(seed, index)
	})

	sg, err := signer.NewHDSigner(seed)
	if err != nil {
		return nil, fmt.Errorf("open wallet: %w", err)
	}

	ws := &WalletState{
		ledger:  l,
		tracker: txledger.NewTracker(),
		signer:  sg,
		assets:  ledger.NewStore(db),
		txs:     txledger.NewStore(db),
		bus:     NewBus(),
	}

	if err := ws.assets.Load(l); err != nil {
		return nil, fmt.Errorf("load assets: %w", err)
	}
	if err := ws.txs.Load(ws.tracker); err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	// Re-register restored accounts so the signer can resolve their keys.
	for _, asset := range l.ListAssets() {
		for _, acct := range asset.Accounts {
			sg.Register(acct)
		}
	}

	log.Wallet.Info().
		Int("assets", len(l.ListAssets())).
		Int("transactions", len(ws.tracker.List(txledger.Filter{}))).
		Msg("wallet session opened")
	return ws, nil
}

// Ledger exposes the asset ledger for the synchronizer.
func (ws *WalletState) Ledger() *ledger.Ledger { return ws.ledger }

// Tracker exposes the transaction tracker for the synchronizer.
func (ws *WalletState) Tracker() *txledger.Tracker { return ws.tracker }

// Signer exposes the transfer signer for the synchronizer.
func (ws *WalletState) Signer() signer.Signer { return ws.signer }

// Subscribe registers a change-event subscriber.
func (ws *WalletState) Subscribe(buffer int) (<-chan Event, func()) {
	return ws.bus.Subscribe(buffer)
}

// Close shuts down the event bus. The storage backend is owned by the
// caller and closed separately.
func (ws *WalletState) Close() {
	ws.bus.Close()
}

// TrackAsset starts tracking an asset and persists it.
func (ws *WalletState) TrackAsset(symbol, name, logoPath string) (ledger.Asset, error) {
	asset, err := ws.ledger.TrackAsset(symbol, name, logoPath)
	if err != nil {
		return ledger.Asset{}, err
	}
	if err := ws.assets.Put(asset); err != nil {
		return ledger.Asset{}, fmt.Errorf("persist asset: %w", err)
	}
	ws.bus.Publish(Event{Type: EventAssetTracked, Symbol: symbol})
	return asset, nil
}

// UntrackAsset stops tracking an asset. Transaction history is untouched.
func (ws *WalletState) UntrackAsset(symbol string) error {
	if err := ws.ledger.UntrackAsset(symbol); err != nil {
		return err
	}
	if err := ws.assets.Delete(symbol); err != nil {
		return fmt.Errorf("delete asset record: %w", err)
	}
	ws.bus.Publish(Event{Type: EventAssetUntracked, Symbol: symbol})
	return nil
}

// GetAsset returns a snapshot of one tracked asset.
func (ws *WalletState) GetAsset(symbol string) (ledger.Asset, error) {
	return ws.ledger.GetAsset(symbol)
}

// ListAssets returns snapshots of all tracked assets.
func (ws *WalletState) ListAssets() []ledger.Asset {
	return ws.ledger.ListAssets()
}

// CreateAccount derives and registers the account at index for an asset,
// then persists the updated asset.
func (ws *WalletState) CreateAccount(symbol string, index uint32) (wallet.Account, error) {
	acct, err := ws.ledger.CreateAccount(symbol, index)
	if err != nil {
		return wallet.Account{}, err
	}
	ws.signer.Register(acct)

	if err := ws.persistAsset(symbol); err != nil {
		return wallet.Account{}, err
	}
	ws.bus.Publish(Event{Type: EventAccountCreated, Symbol: symbol, Index: index})
	return acct, nil
}

// ListAccounts returns the asset's accounts ordered by index.
func (ws *WalletState) ListAccounts(symbol string) ([]wallet.Account, error) {
	return ws.ledger.ListAccounts(symbol)
}

// SelectAccount makes index the active account for the asset.
func (ws *WalletState) SelectAccount(symbol string, index uint32) (ledger.Asset, error) {
	asset, err := ws.ledger.SelectAccount(symbol, index)
	if err != nil {
		return ledger.Asset{}, err
	}
	if err := ws.assets.Put(asset); err != nil {
		return ledger.Asset{}, fmt.Errorf("persist asset: %w", err)
	}
	ws.bus.Publish(Event{Type: EventAccountSelected, Symbol: symbol, Index: index})
	return asset, nil
}

// SubmitTransfer creates a pending transfer from the asset's selected
// account. It validates input and records the transaction; broadcasting and
// confirmation are the synchronizer's business, so the call never blocks on
// the network.
func (ws *WalletState) SubmitTransfer(symbol string, recipient types.Address, value decimal.Decimal) (txledger.Transaction, error) {
	asset, err := ws.ledger.GetAsset(symbol)
	if err != nil {
		return txledger.Transaction{}, err
	}

	addr, ok := asset.SelectedAddress()
	if !ok {
		return txledger.Transaction{}, fmt.Errorf("%w: %s", ErrNoSelectedAccount, symbol)
	}
	sender, err := types.ParseAddress(addr)
	if err != nil {
		return txledger.Transaction{}, fmt.Errorf("selected account address: %w", err)
	}

	tx, err := ws.tracker.Submit(sender, recipient, value, symbol)
	if err != nil {
		return txledger.Transaction{}, err
	}
	if err := ws.txs.Put(tx); err != nil {
		return txledger.Transaction{}, fmt.Errorf("persist transaction: %w", err)
	}

	ws.bus.Publish(Event{Type: EventTxSubmitted, Symbol: symbol, TxID: tx.ID})
	return tx, nil
}

// Transactions returns a snapshot of matching transaction records.
func (ws *WalletState) Transactions(f txledger.Filter) []txledger.Transaction {
	return ws.tracker.List(f)
}

// Flush writes current asset snapshots and transaction records to storage.
// Balances are skipped by the record format; statuses updated by the
// synchronizer since the last flush are captured here.
func (ws *WalletState) Flush() error {
	for _, asset := range ws.ledger.ListAssets() {
		if err := ws.assets.Put(asset); err != nil {
			return fmt.Errorf("persist asset %s: %w", asset.Symbol, err)
		}
	}
	for _, tx := range ws.tracker.List(txledger.Filter{}) {
		if err := ws.txs.Put(tx); err != nil {
			return fmt.Errorf("persist transaction %s: %w", tx.ID, err)
		}
	}
	return nil
}

func (ws *WalletState) persistAsset(symbol string) error {
	asset, err := ws.ledger.GetAsset(symbol)
	if err != nil {
		return err
	}
	if err := ws.assets.Put(asset); err != nil {
		return fmt.Errorf("persist asset: %w", err)
	}
	return nil
}
