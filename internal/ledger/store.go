package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

var prefixAsset = []byte("a/") // a/<symbol> -> assetRecord JSON

// assetRecordVersion is bumped whenever the persisted layout changes.
const assetRecordVersion = 1

// assetRecord is the stable on-disk format for a tracked asset. Balances are
// a cache and deliberately not persisted; they are recomputed by a balance
// refresh after reload.
type assetRecord struct {
	Version         int              `json:"version"`
	Symbol          string           `json:"symbol"`
	Name            string           `json:"name"`
	LogoPath        string           `json:"logo_path"`
	Accounts        []wallet.Account `json:"accounts"`
	SelectedAccount uint32           `json:"selected_account"`
	HasSelected     bool             `json:"has_selected"`
}

// Store persists asset records.
type Store struct {
	db storage.DB
}

// NewStore creates an asset store on top of db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Put writes the asset snapshot under its symbol key.
func (s *Store) Put(a Asset) error {
	rec := assetRecord{
		Version:         assetRecordVersion,
		Symbol:          a.Symbol,
		Name:            a.Name,
		LogoPath:        a.LogoPath,
		Accounts:        a.Accounts,
		SelectedAccount: a.SelectedAccount,
		HasSelected:     a.HasSelected,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("asset marshal: %w", err)
	}
	return s.db.Put(assetKey(a.Symbol), data)
}

// Delete removes the record for a symbol.
func (s *Store) Delete(symbol string) error {
	return s.db.Delete(assetKey(symbol))
}

// Load replays every stored asset record into the ledger. Corrupt or
// unversioned entries are skipped, not fatal.
func (s *Store) Load(l *Ledger) error {
	return s.db.ForEach(prefixAsset, func(key, value []byte) error {
		var rec assetRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil // Skip corrupt entries.
		}
		if rec.Version != assetRecordVersion || rec.Symbol == "" {
			return nil
		}
		if err := l.restore(rec); err != nil {
			return fmt.Errorf("restore %s: %w", rec.Symbol, err)
		}
		return nil
	})
}

func assetKey(symbol string) []byte {
	return append(append([]byte{}, prefixAsset...), symbol...)
}
