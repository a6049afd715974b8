package txledger

import (
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
)

var prefixTx = []byte("x/") // x/<id> -> txRecord JSON

// txRecordVersion is bumped whenever the persisted layout changes.
const txRecordVersion = 1

// txRecord wraps a Transaction with a format version for stable persistence.
type txRecord struct {
	Version int         `json:"version"`
	Tx      Transaction `json:"tx"`
}

// Store persists transaction records keyed by id.
type Store struct {
	db storage.DB
}

// NewStore creates a transaction store on top of db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Put writes the record for a transaction.
func (s *Store) Put(tx Transaction) error {
	data, err := json.Marshal(txRecord{Version: txRecordVersion, Tx: tx})
	if err != nil {
		return fmt.Errorf("tx marshal: %w", err)
	}
	return s.db.Put(txKey(tx.ID), data)
}

// Load replays every stored record into the tracker. Corrupt or unversioned
// entries are skipped, not fatal.
func (s *Store) Load(tr *Tracker) error {
	return s.db.ForEach(prefixTx, func(key, value []byte) error {
		var rec txRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil // Skip corrupt entries.
		}
		if rec.Version != txRecordVersion {
			return nil
		}
		if err := tr.restore(rec.Tx); err != nil {
			return nil // Skip malformed or duplicate records.
		}
		return nil
	})
}

func txKey(id string) []byte {
	return append(append([]byte{}, prefixTx...), id...)
}
