// Package ledger tracks wallet assets, their derived account maps and
// per-account balances.
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

// Asset is a read-only snapshot of a tracked asset. Mutations go through
// Ledger methods; snapshots never alias live state.
type Asset struct {
	Symbol   string           `json:"symbol"`
	Name     string           `json:"name"`
	LogoPath string           `json:"logo_path"`
	Accounts []wallet.Account `json:"accounts"` // ordered by index ascending

	// SelectedAccount is only meaningful when HasSelected is true. It is
	// always a key of the account map.
	SelectedAccount uint32 `json:"selected_account"`
	HasSelected     bool   `json:"has_selected"`

	Balances map[uint32]decimal.Decimal `json:"balances"`

	// LastSync is the time of the last fully successful balance refresh.
	// Stale is set when a refresh failed for at least one account.
	LastSync time.Time `json:"last_sync"`
	Stale    bool      `json:"stale"`
}

// SelectedAddress returns the address of the selected account.
// The second return is false when no account has been selected yet.
func (a Asset) SelectedAddress() (string, bool) {
	if !a.HasSelected {
		return "", false
	}
	for _, acct := range a.Accounts {
		if acct.Index == a.SelectedAccount {
			return acct.Address.String(), true
		}
	}
	return "", false
}

// asset is the mutable record owned by the Ledger.
type asset struct {
	symbol   string
	name     string
	logoPath string

	accounts map[uint32]wallet.Account
	selected uint32
	hasSel   bool

	balances map[uint32]decimal.Decimal
	lastSync time.Time
	stale    bool
}

// snapshot copies the record into a detached read view.
func (a *asset) snapshot() Asset {
	accounts := make([]wallet.Account, 0, len(a.accounts))
	for _, acct := range a.accounts {
		accounts = append(accounts, acct)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Index < accounts[j].Index })

	balances := make(map[uint32]decimal.Decimal, len(a.balances))
	for idx, amount := range a.balances {
		balances[idx] = amount
	}

	return Asset{
		Symbol:          a.symbol,
		Name:            a.name,
		LogoPath:        a.logoPath,
		Accounts:        accounts,
		SelectedAccount: a.selected,
		HasSelected:     a.hasSel,
		Balances:        balances,
		LastSync:        a.lastSync,
		Stale:           a.stale,
	}
}
