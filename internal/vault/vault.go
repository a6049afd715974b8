package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrVaultExists is returned when creating over an existing vault.
	ErrVaultExists = errors.New("vault already exists")
	// ErrVaultNotFound is returned when no vault file is present.
	ErrVaultNotFound = errors.New("vault not found")
	// ErrBadPassphrase is returned when the passphrase does not open the vault.
	ErrBadPassphrase = errors.New("invalid passphrase")
)

const fileName = "seed.vault"

// vaultFile is the on-disk JSON format for the encrypted seed.
type vaultFile struct {
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	SealedSeed []byte    `json:"sealed_seed"`
}

// Vault reads and writes the encrypted seed file in a data directory.
type Vault struct {
	dir string
}

// NewVault creates a vault rooted at the given directory. The directory is
// created if it doesn't exist.
func NewVault(dir string) (*Vault, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	return &Vault{dir: dir}, nil
}

func (v *Vault) path() string {
	return filepath.Join(v.dir, fileName)
}

// Exists reports whether a sealed seed is present.
func (v *Vault) Exists() bool {
	_, err := os.Stat(v.path())
	return err == nil
}

// Create seals the seed under the passphrase and writes the vault file.
func (v *Vault) Create(seed, passphrase []byte, params KDFParams) error {
	if v.Exists() {
		return ErrVaultExists
	}

	sealed, err := seal(seed, passphrase, params)
	if err != nil {
		return fmt.Errorf("seal seed: %w", err)
	}

	vf := vaultFile{
		Version:    1,
		CreatedAt:  time.Now().UTC(),
		SealedSeed: sealed,
	}

	data, err := json.MarshalIndent(&vf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vault: %w", err)
	}
	if err := os.WriteFile(v.path(), data, 0600); err != nil {
		return fmt.Errorf("write vault: %w", err)
	}
	return nil
}

// Unlock opens the vault with the passphrase and returns the seed bytes.
// The caller owns the returned slice and should zero it when done.
func (v *Vault) Unlock(passphrase []byte) ([]byte, error) {
	data, err := os.ReadFile(v.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrVaultNotFound
		}
		return nil, fmt.Errorf("read vault: %w", err)
	}

	var vf vaultFile
	if err := json.Unmarshal(data, &vf); err != nil {
		return nil, fmt.Errorf("parse vault: %w", err)
	}
	if vf.Version != 1 {
		return nil, fmt.Errorf("unsupported vault version: %d", vf.Version)
	}

	return open(vf.SealedSeed, passphrase)
}

// Delete removes the vault file.
func (v *Vault) Delete() error {
	if !v.Exists() {
		return ErrVaultNotFound
	}
	return os.Remove(v.path())
}
