package vault

import (
	"bytes"
	"errors"
	"testing"
)

// testParams uses cheap Argon2id settings so tests stay fast.
func testParams() KDFParams {
	return KDFParams{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
	}
}

func TestSealOpen(t *testing.T) {
	data := []byte("some secret seed material")
	passphrase := []byte("correct horse battery staple")

	sealed, err := seal(data, passphrase, testParams())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, data) {
		t.Fatal("plaintext visible in sealed output")
	}

	got, err := open(sealed, passphrase)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("open = %q, want %q", got, data)
	}
}

func TestOpen_WrongPassphrase(t *testing.T) {
	sealed, err := seal([]byte("seed"), []byte("right"), testParams())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := open(sealed, []byte("wrong")); !errors.Is(err, ErrBadPassphrase) {
		t.Errorf("error = %v, want ErrBadPassphrase", err)
	}
}

func TestOpen_Truncated(t *testing.T) {
	if _, err := open([]byte("too short"), []byte("pw")); err == nil {
		t.Fatal("expected error for truncated input")
	}
}

func TestSeal_UniqueOutputs(t *testing.T) {
	data := []byte("seed")
	pw := []byte("pw")

	a, err := seal(data, pw, testParams())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b, err := seal(data, pw, testParams())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two seals of the same data must differ (random salt and nonce)")
	}
}

func TestVault_CreateUnlock(t *testing.T) {
	v, err := NewVault(t.TempDir())
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	if v.Exists() {
		t.Fatal("fresh vault dir must not report an existing seed")
	}

	seed := []byte("deterministic seed bytes")
	pw := []byte("hunter2")

	if err := v.Create(seed, pw, testParams()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !v.Exists() {
		t.Fatal("Exists = false after Create")
	}

	got, err := v.Unlock(pw)
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !bytes.Equal(got, seed) {
		t.Errorf("Unlock = %q, want %q", got, seed)
	}
}

func TestVault_CreateTwice(t *testing.T) {
	v, err := NewVault(t.TempDir())
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	if err := v.Create([]byte("seed"), []byte("pw"), testParams()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := v.Create([]byte("seed"), []byte("pw"), testParams()); !errors.Is(err, ErrVaultExists) {
		t.Errorf("error = %v, want ErrVaultExists", err)
	}
}

func TestVault_UnlockMissing(t *testing.T) {
	v, err := NewVault(t.TempDir())
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	if _, err := v.Unlock([]byte("pw")); !errors.Is(err, ErrVaultNotFound) {
		t.Errorf("error = %v, want ErrVaultNotFound", err)
	}
}

func TestVault_Delete(t *testing.T) {
	v, err := NewVault(t.TempDir())
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	if err := v.Delete(); !errors.Is(err, ErrVaultNotFound) {
		t.Errorf("error = %v, want ErrVaultNotFound", err)
	}

	if err := v.Create([]byte("seed"), []byte("pw"), testParams()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := v.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if v.Exists() {
		t.Error("Exists = true after Delete")
	}
}
