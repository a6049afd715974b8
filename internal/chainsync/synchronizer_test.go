package chainsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/txledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// fakeChain is an in-memory ChainAccess with scriptable failures.
type fakeChain struct {
	mu          sync.Mutex
	balances    map[string]decimal.Decimal // addr|symbol -> amount
	balanceErrs map[string]error           // addr|symbol -> error
	receipts    map[types.Hash]Receipt
	sendHash    types.Hash
	sendErr     error
	sentCount   int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances:    make(map[string]decimal.Decimal),
		balanceErrs: make(map[string]error),
		receipts:    make(map[types.Hash]Receipt),
	}
}

func balKey(address types.Address, symbol string) string {
	return address.String() + "|" + symbol
}

func (f *fakeChain) GetBalance(_ context.Context, address types.Address, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.balanceErrs[balKey(address, symbol)]; ok {
		return decimal.Zero, err
	}
	if amount, ok := f.balances[balKey(address, symbol)]; ok {
		return amount, nil
	}
	return decimal.Zero, nil
}

func (f *fakeChain) GetTransactionReceipt(_ context.Context, hash types.Hash) (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rcpt, ok := f.receipts[hash]
	if !ok {
		return Receipt{}, ErrReceiptNotFound
	}
	return rcpt, nil
}

func (f *fakeChain) SendRawTransaction(_ context.Context, _ []byte) (types.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return types.Hash{}, f.sendErr
	}
	f.sentCount++
	return f.sendHash, nil
}

// harness wires a ledger with two ETH accounts, a tracker, an HD signer and
// a fake chain behind a synchronizer.
type harness struct {
	chain   *fakeChain
	ledger  *ledger.Ledger
	tracker *txledger.Tracker
	sync    *Synchronizer
	acct0   wallet.Account
	acct1   wallet.Account
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mnemonic := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}

	l := ledger.New(func(index uint32) (wallet.Account, error) {
		return wallet.Derive(seed, index)
	})
	if _, err := l.TrackAsset("ETH", "Ethereum", "/eth.png"); err != nil {
		t.Fatalf("TrackAsset() error: %v", err)
	}
	acct0, err := l.CreateAccount("ETH", 0)
	if err != nil {
		t.Fatalf("CreateAccount() error: %v", err)
	}
	acct1, err := l.CreateAccount("ETH", 1)
	if err != nil {
		t.Fatalf("CreateAccount() error: %v", err)
	}

	sg, err := signer.NewHDSigner(seed)
	if err != nil {
		t.Fatalf("NewHDSigner() error: %v", err)
	}
	sg.Register(acct0)
	sg.Register(acct1)

	chain := newFakeChain()
	tracker := txledger.NewTracker()
	s := New(chain, l, tracker, sg, Config{
		RefreshInterval: 10 * time.Millisecond,
		PollTimeout:     time.Second,
		BackoffMin:      time.Millisecond,
		BackoffMax:      10 * time.Millisecond,
	})

	return &harness{chain: chain, ledger: l, tracker: tracker, sync: s, acct0: acct0, acct1: acct1}
}

func testHash(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	return h
}

func TestRefreshBalances(t *testing.T) {
	h := newHarness(t)
	h.chain.balances[balKey(h.acct0.Address, "ETH")] = decimal.RequireFromString("5")
	h.chain.balances[balKey(h.acct1.Address, "ETH")] = decimal.RequireFromString("7.5")

	if err := h.sync.RefreshBalances(context.Background(), "ETH"); err != nil {
		t.Fatalf("RefreshBalances() error: %v", err)
	}

	a, _ := h.ledger.GetAsset("ETH")
	if !a.Balances[0].Equal(decimal.RequireFromString("5")) {
		t.Errorf("balance[0] = %s, want 5", a.Balances[0])
	}
	if !a.Balances[1].Equal(decimal.RequireFromString("7.5")) {
		t.Errorf("balance[1] = %s, want 7.5", a.Balances[1])
	}
	if a.Stale || a.LastSync.IsZero() {
		t.Errorf("asset should be fresh after full refresh: stale=%v lastSync=%v", a.Stale, a.LastSync)
	}
}

// Scenario: one account's query fails, the other succeeds. The good balance
// lands, the bad one is untouched, the asset is stale, no error escapes.
func TestRefreshBalances_PartialFailure(t *testing.T) {
	h := newHarness(t)
	h.chain.balances[balKey(h.acct0.Address, "ETH")] = decimal.RequireFromString("5")
	h.chain.balanceErrs[balKey(h.acct1.Address, "ETH")] = fmt.Errorf("node hiccup")

	if err := h.sync.RefreshBalances(context.Background(), "ETH"); err != nil {
		t.Fatalf("partial failure should not escape, got: %v", err)
	}

	a, _ := h.ledger.GetAsset("ETH")
	if !a.Balances[0].Equal(decimal.RequireFromString("5")) {
		t.Errorf("balance[0] = %s, want 5", a.Balances[0])
	}
	if _, ok := a.Balances[1]; ok {
		t.Error("failed account's balance should be left unchanged")
	}
	if !a.Stale {
		t.Error("asset should be flagged stale after a partial failure")
	}
}

func TestRefreshBalances_Unavailable(t *testing.T) {
	h := newHarness(t)
	h.chain.balanceErrs[balKey(h.acct0.Address, "ETH")] = ErrUnavailable
	h.chain.balanceErrs[balKey(h.acct1.Address, "ETH")] = ErrUnavailable

	err := h.sync.RefreshBalances(context.Background(), "ETH")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}

	a, _ := h.ledger.GetAsset("ETH")
	if !a.Stale {
		t.Error("asset should be stale while the chain is unreachable")
	}
	if len(a.Balances) != 0 {
		t.Errorf("no balances should be applied, got %v", a.Balances)
	}
}

func TestRefreshBalances_NegativeDropped(t *testing.T) {
	h := newHarness(t)
	h.chain.balances[balKey(h.acct0.Address, "ETH")] = decimal.RequireFromString("-3")
	h.chain.balances[balKey(h.acct1.Address, "ETH")] = decimal.RequireFromString("1")

	if err := h.sync.RefreshBalances(context.Background(), "ETH"); err != nil {
		t.Fatalf("RefreshBalances() error: %v", err)
	}

	a, _ := h.ledger.GetAsset("ETH")
	if _, ok := a.Balances[0]; ok {
		t.Error("malformed negative balance should be dropped")
	}
	if !a.Balances[1].Equal(decimal.RequireFromString("1")) {
		t.Errorf("balance[1] = %s, want 1", a.Balances[1])
	}
	if !a.Stale {
		t.Error("dropped update should leave the asset stale")
	}
}

func TestRefreshBalances_UnknownAsset(t *testing.T) {
	h := newHarness(t)
	if err := h.sync.RefreshBalances(context.Background(), "DOGE"); !errors.Is(err, ledger.ErrUnknownAsset) {
		t.Errorf("error = %v, want ErrUnknownAsset", err)
	}
}

func TestRefreshBalances_Cancelled(t *testing.T) {
	h := newHarness(t)
	h.chain.balances[balKey(h.acct0.Address, "ETH")] = decimal.RequireFromString("5")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.sync.RefreshBalances(ctx, "ETH")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}

	a, _ := h.ledger.GetAsset("ETH")
	if len(a.Balances) != 0 {
		t.Errorf("cancelled refresh must not apply balances, got %v", a.Balances)
	}
}

// Scenario: submit -> broadcast -> not found keeps pending -> receipt
// confirms -> replaying the receipt changes nothing.
func TestPollTransaction_Lifecycle(t *testing.T) {
	h := newHarness(t)
	h.chain.sendHash = testHash(0xaa)

	tx, err := h.tracker.Submit(h.acct0.Address, h.acct1.Address, decimal.RequireFromString("10"), "ETH")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	// First poll broadcasts the payload.
	if err := h.sync.PollTransaction(context.Background(), tx.ID); err != nil {
		t.Fatalf("PollTransaction() (broadcast) error: %v", err)
	}
	got, _ := h.tracker.Get(tx.ID)
	if got.Hash != h.chain.sendHash {
		t.Fatalf("hash = %s, want %s", got.Hash, h.chain.sendHash)
	}
	if got.Status != txledger.StatusPending {
		t.Fatalf("status after broadcast = %s, want pending", got.Status)
	}

	// No receipt yet: stays pending.
	if err := h.sync.PollTransaction(context.Background(), tx.ID); err != nil {
		t.Fatalf("PollTransaction() (not found) error: %v", err)
	}
	got, _ = h.tracker.Get(tx.ID)
	if got.Status != txledger.StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}

	// Receipt lands: confirmed.
	h.chain.mu.Lock()
	h.chain.receipts[h.chain.sendHash] = Receipt{Status: ReceiptSuccess, BlockHeight: 42}
	h.chain.mu.Unlock()
	if err := h.sync.PollTransaction(context.Background(), tx.ID); err != nil {
		t.Fatalf("PollTransaction() (receipt) error: %v", err)
	}
	got, _ = h.tracker.Get(tx.ID)
	if got.Status != txledger.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", got.Status)
	}

	// Same receipt again: no error, no duplicate, still confirmed.
	if err := h.sync.PollTransaction(context.Background(), tx.ID); err != nil {
		t.Fatalf("PollTransaction() (replay) error: %v", err)
	}
	got, _ = h.tracker.Get(tx.ID)
	if got.Status != txledger.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", got.Status)
	}
	if n := len(h.tracker.List(txledger.Filter{})); n != 1 {
		t.Errorf("ledger has %d records, want 1", n)
	}
}

func TestPollTransaction_Rejected(t *testing.T) {
	h := newHarness(t)
	h.chain.sendHash = testHash(0xbb)

	tx, err := h.tracker.Submit(h.acct0.Address, h.acct1.Address, decimal.RequireFromString("10"), "ETH")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if err := h.sync.PollTransaction(context.Background(), tx.ID); err != nil {
		t.Fatalf("PollTransaction() (broadcast) error: %v", err)
	}

	h.chain.mu.Lock()
	h.chain.receipts[h.chain.sendHash] = Receipt{Status: ReceiptRejected, Reason: "insufficient funds"}
	h.chain.mu.Unlock()

	if err := h.sync.PollTransaction(context.Background(), tx.ID); err != nil {
		t.Fatalf("PollTransaction() error: %v", err)
	}

	got, _ := h.tracker.Get(tx.ID)
	if got.Status != txledger.StatusFailed || got.Reason != "insufficient funds" {
		t.Errorf("record = %s (%q), want failed (insufficient funds)", got.Status, got.Reason)
	}
}

func TestBroadcast_NodeRejection(t *testing.T) {
	h := newHarness(t)
	h.chain.sendErr = errors.New("invalid payload")

	tx, err := h.tracker.Submit(h.acct0.Address, h.acct1.Address, decimal.RequireFromString("10"), "ETH")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if err := h.sync.PollTransaction(context.Background(), tx.ID); err != nil {
		t.Fatalf("PollTransaction() error: %v", err)
	}

	got, _ := h.tracker.Get(tx.ID)
	if got.Status != txledger.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestBroadcast_UnavailableStaysPending(t *testing.T) {
	h := newHarness(t)
	h.chain.sendErr = ErrUnavailable

	tx, err := h.tracker.Submit(h.acct0.Address, h.acct1.Address, decimal.RequireFromString("10"), "ETH")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	err = h.sync.PollTransaction(context.Background(), tx.ID)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}

	got, _ := h.tracker.Get(tx.ID)
	if got.Status != txledger.StatusPending || got.Broadcast() {
		t.Errorf("record = %s broadcast=%v, want pending and not broadcast", got.Status, got.Broadcast())
	}
}

func TestRun_DrivesSyncRounds(t *testing.T) {
	h := newHarness(t)
	h.chain.sendHash = testHash(0xcc)
	h.chain.balances[balKey(h.acct0.Address, "ETH")] = decimal.RequireFromString("9")
	h.chain.receipts[testHash(0xcc)] = Receipt{Status: ReceiptSuccess}

	tx, err := h.tracker.Submit(h.acct0.Address, h.acct1.Address, decimal.RequireFromString("1"), "ETH")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.sync.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		got, _ := h.tracker.Get(tx.ID)
		a, _ := h.ledger.GetAsset("ETH")
		if got.Status == txledger.StatusConfirmed && a.Balances[0].Equal(decimal.RequireFromString("9")) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("sync loop did not converge: status=%s balances=%v", got.Status, a.Balances)
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}
}

func TestBackoff(t *testing.T) {
	bo := newBackoff(time.Second, 8*time.Second)

	prev := time.Duration(0)
	for i := 0; i < 4; i++ {
		d := bo.Next()
		if d < prev {
			t.Errorf("delay should not shrink before reset: %v after %v", d, prev)
		}
		if d > 8*time.Second+2*time.Second {
			t.Errorf("delay %v exceeds max plus jitter", d)
		}
		prev = d
	}

	bo.Reset()
	if d := bo.Next(); d > time.Second+time.Second/4 {
		t.Errorf("delay after reset = %v, want about the minimum", d)
	}
}
