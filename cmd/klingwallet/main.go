// klingwallet is a command-line client for the Klingnet wallet state core.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"golang.org/x/term"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chainsync"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-wallet/internal/state"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/internal/txledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/vault"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

const version = "0.1.0"

func main() {
	flags := config.ParseFlags(os.Args[1:])

	if flags.Version {
		fmt.Printf("klingwallet %s\n", version)
		return
	}
	if flags.Help {
		config.Usage()
		return
	}
	if len(flags.Args) == 0 {
		config.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fatal("%v", err)
	}

	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fatal("init logging: %v", err)
	}

	cmd := flags.Args[0]
	cmdArgs := flags.Args[1:]

	switch cmd {
	case "init":
		cmdInit(cfg)
	case "restore":
		cmdRestore(cfg)
	case "track":
		cmdTrack(cfg, cmdArgs)
	case "untrack":
		cmdUntrack(cfg, cmdArgs)
	case "assets":
		cmdAssets(cfg)
	case "new-account":
		cmdNewAccount(cfg, cmdArgs)
	case "accounts":
		cmdAccounts(cfg, cmdArgs)
	case "select":
		cmdSelect(cfg, cmdArgs)
	case "send":
		cmdSend(cfg, cmdArgs)
	case "txs":
		cmdTxs(cfg)
	case "refresh":
		cmdRefresh(cfg)
	case "watch":
		cmdWatch(cfg)
	case "help":
		config.Usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		config.Usage()
		os.Exit(1)
	}
}

// ── wallet setup ────────────────────────────────────────────────────────

func cmdInit(cfg *config.Config) {
	v, err := vault.NewVault(cfg.VaultDir())
	if err != nil {
		fatal("open vault: %v", err)
	}
	if v.Exists() {
		fatal("wallet already exists in %s", cfg.VaultDir())
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		fatal("generate mnemonic: %v", err)
	}

	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)

	createVault(v, mnemonic)
	fmt.Println("Wallet created.")
}

func cmdRestore(cfg *config.Config) {
	v, err := vault.NewVault(cfg.VaultDir())
	if err != nil {
		fatal("open vault: %v", err)
	}
	if v.Exists() {
		fatal("wallet already exists in %s", cfg.VaultDir())
	}

	fmt.Fprint(os.Stderr, "Enter mnemonic: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		fatal("read mnemonic: %v", err)
	}
	mnemonic := strings.TrimSpace(line)
	if !wallet.ValidateMnemonic(mnemonic) {
		fatal("invalid mnemonic")
	}

	createVault(v, mnemonic)
	fmt.Println("Wallet restored.")
}

func createVault(v *vault.Vault, mnemonic string) {
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}

	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}

	if err := v.Create(seed, password, vault.DefaultKDFParams()); err != nil {
		fatal("create vault: %v", err)
	}
}

// openState unlocks the vault and opens the wallet state database.
// The returned closer flushes state and releases the database.
func openState(cfg *config.Config) (*state.WalletState, func()) {
	v, err := vault.NewVault(cfg.VaultDir())
	if err != nil {
		fatal("open vault: %v", err)
	}
	if !v.Exists() {
		fatal("no wallet found in %s (run \"klingwallet init\" first)", cfg.VaultDir())
	}

	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	seed, err := v.Unlock(password)
	if err != nil {
		fatal("unlock wallet: %v", err)
	}

	db, err := storage.NewBadger(cfg.StateDir())
	if err != nil {
		fatal("open state database: %v", err)
	}

	ws, err := state.Open(seed, db)
	if err != nil {
		db.Close()
		fatal("open wallet state: %v", err)
	}

	return ws, func() {
		if err := ws.Flush(); err != nil {
			log.Wallet.Error().Err(err).Msg("flush wallet state")
		}
		ws.Close()
		if err := db.Close(); err != nil {
			log.Wallet.Error().Err(err).Msg("close state database")
		}
	}
}

// ── assets and accounts ─────────────────────────────────────────────────

func cmdTrack(cfg *config.Config, args []string) {
	if len(args) < 2 {
		fatal("Usage: klingwallet track <symbol> <name>")
	}
	symbol, name := args[0], strings.Join(args[1:], " ")

	ws, closer := openState(cfg)
	defer closer()

	asset, err := ws.TrackAsset(symbol, name, "")
	if err != nil {
		fatal("track asset: %v", err)
	}
	fmt.Printf("Tracking %s (%s)\n", asset.Symbol, asset.Name)
}

func cmdUntrack(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fatal("Usage: klingwallet untrack <symbol>")
	}

	ws, closer := openState(cfg)
	defer closer()

	if err := ws.UntrackAsset(args[0]); err != nil {
		fatal("untrack asset: %v", err)
	}
	fmt.Printf("Stopped tracking %s\n", args[0])
}

func cmdAssets(cfg *config.Config) {
	ws, closer := openState(cfg)
	defer closer()

	assets := ws.ListAssets()
	if len(assets) == 0 {
		fmt.Println("No tracked assets.")
		return
	}

	for _, a := range assets {
		total := decimal.Zero
		for _, b := range a.Balances {
			total = total.Add(b)
		}
		stale := ""
		if a.Stale {
			stale = " (stale)"
		}
		fmt.Printf("%-8s %-24s accounts: %-3d balance: %s%s\n",
			a.Symbol, a.Name, len(a.Accounts), total.String(), stale)
	}
}

func cmdNewAccount(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fatal("Usage: klingwallet new-account <symbol>")
	}
	symbol := args[0]

	ws, closer := openState(cfg)
	defer closer()

	accounts, err := ws.ListAccounts(symbol)
	if err != nil {
		fatal("list accounts: %v", err)
	}
	var next uint32
	for _, a := range accounts {
		if a.Index >= next {
			next = a.Index + 1
		}
	}

	acct, err := ws.CreateAccount(symbol, next)
	if err != nil {
		fatal("create account: %v", err)
	}
	fmt.Printf("Account %d: %s\n", acct.Index, acct.Address)
}

func cmdAccounts(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fatal("Usage: klingwallet accounts <symbol>")
	}
	symbol := args[0]

	ws, closer := openState(cfg)
	defer closer()

	asset, err := ws.GetAsset(symbol)
	if err != nil {
		fatal("get asset: %v", err)
	}
	if len(asset.Accounts) == 0 {
		fmt.Printf("No accounts for %s.\n", symbol)
		return
	}

	for _, a := range asset.Accounts {
		marker := " "
		if asset.HasSelected && asset.SelectedAccount == a.Index {
			marker = "*"
		}
		balance := decimal.Zero
		if b, ok := asset.Balances[a.Index]; ok {
			balance = b
		}
		fmt.Printf("%s %3d  %s  %s\n", marker, a.Index, a.Address, balance.String())
	}
}

func cmdSelect(cfg *config.Config, args []string) {
	if len(args) < 2 {
		fatal("Usage: klingwallet select <symbol> <index>")
	}
	index, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		fatal("invalid account index: %v", err)
	}

	ws, closer := openState(cfg)
	defer closer()

	if _, err := ws.SelectAccount(args[0], uint32(index)); err != nil {
		fatal("select account: %v", err)
	}
	fmt.Printf("Selected account %d for %s\n", index, args[0])
}

// ── transfers ───────────────────────────────────────────────────────────

func cmdSend(cfg *config.Config, args []string) {
	if len(args) < 3 {
		fatal("Usage: klingwallet send <symbol> <to> <value>")
	}
	symbol := args[0]

	recipient, err := types.ParseAddress(args[1])
	if err != nil {
		fatal("invalid recipient address: %v", err)
	}
	value, err := decimal.NewFromString(args[2])
	if err != nil {
		fatal("invalid value: %v", err)
	}

	ws, closer := openState(cfg)
	defer closer()

	tx, err := ws.SubmitTransfer(symbol, recipient, value)
	if err != nil {
		fatal("submit transfer: %v", err)
	}
	fmt.Printf("Submitted %s\n", tx.ID)
	fmt.Println("The transfer is pending; run \"klingwallet watch\" to broadcast and confirm it.")
}

func cmdTxs(cfg *config.Config) {
	ws, closer := openState(cfg)
	defer closer()

	txs := ws.Transactions(txledger.Filter{})
	if len(txs) == 0 {
		fmt.Println("No transactions.")
		return
	}

	for _, tx := range txs {
		hash := "-"
		if tx.Broadcast() {
			hash = tx.Hash.String()
		}
		line := fmt.Sprintf("%s  %-9s  %s %s -> %s  %s",
			tx.CreatedAt.Format("2006-01-02 15:04:05"),
			tx.Status, tx.Value.String(), tx.Token, tx.Recipient, hash)
		if tx.Reason != "" {
			line += "  (" + tx.Reason + ")"
		}
		fmt.Println(line)
	}
}

// ── sync ────────────────────────────────────────────────────────────────

func newSynchronizer(cfg *config.Config, ws *state.WalletState) *chainsync.Synchronizer {
	client := rpcclient.NewWithTimeout(cfg.Node.Endpoint, cfg.Node.Timeout)
	chain := rpcclient.NewChainClient(client)

	syncCfg := chainsync.Config{
		RefreshInterval: cfg.Sync.RefreshInterval,
		PollTimeout:     cfg.Sync.PollTimeout,
		BackoffMin:      cfg.Sync.BackoffMin,
		BackoffMax:      cfg.Sync.BackoffMax,
	}
	return chainsync.New(chain, ws.Ledger(), ws.Tracker(), ws.Signer(), syncCfg)
}

func cmdRefresh(cfg *config.Config) {
	ws, closer := openState(cfg)
	defer closer()

	sync := newSynchronizer(cfg, ws)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	failed := 0
	for _, asset := range ws.ListAssets() {
		if err := sync.RefreshBalances(ctx, asset.Symbol); err != nil {
			fmt.Fprintf(os.Stderr, "refresh %s: %v\n", asset.Symbol, err)
			failed++
		}
	}
	for _, tx := range ws.Tracker().Pending() {
		if err := sync.PollTransaction(ctx, tx.ID); err != nil {
			fmt.Fprintf(os.Stderr, "poll %s: %v\n", tx.ID, err)
			failed++
		}
	}

	if failed > 0 {
		fmt.Printf("Refresh finished with %d failures.\n", failed)
		return
	}
	fmt.Println("Refresh complete.")
}

func cmdWatch(cfg *config.Config) {
	ws, closer := openState(cfg)
	defer closer()

	sync := newSynchronizer(cfg, ws)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("Watching %s (refresh every %s). Ctrl-C to stop.\n",
		cfg.Node.Endpoint, cfg.Sync.RefreshInterval)
	sync.Run(ctx)
	fmt.Println("Stopped.")
}

// ── helpers ─────────────────────────────────────────────────────────────

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
