package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// Chain node
	Endpoint string
	Timeout  time.Duration

	// Sync
	Refresh     time.Duration
	PollTimeout time.Duration

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args (subcommand and its arguments)
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetLogJSON bool
}

// ParseFlags parses command-line flags from args (normally os.Args[1:]).
func ParseFlags(args []string) *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("klingwallet", flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	testnet := fs.Bool("testnet", false, "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Chain node
	fs.StringVar(&f.Endpoint, "endpoint", "", "Chain node RPC endpoint URL")
	fs.DurationVar(&f.Timeout, "timeout", 0, "Chain node request timeout")

	// Sync
	fs.DurationVar(&f.Refresh, "refresh", 0, "Background balance refresh interval")
	fs.DurationVar(&f.PollTimeout, "poll-timeout", 0, "Receipt poll timeout")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = Usage

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if *testnet {
		f.Network = "testnet"
	}
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	// Detect unparsed flags caused by positional arguments stopping the
	// parser, e.g. "klingwallet track ETH --endpoint ..." puts --endpoint
	// after the subcommand where the flag package no longer sees it.
	for _, arg := range f.Args[min(1, len(f.Args)):] {
		if strings.HasPrefix(arg, "--") {
			fmt.Fprintf(os.Stderr, "Error: flag %q was not parsed (place global flags before the command)\n", arg)
			os.Exit(1)
		}
	}

	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Chain node
	if f.Endpoint != "" {
		cfg.Node.Endpoint = f.Endpoint
	}
	if f.Timeout != 0 {
		cfg.Node.Timeout = f.Timeout
	}

	// Sync
	if f.Refresh != 0 {
		cfg.Sync.RefreshInterval = f.Refresh
	}
	if f.PollTimeout != 0 {
		cfg.Sync.PollTimeout = f.PollTimeout
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// Load builds the effective configuration: defaults, then config file,
// then command-line flags.
func Load(f *Flags) (*Config, error) {
	network := Mainnet
	if f.Network != "" {
		network = NetworkType(f.Network)
	}
	cfg := Default(network)

	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	path := f.Config
	if path == "" {
		path = cfg.ConfigFile()
	}
	values, err := LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, values); err != nil {
		return nil, err
	}

	ApplyFlags(cfg, f)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// Usage prints command-line help to stderr.
func Usage() {
	usage := `Klingnet Wallet - multi-account HD wallet state core

Usage:
  klingwallet [options] <command> [args]
  klingwallet --help

Commands:
  init                        Create a new wallet (generates a mnemonic)
  restore                     Restore a wallet from an existing mnemonic
  track <symbol> <name>       Start tracking an asset
  untrack <symbol>            Stop tracking an asset
  assets                      List tracked assets with balances
  new-account <symbol>        Derive a new account for an asset
  accounts <symbol>           List accounts for an asset
  select <symbol> <index>     Select the active account for an asset
  send <symbol> <to> <value>  Submit a transfer from the selected account
  txs                         List submitted transactions
  refresh                     Refresh all balances from the chain node once
  watch                       Run the background synchronizer until interrupted

Core Options:
  --network       Network type: mainnet (default) or testnet
  --testnet       Shorthand for --network=testnet
  --datadir       Data directory (default: ~/.klingwallet)
  --config, -c    Config file path (default: <datadir>/klingwallet.conf)

Node Options:
  --endpoint      Chain node RPC endpoint URL
  --timeout       Chain node request timeout (default: 10s)

Sync Options:
  --refresh       Background balance refresh interval (default: 15s)
  --poll-timeout  Receipt poll timeout (default: 10s)

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path
  --log-json      Output logs as JSON
`
	fmt.Fprint(os.Stderr, usage)
}
