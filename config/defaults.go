package config

import "time"

// DefaultMainnet returns the default wallet configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Node: NodeConfig{
			Endpoint: "http://127.0.0.1:8545",
			Timeout:  10 * time.Second,
		},
		Sync: SyncConfig{
			RefreshInterval: 15 * time.Second,
			PollTimeout:     10 * time.Second,
			BackoffMin:      time.Second,
			BackoffMax:      2 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default wallet configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Node.Endpoint = "http://127.0.0.1:8645"
	return cfg
}

// Default returns the default wallet configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
