package config

import (
	"fmt"
	"net/url"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir must not be empty")
	}

	if cfg.Node.Endpoint == "" {
		return fmt.Errorf("node.endpoint must not be empty")
	}
	u, err := url.Parse(cfg.Node.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("node.endpoint must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("node.endpoint scheme must be http or https")
	}
	if cfg.Node.Timeout <= 0 {
		return fmt.Errorf("node.timeout must be positive")
	}

	if cfg.Sync.RefreshInterval <= 0 {
		return fmt.Errorf("sync.refresh must be positive")
	}
	if cfg.Sync.PollTimeout <= 0 {
		return fmt.Errorf("sync.polltimeout must be positive")
	}
	if cfg.Sync.BackoffMin <= 0 {
		return fmt.Errorf("sync.backoffmin must be positive")
	}
	if cfg.Sync.BackoffMax < cfg.Sync.BackoffMin {
		return fmt.Errorf("sync.backoffmax must be >= sync.backoffmin")
	}

	return nil
}
