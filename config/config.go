// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Node settings: which chain node to talk to and how patiently
//   - Local settings: data directory, sync cadence, logging
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds wallet runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Chain node access
	Node NodeConfig

	// Balance and transaction sync
	Sync SyncConfig

	// Logging
	Log LogConfig
}

// NodeConfig holds chain node connection settings.
type NodeConfig struct {
	Endpoint string        `conf:"node.endpoint"`
	Timeout  time.Duration `conf:"node.timeout"`
}

// SyncConfig holds synchronizer cadence settings.
type SyncConfig struct {
	RefreshInterval time.Duration `conf:"sync.refresh"`
	PollTimeout     time.Duration `conf:"sync.polltimeout"`
	BackoffMin      time.Duration `conf:"sync.backoffmin"`
	BackoffMax      time.Duration `conf:"sync.backoffmax"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingwallet
//	macOS:   ~/Library/Application Support/Klingwallet
//	Windows: %APPDATA%\Klingwallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingwallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Klingwallet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Klingwallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "Klingwallet")
	default:
		return filepath.Join(home, ".klingwallet")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// StateDir returns the wallet state database directory.
func (c *Config) StateDir() string {
	return filepath.Join(c.NetworkDataDir(), "state")
}

// VaultDir returns the encrypted seed vault directory.
func (c *Config) VaultDir() string {
	return filepath.Join(c.NetworkDataDir(), "vault")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingwallet.conf")
}
