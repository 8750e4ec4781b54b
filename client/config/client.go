package config

import (
	"fmt"
	"time"
)

// Credential store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// ClientConfig defines the overall configuration for the CrypticScore client.
type ClientConfig struct {
	// Network configuration
	Network NetworkConfig `json:"network" mapstructure:"network"`

	// MockChains overrides or extends DefaultMockChains.
	MockChains map[uint64]string `json:"mock_chains,omitempty" mapstructure:"mock_chains"`

	// Credential store configuration
	StoreBackend    string `json:"store_backend,omitempty" mapstructure:"store_backend"` // memory, sqlite
	StorePath       string `json:"store_path,omitempty" mapstructure:"store_path"`
	StorePassphrase string `json:"-" mapstructure:"store_passphrase"`

	// Signer key, hex encoded. Only read from the environment.
	PrivateKey string `json:"-" mapstructure:"private_key"`

	// Logging configuration
	LogLevel  string `json:"log_level,omitempty" mapstructure:"log_level"`   // debug, info, warn, error
	LogFormat string `json:"log_format,omitempty" mapstructure:"log_format"` // json, text

	// Decryption fan-out for handle reads
	ReadConcurrency int `json:"read_concurrency,omitempty" mapstructure:"read_concurrency"`

	// Credential lifetime override, zero means the default of 365 days
	CredentialDuration time.Duration `json:"credential_duration,omitempty" mapstructure:"credential_duration"`
}

// DefaultConfig returns a default client configuration using the local hardhat node.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Network:         LocalhostNetwork(),
		StoreBackend:    StoreMemory,
		LogLevel:        "info",
		LogFormat:       "text",
		ReadConcurrency: 8,
	}
}

// SepoliaConfig returns a client configuration for Sepolia.
func SepoliaConfig() *ClientConfig {
	cfg := DefaultConfig()
	cfg.Network = SepoliaNetwork()
	cfg.StoreBackend = StoreSQLite
	cfg.StorePath = "crypticscore.db"
	return cfg
}

// AllMockChains returns DefaultMockChains merged with the configured overrides.
func (cc *ClientConfig) AllMockChains() map[uint64]string {
	chains := DefaultMockChains()
	for id, url := range cc.MockChains {
		chains[id] = url
	}
	return chains
}

// Validate checks if the client configuration is valid.
func (cc *ClientConfig) Validate() error {
	if err := cc.Network.Validate(); err != nil {
		return fmt.Errorf("network config validation failed: %w", err)
	}

	validBackends := map[string]bool{
		StoreMemory: true,
		StoreSQLite: true,
	}

	if cc.StoreBackend != "" && !validBackends[cc.StoreBackend] {
		return fmt.Errorf("invalid store backend: %s", cc.StoreBackend)
	}

	if cc.StoreBackend == StoreSQLite && cc.StorePath == "" {
		return fmt.Errorf("store path is required for the %s backend", StoreSQLite)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if cc.LogLevel != "" && !validLogLevels[cc.LogLevel] {
		return fmt.Errorf("invalid log level: %s", cc.LogLevel)
	}

	if cc.LogFormat != "" && cc.LogFormat != "json" && cc.LogFormat != "text" {
		return fmt.Errorf("invalid log format: %s", cc.LogFormat)
	}

	if cc.ReadConcurrency < 0 {
		return fmt.Errorf("read concurrency must not be negative: %d", cc.ReadConcurrency)
	}

	if cc.CredentialDuration < 0 {
		return fmt.Errorf("credential duration must not be negative: %s", cc.CredentialDuration)
	}

	return nil
}
