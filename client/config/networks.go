// Package config provides network configuration and connection settings for the CrypticScore client SDK.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NetworkConfig defines the configuration for connecting to an EVM network running the rating contract.
type NetworkConfig struct {
	// Network identification
	ChainID   uint64 `json:"chain_id" mapstructure:"chain_id"`
	Name      string `json:"name" mapstructure:"name"`
	NetworkID string `json:"network_id" mapstructure:"network_id"`

	// Endpoints
	RPC     string `json:"rpc_endpoint" mapstructure:"rpc_endpoint"`
	Relayer string `json:"relayer_endpoint,omitempty" mapstructure:"relayer_endpoint"`

	// Contract addresses
	RatingManager string `json:"rating_manager" mapstructure:"rating_manager"`
	ACL           string `json:"acl_contract,omitempty" mapstructure:"acl_contract"`
	KMSVerifier   string `json:"kms_verifier_contract,omitempty" mapstructure:"kms_verifier_contract"`
	InputVerifier string `json:"input_verifier_contract,omitempty" mapstructure:"input_verifier_contract"`

	// Gas configuration
	GasLimit      uint64  `json:"gas_limit" mapstructure:"gas_limit"`
	GasAdjustment float64 `json:"gas_adjustment" mapstructure:"gas_adjustment"`

	// Connection settings
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout"`
	ReceiptTimeout time.Duration `json:"receipt_timeout" mapstructure:"receipt_timeout"`

	// Mock marks networks served by a local hardhat node with the mock coprocessor.
	Mock bool `json:"mock" mapstructure:"mock"`
}

// Well-known chain identifiers.
const (
	LocalhostChainID uint64 = 31337
	SepoliaChainID   uint64 = 11155111
)

// DefaultMockChains maps chain ids served by a local development node to their RPC URL.
func DefaultMockChains() map[uint64]string {
	return map[uint64]string{
		LocalhostChainID: "http://localhost:8545",
	}
}

// LocalhostNetwork returns the network configuration for a local hardhat node.
func LocalhostNetwork() NetworkConfig {
	return NetworkConfig{
		ChainID:   LocalhostChainID,
		Name:      "Hardhat Localhost",
		NetworkID: "localhost",

		RPC: "http://localhost:8545",

		RatingManager: "0x5FbDB2315678afecb367f032d93F642f64180aa3",

		GasLimit:      3_000_000,
		GasAdjustment: 1.2,

		RequestTimeout: 10 * time.Second,
		ReceiptTimeout: 30 * time.Second,

		Mock: true,
	}
}

// SepoliaNetwork returns the network configuration for Sepolia with the hosted relayer.
func SepoliaNetwork() NetworkConfig {
	return NetworkConfig{
		ChainID:   SepoliaChainID,
		Name:      "Sepolia",
		NetworkID: "sepolia",

		RPC:     "https://ethereum-sepolia-rpc.publicnode.com",
		Relayer: "https://relayer.testnet.zama.cloud",

		ACL:           "0x687820221192C5B662b25367F70076A37bc79b6c",
		KMSVerifier:   "0x1364cBBf2cDF5032C47d8226a6f6FBD2AFCDacAC",
		InputVerifier: "0xbc91f3daD1A5F19F8390c400196e58073B6a0BC4",

		GasLimit:      3_000_000,
		GasAdjustment: 1.3,

		RequestTimeout: 30 * time.Second,
		ReceiptTimeout: 3 * time.Minute,
	}
}

// Validate checks if the network configuration is valid.
func (nc *NetworkConfig) Validate() error {
	if nc.ChainID == 0 {
		return errors.New("chain ID is required")
	}

	if nc.RPC == "" {
		return errors.New("RPC endpoint is required")
	}

	if !nc.Mock && nc.Relayer == "" {
		return errors.New("relayer endpoint is required for non-mock networks")
	}

	for field, addr := range map[string]string{
		"rating manager":          nc.RatingManager,
		"ACL contract":            nc.ACL,
		"KMS verifier contract":   nc.KMSVerifier,
		"input verifier contract": nc.InputVerifier,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%s address is not a hex address: %s", field, addr)
		}
	}

	if nc.GasLimit == 0 {
		nc.GasLimit = 3_000_000
	}

	if nc.GasAdjustment <= 0 {
		nc.GasAdjustment = 1.2
	}

	if nc.RequestTimeout <= 0 {
		nc.RequestTimeout = 30 * time.Second
	}

	if nc.ReceiptTimeout <= 0 {
		nc.ReceiptTimeout = time.Minute
	}

	return nil
}

// IsMock returns true if the network is expected to be served by the mock coprocessor.
func (nc *NetworkConfig) IsMock() bool {
	if nc.Mock {
		return true
	}
	_, ok := DefaultMockChains()[nc.ChainID]
	return ok
}

// GetNetworkByChainID returns a pre-configured network by chain ID.
func GetNetworkByChainID(chainID uint64) (NetworkConfig, bool) {
	networks := map[uint64]NetworkConfig{
		LocalhostChainID: LocalhostNetwork(),
		SepoliaChainID:   SepoliaNetwork(),
	}

	network, exists := networks[chainID]
	return network, exists
}

// GetNetworkByName returns a pre-configured network by its short name.
func GetNetworkByName(name string) (NetworkConfig, bool) {
	switch strings.ToLower(name) {
	case "localhost", "local", "hardhat":
		return LocalhostNetwork(), true
	case "sepolia":
		return SepoliaNetwork(), true
	}
	return NetworkConfig{}, false
}
