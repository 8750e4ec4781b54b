package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ChapmaBeerbohm/crypticscore/client/store"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CRYPTICSCORE"

// Load builds a ClientConfig from, in increasing precedence: the preset named
// by CRYPTICSCORE_NETWORK_PRESET (localhost when unset), the optional config
// file at path, and CRYPTICSCORE_* environment variables. A .env file in the
// working directory is loaded first when present. Development chains default
// to the SQLite store at store.DefaultPath.
func Load(path string) (*ClientConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("network_preset", "localhost")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	preset := v.GetString("network_preset")
	network, ok := GetNetworkByName(preset)
	if !ok {
		return nil, fmt.Errorf("unknown network preset: %s", preset)
	}

	cfg := DefaultConfig()
	cfg.Network = network
	if network.ChainID == SepoliaChainID {
		cfg = SepoliaConfig()
	}
	if network.Mock {
		// mock ciphertexts and coprocessor keys must outlive a single command
		path, err := store.DefaultPath()
		if err != nil {
			return nil, err
		}
		cfg.StoreBackend = StoreSQLite
		cfg.StorePath = path
	}
	setDefaults(v, cfg)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper, cfg *ClientConfig) {
	n := cfg.Network
	v.SetDefault("network.chain_id", n.ChainID)
	v.SetDefault("network.name", n.Name)
	v.SetDefault("network.network_id", n.NetworkID)
	v.SetDefault("network.rpc_endpoint", n.RPC)
	v.SetDefault("network.relayer_endpoint", n.Relayer)
	v.SetDefault("network.rating_manager", n.RatingManager)
	v.SetDefault("network.acl_contract", n.ACL)
	v.SetDefault("network.kms_verifier_contract", n.KMSVerifier)
	v.SetDefault("network.input_verifier_contract", n.InputVerifier)
	v.SetDefault("network.gas_limit", n.GasLimit)
	v.SetDefault("network.gas_adjustment", n.GasAdjustment)
	v.SetDefault("network.request_timeout", n.RequestTimeout)
	v.SetDefault("network.receipt_timeout", n.ReceiptTimeout)
	v.SetDefault("network.mock", n.Mock)

	v.SetDefault("store_backend", cfg.StoreBackend)
	v.SetDefault("store_path", cfg.StorePath)
	v.SetDefault("store_passphrase", "")
	v.SetDefault("private_key", "")
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("read_concurrency", cfg.ReadConcurrency)
	v.SetDefault("credential_duration", cfg.CredentialDuration)
}
