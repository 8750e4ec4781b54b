// Package cli provides the crypticscore command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"

	"github.com/ChapmaBeerbohm/crypticscore/client"
	"github.com/ChapmaBeerbohm/crypticscore/client/config"
)

// SDKFactory builds the SDK used by a command.
type SDKFactory func(ctx context.Context, cfg *config.ClientConfig, logger log.Logger) (*client.SDK, error)

// appState is shared by every command of one invocation.
type appState struct {
	cfgPath   string
	logLevel  string
	logFormat string

	cfg    *config.ClientConfig
	logger log.Logger

	newSDK SDKFactory
	sdk    *client.SDK
}

func defaultSDK(ctx context.Context, cfg *config.ClientConfig, logger log.Logger) (*client.SDK, error) {
	return client.New(ctx, cfg, client.WithLogger(logger))
}

// NewRootCmd returns the crypticscore root command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&appState{newSDK: defaultSDK})
}

func newRootCmd(a *appState) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "crypticscore",
		Short:         "Encrypted multi-dimensional rating campaigns",
		Version:       client.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.sdk == nil {
				return nil
			}
			return a.sdk.Close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", "", "config file (yaml, toml or json)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text, json")

	rootCmd.AddCommand(
		GetCampaignCmd(a),
		GetRateCmd(a),
		GetResultsCmd(a),
		GetAuthorizeCmd(a),
		GetCredentialCmd(a),
		GetServeCmd(a),
	)
	return rootCmd
}

// load reads the configuration once; flags override the file and environment.
func (a *appState) load() error {
	if a.cfg == nil {
		cfg, err := config.Load(a.cfgPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.logLevel != "" {
		a.cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		a.cfg.LogFormat = a.logFormat
	}
	if a.logger == nil {
		logger, err := client.NewLogger(os.Stderr, a.cfg.LogLevel, a.cfg.LogFormat)
		if err != nil {
			return err
		}
		a.logger = logger
	}
	return nil
}

// client returns the SDK, building it on first use.
func (a *appState) client(cmd *cobra.Command) (*client.SDK, error) {
	if a.sdk != nil {
		return a.sdk, nil
	}
	sdk, err := a.newSDK(cmd.Context(), a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.sdk = sdk
	return sdk, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type receiptOutput struct {
	TxHash      string `json:"txHash"`
	BlockNumber string `json:"blockNumber,omitempty"`
	GasUsed     uint64 `json:"gasUsed"`
}

func printReceipt(cmd *cobra.Command, r *types.Receipt) error {
	out := receiptOutput{TxHash: r.TxHash.Hex(), GasUsed: r.GasUsed}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.String()
	}
	return printJSON(cmd, out)
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid campaign id %q", s)
	}
	return id, nil
}
