package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChapmaBeerbohm/crypticscore/bridge"
	"github.com/ChapmaBeerbohm/crypticscore/bridge/handlers"
)

// GetServeCmd returns the results bridge command
func GetServeCmd(a *appState) *cobra.Command {
	var (
		port      int
		redisAddr string
	)
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the results bridge HTTP service",
		Long: `Serve campaign metadata and decrypted summaries over HTTP. Decryptions run
on a Redis backed task queue with the configured account's credential.

Environment:
  REDIS_URL or REDIS_ADDR   Redis address (default 127.0.0.1:6379)
  BRIDGE_PORT               HTTP port (default 8090)
  JWT_SECRET                HS256 secret for POST /campaigns/:id/decrypt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sdk, err := a.client(cmd)
			if err != nil {
				return err
			}
			cfg := bridge.NewConfig(a.logger)
			if port != 0 {
				cfg.HTTPPort = port
			}
			if redisAddr != "" {
				cfg.RedisAddr = redisAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return bridge.NewService(cfg, sdk, a.logger).Run(ctx)
		},
	}
	serveCmd.Flags().IntVar(&port, "port", 0, "HTTP port, overrides BRIDGE_PORT")
	serveCmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address, overrides REDIS_URL and REDIS_ADDR")
	serveCmd.AddCommand(GetCmdServeToken(a))
	return serveCmd
}

// GetCmdServeToken issues a bridge access token
func GetCmdServeToken(a *appState) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
		decrypt bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for the results bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var perms []string
			if decrypt {
				perms = append(perms, handlers.PermissionDecrypt)
			}
			token, err := handlers.IssueToken(bridge.NewConfig(a.logger).JWTSecret, subject, ttl, perms...)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"token": token})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&decrypt, "decrypt", true, "grant permission to request decryptions")
	return cmd
}
