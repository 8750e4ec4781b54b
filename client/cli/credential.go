package cli

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ChapmaBeerbohm/crypticscore/client/keys"
)

// GetCredentialCmd returns the decryption credential commands
func GetCredentialCmd(a *appState) *cobra.Command {
	credentialCmd := &cobra.Command{
		Use:   "credential",
		Short: "Inspect or clear the stored decryption credential",
	}
	credentialCmd.AddCommand(
		GetCmdCredentialShow(a),
		GetCmdCredentialClear(a),
	)
	return credentialCmd
}

// credentialOutput omits the private key.
type credentialOutput struct {
	UserAddress       common.Address   `json:"userAddress"`
	PublicKey         string           `json:"publicKey"`
	ContractAddresses []common.Address `json:"contractAddresses"`
	StartTimestamp    int64            `json:"startTimestamp"`
	DurationDays      int64            `json:"durationDays"`
	ExpiresAt         time.Time        `json:"expiresAt"`
	Valid             bool             `json:"valid"`
}

// GetCmdCredentialShow prints the stored credential without its private key
func GetCmdCredentialShow(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored credential of the configured account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sdk, err := a.client(cmd)
			if err != nil {
				return err
			}
			cred, err := sdk.Credentials().Get(cmd.Context(), sdk.Signer().Address())
			if errors.Is(err, keys.ErrNotFound) {
				return printJSON(cmd, map[string]any{"credential": nil})
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, credentialOutput{
				UserAddress:       cred.UserAddress,
				PublicKey:         cred.PublicKey,
				ContractAddresses: cred.ContractAddresses,
				StartTimestamp:    cred.StartTimestamp,
				DurationDays:      cred.DurationDays,
				ExpiresAt:         cred.ExpiresAt(),
				Valid:             cred.IsValid(time.Now()),
			})
		},
	}
}

// GetCmdCredentialClear removes the stored credential
func GetCmdCredentialClear(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored credential; the next decryption signs a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sdk, err := a.client(cmd)
			if err != nil {
				return err
			}
			if err := sdk.Credentials().Invalidate(cmd.Context(), sdk.Signer().Address()); err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"cleared": sdk.Signer().Address()})
		},
	}
}
