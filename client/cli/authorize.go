package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// GetAuthorizeCmd returns the decryption access commands
func GetAuthorizeCmd(a *appState) *cobra.Command {
	authorizeCmd := &cobra.Command{
		Use:   "authorize",
		Short: "Grant decryption access to campaign scores",
	}
	authorizeCmd.AddCommand(
		GetCmdAuthorizeCreator(a),
		GetCmdAuthorizeDimension(a),
		GetCmdAuthorizeOwn(a),
	)
	return authorizeCmd
}

// GetCmdAuthorizeCreator grants the creator access to every score
func GetCmdAuthorizeCreator(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "creator [campaign-id]",
		Short: "Allow the creator to decrypt every score (creator only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			sdk, err := a.client(cmd)
			if err != nil {
				return err
			}
			receipt, err := sdk.Ledger().AuthorizeCreatorDecryptAll(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printReceipt(cmd, receipt)
		},
	}
}

// GetCmdAuthorizeDimension grants the creator access to one dimension
func GetCmdAuthorizeDimension(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "dimension [campaign-id] [dimension-index]",
		Short: "Allow the creator to decrypt one dimension (creator only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			dim, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid dimension index %q", args[1])
			}
			sdk, err := a.client(cmd)
			if err != nil {
				return err
			}
			receipt, err := sdk.Ledger().AuthorizeCreatorDecryptDimension(cmd.Context(), id, dim)
			if err != nil {
				return err
			}
			return printReceipt(cmd, receipt)
		},
	}
}

// GetCmdAuthorizeOwn grants the caller access to its own ratings
func GetCmdAuthorizeOwn(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "own [campaign-id]",
		Short: "Allow the configured account to decrypt its own ratings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			sdk, err := a.client(cmd)
			if err != nil {
				return err
			}
			receipt, err := sdk.Ledger().AuthorizeOwnDecrypt(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printReceipt(cmd, receipt)
		},
	}
}
