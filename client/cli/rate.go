package cli

import (
	"github.com/spf13/cobra"
)

// GetRateCmd returns the rating commands
func GetRateCmd(a *appState) *cobra.Command {
	rateCmd := &cobra.Command{
		Use:   "rate",
		Short: "Submit encrypted ratings",
	}
	rateCmd.AddCommand(GetCmdRateSubmit(a))
	return rateCmd
}

// GetCmdRateSubmit encrypts one score per dimension and submits them
func GetCmdRateSubmit(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "submit [campaign-id] [score]...",
		Short: "Encrypt and submit one score per dimension",
		Long: `Encrypt one score per campaign dimension and submit them in a single transaction.
Scores are only ever sent encrypted.

Example:
  crypticscore rate submit 0 5 3`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			scores, err := parseScores(args[1:])
			if err != nil {
				return err
			}
			sdk, err := a.client(cmd)
			if err != nil {
				return err
			}
			receipt, err := sdk.SubmitScores(cmd.Context(), id, scores)
			if err != nil {
				return err
			}
			return printReceipt(cmd, receipt)
		},
	}
}
