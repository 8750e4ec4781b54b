package cli

import (
	"github.com/spf13/cobra"
)

// GetResultsCmd returns the result commands
func GetResultsCmd(a *appState) *cobra.Command {
	resultsCmd := &cobra.Command{
		Use:   "results",
		Short: "Decrypt campaign results",
	}
	resultsCmd.AddCommand(GetCmdResultsDecrypt(a))
	return resultsCmd
}

// GetCmdResultsDecrypt decrypts every score of a campaign
func GetCmdResultsDecrypt(a *appState) *cobra.Command {
	var summaryOnly bool
	cmd := &cobra.Command{
		Use:   "decrypt [campaign-id]",
		Short: "Decrypt and summarize a campaign",
		Long: `Decrypt every score of a campaign and print per-participant records and
per-dimension statistics. The configured account must have been granted
access with "authorize creator", "authorize dimension" or "authorize own".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			sdk, err := a.client(cmd)
			if err != nil {
				return err
			}
			res, err := sdk.Results(cmd.Context(), id)
			if err != nil {
				return err
			}
			if summaryOnly {
				return printJSON(cmd, res.Summary)
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().BoolVar(&summaryOnly, "summary", false, "print only the statistics")
	return cmd
}
