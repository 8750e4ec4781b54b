package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChapmaBeerbohm/crypticscore/client/ledger"
)

// GetCampaignCmd returns the campaign management commands
func GetCampaignCmd(a *appState) *cobra.Command {
	campaignCmd := &cobra.Command{
		Use:                        "campaign",
		Short:                      "Create, inspect and end rating campaigns",
		SuggestionsMinimumDistance: 2,
	}
	campaignCmd.AddCommand(
		GetCmdCampaignCreate(a),
		GetCmdCampaignInfo(a),
		GetCmdCampaignList(a),
		GetCmdCampaignEnd(a),
	)
	return campaignCmd
}

type campaignOutput struct {
	*ledger.Campaign
	Status string `json:"status"`
}

// GetCmdCampaignCreate creates a campaign owned by the configured account
func GetCmdCampaignCreate(a *appState) *cobra.Command {
	var (
		name, description string
		dimensions        string
		scaleMax          uint8
		duration          time.Duration
		allowMultiple     bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a rating campaign",
		Long: `Create a rating campaign with up to 10 named dimensions.

Example:
  crypticscore campaign create --name Coffee --dimensions "Taste,Price" --scale-max 5 --duration 168h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sdk, err := a.client(cmd)
			if err != nil {
				return err
			}
			id, receipt, err := sdk.CreateCampaign(cmd.Context(), ledger.CampaignParams{
				Name:          name,
				Description:   description,
				Dimensions:    splitDimensions(dimensions),
				ScaleMax:      scaleMax,
				EndTime:       time.Now().Add(duration),
				AllowMultiple: allowMultiple,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"campaignId": id,
				"txHash":     receipt.TxHash.Hex(),
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "campaign name")
	cmd.Flags().StringVar(&description, "description", "", "campaign description")
	cmd.Flags().StringVar(&dimensions, "dimensions", "", "comma separated dimension names")
	cmd.Flags().Uint8Var(&scaleMax, "scale-max", 5, "highest score, 2 to 100")
	cmd.Flags().DurationVar(&duration, "duration", 7*24*time.Hour, "time until the campaign ends")
	cmd.Flags().BoolVar(&allowMultiple, "allow-multiple", false, "accept several ratings per account")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("dimensions")
	return cmd
}

// GetCmdCampaignInfo shows one campaign
func GetCmdCampaignInfo(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "info [campaign-id]",
		Short: "Show a campaign",
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
			c, err := sdk.Ledger().GetCampaign(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, campaignOutput{Campaign: c, Status: c.Status(time.Now())})
		},
	}
}

// GetCmdCampaignList lists campaigns
func GetCmdCampaignList(a *appState) *cobra.Command {
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sdk, err := a.client(cmd)
			if err != nil {
				return err
			}
			var campaigns []*ledger.Campaign
			if mine {
				campaigns, err = sdk.MyCampaigns(cmd.Context())
			} else {
				campaigns, err = sdk.ListCampaigns(cmd.Context())
			}
			if err != nil {
				return err
			}

			now := time.Now()
			out := make([]campaignOutput, len(campaigns))
			for i, c := range campaigns {
				out[i] = campaignOutput{Campaign: c, Status: c.Status(now)}
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "only campaigns created by the configured account")
	return cmd
}

// GetCmdCampaignEnd ends a campaign before its deadline
func GetCmdCampaignEnd(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "end [campaign-id]",
		Short: "End a campaign early (creator only)",
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
			receipt, err := sdk.Ledger().EndCampaignEarly(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printReceipt(cmd, receipt)
		},
	}
}

func splitDimensions(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseScores(args []string) ([]uint32, error) {
	scores := make([]uint32, len(args))
	for i, arg := range args {
		v, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid score %q", arg)
		}
		scores[i] = uint32(v)
	}
	return scores, nil
}
