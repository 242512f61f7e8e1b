package commands

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/surprise-envelope/backend/internal/claimlink"
)

// issue <amount>: print an unsigned makeDeposit transaction and its secret.
func issueCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "issue <amount-usd>",
		Short: "Create a deposit intent (calldata + secret) for the sender's wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent, err := claimlink.NewIssuer(e.vault, e.log).Create(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"to":           intent.To.Hex(),
				"calldata":     hexutil.Encode(intent.Calldata),
				"secret":       intent.Secret,
				"key_address":  intent.KeyAddress.Hex(),
				"amount_units": intent.Amount.String(),
			})
		},
	}
}
