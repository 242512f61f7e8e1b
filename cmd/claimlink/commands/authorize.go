package commands

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/surprise-envelope/backend/internal/chain"
	"github.com/surprise-envelope/backend/internal/claimlink"
)

// authorize <link> <recipient>: sign the withdrawal; the caller submits it.
func authorizeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "authorize <link> <recipient>",
		Short: "Sign a withdrawal of the linked deposit to recipient",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := claimlink.Decode(args[0])
			if err != nil {
				return err
			}

			names, closeNames, err := chain.OpenNames(cmd.Context(), e.cfg, e.log)
			if err != nil {
				return err
			}
			defer closeNames()

			authz, err := claimlink.NewAuthorizer(e.vault, names, e.log).Authorize(cmd.Context(), link, args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"to":           authz.Vault.Hex(),
				"index":        authz.Index,
				"recipient":    authz.Recipient.Hex(),
				"signature":    hexutil.Encode(authz.Signature),
				"message_hash": authz.MessageHash.Hex(),
				"calldata":     hexutil.Encode(authz.Calldata),
			})
		},
	}
}
