package commands

import (
	"github.com/spf13/cobra"

	"github.com/surprise-envelope/backend/internal/claimlink"
)

func decodeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <link>",
		Short: "Parse a claim link and show the deposit it points at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := claimlink.Decode(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), describe(link))
		},
	}
}

// describe never includes the secret.
func describe(link claimlink.ClaimLink) map[string]any {
	out := map[string]any{
		"chain_id": link.ChainID,
		"version":  link.Version,
		"index":    link.Index,
	}
	if key, err := claimlink.DeriveKey(link.Secret); err == nil {
		out["key_address"] = key.Address.Hex()
	}
	return out
}
