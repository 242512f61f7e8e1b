package commands

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/surprise-envelope/backend/internal/chain"
	"github.com/surprise-envelope/backend/internal/claimlink"
)

// resolve <tx-hash> --secret: wait for the deposit and print its claim link.
func resolveCmd(e *env) *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "resolve <tx-hash>",
		Short: "Wait for a deposit transaction and print its claim link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hexutil.Decode(args[0])
			if err != nil || len(raw) != common.HashLength {
				return fmt.Errorf("tx hash must be 32 bytes of hex")
			}

			ctx := cmd.Context()
			adapters, err := chain.Open(ctx, e.cfg, e.log)
			if err != nil {
				return err
			}
			defer adapters.Close()

			resolver := claimlink.NewResolver(e.vault, adapters.Receipts, adapters.Deposits, adapters.Vault, claimlink.NewCodec(e.cfg.LinkHost), e.log)
			res, err := resolver.Resolve(ctx, common.BytesToHash(raw), secret)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"url":          res.URL,
				"index":        res.Record.Index,
				"block_number": res.Record.BlockNumber,
			})
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "secret returned by issue")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}
