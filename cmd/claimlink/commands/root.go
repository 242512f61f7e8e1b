package commands

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/surprise-envelope/backend/internal/claimlink"
	"github.com/surprise-envelope/backend/internal/config"
)

// env is shared by every subcommand; filled in PersistentPreRunE.
type env struct {
	cfg   *config.Config
	vault claimlink.Vault
	log   *zap.Logger
}

var verbose bool

func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "claimlink",
		Short:         "Issue, resolve and redeem claim links against the configured vault",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e.log = zap.NewNop()
			if verbose {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				e.log = l
			}

			e.cfg = config.Load()
			if err := e.cfg.Validate(e.log); err != nil {
				return err
			}
			e.vault = e.cfg.Vault()
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(issueCmd(e), resolveCmd(e), decodeCmd(e), authorizeCmd(e), scanCmd(e))
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
