package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/surprise-envelope/backend/internal/claimlink"
)

// scan <file.html>: list the claim links found in an HTML page or mail body.
func scanCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <file.html>",
		Short: "Extract claim links from an HTML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			links, err := claimlink.FindLinksInHTML(f)
			if err != nil {
				return err
			}

			out := make([]map[string]any, 0, len(links))
			for _, l := range links {
				out = append(out, describe(l))
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
