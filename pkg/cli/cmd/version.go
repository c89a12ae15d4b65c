package cmd

import (
	"fmt"

	"github.com/rzbill/tokenvault/pkg/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the tokenctl version information",
		Long:  `Display detailed version information about the tokenctl binary.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch output {
			case "", "text":
				fmt.Fprintln(cmd.OutOrStdout(), version.Info())
				return nil
			case "yaml":
				return writeYAML(cmd.OutOrStdout(), version.Map())
			default:
				return fmt.Errorf("unsupported output format: %s", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text|yaml)")
	return cmd
}
