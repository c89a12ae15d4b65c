package cmd

import (
	"fmt"
	"os"

	"github.com/rzbill/tokenvault/pkg/cli/format"
	"github.com/rzbill/tokenvault/pkg/version"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	noColor  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tokenctl",
		Short: "tokenctl - manage user and application access tokens",
		Long: `tokenctl issues, lists, verifies and revokes signed access tokens.
Tokens are kept per user in labelled secrets, either in a Kubernetes
namespace or in a local badger database.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				format.EnableColor(false)
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is specified, display the help
			_ = cmd.Help()
		},
		Version: version.Version,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./tokenvault.yaml, $HOME/.tokenvault/tokenvault.yaml or /etc/tokenvault/tokenvault.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	root.AddCommand(newCreateCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newRevokeCmd())
	root.AddCommand(newRevokeAllCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newUsersCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, format.Error("Error: %v", err))
		os.Exit(exitCode(err))
	}
}
