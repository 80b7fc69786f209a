// Package cli implements the walbsim command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/mit-pdos/go-walbsim/util"
)

var verbosity uint64

var rootCmd = &cobra.Command{
	Use:     "walbsim",
	Version: "dev",
	Short:   "Crash-consistency simulator for the WalB pack protocol",
	Long: `walbsim explores the legal orderings of WalB log and data writes,
crashes at random points, recovers from the log, and checks that recovery
always reconstructs the state implied by the durable log prefix.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		util.Debug = verbosity
	},
}

func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func init() {
	rootCmd.PersistentFlags().Uint64VarP(&verbosity, "verbose", "v", 0, "debug log level")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
