package main

import (
	"fmt"
	"os"

	"github.com/Harshitk-cp/vigil/internal/buildconfig"
	"github.com/Harshitk-cp/vigil/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "vigil",
	Short:         "Investigate operational anomalies and evolve the decision policy",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return config.Load()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vigil %s (%s)\n", buildconfig.Version(), buildconfig.Commit())
	},
}

func init() {
	rootCmd.AddCommand(investigateCmd)
	rootCmd.AddCommand(knowledgeCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = buildconfig.Version()
}

// newLogger logs to stderr so command output stays machine-readable.
func newLogger() *zap.Logger {
	logger, err := config.NewLogger()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
