package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// Exit codes.
const (
	ExitSuccess      = 0
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
)

// Persistent flags
var (
	flagRepo     string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "prsum",
	Short: "Summarize the changes on a branch",
	Long: "prsum summarises every changed file between two branches with an LLM, then writes an " +
		"overall pull-request summary. Failed files can be retried later and folded back into the summary.",
	SilenceUsage: true,
}

// Run executes the root command and returns an exit code.
func Run() int {
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(regenerateCmd)
	rootCmd.AddCommand(failedCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print prsum version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "prsum version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRepo, "repo", "", "Path inside the git repository (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Diagnostic log level (debug, info, warn, error)")
}
