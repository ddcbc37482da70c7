package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/breezapp/breez/internal/config"
	"github.com/breezapp/breez/internal/logging"
)

var (
	logFormat string
	debugMode bool
	envFiles  []string
)

// rootCmd represents the base command for the breez application
var rootCmd = &cobra.Command{
	Use:   "breez",
	Short: "Task manager backend with Google Calendar sync",
	Long: `breez keeps a user's tasks in sync with a dedicated Google Calendar.

It links a Google account through OAuth, refreshes access tokens when they
expire, and mirrors every task with a due date as a calendar event. Tasks
are available over a JSON API and as MCP tools for AI assistants.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFiles...); err != nil {
			return err
		}
		slog.SetDefault(newLogger())
		return nil
	},
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "breez version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger logs to stderr so stdout stays free for the stdio MCP transport.
func newLogger() *slog.Logger {
	return logging.NewLogger(os.Stderr, logFormat, debugMode)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "breez version %s\n", version)
		},
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText, "Log format: text or json")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Load environment variables from these files (default: .env if present)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newAuthURLCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
