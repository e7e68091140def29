// Package main is the entry point for the dschat CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/dschat/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	config   string
	logLevel string
}

func (g *globalFlags) params() app.Params {
	return app.Params{
		ConfigPath: g.config,
		LogLevel:   g.logLevel,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "dschat",
		Short:         "A DeepSeek chat assistant with context management",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	root.AddCommand(
		versionCmd(),
		chatCmd(flags),
		serveCmd(flags),
		mcpCmd(flags),
		sessionsCmd(flags),
		configCmd(flags),
		serviceCmd(flags),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), app.Describe(version, commit, date))
		},
	}
}
