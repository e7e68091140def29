package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/dschat/internal/config"
	"github.com/flemzord/dschat/internal/security"
)

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "check [path]",
			Short: "Validate configuration",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				explicit := flags.config
				if len(args) == 1 {
					explicit = args[0]
				}
				cfg, path, err := config.LoadOrDefault(explicit)
				if err != nil {
					return err
				}
				if err := config.Validate(cfg); err != nil {
					return err
				}
				if path == "" {
					path = "built-in defaults"
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Configuration OK (%s)\n", path)
				if cfg.Provider.APIKey == "" {
					fmt.Fprintln(out, "Warning: no API key configured; chat, serve and mcp will fail")
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration with secrets redacted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := config.LoadOrDefault(flags.config)
				if err != nil {
					return err
				}
				out, err := redactedYAML(cfg)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			},
		},
	)
	return cmd
}

// redactedYAML renders cfg with secret-looking keys and values hidden.
func redactedYAML(cfg *config.Config) ([]byte, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: encoding: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("config: encoding: %w", err)
	}
	security.NewRedactor(cfg.Provider.APIKey, cfg.Gateway.Auth.BearerToken).RedactMap(tree)
	return yaml.Marshal(tree)
}
