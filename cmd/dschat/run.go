package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/flemzord/dschat/pkg/app"
)

func chatCmd(flags *globalFlags) *cobra.Command {
	var session, strategy string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.Build(cmd.Context(), flags.params())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			ctx, cancel := app.SignalContext(cmd.Context(), a.Logger)
			defer cancel()

			interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
			width := 0
			if interactive {
				if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
					width = w - 4
				}
			}
			return a.Chat(ctx, app.ChatParams{
				SessionID:   session,
				Strategy:    strategy,
				In:          cmd.InOrStdin(),
				Out:         cmd.OutOrStdout(),
				Interactive: interactive,
				Width:       width,
			})
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "Session id to resume")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Context strategy (default, window, facts, branching)")
	return cmd
}

func serveCmd(flags *globalFlags) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web chat gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.Build(cmd.Context(), flags.params())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if bind != "" {
				a.Config.Gateway.Bind = bind
			}
			ctx, cancel := app.SignalContext(cmd.Context(), a.Logger)
			defer cancel()
			return a.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Override gateway.bind")
	return cmd
}

func mcpCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve dschat tools over the Model Context Protocol on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := flags.params()
			// stdout carries the protocol.
			params.LogOutput = os.Stderr
			a, err := app.Build(cmd.Context(), params)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			ctx, cancel := app.SignalContext(cmd.Context(), a.Logger)
			defer cancel()
			return a.MCP(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
