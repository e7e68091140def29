package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flemzord/dschat/internal/memory"
	"github.com/flemzord/dschat/pkg/app"
)

func sessionsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored sessions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List sessions, most recently updated first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd, flags, func(a *app.App) error {
					list, err := a.Store.List(cmd.Context())
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tUPDATED\tTITLE")
					for _, info := range list {
						fmt.Fprintf(w, "%s\t%s\t%s\n", info.ID, info.UpdatedAt.Local().Format("2006-01-02 15:04"), info.Summary)
					}
					return w.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a session and its stored copy",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, flags, func(a *app.App) error {
					if err := a.Store.Delete(cmd.Context(), args[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
					return nil
				})
			},
		},
		searchCmd(flags),
	)
	return cmd
}

func searchCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across stored messages (sqlite backend)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, flags, func(a *app.App) error {
				if a.SQLite == nil {
					return errors.New("search requires storage.backend: sqlite")
				}
				matches, err := a.SQLite.Search(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SESSION\tINDEX\tROLE\tSNIPPET")
				for _, m := range matches {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", m.SessionID, m.Index, m.Role, m.Snippet)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of matches")
	return cmd
}

// withStore opens the session store without an upstream client and
// closes it after fn.
func withStore(cmd *cobra.Command, flags *globalFlags, fn func(*app.App) error) error {
	params := flags.params()
	params.LogOutput = cmd.ErrOrStderr()
	a, err := app.Open(cmd.Context(), params)
	if err != nil {
		return err
	}
	err = fn(a)
	if cerr := a.Close(context.Background()); cerr != nil && err == nil {
		err = cerr
	}
	if errors.Is(err, memory.ErrSessionNotFound) {
		return fmt.Errorf("%w (see dschat sessions list)", err)
	}
	return err
}
