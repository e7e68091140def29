package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/dschat/pkg/app"
)

// program runs the gateway under the OS service manager.
type program struct {
	params app.Params
	cancel context.CancelFunc
	done   chan error
}

var _ service.Interface = (*program)(nil)

// Start must not block.
func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	a, err := app.Build(ctx, p.params)
	if err != nil {
		cancel()
		return err
	}
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		err := a.Serve(ctx)
		if cerr := a.Close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			a.Logger.Error("service stopped with error", "error", err)
		}
		p.done <- err
	}()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

func serviceConfig(flags *globalFlags) (*service.Config, error) {
	args := []string{"service", "run"}
	if flags.config != "" {
		abs, err := filepath.Abs(flags.config)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	return &service.Config{
		Name:        "dschat",
		DisplayName: "dschat gateway",
		Description: "Web chat gateway for the dschat assistant.",
		Arguments:   args,
	}, nil
}

func serviceCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control dschat as an OS service",
	}

	newService := func() (service.Service, error) {
		cfg, err := serviceConfig(flags)
		if err != nil {
			return nil, err
		}
		return service.New(&program{params: flags.params()}, cfg)
	}

	for _, action := range []string{"install", "uninstall", "start", "stop", "restart"} {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the dschat service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := newService()
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return fmt.Errorf("service %s: %w", action, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Service %s: ok\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run under the service manager (used by the installed unit)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := newService()
			if err != nil {
				return err
			}
			return s.Run()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newService()
			if err != nil {
				return err
			}
			st, err := s.Status()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusText(st))
			return nil
		},
	})
	return cmd
}

func statusText(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
