package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jrsteele09/go-chamados-sync/dashboard"
	"github.com/jrsteele09/go-chamados-sync/internal/config"
	"github.com/jrsteele09/go-chamados-sync/internal/logging"
	"github.com/jrsteele09/go-chamados-sync/notify"
	"github.com/jrsteele09/go-chamados-sync/session"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries what every subcommand needs once flags have been parsed.
type cli struct {
	configFile string
	cfg        config.Config
	logger     zerolog.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "chamados",
		Short:         "Support ticket client with live updates",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var opts []config.Option
			if c.configFile != "" {
				opts = append(opts, config.WithConfigFile(c.configFile))
			}
			cfg, err := config.New(opts...)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = logging.New(cfg, cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "configuration file (yaml, json or toml)")

	root.AddCommand(
		newLoginCommand(c),
		newLogoutCommand(c),
		newStatusCommand(c),
		newListCommand(c),
		newShowCommand(c),
		newCreateCommand(c),
		newSetStatusCommand(c),
		newWatchCommand(c),
	)
	return root
}

func (c *cli) session(ctx context.Context) *session.Manager {
	return dashboard.NewSession(ctx, c.cfg, dashboard.WithLogger(c.logger))
}

// printSink renders notifications on the terminal.
func printSink(cmd *cobra.Command) notify.Sink {
	return func(message string, severity notify.Severity) {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", severity, message)
	}
}
