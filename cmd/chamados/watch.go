package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-chamados-sync/dashboard"
	"github.com/jrsteele09/go-chamados-sync/realtime"
	"github.com/jrsteele09/go-chamados-sync/tickets"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newWatchCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show the first page of tickets and keep it updated live",
		Long: "Show the first page of tickets and reprint it whenever the server reports a change.\n" +
			"Send SIGHUP to reconnect after the live channel has given up.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.watch(cmd)
		},
	}
}

func (c *cli) watch(cmd *cobra.Command) error {
	ctx := cmd.Context()
	sess := c.session(ctx)
	if !sess.IsValid() {
		return errNotLoggedIn
	}
	displayAppname(c.cfg.GetAppName())

	app, err := dashboard.New(c.cfg, sess,
		dashboard.WithLogger(c.logger),
		dashboard.WithNotifier(printSink(cmd)),
	)
	if err != nil {
		return err
	}

	if addr := c.cfg.GetMetricsAddr(); addr != "" {
		server := &http.Server{Addr: addr, Handler: metricsHandler(), ReadHeaderTimeout: 5 * time.Second}
		go c.listenAndServe(server)
		defer func() {
			if err := shutdown(server); err != nil {
				c.logger.Warn().Err(err).Msg("metrics server shutdown")
			}
		}()
	}

	out := cmd.OutOrStdout()
	unsubWindow := app.Store().Subscribe(func(w tickets.PageWindow) {
		if w.FetchedAt.IsZero() {
			return
		}
		fmt.Fprintf(out, "\n%s\n", w.FetchedAt.Local().Format(time.TimeOnly))
		printWindow(out, w)
	})
	defer unsubWindow()
	unsubState := app.Channel().OnState(func(s realtime.State) {
		fmt.Fprintf(cmd.ErrOrStderr(), "live updates: %s\n", s)
	})
	defer unsubState()
	loggedOut := make(chan struct{})
	var once sync.Once
	unsubSession := sess.Subscribe(func(valid bool) {
		if !valid {
			once.Do(func() { close(loggedOut) })
		}
	})
	defer unsubSession()

	defer app.Close()
	if err := app.Open(ctx); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-stop:
			return nil
		case <-loggedOut:
			return errors.New("session ended, log in again to keep watching")
		case <-hup:
			if err := app.Reconnect(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("reconnect failed")
			}
		}
	}
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (c *cli) listenAndServe(server *http.Server) {
	c.logger.Info().Str("addr", server.Addr).Msg("metrics listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		c.logger.Error().Err(err).Msg("metrics server stopped")
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
