package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/go-chamados-sync/dashboard"
	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/internal/logging"
	"github.com/jrsteele09/go-chamados-sync/tickets"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

var errNotLoggedIn = errors.Wrap(apperrors.ErrNoSession, "not logged in, run chamados login")

func newListCommand(c *cli) *cobra.Command {
	var (
		page   int
		size   int
		filter tickets.Filter
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of tickets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess := c.session(cmd.Context())
			if !sess.IsValid() {
				return errNotLoggedIn
			}
			app, err := dashboard.New(c.cfg, sess,
				dashboard.WithLogger(c.logger),
				dashboard.WithRegisterer(prometheus.NewRegistry()),
			)
			if err != nil {
				return err
			}
			if size <= 0 {
				size = c.cfg.GetDefaultPageSize()
			}

			w, err := app.Store().FetchPage(cmd.Context(), page, size, filter)
			if err != nil {
				return err
			}
			printWindow(cmd.OutOrStdout(), w)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&size, "size", 0, "tickets per page (default from configuration)")
	cmd.Flags().StringVar(&filter.TitleContains, "title", "", "only tickets whose title contains this text")
	cmd.Flags().StringVar(&filter.DescriptionContains, "description", "", "only tickets whose description contains this text")
	return cmd
}

func newShowCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Wrapf(apperrors.ErrInvalidRequest, "ticket id %q", args[0])
			}
			sess := c.session(cmd.Context())
			if !sess.IsValid() {
				return errNotLoggedIn
			}

			t, err := c.ticketSource(sess).Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			printTicket(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

func newCreateCommand(c *cli) *cobra.Command {
	var ticket tickets.NewTicket
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a new ticket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess := c.session(cmd.Context())
			if !sess.IsValid() {
				return errNotLoggedIn
			}
			t, err := c.ticketSource(sess).Create(cmd.Context(), ticket)
			if err != nil {
				return err
			}
			printTicket(cmd.OutOrStdout(), t)
			return nil
		},
	}
	cmd.Flags().StringVar(&ticket.Title, "title", "", "ticket title")
	cmd.Flags().StringVar(&ticket.Description, "description", "", "ticket description")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newSetStatusCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <id> <open|in-progress|closed>",
		Short: "Change the status of a ticket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Wrapf(apperrors.ErrInvalidRequest, "ticket id %q", args[0])
			}
			status, err := tickets.ParseStatus(args[1])
			if err != nil {
				return err
			}
			sess := c.session(cmd.Context())
			if !sess.IsValid() {
				return errNotLoggedIn
			}
			t, err := c.ticketSource(sess).UpdateStatus(cmd.Context(), id, status)
			if err != nil {
				return err
			}
			printTicket(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

func (c *cli) ticketSource(tokens oauth2.TokenSource) *tickets.HTTPSource {
	return tickets.NewHTTPSource(c.cfg.GetTicketsBaseURL(), tokens,
		tickets.WithTimeout(c.cfg.GetFetchTimeout()),
		tickets.WithSourceLogger(logging.Component(c.logger, "tickets")),
	)
}

func printTicket(out io.Writer, t *tickets.Ticket) {
	fmt.Fprintf(out, "#%d %s\n", t.ID, t.Title)
	fmt.Fprintf(out, "Status:  %s\n", t.Status.Label())
	fmt.Fprintf(out, "Created: %s\n", formatCreated(t.CreatedAt))
	if t.Description != "" {
		fmt.Fprintf(out, "\n%s\n", t.Description)
	}
}

func printWindow(out io.Writer, w tickets.PageWindow) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tTITLE")
	for _, t := range w.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", t.ID, t.Status.Label(), formatCreated(t.CreatedAt), t.Title)
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "page %d of %d, %d tickets\n", w.Page, w.TotalPages(), w.Total)
}

func formatCreated(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
