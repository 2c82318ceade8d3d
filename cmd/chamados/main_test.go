package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/tickets"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CHAMADOS_SESSION_FILE", filepath.Join(t.TempDir(), "session.json"))
	t.Setenv("CHAMADOS_LOG_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestStatus_NotLoggedIn(t *testing.T) {
	out, err := execute(t, "status")
	require.NoError(t, err)
	require.Equal(t, "Not logged in\n", out)
}

func TestList_RequiresSession(t *testing.T) {
	_, err := execute(t, "list")
	require.ErrorIs(t, err, apperrors.ErrNoSession)
}

func TestShow_RejectsBadID(t *testing.T) {
	_, err := execute(t, "show", "abc")
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestSetStatus_RejectsUnknownStatus(t *testing.T) {
	_, err := execute(t, "set-status", "4", "pending")
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestCreate_RequiresSession(t *testing.T) {
	_, err := execute(t, "create", "--title", "VPN down")
	require.ErrorIs(t, err, apperrors.ErrNoSession)
}

func TestPrintWindow(t *testing.T) {
	var out bytes.Buffer
	printWindow(&out, tickets.PageWindow{
		Page:     2,
		PageSize: 2,
		Total:    5,
		Items: []tickets.Ticket{
			{ID: 3, Title: "Printer jammed", Status: tickets.StatusInProgress, CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)},
			{ID: 4, Title: "VPN down", Status: tickets.StatusOpen},
		},
	})

	require.Equal(t, ""+
		"ID  STATUS       CREATED              TITLE\n"+
		"3   In progress  2024-05-01 09:00:00  Printer jammed\n"+
		"4   Open         -                    VPN down\n"+
		"page 2 of 3, 5 tickets\n", out.String())
}
