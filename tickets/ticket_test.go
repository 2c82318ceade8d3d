package tickets_test

import (
	"encoding/json"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/tickets"
	"github.com/stretchr/testify/require"
)

func TestTicket_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		json string
		want tickets.Ticket
	}{
		{
			name: "canonical fields",
			json: `{"id":1,"title":"VPN down","description":"no tunnel","status":"IN_PROGRESS","createdAt":"2024-05-01T10:00:00Z"}`,
			want: tickets.Ticket{
				ID: 1, Title: "VPN down", Description: "no tunnel", Status: tickets.StatusInProgress,
				CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			},
		},
		{
			name: "backend fields",
			json: `{"id":2,"titulo":"Impressora","descricao":"sem toner","status":"EM_ANDAMENTO","dataCadastro":"2024-05-01T10:00:00.123"}`,
			want: tickets.Ticket{
				ID: 2, Title: "Impressora", Description: "sem toner", Status: tickets.StatusInProgress,
				CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 123000000, time.UTC),
			},
		},
		{
			name: "backend statuses",
			json: `{"id":3,"status":"ABERTO"}`,
			want: tickets.Ticket{ID: 3, Status: tickets.StatusOpen},
		},
		{
			name: "lower case closed",
			json: `{"id":4,"status":"fechado","dataCadastro":"2024-05-01"}`,
			want: tickets.Ticket{ID: 4, Status: tickets.StatusClosed, CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got tickets.Ticket
			require.NoError(t, json.Unmarshal([]byte(tt.json), &got))
			require.Equal(t, tt.want, got)
		})
	}

	t.Run("bad timestamp", func(t *testing.T) {
		var got tickets.Ticket
		require.Error(t, json.Unmarshal([]byte(`{"id":1,"createdAt":"yesterday"}`), &got))
	})
}

func TestStatus_Label(t *testing.T) {
	require.Equal(t, "Open", tickets.StatusOpen.Label())
	require.Equal(t, "In progress", tickets.StatusInProgress.Label())
	require.Equal(t, "Closed", tickets.StatusClosed.Label())
	require.Equal(t, "ON HOLD", tickets.Status("ON_HOLD").Label())
}

func TestParseStatus(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want tickets.Status
	}{
		{"open", tickets.StatusOpen},
		{"ABERTO", tickets.StatusOpen},
		{"in progress", tickets.StatusInProgress},
		{"em-andamento", tickets.StatusInProgress},
		{" closed ", tickets.StatusClosed},
		{"fechado", tickets.StatusClosed},
	} {
		got, err := tickets.ParseStatus(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	_, err := tickets.ParseStatus("pending")
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestPageWindow_TotalPages(t *testing.T) {
	require.Equal(t, 3, tickets.PageWindow{PageSize: 10, Total: 23}.TotalPages())
	require.Equal(t, 2, tickets.PageWindow{PageSize: 10, Total: 20}.TotalPages())
	require.Equal(t, 0, tickets.PageWindow{PageSize: 10}.TotalPages())
}
