package devserver

import (
	"sync"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/stretchr/testify/require"
)

var boardNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type boardEvent struct {
	name   string
	ticket BoardTicket
}

func newTestBoard() (*Board, func() []boardEvent) {
	var (
		mu     sync.Mutex
		events []boardEvent
	)
	b := newBoard(func() time.Time { return boardNow }, func(name string, t BoardTicket) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, boardEvent{name: name, ticket: t})
	})
	return b, func() []boardEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]boardEvent(nil), events...)
	}
}

func TestBoard_ListPagesNewestFirst(t *testing.T) {
	b, _ := newTestBoard()
	b.Seed(12)

	first := b.List(1, 5, "", "")
	require.Equal(t, 12, first.TotalCount)
	require.Len(t, first.Items, 5)
	require.Equal(t, int64(12), first.Items[0].ID)

	last := b.List(3, 5, "", "")
	require.Len(t, last.Items, 2)
	require.Equal(t, int64(1), last.Items[1].ID)

	beyond := b.List(4, 5, "", "")
	require.Empty(t, beyond.Items)
	require.NotNil(t, beyond.Items)
}

func TestBoard_ListFilters(t *testing.T) {
	b, _ := newTestBoard()
	_, err := b.Create("Printer jammed", "third floor")
	require.NoError(t, err)
	_, err = b.Create("VPN down", "since the upgrade")
	require.NoError(t, err)
	_, err = b.Create("Printer toner", "second floor")
	require.NoError(t, err)

	page := b.List(1, 10, "printer", "")
	require.Equal(t, 2, page.TotalCount)

	page = b.List(1, 10, "printer", "THIRD")
	require.Equal(t, 1, page.TotalCount)
	require.Equal(t, "Printer jammed", page.Items[0].Titulo)
}

func TestBoard_CreateAndSetStatusAnnounce(t *testing.T) {
	b, events := newTestBoard()

	created, err := b.Create("Printer jammed", "")
	require.NoError(t, err)
	require.Equal(t, StatusOpen, created.Status)
	require.Equal(t, "2024-05-01T12:00:00", created.DataCadastro)

	updated, err := b.SetStatus(created.ID, "em_andamento")
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, updated.Status)

	require.Equal(t, []boardEvent{
		{name: "NovoChamado", ticket: created},
		{name: "ChamadoAtualizado", ticket: updated},
	}, events())
}

func TestBoard_Errors(t *testing.T) {
	b, events := newTestBoard()

	_, err := b.Create("  ", "")
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	_, err = b.Get(42)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = b.SetStatus(42, StatusClosed)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	created, err := b.Create("x", "")
	require.NoError(t, err)
	_, err = b.SetStatus(created.ID, "PENDING")
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	require.Len(t, events(), 1)
}
