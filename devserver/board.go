package devserver

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
)

// Ticket statuses as the backend spells them.
const (
	StatusOpen       = "ABERTO"
	StatusInProgress = "EM_ANDAMENTO"
	StatusClosed     = "FECHADO"
)

const backendTimestamp = "2006-01-02T15:04:05"

// BoardTicket is a ticket in the backend's own field names.
type BoardTicket struct {
	ID           int64  `json:"id"`
	Titulo       string `json:"titulo"`
	Descricao    string `json:"descricao"`
	Status       string `json:"status"`
	DataCadastro string `json:"dataCadastro"`
}

// BoardPage is one page of a board listing.
type BoardPage struct {
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalCount int           `json:"totalCount"`
	Items      []BoardTicket `json:"items"`
}

// Board holds tickets and reports every change to onChange, outside its lock.
type Board struct {
	nowFunc  func() time.Time
	onChange func(event string, t BoardTicket)

	mu      sync.RWMutex
	nextID  int64
	tickets map[int64]BoardTicket
}

func newBoard(nowFunc func() time.Time, onChange func(event string, t BoardTicket)) *Board {
	return &Board{
		nowFunc:  nowFunc,
		onChange: onChange,
		nextID:   1,
		tickets:  make(map[int64]BoardTicket),
	}
}

// List returns the page of tickets matching both filters, newest first.
func (b *Board) List(page, pageSize int, title, description string) BoardPage {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	b.mu.RLock()
	matched := make([]BoardTicket, 0, len(b.tickets))
	for _, t := range b.tickets {
		if containsFold(t.Titulo, title) && containsFold(t.Descricao, description) {
			matched = append(matched, t)
		}
	}
	b.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	result := BoardPage{Page: page, PageSize: pageSize, TotalCount: len(matched), Items: []BoardTicket{}}
	start := (page - 1) * pageSize
	if start < len(matched) {
		end := min(start+pageSize, len(matched))
		result.Items = matched[start:end]
	}
	return result
}

func (b *Board) Get(id int64) (BoardTicket, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.tickets[id]
	if !ok {
		return BoardTicket{}, apperrors.Wrapf(apperrors.ErrNotFound, "ticket %d", id)
	}
	return t, nil
}

// Create opens a new ticket and announces it as NovoChamado.
func (b *Board) Create(title, description string) (BoardTicket, error) {
	if strings.TrimSpace(title) == "" {
		return BoardTicket{}, apperrors.Wrapf(apperrors.ErrInvalidRequest, "title is required")
	}

	b.mu.Lock()
	t := BoardTicket{
		ID:           b.nextID,
		Titulo:       title,
		Descricao:    description,
		Status:       StatusOpen,
		DataCadastro: b.nowFunc().UTC().Format(backendTimestamp),
	}
	b.nextID++
	b.tickets[t.ID] = t
	b.mu.Unlock()

	b.changed("NovoChamado", t)
	return t, nil
}

// SetStatus moves a ticket and announces it as ChamadoAtualizado.
func (b *Board) SetStatus(id int64, status string) (BoardTicket, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	switch status {
	case StatusOpen, StatusInProgress, StatusClosed:
	default:
		return BoardTicket{}, apperrors.Wrapf(apperrors.ErrInvalidRequest, "unknown status %q", status)
	}

	b.mu.Lock()
	t, ok := b.tickets[id]
	if !ok {
		b.mu.Unlock()
		return BoardTicket{}, apperrors.Wrapf(apperrors.ErrNotFound, "ticket %d", id)
	}
	t.Status = status
	b.tickets[id] = t
	b.mu.Unlock()

	b.changed("ChamadoAtualizado", t)
	return t, nil
}

// Seed creates n sample tickets without announcing them.
func (b *Board) Seed(n int) {
	statuses := []string{StatusOpen, StatusInProgress, StatusClosed}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < n; i++ {
		id := b.nextID
		b.nextID++
		b.tickets[id] = BoardTicket{
			ID:           id,
			Titulo:       fmt.Sprintf("Chamado de exemplo %d", id),
			Descricao:    fmt.Sprintf("Descrição do chamado %d", id),
			Status:       statuses[i%len(statuses)],
			DataCadastro: b.nowFunc().Add(-time.Duration(n-i) * time.Hour).UTC().Format(backendTimestamp),
		}
	}
}

func (b *Board) changed(event string, t BoardTicket) {
	if b.onChange != nil {
		b.onChange(event, t)
	}
}

func containsFold(s, substr string) bool {
	return substr == "" || strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
