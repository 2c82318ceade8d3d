package tickets

import (
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/internal/utils"
	"github.com/pkg/errors"
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusClosed     Status = "CLOSED"
)

// Status names used by the ticket backend.
var backendStatuses = map[string]Status{
	"ABERTO":       StatusOpen,
	"EM_ANDAMENTO": StatusInProgress,
	"FECHADO":      StatusClosed,
}

// Label returns the display text for s. Unknown statuses are shown with
// underscores replaced by spaces.
func (s Status) Label() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusInProgress:
		return "In progress"
	case StatusClosed:
		return "Closed"
	}
	return strings.ReplaceAll(string(s), "_", " ")
}

// ParseStatus accepts a canonical or backend status name in any case, with
// spaces or dashes in place of underscores.
func ParseStatus(name string) (Status, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	if mapped, ok := backendStatuses[normalized]; ok {
		return mapped, nil
	}
	switch s := Status(normalized); s {
	case StatusOpen, StatusInProgress, StatusClosed:
		return s, nil
	}
	return "", apperrors.Wrapf(apperrors.ErrInvalidRequest, "unknown status %q", name)
}

// backendName returns the name the ticket backend uses for s.
func (s Status) backendName() string {
	for name, status := range backendStatuses {
		if status == s {
			return name
		}
	}
	return string(s)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "status must be a string")
	}
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if mapped, ok := backendStatuses[normalized]; ok {
		*s = mapped
		return nil
	}
	*s = Status(normalized)
	return nil
}

// Ticket is a support ticket as returned by the ticket service. Tickets are
// never edited locally.
type Ticket struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// wireTicket accepts both the canonical field names and the backend's
// (titulo, descricao, dataCadastro).
type wireTicket struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Titulo       string  `json:"titulo"`
	Description  string  `json:"description"`
	Descricao    string  `json:"descricao"`
	Status       Status  `json:"status"`
	CreatedAt    *string `json:"createdAt"`
	DataCadastro *string `json:"dataCadastro"`
}

func (t *Ticket) UnmarshalJSON(data []byte) error {
	var w wireTicket
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	created, err := parseTimestamp(utils.FirstNonEmpty(utils.Value(w.CreatedAt), utils.Value(w.DataCadastro)))
	if err != nil {
		return err
	}
	*t = Ticket{
		ID:          w.ID,
		Title:       utils.FirstNonEmpty(w.Title, w.Titulo),
		Description: utils.FirstNonEmpty(w.Description, w.Descricao),
		Status:      w.Status,
		CreatedAt:   created,
	}
	return nil
}

// Layouts seen in createdAt values, including offsetless server timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized timestamp %q", v)
}
