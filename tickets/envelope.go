package tickets

import (
	"bytes"
	"encoding/json"

	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
)

// Envelope is a normalized ticket page response. Paged is false when the
// server sent a shape without paging fields; the caller then fills Page and
// PageSize from its request and Total from len(Items).
type Envelope struct {
	Page     int
	PageSize int
	Total    int
	Items    []Ticket
	Paged    bool
}

type pagedEnvelope struct {
	Page       *int     `json:"page"`
	PageSize   *int     `json:"pageSize"`
	Total      *int     `json:"total"`
	TotalCount *int     `json:"totalCount"`
	Items      []Ticket `json:"items"`
}

// DecodeEnvelope normalizes the response shapes the ticket service is known to
// send:
//
//	{"page":1,"pageSize":10,"total":23,"items":[...]}
//	[...]
//	{"data":[...]}
//	{"data":{"page":1,...,"items":[...]}}
//	{"data":{<single ticket>}}
//
// Anything else is ErrMalformedResponse.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	return decodeEnvelope(bytes.TrimSpace(body), true)
}

func decodeEnvelope(body []byte, allowData bool) (*Envelope, error) {
	if len(body) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrMalformedResponse, "empty body")
	}

	switch body[0] {
	case '[':
		var items []Ticket
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, apperrors.Join(apperrors.ErrMalformedResponse, err)
		}
		return unpaged(items), nil
	case '{':
	default:
		return nil, apperrors.Wrapf(apperrors.ErrMalformedResponse, "unexpected body")
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, apperrors.Join(apperrors.ErrMalformedResponse, err)
	}

	if _, ok := probe["items"]; ok {
		return decodePaged(body)
	}
	if data, ok := probe["data"]; ok && allowData {
		data = bytes.TrimSpace(data)
		if env, err := decodeEnvelope(data, false); err == nil {
			return env, nil
		}
		if len(data) > 0 && data[0] == '{' {
			return decodeSingle(data)
		}
		return nil, apperrors.Wrapf(apperrors.ErrMalformedResponse, "unrecognized data field")
	}
	return nil, apperrors.Wrapf(apperrors.ErrMalformedResponse, "no items or data field")
}

func decodePaged(body []byte) (*Envelope, error) {
	var p pagedEnvelope
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, apperrors.Join(apperrors.ErrMalformedResponse, err)
	}
	env := unpaged(p.Items)
	if p.Page != nil && p.PageSize != nil {
		env.Paged = true
		env.Page = *p.Page
		env.PageSize = *p.PageSize
	}
	switch {
	case p.Total != nil:
		env.Total = *p.Total
	case p.TotalCount != nil:
		env.Total = *p.TotalCount
	}
	if env.Total < len(env.Items) {
		env.Total = len(env.Items)
	}
	return env, nil
}

func decodeSingle(data []byte) (*Envelope, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, apperrors.Join(apperrors.ErrMalformedResponse, err)
	}
	if _, ok := probe["id"]; !ok {
		return nil, apperrors.Wrapf(apperrors.ErrMalformedResponse, "data object is neither a page nor a ticket")
	}
	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, apperrors.Join(apperrors.ErrMalformedResponse, err)
	}
	return unpaged([]Ticket{t}), nil
}

func unpaged(items []Ticket) *Envelope {
	if items == nil {
		items = []Ticket{}
	}
	return &Envelope{Items: items, Total: len(items)}
}
