package tickets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	ticketsPath     = "/tickets"
	ticketPath      = ticketsPath + "/{id}"
	requestIDHeader = "X-Request-ID"
	defaultTimeout  = 15 * time.Second
)

// HTTPSource fetches tickets over HTTP. The bearer token is taken from the
// token source on every request, so a refreshed or cleared session takes
// effect immediately.
type HTTPSource struct {
	rc     *resty.Client
	logger zerolog.Logger
}

var _ Source = (*HTTPSource)(nil)

type HTTPSourceOption func(*httpSourceOptions)

type httpSourceOptions struct {
	timeout time.Duration
	base    http.RoundTripper
	logger  *zerolog.Logger
}

func WithTimeout(d time.Duration) HTTPSourceOption {
	return func(o *httpSourceOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithTransport sets the round tripper beneath the bearer token transport.
func WithTransport(rt http.RoundTripper) HTTPSourceOption {
	return func(o *httpSourceOptions) {
		o.base = rt
	}
}

func WithSourceLogger(l zerolog.Logger) HTTPSourceOption {
	return func(o *httpSourceOptions) {
		o.logger = &l
	}
}

// NewHTTPSource creates a source rooted at baseURL that authenticates with
// tokens.
func NewHTTPSource(baseURL string, tokens oauth2.TokenSource, opts ...HTTPSourceOption) *HTTPSource {
	o := httpSourceOptions{timeout: defaultTimeout, base: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}

	hc := &http.Client{
		Transport: &oauth2.Transport{Source: tokens, Base: o.base},
		Timeout:   o.timeout,
	}
	s := &HTTPSource{
		rc: resty.NewWithClient(hc).
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Accept", "application/json"),
		logger: logging.Component(log.Logger, "tickets"),
	}
	if o.logger != nil {
		s.logger = *o.logger
	}
	return s
}

func (s *HTTPSource) Fetch(ctx context.Context, q Query) (*Envelope, error) {
	resp, err := s.rc.R().
		SetContext(ctx).
		SetHeader(requestIDHeader, uuid.NewString()).
		SetQueryParamsFromValues(q.Values()).
		Get(ticketsPath)
	if err := classify(resp, err); err != nil {
		s.logger.Debug().Err(err).Int("page", q.Page).Msg("ticket query failed")
		return nil, err
	}
	return DecodeEnvelope(resp.Body())
}

// Get fetches a single ticket by id.
func (s *HTTPSource) Get(ctx context.Context, id int64) (*Ticket, error) {
	resp, err := s.rc.R().
		SetContext(ctx).
		SetHeader(requestIDHeader, uuid.NewString()).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		Get(ticketPath)
	if err := classify(resp, err); err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNoContent {
		return nil, apperrors.ErrNotFound
	}
	return decodeTicket(resp.Body())
}

// NewTicket is the content of a ticket to open.
type NewTicket struct {
	Title       string
	Description string
}

// Create opens a ticket on the server. The store is not touched; the server
// announces the new ticket on the realtime channel.
func (s *HTTPSource) Create(ctx context.Context, t NewTicket) (*Ticket, error) {
	if strings.TrimSpace(t.Title) == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidRequest, "ticket title is required")
	}
	resp, err := s.rc.R().
		SetContext(ctx).
		SetHeader(requestIDHeader, uuid.NewString()).
		SetBody(map[string]string{"titulo": t.Title, "descricao": t.Description}).
		Post(ticketsPath)
	if err := classifyWrite(resp, err); err != nil {
		s.logger.Debug().Err(err).Msg("ticket create failed")
		return nil, err
	}
	return decodeTicket(resp.Body())
}

// UpdateStatus moves ticket id to status on the server.
func (s *HTTPSource) UpdateStatus(ctx context.Context, id int64, status Status) (*Ticket, error) {
	resp, err := s.rc.R().
		SetContext(ctx).
		SetHeader(requestIDHeader, uuid.NewString()).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		SetBody(map[string]string{"status": status.backendName()}).
		Put(ticketPath + "/status")
	if err := classifyWrite(resp, err); err != nil {
		s.logger.Debug().Err(err).Int64("id", id).Msg("ticket status update failed")
		return nil, err
	}
	return decodeTicket(resp.Body())
}

// decodeTicket accepts a ticket wrapped in any envelope DecodeEnvelope knows,
// or a bare ticket.
func decodeTicket(body []byte) (*Ticket, error) {
	env, err := DecodeEnvelope(body)
	if err == nil && len(env.Items) == 1 {
		return &env.Items[0], nil
	}
	var t Ticket
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, apperrors.Join(apperrors.ErrMalformedResponse, err)
	}
	return &t, nil
}

// classify maps a transport outcome to the fetch error taxonomy. A missing or
// expired session surfaces from the token transport before any request is
// sent and is reported as ErrUnauthorized.
func classify(resp *resty.Response, err error) error {
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNoSession) {
			return apperrors.Join(apperrors.ErrUnauthorized, err)
		}
		return apperrors.Join(apperrors.ErrNetworkUnreachable, err)
	}
	switch status := resp.StatusCode(); {
	case status == http.StatusUnauthorized:
		return apperrors.ErrUnauthorized
	case status == http.StatusForbidden:
		return apperrors.ErrForbidden
	case status == http.StatusNotFound:
		return apperrors.ErrNotFound
	case status < 200 || status >= 300:
		return apperrors.Join(apperrors.ErrServerFault, fmt.Errorf("unexpected status %d", status))
	}
	return nil
}

// classifyWrite is classify with a rejected request body reported as
// ErrInvalidRequest.
func classifyWrite(resp *resty.Response, err error) error {
	if err == nil && resp.StatusCode() == http.StatusBadRequest {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "%s", strings.TrimSpace(resp.String()))
	}
	return classify(resp, err)
}
