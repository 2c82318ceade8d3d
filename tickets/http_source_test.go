package tickets_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/tickets"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testBearer = "access-token-1"

// tokenSource is a switchable oauth2.TokenSource.
type tokenSource struct {
	token atomic.Value
}

func newTokenSource(tok string) *tokenSource {
	ts := &tokenSource{}
	ts.token.Store(tok)
	return ts
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	tok := ts.token.Load().(string)
	if tok == "" {
		return nil, apperrors.ErrNoSession
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}, nil
}

func TestHTTPSource_Fetch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+testBearer {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.Equal(t, "/api/tickets", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))

		q := r.URL.Query()
		switch q.Get("title") {
		case "forbidden":
			w.WriteHeader(http.StatusForbidden)
		case "boom":
			w.WriteHeader(http.StatusBadGateway)
		case "odd":
			_, _ = w.Write([]byte(`{"unexpected":true}`))
		default:
			require.Equal(t, "1", q.Get("page"))
			require.Equal(t, "10", q.Get("pageSize"))
			require.Equal(t, "vpn", q.Get("title"))
			require.False(t, q.Has("description"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"page":1,"pageSize":10,"total":23,"items":[{"id":1,"titulo":"VPN","status":"ABERTO"}]}`))
		}
	}))
	t.Cleanup(srv.Close)

	ts := newTokenSource(testBearer)
	src := tickets.NewHTTPSource(srv.URL+"/api/", ts)
	ctx := context.Background()
	query := func(title string) tickets.Query {
		return tickets.Query{Page: 1, PageSize: 10, Filter: tickets.Filter{TitleContains: title}}
	}

	env, err := src.Fetch(ctx, query("vpn"))
	require.NoError(t, err)
	require.Equal(t, 23, env.Total)
	require.Equal(t, "VPN", env.Items[0].Title)

	_, err = src.Fetch(ctx, query("forbidden"))
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = src.Fetch(ctx, query("boom"))
	require.ErrorIs(t, err, apperrors.ErrServerFault)

	_, err = src.Fetch(ctx, query("odd"))
	require.ErrorIs(t, err, apperrors.ErrMalformedResponse)

	ts.token.Store("revoked")
	_, err = src.Fetch(ctx, query("vpn"))
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	before := hits.Load()
	ts.token.Store("")
	_, err = src.Fetch(ctx, query("vpn"))
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	require.Equal(t, before, hits.Load(), "no request is sent without a session")
}

func TestHTTPSource_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	src := tickets.NewHTTPSource(url, newTokenSource(testBearer), tickets.WithTimeout(time.Second))
	_, err := src.Fetch(context.Background(), tickets.Query{Page: 1, PageSize: 10})
	require.ErrorIs(t, err, apperrors.ErrNetworkUnreachable)
}

func TestHTTPSource_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tickets/7":
			_, _ = w.Write([]byte(`{"id":7,"title":"Printer","status":"OPEN"}`))
		case "/tickets/8":
			_, _ = w.Write([]byte(`{"data":{"id":8,"titulo":"Mouse","status":"FECHADO"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	src := tickets.NewHTTPSource(srv.URL, newTokenSource(testBearer))

	got, err := src.Get(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, "Printer", got.Title)

	got, err = src.Get(context.Background(), 8)
	require.NoError(t, err)
	require.Equal(t, "Mouse", got.Title)
	require.Equal(t, tickets.StatusClosed, got.Status)

	_, err = src.Get(context.Background(), 9)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHTTPSource_Create(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tickets" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got["titulo"] == "reject" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"title rejected"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":31,"titulo":"` + got["titulo"] + `","descricao":"` + got["descricao"] + `","status":"ABERTO"}}`))
	}))
	t.Cleanup(srv.Close)
	src := tickets.NewHTTPSource(srv.URL, newTokenSource(testBearer))

	created, err := src.Create(context.Background(), tickets.NewTicket{Title: "VPN down", Description: "since 9am"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"titulo": "VPN down", "descricao": "since 9am"}, got)
	require.Equal(t, "Bearer "+testBearer, auth)
	require.Equal(t, int64(31), created.ID)
	require.Equal(t, "VPN down", created.Title)
	require.Equal(t, tickets.StatusOpen, created.Status)

	_, err = src.Create(context.Background(), tickets.NewTicket{Title: "reject"})
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	got = nil
	_, err = src.Create(context.Background(), tickets.NewTicket{Title: "  "})
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	require.Nil(t, got, "an empty title is rejected before sending")
}

func TestHTTPSource_UpdateStatus(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/tickets/5/status" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"data":{"id":5,"titulo":"Printer","status":"` + body["status"] + `"}}`))
	}))
	t.Cleanup(srv.Close)
	src := tickets.NewHTTPSource(srv.URL, newTokenSource(testBearer))

	updated, err := src.UpdateStatus(context.Background(), 5, tickets.StatusInProgress)
	require.NoError(t, err)
	require.Equal(t, "EM_ANDAMENTO", body["status"])
	require.Equal(t, tickets.StatusInProgress, updated.Status)

	_, err = src.UpdateStatus(context.Background(), 6, tickets.StatusClosed)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
