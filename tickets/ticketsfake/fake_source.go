package ticketsfake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-chamados-sync/tickets"
)

// Call is one pending Fetch on a manual Source.
type Call struct {
	Query   tickets.Query
	replies chan reply
}

type reply struct {
	env *tickets.Envelope
	err error
}

// Respond completes the call.
func (c *Call) Respond(env *tickets.Envelope, err error) {
	c.replies <- reply{env: env, err: err}
}

// Source is a scriptable tickets.Source. With FetchFunc set it answers
// synchronously; otherwise every Fetch is published on Calls and blocks until
// the test responds, letting tests complete requests in any order.
type Source struct {
	FetchFunc func(ctx context.Context, q tickets.Query) (*tickets.Envelope, error)
	Calls     chan *Call

	mu      sync.Mutex
	queries []tickets.Query
}

var _ tickets.Source = (*Source)(nil)

// NewSource returns a Source answering with fn.
func NewSource(fn func(ctx context.Context, q tickets.Query) (*tickets.Envelope, error)) *Source {
	return &Source{FetchFunc: fn}
}

// NewManualSource returns a Source whose calls are completed by the test.
func NewManualSource() *Source {
	return &Source{Calls: make(chan *Call, 32)}
}

func (s *Source) Fetch(ctx context.Context, q tickets.Query) (*tickets.Envelope, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()

	if s.FetchFunc != nil {
		return s.FetchFunc(ctx, q)
	}

	call := &Call{Query: q, replies: make(chan reply, 1)}
	s.Calls <- call
	select {
	case r := <-call.replies:
		return r.env, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Next waits for the next manual call.
func (s *Source) Next(timeout time.Duration) (*Call, error) {
	select {
	case c := <-s.Calls:
		return c, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no fetch within %s", timeout)
	}
}

// Queries returns every query received, in order.
func (s *Source) Queries() []tickets.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tickets.Query(nil), s.queries...)
}

func (s *Source) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

// Page builds a paged envelope holding tickets numbered from first.
func Page(page, pageSize, total, first, count int) *tickets.Envelope {
	items := make([]tickets.Ticket, 0, count)
	for i := 0; i < count; i++ {
		id := int64(first + i)
		items = append(items, tickets.Ticket{
			ID:     id,
			Title:  fmt.Sprintf("ticket %d", id),
			Status: tickets.StatusOpen,
		})
	}
	return &tickets.Envelope{Page: page, PageSize: pageSize, Total: total, Items: items, Paged: true}
}
