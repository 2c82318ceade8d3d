package tickets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-chamados-sync/internal/broadcast"
	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/internal/logging"
	"github.com/jrsteele09/go-chamados-sync/notify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Store holds the current page of tickets and keeps it in step with the
// server.
//
// Every FetchPage with parameters different from the previous one starts a new
// generation. A response is applied only if it belongs to the current
// generation and is newer than the last applied response, so a slow response
// for an abandoned page or filter never replaces the page the user is looking
// at.
type Store struct {
	source          Source
	logger          zerolog.Logger
	metrics         *Metrics
	notify          notify.Sink
	onUnauthorized  func()
	nowFunc         func() time.Time
	defaultPageSize int
	fetchTimeout    time.Duration

	mu         sync.Mutex
	window     PageWindow
	wanted     Query
	acked      Query
	hasAcked   bool
	generation uint64
	seq        uint64
	appliedSeq uint64

	emitMu     sync.Mutex
	emittedSeq uint64
	windows    *broadcast.Subject[PageWindow]

	group singleflight.Group
}

type StoreOption func(*Store)

func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

func WithMetrics(m *Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithNotifier sets the sink for user facing fetch problems.
func WithNotifier(sink notify.Sink) StoreOption {
	return func(s *Store) {
		if sink != nil {
			s.notify = sink
		}
	}
}

// WithUnauthorizedHook sets the function called when the service rejects the
// session. It is normally the session's Logout.
func WithUnauthorizedHook(fn func()) StoreOption {
	return func(s *Store) {
		s.onUnauthorized = fn
	}
}

func WithNowFunc(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = nowFunc
	}
}

// WithFetchTimeout bounds a request shared by concurrent FetchPage callers.
func WithFetchTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

func WithDefaultPageSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.defaultPageSize = n
		}
	}
}

// NewStore creates a store with an empty first page.
func NewStore(source Source, opts ...StoreOption) *Store {
	s := &Store{
		source:          source,
		logger:          logging.Component(log.Logger, "store"),
		notify:          notify.Nop,
		nowFunc:         time.Now,
		defaultPageSize: DefaultPageSize,
		fetchTimeout:    defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.window = emptyWindow(s.defaultQuery())
	s.windows = broadcast.NewValue(s.window.clone())
	return s
}

// FetchPage queries one page and, if the response is still current when it
// arrives, replaces the window with it. Concurrent identical calls share one
// request. The shared request is not cancelled with any single caller's ctx;
// a caller whose ctx ends first gets the current window and ctx.Err().
//
// A malformed response yields an empty window and a nil error. A response
// overtaken by a newer query returns the current window with
// ErrStaleResponse. Other failures leave the window unchanged.
func (s *Store) FetchPage(ctx context.Context, page, pageSize int, filter Filter) (PageWindow, error) {
	if page < 1 || pageSize < 1 {
		return s.CurrentPage(), apperrors.Wrapf(apperrors.ErrInvalidRequest, "page %d size %d", page, pageSize)
	}
	q := Query{Page: page, PageSize: pageSize, Filter: filter}

	s.mu.Lock()
	if q != s.wanted {
		s.generation++
		s.wanted = q
	}
	generation := s.generation
	s.mu.Unlock()

	key := fmt.Sprintf("%d|%d|%d|%s|%s", generation, q.Page, q.PageSize, q.Filter.TitleContains, q.Filter.DescriptionContains)
	results := s.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.fetch(shared, q, generation)
	})
	select {
	case res := <-results:
		return res.Val.(PageWindow), res.Err
	case <-ctx.Done():
		return s.CurrentPage(), ctx.Err()
	}
}

// Refresh re-issues the last acknowledged query in the background. Failures
// are logged and reported to the notifier.
func (s *Store) Refresh() {
	go func() {
		if _, err := s.Reload(context.Background()); err != nil && !apperrors.Is(err, apperrors.ErrStaleResponse) {
			s.logger.Debug().Err(err).Msg("background refresh failed")
		}
	}()
}

// Reload is the synchronous form of Refresh. It always sends a new request,
// even when an identical one is in flight. If the page or filter has changed
// since the last acknowledged response, the result is discarded.
func (s *Store) Reload(ctx context.Context) (PageWindow, error) {
	s.mu.Lock()
	q := s.acked
	if !s.hasAcked {
		q = s.wanted
		if q.Page < 1 {
			q = s.defaultQuery()
		}
		if q != s.wanted {
			s.generation++
			s.wanted = q
		}
	}
	generation := s.generation
	if q != s.wanted {
		generation = 0
	}
	s.mu.Unlock()

	return s.fetch(ctx, q, generation)
}

// CurrentPage returns a copy of the current window.
func (s *Store) CurrentPage() PageWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.clone()
}

// Subscribe registers fn for window changes. fn receives the current window
// immediately. The windows passed to fn must be treated as read only.
func (s *Store) Subscribe(fn func(PageWindow)) (unsubscribe func()) {
	return s.windows.Subscribe(fn)
}

func (s *Store) defaultQuery() Query {
	return Query{Page: 1, PageSize: s.defaultPageSize}
}

func (s *Store) fetch(ctx context.Context, q Query, generation uint64) (PageWindow, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	start := s.nowFunc()
	env, err := s.source.Fetch(ctx, q)
	took := s.nowFunc().Sub(start)

	if err != nil {
		if !apperrors.Is(err, apperrors.ErrMalformedResponse) {
			s.metrics.fetched(resultLabel(err), took)
			s.mu.Lock()
			if generation == s.generation && s.wanted == q && s.hasAcked {
				// The window still shows the acknowledged query, so refreshes
				// must target it again.
				s.wanted = s.acked
			}
			s.mu.Unlock()
			s.report(err)
			return s.CurrentPage(), err
		}
		s.metrics.fetched("malformed", took)
		s.logger.Warn().Err(err).Int("page", q.Page).Msg("unrecognized ticket response, showing an empty page")
		s.notify("The ticket service sent an unexpected response", notify.Warning)
		env = &Envelope{Items: []Ticket{}}
	} else {
		s.metrics.fetched("success", took)
	}

	next := s.windowFor(q, env)

	s.mu.Lock()
	if generation != s.generation || seq <= s.appliedSeq {
		current := s.window.clone()
		s.mu.Unlock()
		s.metrics.discarded()
		s.logger.Debug().Uint64("seq", seq).Int("page", q.Page).Msg("discarding superseded ticket response")
		return current, apperrors.ErrStaleResponse
	}
	s.window = next
	s.appliedSeq = seq
	s.acked = next.Query()
	s.hasAcked = true
	if s.wanted == q {
		// The server may have adjusted the page; later calls compare against
		// what it acknowledged.
		s.wanted = s.acked
	}
	s.mu.Unlock()

	s.emit(seq)
	return next.clone(), nil
}

func (s *Store) windowFor(q Query, env *Envelope) PageWindow {
	w := emptyWindow(q)
	w.Items = env.Items
	if w.Items == nil {
		w.Items = []Ticket{}
	}
	w.Total = env.Total
	if env.Paged {
		if env.Page > 0 {
			w.Page = env.Page
		}
		if env.PageSize > 0 {
			w.PageSize = env.PageSize
		}
	}
	w.FetchedAt = s.nowFunc()
	return w
}

// emit publishes the window applied at seq unless a later one has been
// published already.
func (s *Store) emit(seq uint64) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if seq <= s.emittedSeq {
		return
	}

	s.mu.Lock()
	w := s.window.clone()
	s.emittedSeq = s.appliedSeq
	s.mu.Unlock()

	s.windows.Publish(w)
}

func (s *Store) report(err error) {
	switch {
	case apperrors.Is(err, apperrors.ErrUnauthorized):
		s.logger.Info().Err(err).Msg("ticket service rejected the session")
		s.notify("Your session has expired, please log in again", notify.Warning)
		if s.onUnauthorized != nil {
			s.onUnauthorized()
		}
	case apperrors.Is(err, apperrors.ErrForbidden):
		s.logger.Warn().Err(err).Msg("ticket service denied access")
		s.notify("Access denied", notify.Error)
	case apperrors.Is(err, apperrors.ErrNetworkUnreachable):
		s.logger.Warn().Err(err).Msg("ticket service unreachable")
		s.notify("Network error, check your connection", notify.Error)
	default:
		s.logger.Error().Err(err).Msg("ticket fetch failed")
		s.notify("Could not load tickets", notify.Error)
	}
}

func resultLabel(err error) string {
	switch {
	case apperrors.Is(err, apperrors.ErrUnauthorized):
		return "unauthorized"
	case apperrors.Is(err, apperrors.ErrForbidden):
		return "forbidden"
	case apperrors.Is(err, apperrors.ErrNetworkUnreachable):
		return "network"
	}
	return "error"
}
