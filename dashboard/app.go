package dashboard

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jrsteele09/go-chamados-sync/auth"
	"github.com/jrsteele09/go-chamados-sync/internal/config"
	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/internal/logging"
	"github.com/jrsteele09/go-chamados-sync/notify"
	"github.com/jrsteele09/go-chamados-sync/realtime"
	"github.com/jrsteele09/go-chamados-sync/session"
	"github.com/jrsteele09/go-chamados-sync/session/filerepo"
	"github.com/jrsteele09/go-chamados-sync/tickets"
	"github.com/jrsteele09/go-chamados-sync/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const broadcastEvent = "BroadcastMessage"

type options struct {
	logger     zerolog.Logger
	notify     notify.Sink
	registerer prometheus.Registerer
	authClient auth.Client
	repo       session.Repo
	dialer     realtime.Dialer
	source     tickets.Source
	nowFunc    func() time.Time
}

type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithNotifier sets where user facing messages go.
func WithNotifier(sink notify.Sink) Option {
	return func(o *options) {
		if sink != nil {
			o.notify = sink
		}
	}
}

// WithRegisterer sets the prometheus registerer for channel and store metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

func WithAuthClient(c auth.Client) Option {
	return func(o *options) {
		o.authClient = c
	}
}

func WithSessionRepo(r session.Repo) Option {
	return func(o *options) {
		o.repo = r
	}
}

func WithDialer(d realtime.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

func WithSource(s tickets.Source) Option {
	return func(o *options) {
		o.source = s
	}
}

func WithNowFunc(nowFunc func() time.Time) Option {
	return func(o *options) {
		o.nowFunc = nowFunc
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:     log.Logger,
		notify:     notify.Nop,
		registerer: prometheus.DefaultRegisterer,
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewSession builds the session manager described by cfg: the HTTP auth
// client, the file backed session repo and, when a JWKS URL is configured,
// signature verification.
func NewSession(ctx context.Context, cfg config.Config, opts ...Option) *session.Manager {
	o := newOptions(opts)

	client := o.authClient
	if client == nil {
		client = auth.NewHTTPClient(cfg.GetAuthBaseURL(),
			auth.WithLogger(logging.Component(o.logger, "auth")),
			auth.WithTimeout(cfg.GetHTTPTimeout()),
		)
	}
	repo := o.repo
	if repo == nil {
		repo = filerepo.New(cfg.GetSessionFile(), filerepo.WithPassphrase(cfg.GetSessionPassphrase()))
	}

	managerOpts := []session.ManagerOption{
		session.WithLogger(logging.Component(o.logger, "session")),
		session.WithNowFunc(o.nowFunc),
		session.WithRemoteLogoutTimeout(cfg.GetRemoteLogoutTimeout()),
		session.WithRefreshTimeout(cfg.GetHTTPTimeout()),
	}
	if jwks := cfg.GetJWKSURL(); jwks != "" {
		managerOpts = append(managerOpts, session.WithVerifier(token.NewKeySetVerifier(ctx, jwks)))
	}
	return session.NewManager(client, repo, managerOpts...)
}

// App is the ticket dashboard: the current page of tickets kept fresh by the
// realtime channel for as long as the session stays valid.
type App struct {
	session *session.Manager
	channel *realtime.Channel
	store   *tickets.Store
	logger  zerolog.Logger
	notify  notify.Sink

	pageSize int

	mu     sync.Mutex
	open   bool
	unsubs []func()
}

// New wires a channel and a store to sess using cfg. Nothing connects or
// fetches until Open.
func New(cfg config.Config, sess *session.Manager, opts ...Option) (*App, error) {
	o := newOptions(opts)

	channelMetrics, err := realtime.NewMetrics(o.registerer)
	if err != nil {
		return nil, err
	}
	storeMetrics, err := tickets.NewMetrics(o.registerer)
	if err != nil {
		return nil, err
	}

	channelOpts := []realtime.ChannelOption{
		realtime.WithBackoff(realtime.Backoff{
			Tiers:      cfg.GetBackoffTiers(),
			Max:        cfg.GetMaxBackoff(),
			MaxRetries: cfg.GetMaxRetries(),
		}),
		realtime.WithHandshakeTimeout(cfg.GetHandshakeTimeout()),
		realtime.WithKeepAlive(cfg.GetKeepAlive()),
		realtime.WithRecognizedEvents(cfg.GetRecognizedEvents()...),
		realtime.WithLogger(logging.Component(o.logger, "channel")),
		realtime.WithMetrics(channelMetrics),
	}
	if o.dialer != nil {
		channelOpts = append(channelOpts, realtime.WithDialer(o.dialer))
	}

	source := o.source
	if source == nil {
		source = tickets.NewHTTPSource(cfg.GetTicketsBaseURL(), sess,
			tickets.WithTimeout(cfg.GetFetchTimeout()),
			tickets.WithSourceLogger(logging.Component(o.logger, "tickets")),
		)
	}

	a := &App{
		session:  sess,
		channel:  realtime.NewChannel(cfg.GetHubURL(), sess, channelOpts...),
		logger:   logging.Component(o.logger, "dashboard"),
		notify:   o.notify,
		pageSize: cfg.GetDefaultPageSize(),
	}
	a.store = tickets.NewStore(source,
		tickets.WithLogger(logging.Component(o.logger, "store")),
		tickets.WithMetrics(storeMetrics),
		tickets.WithNotifier(o.notify),
		tickets.WithUnauthorizedHook(sess.Logout),
		tickets.WithNowFunc(o.nowFunc),
		tickets.WithDefaultPageSize(a.pageSize),
		tickets.WithFetchTimeout(cfg.GetFetchTimeout()),
	)
	return a, nil
}

func (a *App) Session() *session.Manager  { return a.session }
func (a *App) Channel() *realtime.Channel { return a.channel }
func (a *App) Store() *tickets.Store      { return a.store }

// Open loads the first page and connects the realtime channel. It fails with
// ErrNoSession when nobody is logged in. A failed first load is returned after
// the channel has been started, except when the server rejected the session.
// A channel that cannot connect yet keeps retrying in the background and is
// not an error.
func (a *App) Open(ctx context.Context) error {
	if !a.session.IsValid() {
		return apperrors.ErrNoSession
	}

	a.mu.Lock()
	if !a.open {
		a.open = true
		a.unsubs = append(a.unsubs,
			a.channel.OnDataChanged(a.onDataChanged),
			a.channel.On(broadcastEvent, a.onBroadcast),
			a.channel.OnStatus(a.onStatus),
			a.session.Subscribe(a.onSessionValidity),
		)
	}
	a.mu.Unlock()

	_, loadErr := a.store.FetchPage(ctx, 1, a.pageSize, tickets.Filter{})
	if loadErr != nil {
		a.logger.Warn().Err(loadErr).Msg("initial ticket load failed")
		if apperrors.Is(loadErr, apperrors.ErrUnauthorized) {
			return loadErr
		}
	}

	if err := a.channel.Start(ctx); err != nil {
		if apperrors.Is(err, apperrors.ErrMissingCredential) {
			return err
		}
		a.logger.Info().Err(err).Msg("realtime channel not connected yet, retrying in the background")
	}
	return loadErr
}

// Close detaches every observer and stops the channel. The session is left
// alone.
func (a *App) Close() {
	a.mu.Lock()
	unsubs := a.unsubs
	a.unsubs = nil
	a.open = false
	a.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	a.channel.Stop()
}

// Reconnect is the manual retry offered once the channel has given up.
func (a *App) Reconnect(ctx context.Context) error {
	a.notify("Trying to reconnect...", notify.Info)
	return a.channel.Start(ctx)
}

func (a *App) onDataChanged(ev realtime.Event) {
	a.logger.Debug().Str("event", ev.Name).Msg("tickets changed on the server, refreshing")
	a.store.Refresh()
}

func (a *App) onBroadcast(json.RawMessage) {
	a.notify("Ticket list updated in real time", notify.Success)
}

func (a *App) onStatus(connected bool) {
	a.logger.Info().Bool("connected", connected).Msg("realtime status changed")
}

func (a *App) onSessionValidity(valid bool) {
	if !valid {
		a.logger.Info().Msg("session ended, stopping realtime channel")
		a.channel.Stop()
	}
}
