package devserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-chamados-sync/internal/config"
	"github.com/jrsteele09/go-chamados-sync/internal/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	RouteAuthPrefix    = "/api/v1/login"
	RouteTicketsPrefix = "/api/chamados"
	RouteHub           = "/hubs/chamados"
	RouteWellKnownJWKS = "/.well-known/jwks.json"

	RouteLogin        = RouteAuthPrefix + "/login"
	RouteRefresh      = RouteAuthPrefix + "/refresh"
	RouteLogout       = RouteAuthPrefix + "/logout"
	RouteTickets      = RouteTicketsPrefix + "/tickets"
	RouteTicket       = RouteTickets + "/{id}"
	RouteTicketStatus = RouteTicket + "/status"

	defaultTokenTTL     = 15 * time.Minute
	defaultPingInterval = 15 * time.Second
)

// Server is an in-memory chamados backend: the login API, the ticket API and
// the push hub on one handler. It exists for local development and end to end
// tests.
type Server struct {
	mux    *http.ServeMux
	routes []string
	logger zerolog.Logger

	accounts AccountRepo
	keys     *KeyPair
	tokens   *tokenIssuer
	board    *Board
	hub      *Hub
}

type options struct {
	logger       zerolog.Logger
	tokenTTL     time.Duration
	pingInterval time.Duration
	nowFunc      func() time.Time
}

type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTokenTTL sets the access token lifetime.
func WithTokenTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.tokenTTL = d
		}
	}
}

// WithPingInterval sets how often the hub pings clients. Zero disables pings.
func WithPingInterval(d time.Duration) Option {
	return func(o *options) {
		o.pingInterval = d
	}
}

func WithNowFunc(nowFunc func() time.Time) Option {
	return func(o *options) {
		o.nowFunc = nowFunc
	}
}

func New(opts ...Option) (*Server, error) {
	o := options{
		logger:       logging.Component(log.Logger, "devserver"),
		tokenTTL:     defaultTokenTTL,
		pingInterval: defaultPingInterval,
		nowFunc:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	keys, err := GenerateRSAKeyPair("dev-"+o.nowFunc().UTC().Format("20060102"), 2048)
	if err != nil {
		return nil, errors.Wrap(err, "[devserver New] failed to create signing key")
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   o.logger,
		accounts: newMemoryAccounts(),
		keys:     keys,
	}
	s.tokens = newTokenIssuer(keys, o.tokenTTL, o.nowFunc)
	s.hub = newHub(s.tokens, o.logger, o.pingInterval)
	s.board = newBoard(o.nowFunc, func(event string, t BoardTicket) { s.hub.Publish(event, t) })

	s.initRoutes()
	return s, nil
}

// Seed adds the configured development account and sample tickets.
func (s *Server) Seed(cfg config.DevServerConfig) error {
	if login := cfg.GetDevLogin(); login != "" {
		err := s.AddAccount(&Account{
			Login:     login,
			Email:     login + "@chamados.local",
			FirstName: strings.ToUpper(login[:1]) + login[1:],
			Company:   "Chamados Dev",
			Roles:     []string{"user"},
		}, cfg.GetDevPassword())
		if err != nil {
			return err
		}
	}
	s.board.Seed(cfg.GetDevSeedTickets())
	return nil
}

// AddAccount stores account with a hash of password.
func (s *Server) AddAccount(account *Account, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return errors.Wrap(err, "failed to hash password")
	}
	account.PasswordHash = hash
	return s.accounts.Upsert(account)
}

func (s *Server) Board() *Board { return s.board }
func (s *Server) Hub() *Hub     { return s.hub }

// Close disconnects hub clients.
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes returns every registered pattern in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteFunc("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKSHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteTickets, ChainMiddleware(s.ListTicketsHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteFunc("POST "+RouteTickets, ChainMiddleware(s.CreateTicketHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteFunc("GET "+RouteTicket, ChainMiddleware(s.GetTicketHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteFunc("PUT "+RouteTicketStatus, ChainMiddleware(s.SetStatusHandler(), s.APIMiddleware(s.RequireAuth())...))

	s.RegisterRouteHandler("GET "+RouteHub, s.hub)
}
