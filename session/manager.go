package session

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-chamados-sync/auth"
	"github.com/jrsteele09/go-chamados-sync/internal/broadcast"
	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/internal/logging"
	"github.com/jrsteele09/go-chamados-sync/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRemoteLogoutTimeout = 5 * time.Second
	defaultRefreshTimeout      = 30 * time.Second
)

// Manager owns the access token, refresh credential and identity of the single
// active session. Other components read the token through CurrentToken or the
// oauth2.TokenSource interface at the point of use and never keep a copy.
type Manager struct {
	client         auth.Client
	repo           Repo
	verifier       token.Verifier
	nowFunc        func() time.Time
	postLogin      func(*Session)
	logger         zerolog.Logger
	logoutTimeout  time.Duration
	refreshTimeout time.Duration

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	identity     Identity
	generation   uint64

	emitMu       sync.Mutex
	validity     *broadcast.Subject[bool]
	refreshGroup singleflight.Group
	background   sync.WaitGroup
}

var _ oauth2.TokenSource = (*Manager)(nil)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNowFunc sets the clock used for validity checks.
func WithNowFunc(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = nowFunc
	}
}

// WithVerifier makes Login and Refresh reject tokens whose signature fails
// verification.
func WithVerifier(v token.Verifier) ManagerOption {
	return func(m *Manager) {
		m.verifier = v
	}
}

// WithPostLogin registers the hook fired once after each successful Login.
func WithPostLogin(fn func(*Session)) ManagerOption {
	return func(m *Manager) {
		m.postLogin = fn
	}
}

func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithRemoteLogoutTimeout bounds the background remote logout call.
func WithRemoteLogoutTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.logoutTimeout = d
		}
	}
}

// WithRefreshTimeout bounds a refresh exchange shared by concurrent callers.
func WithRefreshTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.refreshTimeout = d
		}
	}
}

// NewManager creates a Manager and restores any session persisted in repo.
func NewManager(client auth.Client, repo Repo, opts ...ManagerOption) *Manager {
	m := &Manager{
		client:         client,
		repo:           repo,
		nowFunc:        time.Now,
		logger:         logging.Component(log.Logger, "session"),
		logoutTimeout:  defaultRemoteLogoutTimeout,
		refreshTimeout: defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.restore()
	m.validity = broadcast.NewValue(m.IsValid())
	return m
}

func (m *Manager) restore() {
	if m.repo == nil {
		return
	}
	stored, err := m.repo.Load()
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			m.logger.Warn().Err(err).Msg("failed to load persisted session")
		}
		return
	}

	claims, err := token.Parse(stored.AccessToken)
	if err != nil {
		m.logger.Warn().Err(err).Msg("discarding persisted session with unreadable token")
		if err := m.repo.Clear(); err != nil {
			m.logger.Warn().Err(err).Msg("failed to clear persisted session")
		}
		return
	}

	m.accessToken = stored.AccessToken
	m.refreshToken = stored.RefreshToken
	m.expiresAt = claims.ExpiresAt
	m.identity = stored.Identity
}

// Login authenticates with the remote endpoint and installs the resulting
// session. The post-login hook fires exactly once per successful call.
func (m *Manager) Login(ctx context.Context, identifier, secret string) (*Session, error) {
	resp, err := m.client.Login(ctx, identifier, secret)
	if err != nil {
		return nil, errors.Wrap(err, "login failed")
	}

	claims, err := m.checkToken(ctx, resp.AccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "login failed")
	}

	m.mu.Lock()
	sess := m.installLocked(resp, claims)
	m.mu.Unlock()

	m.logger.Info().Str("email", sess.Identity.Email).Time("expires_at", sess.ExpiresAt).Msg("logged in")
	m.emitValidity()
	if m.postLogin != nil {
		m.postLogin(sess)
	}
	return sess, nil
}

// Logout clears the session locally and in the repo, then publishes false. A
// remote logout runs in the background; its outcome never affects local state.
func (m *Manager) Logout() {
	m.mu.Lock()
	accessToken := m.accessToken
	m.accessToken = ""
	m.refreshToken = ""
	m.expiresAt = time.Time{}
	m.identity = Identity{}
	m.generation++
	if m.repo != nil {
		if err := m.repo.Clear(); err != nil {
			m.logger.Warn().Err(err).Msg("failed to clear persisted session")
		}
	}
	m.mu.Unlock()

	m.emitValidity()

	if accessToken != "" && m.client != nil {
		m.background.Add(1)
		go m.remoteLogout(accessToken)
	}
}

func (m *Manager) remoteLogout(accessToken string) {
	defer m.background.Done()

	ctx, cancel := context.WithTimeout(context.Background(), m.logoutTimeout)
	defer cancel()
	if err := m.client.Logout(ctx, accessToken); err != nil {
		m.logger.Debug().Err(err).Msg("remote logout failed")
	}
}

// Wait blocks until background remote logouts have finished.
func (m *Manager) Wait() {
	m.background.Wait()
}

// IsValid reports whether a token is present and unexpired. It is derived from
// the stored token on every call.
func (m *Manager) IsValid() bool {
	m.mu.RLock()
	accessToken := m.accessToken
	m.mu.RUnlock()

	return token.ValidAt(accessToken, m.nowFunc())
}

// CurrentToken returns the stored access token, whether or not it has expired.
func (m *Manager) CurrentToken() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessToken, m.accessToken != ""
}

func (m *Manager) Identity() Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

func (m *Manager) ExpiresAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expiresAt
}

// Current returns a snapshot of the session, or nil when logged out.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.accessToken == "" {
		return nil
	}
	return m.snapshotLocked()
}

// Refresh exchanges the refresh credential for a new token pair. Concurrent
// calls share one exchange, which is not cancelled by any one caller's ctx; a
// caller whose ctx ends first returns ctx.Err(). On failure the current
// session is left untouched.
// If the session was replaced or cleared while the exchange was in flight the
// result is dropped and ErrSessionChanged returned.
func (m *Manager) Refresh(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	refreshToken := m.refreshToken
	generation := m.generation
	m.mu.RUnlock()

	if refreshToken == "" {
		return nil, apperrors.ErrNoSession
	}

	results := m.refreshGroup.DoChan(refreshToken, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()

		resp, err := m.client.Refresh(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		claims, err := m.checkToken(ctx, resp.AccessToken)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		if m.generation != generation {
			m.mu.Unlock()
			return nil, apperrors.ErrSessionChanged
		}
		if resp.RefreshToken == "" {
			resp.RefreshToken = refreshToken
		}
		if resp.Identity.Email == "" && resp.Identity.DisplayName == "" {
			resp.Identity = m.identity
		}
		sess := m.installLocked(resp, claims)
		m.mu.Unlock()

		m.logger.Debug().Time("expires_at", sess.ExpiresAt).Msg("session refreshed")
		m.emitValidity()
		return sess, nil
	})

	select {
	case res := <-results:
		if res.Err != nil {
			return nil, errors.Wrap(res.Err, "refresh failed")
		}
		return res.Val.(*Session), nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "refresh failed")
	}
}

// Subscribe registers fn for validity changes. fn receives the current
// validity immediately, then the new value after every login, refresh and
// logout.
func (m *Manager) Subscribe(fn func(valid bool)) (unsubscribe func()) {
	return m.validity.Subscribe(fn)
}

// Token implements oauth2.TokenSource over the current session.
func (m *Manager) Token() (*oauth2.Token, error) {
	m.mu.RLock()
	accessToken, expiresAt := m.accessToken, m.expiresAt
	m.mu.RUnlock()

	if !token.ValidAt(accessToken, m.nowFunc()) {
		return nil, apperrors.ErrNoSession
	}
	return &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		Expiry:      expiresAt,
	}, nil
}

// checkToken decodes and optionally verifies a freshly issued token. Any
// failure is the server's fault.
func (m *Manager) checkToken(ctx context.Context, accessToken string) (*token.Claims, error) {
	claims, err := token.Parse(accessToken)
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrServerFault, err)
	}
	if m.verifier != nil {
		if err := m.verifier.Verify(ctx, accessToken); err != nil {
			return nil, apperrors.Join(apperrors.ErrServerFault, err)
		}
	}
	return claims, nil
}

func (m *Manager) installLocked(resp *auth.TokenResponse, claims *token.Claims) *Session {
	identity := resp.Identity
	if identity.Email == "" {
		identity.Email = claims.Email
	}
	if identity.DisplayName == "" {
		identity.DisplayName = claims.Name
	}

	m.accessToken = resp.AccessToken
	m.refreshToken = resp.RefreshToken
	m.expiresAt = claims.ExpiresAt
	m.identity = identity
	m.generation++

	if m.repo != nil {
		err := m.repo.Save(&Stored{
			AccessToken:  m.accessToken,
			RefreshToken: m.refreshToken,
			Identity:     m.identity,
		})
		if err != nil {
			m.logger.Warn().Err(err).Msg("failed to persist session")
		}
	}
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() *Session {
	identity := m.identity
	identity.Claims = append([]auth.Claim(nil), m.identity.Claims...)
	return &Session{
		Token:     m.accessToken,
		ExpiresAt: m.expiresAt,
		Identity:  identity,
	}
}

// emitValidity publishes the validity as of now. Reading the state under
// emitMu keeps concurrent transitions from publishing out of order.
func (m *Manager) emitValidity() {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	m.validity.Publish(m.IsValid())
}
