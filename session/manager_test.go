package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-chamados-sync/auth"
	"github.com/jrsteele09/go-chamados-sync/auth/authfake"
	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/session"
	"github.com/jrsteele09/go-chamados-sync/session/repofakes"
	"github.com/jrsteele09/go-chamados-sync/token/tokenfake"
	"github.com/stretchr/testify/require"
)

const (
	testUser     = "alice"
	testPassword = "s3cret"
	testRefresh  = "refresh-1"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testFixture struct {
	minter  *tokenfake.Minter
	client  *authfake.Client
	repo    *repofakes.FakeSessionRepo
	now     time.Time
	manager *session.Manager
}

func newFixture(t *testing.T, opts ...session.ManagerOption) *testFixture {
	t.Helper()
	f := &testFixture{
		minter: tokenfake.NewHMAC("test-secret"),
		client: &authfake.Client{},
		repo:   repofakes.NewFakeSessionRepo(),
		now:    testNow,
	}
	f.minter.NowFunc = func() time.Time { return testNow }
	f.client.LoginFunc = func(ctx context.Context, identifier, secret string) (*auth.TokenResponse, error) {
		if identifier != testUser || secret != testPassword {
			return nil, apperrors.ErrInvalidCredentials
		}
		return &auth.TokenResponse{
			AccessToken:  f.minter.Issue(identifier, time.Hour, nil),
			RefreshToken: testRefresh,
			ExpiresIn:    3600,
			Identity:     auth.Identity{Email: "alice@example.com", DisplayName: "Alice"},
		}, nil
	}

	opts = append([]session.ManagerOption{session.WithNowFunc(func() time.Time { return f.now })}, opts...)
	f.manager = session.NewManager(f.client, f.repo, opts...)
	return f
}

func (f *testFixture) login(t *testing.T) *session.Session {
	t.Helper()
	sess, err := f.manager.Login(context.Background(), testUser, testPassword)
	require.NoError(t, err)
	return sess
}

// validityRecorder collects published validity values.
type validityRecorder struct {
	mu     sync.Mutex
	values []bool
}

func (r *validityRecorder) record(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *validityRecorder) get() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.values...)
}

func TestManager_Login(t *testing.T) {
	t.Run("valid credentials", func(t *testing.T) {
		var redirects int
		f := newFixture(t, session.WithPostLogin(func(*session.Session) { redirects++ }))
		rec := &validityRecorder{}
		f.manager.Subscribe(rec.record)

		sess := f.login(t)

		require.True(t, f.manager.IsValid())
		require.Equal(t, 1, redirects)
		require.Equal(t, testNow.Add(time.Hour), sess.ExpiresAt)
		require.Equal(t, "Alice", sess.Identity.DisplayName)
		require.Equal(t, []bool{false, true}, rec.get())

		tok, ok := f.manager.CurrentToken()
		require.True(t, ok)
		require.Equal(t, sess.Token, tok)

		stored := f.repo.Stored()
		require.NotNil(t, stored)
		require.Equal(t, sess.Token, stored.AccessToken)
		require.Equal(t, testRefresh, stored.RefreshToken)
		require.Equal(t, "alice@example.com", stored.Identity.Email)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		var redirects int
		f := newFixture(t, session.WithPostLogin(func(*session.Session) { redirects++ }))

		_, err := f.manager.Login(context.Background(), testUser, "wrong")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		require.False(t, f.manager.IsValid())
		require.Zero(t, redirects)
		require.Nil(t, f.repo.Stored())
	})

	t.Run("undecodable token is a server fault", func(t *testing.T) {
		f := newFixture(t)
		f.client.LoginFunc = func(ctx context.Context, identifier, secret string) (*auth.TokenResponse, error) {
			return &auth.TokenResponse{AccessToken: "not-a-jwt"}, nil
		}

		_, err := f.manager.Login(context.Background(), testUser, testPassword)
		require.ErrorIs(t, err, apperrors.ErrServerFault)
		require.False(t, f.manager.IsValid())
	})

	t.Run("identity falls back to token claims", func(t *testing.T) {
		f := newFixture(t)
		f.client.LoginFunc = func(ctx context.Context, identifier, secret string) (*auth.TokenResponse, error) {
			return &auth.TokenResponse{AccessToken: f.minter.Issue("carol", time.Hour, nil)}, nil
		}

		sess := f.login(t)
		require.Equal(t, "carol@example.com", sess.Identity.Email)
		require.Equal(t, "carol", sess.Identity.DisplayName)
	})

	t.Run("verifier rejection", func(t *testing.T) {
		f := newFixture(t, session.WithVerifier(verifierFunc(func(context.Context, string) error {
			return apperrors.ErrInvalidToken
		})))

		_, err := f.manager.Login(context.Background(), testUser, testPassword)
		require.ErrorIs(t, err, apperrors.ErrServerFault)
		require.False(t, f.manager.IsValid())
	})
}

type verifierFunc func(ctx context.Context, rawToken string) error

func (fn verifierFunc) Verify(ctx context.Context, rawToken string) error {
	return fn(ctx, rawToken)
}

func TestManager_IsValid(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		want bool
	}{
		{name: "expired an hour ago", ttl: -time.Hour, want: false},
		{name: "expired a second ago", ttl: -time.Second, want: false},
		{name: "expires in a second", ttl: time.Second, want: true},
		{name: "expires in a day", ttl: 24 * time.Hour, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.client.LoginFunc = func(ctx context.Context, identifier, secret string) (*auth.TokenResponse, error) {
				return &auth.TokenResponse{AccessToken: f.minter.Issue(identifier, tt.ttl, nil)}, nil
			}
			f.login(t)
			require.Equal(t, tt.want, f.manager.IsValid())
		})
	}

	t.Run("validity follows the clock", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		require.True(t, f.manager.IsValid())

		f.now = testNow.Add(time.Hour)
		require.False(t, f.manager.IsValid())
		_, err := f.manager.Token()
		require.ErrorIs(t, err, apperrors.ErrNoSession)
	})

	t.Run("malformed persisted token", func(t *testing.T) {
		repo := repofakes.NewFakeSessionRepo()
		require.NoError(t, repo.Save(&session.Stored{AccessToken: "garbage", RefreshToken: testRefresh}))

		m := session.NewManager(&authfake.Client{}, repo, session.WithNowFunc(func() time.Time { return testNow }))
		require.NotPanics(t, func() { require.False(t, m.IsValid()) })
		require.Nil(t, repo.Stored())
	})
}

func TestManager_Logout(t *testing.T) {
	t.Run("clears state even when remote logout fails", func(t *testing.T) {
		f := newFixture(t)
		f.client.LogoutFunc = func(ctx context.Context, accessToken string) error {
			return apperrors.ErrNetworkUnreachable
		}
		rec := &validityRecorder{}
		f.manager.Subscribe(rec.record)
		sess := f.login(t)

		f.manager.Logout()

		require.False(t, f.manager.IsValid())
		_, ok := f.manager.CurrentToken()
		require.False(t, ok)
		require.Nil(t, f.repo.Stored())
		require.Nil(t, f.manager.Current())
		require.Equal(t, []bool{false, true, false}, rec.get())

		f.manager.Wait()
		require.Equal(t, []string{sess.Token}, f.client.LogoutTokens())
	})

	t.Run("does not block on a hanging remote logout", func(t *testing.T) {
		release := make(chan struct{})
		f := newFixture(t, session.WithRemoteLogoutTimeout(50*time.Millisecond))
		f.client.LogoutFunc = func(ctx context.Context, accessToken string) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-release:
				return nil
			}
		}
		f.login(t)

		done := make(chan struct{})
		go func() {
			f.manager.Logout()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Logout blocked on the network")
		}
		require.False(t, f.manager.IsValid())

		f.manager.Wait()
		close(release)
	})

	t.Run("logged out already", func(t *testing.T) {
		f := newFixture(t)
		f.manager.Logout()
		f.manager.Wait()
		require.False(t, f.manager.IsValid())
		require.Zero(t, f.client.LogoutCalls())
	})
}

func TestManager_Refresh(t *testing.T) {
	t.Run("replaces the token", func(t *testing.T) {
		f := newFixture(t)
		old := f.login(t)
		f.client.RefreshFunc = func(ctx context.Context, refreshToken string) (*auth.TokenResponse, error) {
			require.Equal(t, testRefresh, refreshToken)
			return &auth.TokenResponse{
				AccessToken:  f.minter.Issue(testUser, 2*time.Hour, nil),
				RefreshToken: "refresh-2",
			}, nil
		}

		sess, err := f.manager.Refresh(context.Background())
		require.NoError(t, err)
		require.NotEqual(t, old.Token, sess.Token)
		require.Equal(t, testNow.Add(2*time.Hour), f.manager.ExpiresAt())
		require.Equal(t, "Alice", f.manager.Identity().DisplayName)
		require.Equal(t, "refresh-2", f.repo.Stored().RefreshToken)

		tok, err := f.manager.Token()
		require.NoError(t, err)
		require.Equal(t, sess.Token, tok.AccessToken)
		require.Equal(t, "Bearer", tok.TokenType)
	})

	t.Run("failure leaves state untouched", func(t *testing.T) {
		f := newFixture(t)
		old := f.login(t)
		f.client.RefreshFunc = func(ctx context.Context, refreshToken string) (*auth.TokenResponse, error) {
			return nil, apperrors.ErrInvalidCredentials
		}

		_, err := f.manager.Refresh(context.Background())
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		require.True(t, f.manager.IsValid())
		tok, _ := f.manager.CurrentToken()
		require.Equal(t, old.Token, tok)
	})

	t.Run("no session", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.Refresh(context.Background())
		require.ErrorIs(t, err, apperrors.ErrNoSession)
		require.Zero(t, f.client.RefreshCalls())
	})

	t.Run("concurrent calls share one exchange", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		var calls atomic.Int32
		release := make(chan struct{})
		f.client.RefreshFunc = func(ctx context.Context, refreshToken string) (*auth.TokenResponse, error) {
			calls.Add(1)
			<-release
			return &auth.TokenResponse{AccessToken: f.minter.Issue(testUser, time.Hour, nil), RefreshToken: "refresh-2"}, nil
		}

		var wg sync.WaitGroup
		results := make([]*session.Session, 5)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sess, err := f.manager.Refresh(context.Background())
				require.NoError(t, err)
				results[i] = sess
			}(i)
		}
		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		require.Equal(t, int32(1), calls.Load())
		for _, sess := range results {
			require.Equal(t, results[0].Token, sess.Token)
		}
	})

	t.Run("cancelled caller leaves the shared exchange running", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		started := make(chan struct{})
		release := make(chan struct{})
		f.client.RefreshFunc = func(ctx context.Context, refreshToken string) (*auth.TokenResponse, error) {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &auth.TokenResponse{AccessToken: f.minter.Issue(testUser, 2*time.Hour, nil), RefreshToken: "refresh-2"}, nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		firstErr := make(chan error, 1)
		go func() {
			_, err := f.manager.Refresh(ctx)
			firstErr <- err
		}()
		<-started

		type result struct {
			sess *session.Session
			err  error
		}
		second := make(chan result, 1)
		go func() {
			sess, err := f.manager.Refresh(context.Background())
			second <- result{sess: sess, err: err}
		}()
		time.Sleep(20 * time.Millisecond)

		cancel()
		require.ErrorIs(t, <-firstErr, context.Canceled)

		close(release)
		res := <-second
		require.NoError(t, res.err)
		require.Equal(t, "refresh-2", f.repo.Stored().RefreshToken)
		require.Equal(t, 1, f.client.RefreshCalls())
	})

	t.Run("logout during refresh discards the result", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		started := make(chan struct{})
		release := make(chan struct{})
		f.client.RefreshFunc = func(ctx context.Context, refreshToken string) (*auth.TokenResponse, error) {
			close(started)
			<-release
			return &auth.TokenResponse{AccessToken: f.minter.Issue(testUser, time.Hour, nil)}, nil
		}

		errCh := make(chan error, 1)
		go func() {
			_, err := f.manager.Refresh(context.Background())
			errCh <- err
		}()
		<-started
		f.manager.Logout()
		close(release)

		require.ErrorIs(t, <-errCh, apperrors.ErrSessionChanged)
		require.False(t, f.manager.IsValid())
		require.Nil(t, f.repo.Stored())
	})
}

func TestManager_RestoresPersistedSession(t *testing.T) {
	minter := tokenfake.NewHMAC("test-secret")
	minter.NowFunc = func() time.Time { return testNow }
	repo := repofakes.NewFakeSessionRepo()
	require.NoError(t, repo.Save(&session.Stored{
		AccessToken:  minter.Issue(testUser, time.Hour, nil),
		RefreshToken: testRefresh,
		Identity:     auth.Identity{Email: "alice@example.com"},
	}))

	m := session.NewManager(&authfake.Client{}, repo, session.WithNowFunc(func() time.Time { return testNow }))
	require.True(t, m.IsValid())
	require.Equal(t, "alice@example.com", m.Identity().Email)

	var got []bool
	m.Subscribe(func(v bool) { got = append(got, v) })
	require.Equal(t, []bool{true}, got)
}
