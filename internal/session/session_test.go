package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/ejaar/auth"
	"github.com/diewo77/ejaar/internal/backend"
	"github.com/diewo77/ejaar/internal/backend/backendtest"
	"github.com/diewo77/ejaar/internal/lifecycle"
	"github.com/diewo77/ejaar/internal/models"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Session{}))
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var bankAcc = backendtest.Account{User: backend.User{ID: "b1", Email: "bank@ejaar.ma", Name: "Banque", Role: "bank"}, Password: "secret"}

func newManager(t *testing.T, be Backend, clk *clock) *Manager {
	t.Helper()
	m, err := NewManager(setupDB(t), be, "a-long-enough-session-secret-for-tests", Options{
		TTL:           24 * time.Hour,
		RefreshWindow: 2 * time.Minute,
		Logger:        quietLogger(),
		Now:           clk.now,
	})
	require.NoError(t, err)
	return m
}

func TestSealer(t *testing.T) {
	s, err := NewSealer("secret-one")
	require.NoError(t, err)

	box, err := s.Seal("access-token")
	require.NoError(t, err)
	assert.NotContains(t, string(box), "access-token")

	plain, err := s.Open(box)
	require.NoError(t, err)
	assert.Equal(t, "access-token", plain)

	other, err := NewSealer("secret-two")
	require.NoError(t, err)
	_, err = other.Open(box)
	require.ErrorIs(t, err, ErrSealBroken)

	box[len(box)-1] ^= 0xff
	_, err = s.Open(box)
	require.ErrorIs(t, err, ErrSealBroken)

	_, err = s.Open([]byte("short"))
	require.ErrorIs(t, err, ErrSealBroken)

	empty, err := s.Open(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = NewSealer("")
	require.Error(t, err)
}

func TestLoginAndResolve(t *testing.T) {
	srv := backendtest.New(bankAcc)
	defer srv.Close()
	client, err := backend.New(srv.URL)
	require.NoError(t, err)
	clk := &clock{t: time.Now().UTC()}
	m := newManager(t, client, clk)
	ctx := context.Background()

	_, err = m.Login(ctx, "bank@ejaar.ma", "wrong")
	require.ErrorIs(t, err, backend.ErrUnauthorized)

	login, err := m.Login(ctx, "bank@ejaar.ma", "secret")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.RoleBank, login.Principal.Role)
	assert.Equal(t, "b1", login.Principal.UserID)
	assert.NotEmpty(t, login.Principal.SessionID)

	row, err := m.Store().Get(ctx, login.Principal.SessionID)
	require.NoError(t, err)
	assert.NotContains(t, string(row.AccessToken), "eyJ", "token stored in clear")

	rctx, p, err := m.Resolve(ctx, login.Principal.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "bank@ejaar.ma", p.Email)
	claims, err := backend.ParseClaims(backend.TokenFromContext(rctx), backendtest.Secret)
	require.NoError(t, err)
	assert.Equal(t, "b1", claims.Subject)
	assert.Zero(t, srv.Refreshes)

	require.NoError(t, m.Logout(ctx, login.Principal.SessionID))
	_, _, err = m.Resolve(ctx, login.Principal.SessionID)
	require.ErrorIs(t, err, auth.ErrNoSession)

	_, _, err = m.Resolve(ctx, "unknown")
	require.ErrorIs(t, err, auth.ErrNoSession)
}

func TestAuthenticateRefreshesNearExpiry(t *testing.T) {
	srv := backendtest.New(bankAcc)
	defer srv.Close()
	srv.TokenTTL = time.Minute
	client, err := backend.New(srv.URL)
	require.NoError(t, err)
	clk := &clock{t: time.Now().UTC()}
	m := newManager(t, client, clk)
	ctx := context.Background()

	login, err := m.Login(ctx, "bank@ejaar.ma", "secret")
	require.NoError(t, err)

	_, _, err = m.Authenticate(ctx, login.Principal.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Refreshes)

	row, err := m.Store().Get(ctx, login.Principal.SessionID)
	require.NoError(t, err)
	assert.True(t, row.AccessExpiresAt.After(clk.now().Add(30*time.Minute)))

	_, _, err = m.Authenticate(ctx, login.Principal.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Refreshes, "fresh token must not be refreshed again")
}

func TestSessionExpires(t *testing.T) {
	srv := backendtest.New(bankAcc)
	defer srv.Close()
	client, err := backend.New(srv.URL)
	require.NoError(t, err)
	clk := &clock{t: time.Now().UTC()}
	m := newManager(t, client, clk)
	ctx := context.Background()

	login, err := m.Login(ctx, "bank@ejaar.ma", "secret")
	require.NoError(t, err)
	clk.advance(25 * time.Hour)
	_, _, err = m.Authenticate(ctx, login.Principal.SessionID)
	require.ErrorIs(t, err, ErrExpired)
}

type stubBackend struct {
	tokens     *backend.Tokens
	user       *backend.User
	refreshErr error
	refreshes  int
}

func (s *stubBackend) Login(context.Context, string, string) (*backend.Tokens, error) {
	t := *s.tokens
	return &t, nil
}

func (s *stubBackend) Refresh(context.Context, string) (*backend.Tokens, error) {
	s.refreshes++
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return &backend.Tokens{AccessToken: "access-2", RefreshToken: "refresh-2", ExpiresIn: 3600}, nil
}

func (s *stubBackend) Me(ctx context.Context) (*backend.User, error) {
	if s.user == nil {
		return nil, backend.ErrUnauthorized
	}
	return s.user, nil
}

func TestLoginLoadsUserWhenMissing(t *testing.T) {
	stub := &stubBackend{
		tokens: &backend.Tokens{AccessToken: "opaque", RefreshToken: "r", ExpiresIn: 3600},
		user:   &backend.User{ID: "s1", Email: "s@ejaar.ma", Role: "fournisseur"},
	}
	m := newManager(t, stub, &clock{t: time.Now().UTC()})
	login, err := m.Login(context.Background(), "s@ejaar.ma", "pw")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.RoleSupplier, login.Principal.Role)

	stub.user = &backend.User{ID: "x", Role: "auditor"}
	_, err = m.Login(context.Background(), "x", "pw")
	require.ErrorIs(t, err, ErrUnsupportedRole)
}

func TestRejectedRefreshRevokes(t *testing.T) {
	stub := &stubBackend{
		tokens:     &backend.Tokens{AccessToken: "opaque", RefreshToken: "r", ExpiresIn: 60},
		user:       &backend.User{ID: "c1", Role: "client"},
		refreshErr: &backend.APIError{Op: "refresh", Status: 401},
	}
	m := newManager(t, stub, &clock{t: time.Now().UTC()})
	ctx := context.Background()
	login, err := m.Login(ctx, "c", "pw")
	require.NoError(t, err)

	_, _, err = m.Authenticate(ctx, login.Principal.SessionID)
	require.ErrorIs(t, err, ErrExpired)
	row, err := m.Store().Get(ctx, login.Principal.SessionID)
	require.NoError(t, err)
	assert.NotNil(t, row.RevokedAt)
}

func TestUnavailableRefreshKeepsValidToken(t *testing.T) {
	stub := &stubBackend{
		tokens:     &backend.Tokens{AccessToken: "access-1", RefreshToken: "r", ExpiresIn: 60},
		user:       &backend.User{ID: "c1", Role: "client"},
		refreshErr: fmt.Errorf("backend refresh: %w", backend.ErrUnavailable),
	}
	clk := &clock{t: time.Now().UTC()}
	m := newManager(t, stub, clk)
	ctx := context.Background()
	login, err := m.Login(ctx, "c", "pw")
	require.NoError(t, err)

	_, token, err := m.Authenticate(ctx, login.Principal.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)

	clk.advance(2 * time.Minute)
	_, _, err = m.Authenticate(ctx, login.Principal.SessionID)
	require.ErrorIs(t, err, backend.ErrUnavailable)
	assert.Equal(t, 2, stub.refreshes)

	stub.refreshErr = nil
	_, token, err = m.Authenticate(ctx, login.Principal.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)
}

// rotatingBackend issues a new refresh token on every refresh and rejects
// spent ones.
type rotatingBackend struct {
	mu        sync.Mutex
	gen       int
	refreshes int
}

func (b *rotatingBackend) issue(expiresIn int) *backend.Tokens {
	b.gen++
	return &backend.Tokens{
		AccessToken:  fmt.Sprintf("access-%d", b.gen),
		RefreshToken: fmt.Sprintf("refresh-%d", b.gen),
		ExpiresIn:    expiresIn,
		User:         &backend.User{ID: "c1", Role: "client"},
	}
}

func (b *rotatingBackend) Login(context.Context, string, string) (*backend.Tokens, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issue(60), nil
}

func (b *rotatingBackend) Refresh(_ context.Context, token string) (*backend.Tokens, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshes++
	if token != fmt.Sprintf("refresh-%d", b.gen) {
		return nil, &backend.APIError{Op: "refresh", Status: 401}
	}
	return b.issue(3600), nil
}

func (b *rotatingBackend) Me(context.Context) (*backend.User, error) {
	return &backend.User{ID: "c1", Role: "client"}, nil
}

func TestRefreshWithStaleRowReusesRotatedToken(t *testing.T) {
	be := &rotatingBackend{}
	clk := &clock{t: time.Now().UTC()}
	m := newManager(t, be, clk)
	ctx := context.Background()
	login, err := m.Login(ctx, "c", "pw")
	require.NoError(t, err)
	id := login.Principal.SessionID

	// read before the first request's refresh commits
	stale, err := m.Store().Get(ctx, id)
	require.NoError(t, err)

	_, token, err := m.Authenticate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)

	token, err = m.refresh(ctx, stale, clk.now())
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)
	assert.Equal(t, 1, be.refreshes, "spent refresh token must not be sent")

	_, token, err = m.Authenticate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)
	row, err := m.Store().Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, row.RevokedAt)
}

func TestPurge(t *testing.T) {
	stub := &stubBackend{
		tokens: &backend.Tokens{AccessToken: "a", RefreshToken: "r", ExpiresIn: 3600},
		user:   &backend.User{ID: "c1", Role: "client"},
	}
	clk := &clock{t: time.Now().UTC()}
	m := newManager(t, stub, clk)
	ctx := context.Background()

	old, err := m.Login(ctx, "c", "pw")
	require.NoError(t, err)
	clk.advance(20 * time.Hour)
	revoked, err := m.Login(ctx, "c", "pw")
	require.NoError(t, err)
	require.NoError(t, m.Logout(ctx, revoked.Principal.SessionID))
	live, err := m.Login(ctx, "c", "pw")
	require.NoError(t, err)
	clk.advance(5 * time.Hour)

	n, err := m.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = m.Store().Get(ctx, old.Principal.SessionID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.Store().Get(ctx, live.Principal.SessionID)
	require.NoError(t, err)
}

func TestRevokeUser(t *testing.T) {
	stub := &stubBackend{
		tokens: &backend.Tokens{AccessToken: "a", ExpiresIn: 3600},
		user:   &backend.User{ID: "c1", Role: "client"},
	}
	m := newManager(t, stub, &clock{t: time.Now().UTC()})
	ctx := context.Background()
	for range 3 {
		_, err := m.Login(ctx, "c", "pw")
		require.NoError(t, err)
	}
	n, err := m.Store().RevokeUser(ctx, "c1", time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestJanitor(t *testing.T) {
	j := NewJanitor(quietLogger())
	require.Error(t, j.Add("not a schedule", "bad", func(context.Context) error { return nil }))
	require.NoError(t, j.Add("@every 1h", "noop", func(context.Context) error { return errors.New("unused") }))
	assert.Equal(t, 1, j.Len())
	j.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j.Stop(ctx)
}

func TestPurgeJob(t *testing.T) {
	stub := &stubBackend{
		tokens: &backend.Tokens{AccessToken: "a", ExpiresIn: 3600},
		user:   &backend.User{ID: "c1", Role: "client"},
	}
	clk := &clock{t: time.Now().UTC()}
	m := newManager(t, stub, clk)
	ctx := context.Background()
	login, err := m.Login(ctx, "c", "pw")
	require.NoError(t, err)
	clk.advance(48 * time.Hour)

	require.NoError(t, PurgeJob(m, quietLogger())(ctx))
	_, err = m.Store().Get(ctx, login.Principal.SessionID)
	require.ErrorIs(t, err, ErrNotFound)
}
