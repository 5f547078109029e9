package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/diewo77/ejaar/auth"
	"github.com/diewo77/ejaar/internal/backend"
	"github.com/diewo77/ejaar/internal/lifecycle"
	"github.com/diewo77/ejaar/internal/models"
)

var (
	// ErrExpired is returned for revoked or expired sessions and for
	// sessions whose backend refresh was rejected.
	ErrExpired = errors.New("session: expired")
	// ErrUnsupportedRole is returned at login for backend roles the portal
	// does not serve.
	ErrUnsupportedRole = errors.New("session: unsupported role")
)

// Backend is the part of the backend client used for authentication.
type Backend interface {
	Login(ctx context.Context, email, password string) (*backend.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*backend.Tokens, error)
	Me(ctx context.Context) (*backend.User, error)
}

// Options tune a Manager. Zero values take defaults.
type Options struct {
	TTL           time.Duration
	RefreshWindow time.Duration
	// JWTSecret verifies backend access tokens when set.
	JWTSecret []byte
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

// Manager creates, resolves and revokes sessions.
type Manager struct {
	store   *Store
	sealer  *Sealer
	backend Backend
	opts    Options
	group   singleflight.Group
}

// Login is the result of a successful login.
type Login struct {
	Principal auth.Principal
	ExpiresAt time.Time
}

func NewManager(db *gorm.DB, be Backend, secret string, opts Options) (*Manager, error) {
	sealer, err := NewSealer(secret)
	if err != nil {
		return nil, err
	}
	if opts.TTL <= 0 {
		opts.TTL = 14 * 24 * time.Hour
	}
	if opts.RefreshWindow <= 0 {
		opts.RefreshWindow = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{store: NewStore(db), sealer: sealer, backend: be, opts: opts}, nil
}

// Store exposes the underlying store.
func (m *Manager) Store() *Store { return m.store }

// Login authenticates against the backend and opens a session.
func (m *Manager) Login(ctx context.Context, email, password string) (*Login, error) {
	tokens, err := m.backend.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	user := tokens.User
	if user == nil {
		if user, err = m.backend.Me(backend.WithToken(ctx, tokens.AccessToken)); err != nil {
			return nil, fmt.Errorf("session: load user: %w", err)
		}
	}
	if user.Role == "" {
		if claims, err := backend.ParseClaims(tokens.AccessToken, m.opts.JWTSecret); err == nil {
			user.Role = claims.Role
		}
	}
	role, err := lifecycle.ParseRole(user.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRole, user.Role)
	}

	now := m.opts.Now()
	access, err := m.sealer.Seal(tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	var refresh []byte
	if tokens.RefreshToken != "" {
		if refresh, err = m.sealer.Seal(tokens.RefreshToken); err != nil {
			return nil, err
		}
	}
	row := &models.Session{
		ID:              uuid.NewString(),
		UserID:          user.ID,
		Email:           user.Email,
		Name:            user.Name,
		Role:            string(role),
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresAt: tokens.AccessExpiry(now, m.opts.JWTSecret, m.opts.TTL),
		ExpiresAt:       now.Add(m.opts.TTL),
		LastSeenAt:      now,
	}
	if err := m.store.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	m.opts.Logger.WithFields(logrus.Fields{"user_id": row.UserID, "role": row.Role}).Info("session opened")
	return &Login{Principal: principal(row), ExpiresAt: row.ExpiresAt}, nil
}

func principal(row *models.Session) auth.Principal {
	return auth.Principal{
		SessionID: row.ID,
		UserID:    row.UserID,
		Email:     row.Email,
		Name:      row.Name,
		Role:      lifecycle.Role(row.Role),
	}
}

// Authenticate returns the principal and a valid backend access token for
// the session, refreshing the token when it is about to expire.
func (m *Manager) Authenticate(ctx context.Context, id string) (*auth.Principal, string, error) {
	row, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, "", ErrExpired
	}
	if err != nil {
		return nil, "", err
	}
	now := m.opts.Now()
	if !row.Active(now) {
		return nil, "", ErrExpired
	}
	access, err := m.sealer.Open(row.AccessToken)
	if err != nil {
		_ = m.store.Revoke(ctx, id, now)
		return nil, "", ErrExpired
	}
	if now.Add(m.opts.RefreshWindow).After(row.AccessExpiresAt) {
		v, err, _ := m.group.Do(id, func() (any, error) { return m.refresh(ctx, row, now) })
		switch {
		case err == nil:
			access = v.(string)
		case errors.Is(err, ErrExpired):
			return nil, "", err
		case now.Before(row.AccessExpiresAt):
			// still valid, retry on the next request
			m.opts.Logger.WithError(err).WithField("user_id", row.UserID).Warn("token refresh failed")
		default:
			return nil, "", err
		}
	}
	if now.Sub(row.LastSeenAt) > time.Minute {
		if err := m.store.Touch(ctx, id, now); err != nil {
			m.opts.Logger.WithError(err).Warn("session touch failed")
		}
	}
	p := principal(row)
	return &p, access, nil
}

// refresh renews the backend tokens of the session. The row is reloaded
// first: a request that read it before another one rotated the tokens must
// not send the spent refresh token.
func (m *Manager) refresh(ctx context.Context, stale *models.Session, now time.Time) (string, error) {
	row, err := m.store.Get(ctx, stale.ID)
	if errors.Is(err, ErrNotFound) {
		return "", ErrExpired
	}
	if err != nil {
		return "", err
	}
	if !row.Active(now) {
		return "", ErrExpired
	}
	if token, ok := m.current(row, now); ok {
		return token, nil
	}
	refreshToken, err := m.sealer.Open(row.RefreshToken)
	if err != nil || refreshToken == "" {
		if now.Before(row.AccessExpiresAt) {
			return "", errors.New("session: no refresh token")
		}
		_ = m.store.Revoke(ctx, row.ID, now)
		return "", ErrExpired
	}
	tokens, err := m.backend.Refresh(ctx, refreshToken)
	if errors.Is(err, backend.ErrUnauthorized) || errors.Is(err, backend.ErrForbidden) {
		// another instance may have rotated the token in the meantime
		if latest, gerr := m.store.Get(ctx, row.ID); gerr == nil && !bytes.Equal(latest.RefreshToken, row.RefreshToken) {
			if token, ok := m.current(latest, now); ok {
				return token, nil
			}
		}
		_ = m.store.Revoke(ctx, row.ID, now)
		return "", ErrExpired
	}
	if err != nil {
		return "", err
	}
	access, err := m.sealer.Seal(tokens.AccessToken)
	if err != nil {
		return "", err
	}
	refresh, err := m.sealer.Seal(tokens.RefreshToken)
	if err != nil {
		return "", err
	}
	exp := tokens.AccessExpiry(now, m.opts.JWTSecret, m.opts.TTL)
	if err := m.store.UpdateTokens(ctx, row.ID, access, refresh, exp); err != nil {
		return "", fmt.Errorf("session: store tokens: %w", err)
	}
	m.opts.Logger.WithField("user_id", row.UserID).Debug("backend token refreshed")
	return tokens.AccessToken, nil
}

// current returns the stored access token when it is outside the refresh
// window.
func (m *Manager) current(row *models.Session, now time.Time) (string, bool) {
	if now.Add(m.opts.RefreshWindow).After(row.AccessExpiresAt) {
		return "", false
	}
	token, err := m.sealer.Open(row.AccessToken)
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

// Resolve implements auth.Resolver. The backend token is attached to the
// returned context.
func (m *Manager) Resolve(ctx context.Context, id string) (context.Context, *auth.Principal, error) {
	p, token, err := m.Authenticate(ctx, id)
	if errors.Is(err, ErrExpired) {
		return nil, nil, fmt.Errorf("%w: %w", auth.ErrNoSession, err)
	}
	if err != nil {
		return nil, nil, err
	}
	return backend.WithToken(ctx, token), p, nil
}

// Logout revokes the session.
func (m *Manager) Logout(ctx context.Context, id string) error {
	return m.store.Revoke(ctx, id, m.opts.Now())
}

// Purge deletes expired and revoked sessions.
func (m *Manager) Purge(ctx context.Context) (int64, error) {
	return m.store.Purge(ctx, m.opts.Now())
}
