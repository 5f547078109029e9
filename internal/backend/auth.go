package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Login exchanges credentials for backend tokens.
func (c *Client) Login(ctx context.Context, email, password string) (*Tokens, error) {
	in := map[string]string{"email": email, "password": password}
	var out Tokens
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", nil, in, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, errors.New("backend login: response has no access token")
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	in := map[string]string{"refresh_token": refreshToken}
	var out Tokens
	if err := c.do(ctx, "refresh", http.MethodPost, "/auth/refresh", nil, in, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, errors.New("backend refresh: response has no access token")
	}
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return &out, nil
}

// Me returns the user owning the context token.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, "me", http.MethodGet, "/users/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Claims are the fields the portal reads from a backend access token.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// ParseClaims reads the access token claims. With a secret the HS256
// signature and expiry are verified; without one the token is only decoded
// because the backend remains the authority on every call.
func ParseClaims(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	if len(secret) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("parse access token: %w", err)
		}
		return claims, nil
	}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}
	return claims, nil
}

// AccessExpiry returns when the access token expires: the exp claim when
// present, otherwise now plus ExpiresIn, otherwise now plus fallback.
func (t *Tokens) AccessExpiry(now time.Time, secret []byte, fallback time.Duration) time.Time {
	if claims, err := ParseClaims(t.AccessToken, secret); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	if t.ExpiresIn > 0 {
		return now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return now.Add(fallback)
}
