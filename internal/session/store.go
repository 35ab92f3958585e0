// Package session holds the authenticated identity of one console client.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/bookstore-admin/console/internal/bookstore"
)

// AuthAPI is the subset of the bookstore API the store drives.
type AuthAPI interface {
	Login(ctx context.Context, creds bookstore.Credentials) (bookstore.LoginResult, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (bookstore.User, error)
}

// Revoker retries a server-side logout out of band.
type Revoker interface {
	Revoke(ctx context.Context, token string) error
}

// Options tunes a Store.
type Options struct {
	// RestoreTimeout bounds token validation during Restore.
	RestoreTimeout time.Duration
	Revoker        Revoker
	Logger         *slog.Logger
}

// Store is the single source of truth for the client's token and user.
// It satisfies gateway.TokenSource.
type Store struct {
	mu      sync.Mutex
	tokens  TokenStorage
	user    *bookstore.User
	loading bool
	opts    Options
}

// NewStore constructs a Store persisting its token in tokens.
func NewStore(tokens TokenStorage, opts Options) *Store {
	if opts.RestoreTimeout <= 0 {
		opts.RestoreTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{tokens: tokens, opts: opts}
}

// Restore validates a persisted token by fetching the current user. Any
// failure discards the token and leaves the store empty.
func (s *Store) Restore(ctx context.Context, api AuthAPI) {
	s.mu.Lock()
	token := s.tokens.Token()
	s.user = nil
	s.loading = token != ""
	s.mu.Unlock()
	if token == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RestoreTimeout)
	defer cancel()
	user, err := api.CurrentUser(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.opts.Logger.Info("discarding persisted token", slog.Any("error", err))
		s.tokens.DeleteToken()
		s.user = nil
		return
	}
	s.user = &user
}

// Login submits credentials. On success the token is persisted and the user
// populated; on failure the store is left untouched and err is returned as is.
func (s *Store) Login(ctx context.Context, api AuthAPI, creds bookstore.Credentials) (bookstore.LoginResult, error) {
	result, err := api.Login(ctx, creds)
	if err != nil {
		return bookstore.LoginResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens.SetToken(result.Token)
	user := result.User
	s.user = &user
	return result, nil
}

// Logout asks the backend to invalidate the token, then clears local state
// whatever the outcome. A failed backend call is handed to the Revoker.
func (s *Store) Logout(ctx context.Context, api AuthAPI) error {
	token := s.Token()
	err := api.Logout(ctx)
	s.Clear()
	if err == nil || token == "" {
		return err
	}
	s.opts.Logger.Warn("logout call failed", slog.Any("error", err))
	if s.opts.Revoker != nil {
		if rerr := s.opts.Revoker.Revoke(context.WithoutCancel(ctx), token); rerr != nil {
			s.opts.Logger.Error("schedule token revocation", slog.Any("error", rerr))
		}
	}
	return err
}

// Clear drops the token and the user.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens.DeleteToken()
	s.user = nil
}

// Token returns the persisted bearer token.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens.Token()
}

// Fingerprint identifies the token without exposing it. Empty when signed out.
func (s *Store) Fingerprint() string {
	token := s.Token()
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// User returns a copy of the authenticated user.
func (s *Store) User() (bookstore.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return bookstore.User{}, false
	}
	return *s.user, true
}

// IsAuthenticated reports whether both token and user are present.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil && s.tokens.Token() != ""
}

// IsLoading is true only while Restore is validating a token.
func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}
