// Package auth issues opaque session tokens that map to SFTP credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/sftpgate/internal/models"
	"github.com/charlesng35/sftpgate/pkg/crypto"
)

const (
	// DefaultSessionTTL is the sliding lifetime of an idle session.
	DefaultSessionTTL = time.Hour
	// DefaultTokenBytes is the entropy of generated tokens before encoding.
	DefaultTokenBytes = 32
)

var (
	// ErrSessionNotFound means the token is unknown or its record expired.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionInvalidToken is returned for blank tokens.
	ErrSessionInvalidToken = errors.New("session: invalid token")
)

// SessionConfig tunes the SessionService.
type SessionConfig struct {
	TTL        time.Duration
	TokenBytes int
	Clock      func() time.Time
}

// SessionMetadata captures details about the client creating a session.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// SessionService creates, refreshes and revokes credential sessions.
type SessionService struct {
	cache      SessionCache
	ttl        time.Duration
	tokenBytes int
	now        func() time.Time
}

// NewSessionService requires a cache; zero config values fall back to defaults.
func NewSessionService(sessions SessionCache, cfg SessionConfig) (*SessionService, error) {
	if sessions == nil {
		return nil, errors.New("session service: cache is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	tokenBytes := cfg.TokenBytes
	if tokenBytes <= 0 {
		tokenBytes = DefaultTokenBytes
	}
	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		cache:      sessions,
		ttl:        ttl,
		tokenBytes: tokenBytes,
		now:        clock,
	}, nil
}

// TTL returns the sliding session lifetime.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Create stores creds under a new random token and returns the session.
func (s *SessionService) Create(ctx context.Context, creds models.SFTPCredentials, meta SessionMetadata) (*models.Session, error) {
	token, err := crypto.GenerateToken(s.tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("session service: generate token: %w", err)
	}

	now := s.now().UTC()
	session := &models.Session{
		Token:       token,
		Credentials: creds.Normalize(),
		ClientIP:    strings.TrimSpace(meta.IPAddress),
		UserAgent:   strings.TrimSpace(meta.UserAgent),
		CreatedAt:   now,
		LastUsedAt:  now,
	}
	if err := s.cache.Set(ctx, session, s.ttl); err != nil {
		return nil, fmt.Errorf("session service: store session: %w", err)
	}
	return session, nil
}

// Touch loads the session for token and upserts it again so its expiry slides forward.
func (s *SessionService) Touch(ctx context.Context, token string) (*models.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSessionInvalidToken
	}

	session, err := s.cache.Get(ctx, token)
	if errors.Is(err, errSessionCacheMiss) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: load session: %w", err)
	}

	session.Touch(s.now().UTC())
	if err := s.cache.Set(ctx, session, s.ttl); err != nil {
		return nil, fmt.Errorf("session service: refresh session: %w", err)
	}
	return session, nil
}

// Revoke deletes the session. Unknown tokens are not an error.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrSessionInvalidToken
	}
	if err := s.cache.Delete(ctx, token); err != nil {
		return fmt.Errorf("session service: revoke session: %w", err)
	}
	return nil
}
