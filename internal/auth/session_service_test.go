package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sftpgate/internal/cache"
	"github.com/charlesng35/sftpgate/internal/database/testutil"
	"github.com/charlesng35/sftpgate/internal/models"
)

func testCreds() models.SFTPCredentials {
	return models.SFTPCredentials{Host: " files.example.com ", Username: "alice", Password: "s3cret"}
}

func TestSessionServiceLifecycle(t *testing.T) {
	store := cache.NewMemoryStore()
	svc, err := NewSessionService(NewStoreSessionCache(store), SessionConfig{})
	require.NoError(t, err)
	require.Equal(t, DefaultSessionTTL, svc.TTL())
	ctx := context.Background()

	session, err := svc.Create(ctx, testCreds(), SessionMetadata{IPAddress: "10.0.0.1", UserAgent: "curl"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(session.Token), 43, "32 random bytes encode to at least 43 chars")
	require.Equal(t, "files.example.com", session.Credentials.Host)
	require.Equal(t, models.DefaultSFTPPort, session.Credentials.Port)

	raw, ok, err := store.Get(ctx, "session:"+session.Token)
	require.NoError(t, err)
	require.True(t, ok)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(raw, &stored))
	require.NotContains(t, stored, "token")
	require.Contains(t, stored, "credentials")

	loaded, err := svc.Touch(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, session.Token, loaded.Token)
	require.Equal(t, "alice", loaded.Credentials.Username)

	require.NoError(t, svc.Revoke(ctx, session.Token))
	_, err = svc.Touch(ctx, session.Token)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionServiceTokensAreUnique(t *testing.T) {
	svc, err := NewSessionService(NewStoreSessionCache(cache.NewMemoryStore()), SessionConfig{})
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		session, err := svc.Create(context.Background(), testCreds(), SessionMetadata{})
		require.NoError(t, err)
		require.False(t, seen[session.Token])
		seen[session.Token] = true
	}
}

type recordingCache struct {
	SessionCache
	ttls []time.Duration
	err  error
}

func (r *recordingCache) Set(ctx context.Context, session *models.Session, ttl time.Duration) error {
	r.ttls = append(r.ttls, ttl)
	if r.err != nil {
		return r.err
	}
	return r.SessionCache.Set(ctx, session, ttl)
}

func TestSessionServiceTouchSlidesExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := &recordingCache{SessionCache: NewStoreSessionCache(cache.NewMemoryStore())}
	svc, err := NewSessionService(rec, SessionConfig{TTL: 15 * time.Minute, Clock: func() time.Time { return now }})
	require.NoError(t, err)

	session, err := svc.Create(context.Background(), testCreds(), SessionMetadata{})
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	touched, err := svc.Touch(context.Background(), session.Token)
	require.NoError(t, err)
	require.Equal(t, now, touched.LastUsedAt)
	require.Equal(t, session.CreatedAt, touched.CreatedAt)
	require.Equal(t, []time.Duration{15 * time.Minute, 15 * time.Minute}, rec.ttls)
}

func TestSessionServiceStoreFailures(t *testing.T) {
	rec := &recordingCache{SessionCache: NewStoreSessionCache(cache.NewMemoryStore()), err: errors.New("store down")}
	svc, err := NewSessionService(rec, SessionConfig{})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), testCreds(), SessionMetadata{})
	require.ErrorContains(t, err, "store down")

	_, err = svc.Touch(context.Background(), "  ")
	require.ErrorIs(t, err, ErrSessionInvalidToken)
	require.ErrorIs(t, svc.Revoke(context.Background(), ""), ErrSessionInvalidToken)

	_, err = NewSessionService(nil, SessionConfig{})
	require.Error(t, err)
}

func TestSessionServiceWithDatabaseStore(t *testing.T) {
	store := cache.NewDatabaseStore(testutil.MustOpenTestDB(t))
	svc, err := NewSessionService(NewStoreSessionCache(store), SessionConfig{TTL: time.Hour})
	require.NoError(t, err)

	session, err := svc.Create(context.Background(), testCreds(), SessionMetadata{})
	require.NoError(t, err)

	loaded, err := svc.Touch(context.Background(), session.Token)
	require.NoError(t, err)
	require.Equal(t, "s3cret", loaded.Credentials.Password)
}
