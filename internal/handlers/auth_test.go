package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/sftpgate/internal/auth"
	"github.com/charlesng35/sftpgate/internal/cache"
	"github.com/charlesng35/sftpgate/internal/middleware"
	"github.com/charlesng35/sftpgate/internal/sftp/sftptest"
)

type authFixture struct {
	router   *gin.Engine
	sessions *iauth.SessionService
	dialer   *sftptest.Dialer
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	sessions, err := iauth.NewSessionService(iauth.NewStoreSessionCache(cache.NewMemoryStore()), iauth.SessionConfig{TTL: time.Hour})
	require.NoError(t, err)
	dialer := sftptest.NewDialer(sftptest.NewFS())
	h := NewAuthHandler(sessions, dialer, middleware.SessionCookie{Name: "session_token", Secure: true})

	r := gin.New()
	r.POST("/api/auth/login", h.Login)
	r.POST("/api/auth/logout", h.Logout)
	r.GET("/api/auth/session", h.Session)
	return &authFixture{router: r, sessions: sessions, dialer: dialer}
}

func withCookie(r *gin.Engine, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "session_token", Value: token})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "session_token" {
			return cookie
		}
	}
	t.Fatalf("session cookie not set")
	return nil
}

func TestLoginLogoutFlow(t *testing.T) {
	fx := newAuthFixture(t)

	w := serveJSON(fx.router, http.MethodPost, "/api/auth/login", gin.H{
		"host": "files.example.com", "username": "alice", "password": "pw",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"message":"Logged in"}`, w.Body.String())

	cookie := sessionCookie(t, w)
	require.True(t, cookie.HttpOnly)
	require.True(t, cookie.Secure)
	require.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	require.Equal(t, 3600, cookie.MaxAge)
	require.GreaterOrEqual(t, len(cookie.Value), 43)

	dials := fx.dialer.Dials()
	require.Len(t, dials, 1)
	require.Equal(t, 22, dials[0].Port)
	require.Zero(t, fx.dialer.Open(), "the login probe connection is closed")

	session, err := fx.sessions.Touch(context.Background(), cookie.Value)
	require.NoError(t, err)
	require.Equal(t, "alice", session.Credentials.Username)

	w = withCookie(fx.router, http.MethodGet, "/api/auth/session", cookie.Value)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"host":"files.example.com","port":22,"username":"alice"}`, w.Body.String())

	w = withCookie(fx.router, http.MethodPost, "/api/auth/logout", cookie.Value)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"message":"Logged out"}`, w.Body.String())
	require.Negative(t, sessionCookie(t, w).MaxAge)

	_, err = fx.sessions.Touch(context.Background(), cookie.Value)
	require.ErrorIs(t, err, iauth.ErrSessionNotFound)

	w = withCookie(fx.router, http.MethodGet, "/api/auth/session", cookie.Value)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "SESSION_EXPIRED", errorCode(t, w))
}

func TestLoginDialFailure(t *testing.T) {
	fx := newAuthFixture(t)
	fx.dialer.Err = errors.New("ssh: unable to authenticate")

	w := serveJSON(fx.router, http.MethodPost, "/api/auth/login", gin.H{
		"host": "files.example.com", "port": 2222, "username": "alice", "password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "Connection failed")
	require.Empty(t, w.Result().Cookies())
}

func TestLoginValidation(t *testing.T) {
	fx := newAuthFixture(t)

	cases := []gin.H{
		{"username": "alice", "password": "pw"},
		{"host": "files.example.com", "password": "pw"},
		{"host": "files.example.com", "username": "alice"},
		{"host": "files.example.com", "username": "alice", "password": "pw", "port": 70000},
		{"host": "not a host!", "username": "alice", "password": "pw"},
	}
	for _, payload := range cases {
		w := serveJSON(fx.router, http.MethodPost, "/api/auth/login", payload)
		require.Equal(t, http.StatusBadRequest, w.Code, "%v", payload)
	}
	require.Empty(t, fx.dialer.Dials())
}

func TestLogoutWithoutCookie(t *testing.T) {
	fx := newAuthFixture(t)

	w := withCookie(fx.router, http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = withCookie(fx.router, http.MethodGet, "/api/auth/session", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
