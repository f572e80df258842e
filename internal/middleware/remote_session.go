package middleware

import (
	stdErrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/sftpgate/internal/auth"
	"github.com/charlesng35/sftpgate/internal/models"
	gatesftp "github.com/charlesng35/sftpgate/internal/sftp"
	"github.com/charlesng35/sftpgate/pkg/errors"
	"github.com/charlesng35/sftpgate/pkg/logger"
	"github.com/charlesng35/sftpgate/pkg/metrics"
	"github.com/charlesng35/sftpgate/pkg/response"
)

const (
	CtxSessionKey      = "remoteSession"
	CtxRemoteClientKey = "remoteClient"

	// DefaultSessionCookieName names the cookie carrying the session token.
	DefaultSessionCookieName = "session_token"
)

// SessionCookie describes the session cookie. It is always HttpOnly and SameSite=Strict.
type SessionCookie struct {
	Name   string
	Secure bool
}

func (s SessionCookie) name() string {
	if s.Name == "" {
		return DefaultSessionCookieName
	}
	return s.Name
}

// Token reads the session token from the request.
func (s SessionCookie) Token(c *gin.Context) (string, bool) {
	token, err := c.Cookie(s.name())
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

// Set writes the cookie with Max-Age equal to ttl.
func (s SessionCookie) Set(c *gin.Context, token string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(s.name(), token, int(ttl.Seconds()), "/", "", s.Secure, true)
}

// Clear expires the cookie on the client.
func (s SessionCookie) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(s.name(), "", -1, "/", "", s.Secure, true)
}

// RemoteSession authenticates the request by its session cookie, slides the session
// expiry, and binds one freshly dialled SFTP connection to the request. The connection
// is closed once the handler chain returns, whatever the outcome.
func RemoteSession(sessions *iauth.SessionService, dialer gatesftp.Dialer, cookie SessionCookie) gin.HandlerFunc {
	log := logger.WithModule("session")

	return func(c *gin.Context) {
		token, ok := cookie.Token(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		session, err := sessions.Touch(c.Request.Context(), token)
		if err != nil {
			if stdErrors.Is(err, iauth.ErrSessionNotFound) || stdErrors.Is(err, iauth.ErrSessionInvalidToken) {
				cookie.Clear(c)
				response.Error(c, errors.ErrSessionExpired)
			} else {
				response.Error(c, errors.ErrInternalServer.WithInternal(err))
			}
			c.Abort()
			return
		}
		cookie.Set(c, token, sessions.TTL())

		conn, err := dialer.Dial(c.Request.Context(), session.Credentials)
		if err != nil {
			log.Warn("sftp dial failed",
				zap.String("request_id", RequestID(c)),
				zap.String("host", session.Credentials.Address()),
				zap.Error(err),
			)
			response.Error(c, errors.ErrBadGateway.WithInternal(err))
			c.Abort()
			return
		}
		metrics.RemoteSessions.Inc()
		defer func() {
			metrics.RemoteSessions.Dec()
			if cerr := conn.Close(); cerr != nil {
				log.Debug("sftp close failed", zap.String("request_id", RequestID(c)), zap.Error(cerr))
			}
		}()

		c.Set(CtxSessionKey, session)
		c.Set(CtxRemoteClientKey, gatesftp.Client(conn))
		c.Next()
	}
}

// RemoteClient returns the SFTP client bound by RemoteSession.
func RemoteClient(c *gin.Context) (gatesftp.Client, bool) {
	value, ok := c.Get(CtxRemoteClientKey)
	if !ok {
		return nil, false
	}
	client, ok := value.(gatesftp.Client)
	return client, ok
}

// CurrentSession returns the session loaded by RemoteSession.
func CurrentSession(c *gin.Context) (*models.Session, bool) {
	value, ok := c.Get(CtxSessionKey)
	if !ok {
		return nil, false
	}
	session, ok := value.(*models.Session)
	return session, ok
}
