package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/sftpgate/internal/auth"
	"github.com/charlesng35/sftpgate/internal/middleware"
	"github.com/charlesng35/sftpgate/internal/models"
	gatesftp "github.com/charlesng35/sftpgate/internal/sftp"
	apperrors "github.com/charlesng35/sftpgate/pkg/errors"
	"github.com/charlesng35/sftpgate/pkg/logger"
	"github.com/charlesng35/sftpgate/pkg/metrics"
	"github.com/charlesng35/sftpgate/pkg/response"
)

// AuthHandler manages credential sessions (login/logout/session).
type AuthHandler struct {
	sessions *iauth.SessionService
	dialer   gatesftp.Dialer
	cookie   middleware.SessionCookie
}

func NewAuthHandler(sessions *iauth.SessionService, dialer gatesftp.Dialer, cookie middleware.SessionCookie) *AuthHandler {
	return &AuthHandler{sessions: sessions, dialer: dialer, cookie: cookie}
}

type sessionInfoResponse struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var creds models.SFTPCredentials
	if !bindAndValidate(c, &creds) {
		return
	}
	creds = creds.Normalize()

	conn, err := h.dialer.Dial(c.Request.Context(), creds)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		logger.WithModule("auth").Info("login failed",
			zap.String("host", creds.Address()),
			zap.String("username", creds.Username),
			zap.Error(err),
		)
		response.Error(c, apperrors.ErrInvalidCredentials.WithMessage("Connection failed: "+err.Error()).WithInternal(err))
		return
	}
	_ = conn.Close()

	session, err := h.sessions.Create(c.Request.Context(), creds, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	h.cookie.Set(c, session.Token, h.sessions.TTL())
	metrics.AuthAttempts.WithLabelValues("success").Inc()
	response.Message(c, http.StatusOK, "Logged in")
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	token, ok := h.cookie.Token(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	if err := h.sessions.Revoke(c.Request.Context(), token); err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	h.cookie.Clear(c)
	response.Message(c, http.StatusOK, "Logged out")
}

// GET /api/auth/session reports who the cookie belongs to and slides its expiry
// without dialling the remote server.
func (h *AuthHandler) Session(c *gin.Context) {
	token, ok := h.cookie.Token(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	session, err := h.sessions.Touch(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, iauth.ErrSessionNotFound) || errors.Is(err, iauth.ErrSessionInvalidToken) {
			h.cookie.Clear(c)
			response.Error(c, apperrors.ErrSessionExpired)
			return
		}
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	h.cookie.Set(c, token, h.sessions.TTL())
	response.JSON(c, http.StatusOK, sessionInfoResponse{
		Host:     session.Credentials.Host,
		Port:     session.Credentials.Port,
		Username: session.Credentials.Username,
	})
}
