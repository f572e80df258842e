package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/sftpgate/internal/app"
	iauth "github.com/charlesng35/sftpgate/internal/auth"
	"github.com/charlesng35/sftpgate/internal/handlers"
	"github.com/charlesng35/sftpgate/internal/middleware"
	gatesftp "github.com/charlesng35/sftpgate/internal/sftp"
)

// Dependencies are the services the router wires into handlers.
type Dependencies struct {
	Sessions     *iauth.SessionService
	Dialer       gatesftp.Dialer
	RateStore    middleware.RateStore
	HealthChecks []handlers.HealthCheck
}

// NewRouter builds the Gin engine, wires middleware and registers routes under /api
// plus the operational /health and /metrics endpoints.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}
	if deps.Dialer == nil {
		return nil, fmt.Errorf("sftp dialer must be provided")
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins))

	registerHealthRoutes(r, cfg, deps.HealthChecks)
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	api.Use(middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))

	cookie := middleware.SessionCookie{Name: cfg.Session.CookieName, Secure: cfg.Session.CookieSecure}

	registerAuthRoutes(api, handlers.NewAuthHandler(deps.Sessions, deps.Dialer, cookie))
	registerFileRoutes(api,
		handlers.NewFileHandler(cfg.Transfer.ArchiveOptions()),
		middleware.RemoteSession(deps.Sessions, deps.Dialer, cookie),
	)

	r.NoRoute(middleware.NotFoundHandler)
	r.NoMethod(middleware.MethodNotAllowedHandler)

	return r, nil
}
