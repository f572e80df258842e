package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sftpgate/internal/app"
	"github.com/charlesng35/sftpgate/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, checks []handlers.HealthCheck) {
	if !cfg.Monitoring.Health.Enabled {
		return
	}
	health := handlers.Health(checks...)
	r.GET("/health", health)
	r.GET("/api/health", health)
}
