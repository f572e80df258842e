package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sftpgate/pkg/response"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck probes one backing dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Health returns a status payload useful for readiness checks. Any failing check
// turns the response into a 503 and is listed by name.
func Health(checks ...HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		failing := map[string]string{}
		for _, check := range checks {
			if check.Check == nil {
				continue
			}
			if err := check.Check(ctx); err != nil {
				failing[check.Name] = err.Error()
			}
		}

		if len(failing) > 0 {
			response.JSON(c, http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": failing})
			return
		}
		response.JSON(c, http.StatusOK, gin.H{"status": "ok"})
	}
}
