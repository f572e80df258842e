package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sftpgate/internal/handlers"
)

func registerAuthRoutes(api *gin.RouterGroup, handler *handlers.AuthHandler) {
	auth := api.Group("/auth")
	{
		auth.POST("/login", handler.Login)
		auth.POST("/logout", handler.Logout)
		auth.GET("/session", handler.Session)
	}
}
