package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sftpgate/internal/handlers"
)

// registerFileRoutes mounts the file API. remoteSession binds one SFTP connection to
// each request before the handler runs.
func registerFileRoutes(api *gin.RouterGroup, handler *handlers.FileHandler, remoteSession gin.HandlerFunc) {
	files := api.Group("/files", remoteSession)
	{
		files.GET("/", handler.List)
		files.GET("/meta/", handler.ListMeta)
		files.GET("/stat/", handler.Stat)
		files.GET("/download/", handler.Download)
		files.POST("/upload/", handler.Upload)
		files.DELETE("/delete/", handler.Delete)
		files.PATCH("/rename/", handler.Rename)
		files.POST("/mkdir/", handler.Mkdir)
	}
}
