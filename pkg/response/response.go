package response

import (
	"net/http"

	appErrors "github.com/charlesng35/sftpgate/pkg/errors"
	"github.com/gin-gonic/gin"
)

// Response is the envelope used for error payloads.
type Response struct {
	Success bool       `json:"success"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo holds error details to send to clients.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes the payload as the response body without an envelope.
// File endpoints return plain arrays and objects so browser clients can consume them directly.
func JSON(c *gin.Context, statusCode int, payload interface{}) {
	c.JSON(statusCode, payload)
}

// Message writes a single-field {"message": ...} payload.
func Message(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"message": message})
}

// Error writes a JSON error response derived from an AppError.
// Once the response has been committed it only records the error on the context.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	_ = c.Error(appErr)

	if c.Writer.Written() {
		return
	}

	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    appErr.Code,
			Message: appErr.Message,
		},
	})
}
