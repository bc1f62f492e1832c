package response

import (
	"time"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Data      any       `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func SendAPIResponse(c *gin.Context, code int, success bool, message string, data any) {
	resp := APIResponse{
		Success:   success,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now(),
	}

	c.JSON(code, resp)
}

// SendErrorResponse answers with a failed envelope carrying a machine-readable
// error code.
func SendErrorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, APIResponse{
		Success:   false,
		Message:   message,
		Code:      code,
		CreatedAt: time.Now(),
	})
}

// AbortWithError is SendErrorResponse for middleware.
func AbortWithError(c *gin.Context, status int, code, message string) {
	SendErrorResponse(c, status, code, message)
	c.Abort()
}
