package response

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "github.com/trackmate/server/internal/shared/errors"
)

// ErrorResponse represents a standard error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains the machine-readable kind and human-readable message.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error maps an error to the JSON error shape of the callable surface.
// Unknown errors are reported as internal without leaking their message.
func Error(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.StatusCode, ErrorResponse{
			Error: ErrorBody{Kind: appErr.Kind, Message: appErr.Message},
		})
		return
	}

	internal := apperrors.Internal("", err)
	c.JSON(internal.StatusCode, ErrorResponse{
		Error: ErrorBody{Kind: internal.Kind, Message: internal.Message},
	})
}

// OK sends a success envelope with a human-readable message.
func OK(c *gin.Context, status int, message string, extra gin.H) {
	body := gin.H{"status": "success", "message": message}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}
