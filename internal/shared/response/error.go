package response

import (
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/uniedit/payrecon/internal/shared/errors"
)

// Error writes an application error as the standard error body.
func Error(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.StatusCode, err.ToResponse())
}

// RetryLater writes a retryable error with a Retry-After hint in seconds.
func RetryLater(c *gin.Context, err *apperrors.AppError, seconds int) {
	c.Header("Retry-After", strconv.Itoa(seconds))
	Error(c, err)
}

// BadRequest sends a 400 Bad Request response.
func BadRequest(c *gin.Context, message string) {
	Error(c, apperrors.BadRequest(message))
}

// NotFound sends a 404 Not Found response.
func NotFound(c *gin.Context, resource string) {
	Error(c, apperrors.NotFound(resource))
}
