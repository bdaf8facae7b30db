package response

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Envelope is the body of every JSON answer.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Envelope{Success: true, Data: data})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, Envelope{Error: &ErrorBody{Code: code, Message: message}})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, Envelope{Error: &ErrorBody{Code: code, Message: message, Details: details}})
}

// Abort writes the error envelope and stops the handler chain.
func Abort(c *gin.Context, statusCode int, code string, message string) {
	c.AbortWithStatusJSON(statusCode, Envelope{Error: &ErrorBody{Code: code, Message: message}})
}

// Unavailable answers 503 with a Retry-After hint in whole seconds.
func Unavailable(c *gin.Context, code string, message string, retryAfter time.Duration) {
	secs := max(1, int(retryAfter/time.Second))
	c.Header("Retry-After", strconv.Itoa(secs))
	Error(c, http.StatusServiceUnavailable, code, message)
}
