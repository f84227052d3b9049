package middleware

import "github.com/gin-gonic/gin"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the JSON shape of every API response.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// Success writes a success envelope.
func Success(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
		TraceID: GetTraceID(c),
	})
}

// Fail writes an error envelope without aborting the chain.
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, Envelope{
		Status:  StatusError,
		Message: message,
		TraceID: GetTraceID(c),
	})
}

// AbortWithError writes an error envelope and stops the handler chain.
func AbortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Envelope{
		Status:  StatusError,
		Message: message,
		TraceID: GetTraceID(c),
	})
}
