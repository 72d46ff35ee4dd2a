// Package handlers provides HTTP handler implementations for the public API.
//
// Every endpoint speaks the same envelope dialect: successes are plain JSON
// bodies, failures are ErrorResponse values with a stable machine-readable
// code (errors.go) plus the correlation ID so a client report can be matched
// to server logs.
//
// Example failure:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "resource not found"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/limva/limva-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope shared by every endpoint. Code is one
// of the constants in errors.go; Message is safe to show to students.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// fail aborts the request with the standard envelope. Responses at 500 and
// above are additionally logged through the request-scoped logger so upstream
// AI failures leave a trace beside the access log entry.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail exposes the envelope writer to the router package for NoRoute and
// NoMethod handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
