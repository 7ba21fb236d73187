package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/logger"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates an error response with a fresh correlation ID.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
}

// statusFor maps error categories to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryConflict):
		return http.StatusConflict
	case errors.IsCategory(err, errors.CategoryState):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// handleError logs err and writes an error response.
func (s *Server) handleError(c echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)
	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.String("method", c.Request().Method),
		logger.String("ip", c.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("API error", fields...)
	} else {
		s.log.Warn("API request rejected", fields...)
	}
	return c.JSON(code, resp)
}

// errorHandler renders errors returned by handlers and by echo itself, such
// as unknown routes, in the ErrorResponse format.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	}
	_ = c.JSON(code, NewErrorResponse(err, message, code))
}
