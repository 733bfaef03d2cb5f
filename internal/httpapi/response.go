package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/septivank/smart-copro/internal/apperr"
	"go.uber.org/zap"
)

const internalErrorMessage = "internal server error"

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// respondError maps a service error to its HTTP status. Unknown and internal
// errors never leak their cause to the caller.
func (s *Server) respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "request timed out"})
			return
		}
		s.loggerFrom(c).Error("unhandled error", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: internalErrorMessage})
		return
	}

	status := appErr.HTTPStatus()
	if status == http.StatusInternalServerError {
		s.loggerFrom(c).Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(status, ErrorResponse{Error: internalErrorMessage})
		return
	}
	c.JSON(status, ErrorResponse{Error: appErr.Message, Field: appErr.Field})
}

// bindJSON decodes the request body. Decoding failures are validation errors.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.Validation("malformed request body")
	}
	return nil
}

// pathID parses the :id path parameter.
func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.FieldValidation("id", "must be a positive integer")
	}
	return id, nil
}

// requestContext bounds the service call of a handler.
func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}
