package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jetstore/store-service/internal/domain/entities"
	domainerrors "github.com/jetstore/store-service/internal/domain/errors"
)

// respondError sends a standardized error response
func respondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// respondBadRequest sends a bad request error
func respondBadRequest(c *gin.Context, message string, details ...map[string]interface{}) {
	var det map[string]interface{}
	if len(details) > 0 {
		det = details[0]
	}
	respondError(c, http.StatusBadRequest, "INVALID_REQUEST", message, det)
}

// respondNotFound sends a not found error
func respondNotFound(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// NotFound handles requests for unknown routes.
func NotFound(c *gin.Context) {
	respondNotFound(c, "route not found")
}

// respondSuccess sends a success response with data
func respondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// respondCreated sends a created response with data
func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// respondDomainError maps domain errors to HTTP responses.
func respondDomainError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case domainerrors.IsNotFound(err):
		status = http.StatusNotFound
	case domainerrors.IsInvalidInput(err),
		errors.Is(err, domainerrors.ErrSelfReferral):
		status = http.StatusBadRequest
	case domainerrors.IsUnauthorized(err):
		status = http.StatusUnauthorized
	case errors.Is(err, domainerrors.ErrInsufficientFunds):
		status = http.StatusConflict
	case errors.Is(err, domainerrors.ErrServiceUnavailable):
		status = http.StatusServiceUnavailable
	}

	code := domainerrors.GetErrorCode(err)
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	respondError(c, status, code, message, domainerrors.GetErrorDetails(err))
}
