// Package handlers implements the HTTP handlers of the evaluation API.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/tscv-go/internal/database"
	"github.com/irfndi/tscv-go/internal/middleware"
	"github.com/irfndi/tscv-go/internal/utils"
)

// Error codes returned in the "code" field of error responses.
const (
	CodeValidation   = "validation_error"
	CodePrecondition = "precondition_failed"
	CodeConsistency  = "consistency_error"
	CodeNotFound     = "not_found"
	CodeUnavailable  = "unavailable"
	CodeInternal     = "internal_error"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps an error to its HTTP status and response code.
func statusFor(err error) (int, string) {
	switch {
	case utils.IsValidation(err):
		return http.StatusBadRequest, CodeValidation
	case utils.IsPrecondition(err):
		return http.StatusUnprocessableEntity, CodePrecondition
	case utils.IsConsistency(err):
		return http.StatusInternalServerError, CodeConsistency
	case errors.Is(err, database.ErrRunNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// respondError writes the error response, records it on the request span
// and logs server-side failures.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status, code := statusFor(err)
	middleware.RecordError(c, err, code)

	message := err.Error()
	if code == CodeInternal {
		logger.WithFields(logrus.Fields{
			"path":  c.Request.URL.Path,
			"error": err.Error(),
		}).Error("Request failed")
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Code: code})
}

func respondUnavailable(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: message, Code: CodeUnavailable})
}
