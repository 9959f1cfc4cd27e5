package server

import (
	"errors"
	"net/http"

	accountdomain "github.com/atolldev/billscan/internal/account/domain"
	alertdomain "github.com/atolldev/billscan/internal/alert/domain"
	billdomain "github.com/atolldev/billscan/internal/bill/domain"
	"github.com/atolldev/billscan/internal/ingestion"
	"github.com/atolldev/billscan/internal/providers/extractor"
	numberdomain "github.com/atolldev/billscan/internal/servicenumber/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{Field: field, Code: code, Message: message},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	var vErrs *ValidationErrors
	if errors.As(err, &vErrs) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErrs.Errors,
		}
	}

	var extrErr *extractor.ValidationError
	if errors.As(err, &extrErr) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "extraction_error",
			Message: extrErr.Error(),
			Errors: []ValidationError{
				{Field: extrErr.Field, Code: "invalid_extraction", Message: extrErr.Message},
			},
		}
	}

	switch {
	case errors.Is(err, accountdomain.ErrAccountNotFound),
		errors.Is(err, billdomain.ErrBillNotFound),
		errors.Is(err, numberdomain.ErrServiceNumberNotFound),
		errors.Is(err, alertdomain.ErrAlertNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}

	case errors.Is(err, accountdomain.ErrAccountExists),
		errors.Is(err, billdomain.ErrDuplicateBill),
		errors.Is(err, ingestion.ErrIngestInFlight),
		errors.Is(err, alertdomain.ErrAlertNotActive),
		errors.Is(err, alertdomain.ErrAlertNotPending):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}

	case errors.Is(err, extractor.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: err.Error()}
	}

	var perr *ingestion.PipelineError
	if errors.As(err, &perr) {
		switch perr.Kind {
		case ingestion.KindValidation:
			return http.StatusUnprocessableEntity, errorPayload{Type: "validation_error", Message: perr.Error()}
		case ingestion.KindDuplicate:
			return http.StatusConflict, errorPayload{Type: "conflict", Message: perr.Error()}
		case ingestion.KindExternalService:
			return http.StatusBadGateway, errorPayload{Type: "external_service_error", Message: perr.Error()}
		case ingestion.KindCancelled:
			return http.StatusGatewayTimeout, errorPayload{Type: "cancelled", Message: perr.Error()}
		}
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: perr.Error()}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}
