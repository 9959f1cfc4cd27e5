package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	accountdomain "github.com/atolldev/billscan/internal/account/domain"
	alertdomain "github.com/atolldev/billscan/internal/alert/domain"
	billdomain "github.com/atolldev/billscan/internal/bill/domain"
	"github.com/atolldev/billscan/internal/ingestion"
	"github.com/atolldev/billscan/internal/providers/extractor"
	numberdomain "github.com/atolldev/billscan/internal/servicenumber/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMapErrorStatusCodes(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		errType string
	}{
		{
			"request validation",
			newValidationError("limit", "invalid_limit", "must be a non-negative integer"),
			http.StatusBadRequest, "validation_error",
		},
		{
			"extraction validation",
			&extractor.ValidationError{Field: "totalDue", Message: "must be a number"},
			http.StatusUnprocessableEntity, "extraction_error",
		},
		{"account missing", accountdomain.ErrAccountNotFound, http.StatusNotFound, "not_found"},
		{"bill missing", billdomain.ErrBillNotFound, http.StatusNotFound, "not_found"},
		{"number missing", numberdomain.ErrServiceNumberNotFound, http.StatusNotFound, "not_found"},
		{"alert missing", alertdomain.ErrAlertNotFound, http.StatusNotFound, "not_found"},
		{
			"wrapped record missing",
			fmt.Errorf("ingestion job abc: %w", gorm.ErrRecordNotFound),
			http.StatusNotFound, "not_found",
		},
		{"account exists", accountdomain.ErrAccountExists, http.StatusConflict, "conflict"},
		{"duplicate bill", billdomain.ErrDuplicateBill, http.StatusConflict, "conflict"},
		{"ingest in flight", ingestion.ErrIngestInFlight, http.StatusConflict, "conflict"},
		{"alert already closed", alertdomain.ErrAlertNotActive, http.StatusConflict, "conflict"},
		{"extractor unconfigured", extractor.ErrNotConfigured, http.StatusServiceUnavailable, "service_unavailable"},
		{
			"pipeline validation",
			&ingestion.PipelineError{Kind: ingestion.KindValidation, Stage: ingestion.StageRendering, Err: errors.New("unreadable")},
			http.StatusUnprocessableEntity, "validation_error",
		},
		{
			"pipeline duplicate",
			&ingestion.PipelineError{Kind: ingestion.KindDuplicate, Stage: ingestion.StagePreScan, Err: errors.New("already ingested")},
			http.StatusConflict, "conflict",
		},
		{
			"pipeline external service",
			&ingestion.PipelineError{Kind: ingestion.KindExternalService, Stage: ingestion.StageExtracting, Err: errors.New("overloaded")},
			http.StatusBadGateway, "external_service_error",
		},
		{
			"pipeline cancelled",
			&ingestion.PipelineError{Kind: ingestion.KindCancelled, Stage: ingestion.StageExtracting, Err: context.Canceled},
			http.StatusGatewayTimeout, "cancelled",
		},
		{
			"pipeline persistence",
			&ingestion.PipelineError{Kind: ingestion.KindPersistence, Stage: ingestion.StagePersisting, Err: errors.New("disk full")},
			http.StatusInternalServerError, "internal_error",
		},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.errType, payload.Type)
		})
	}
}

func TestMapErrorPipelineWrappedExtraction(t *testing.T) {
	// An extraction schema failure keeps its shape through the pipeline wrapper.
	err := &ingestion.PipelineError{
		Kind:  ingestion.KindValidation,
		Stage: ingestion.StageExtracting,
		Err:   &extractor.ValidationError{Field: "confidence", Message: "must be between 0 and 100"},
	}

	status, payload := mapError(err)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "extraction_error", payload.Type)
	assert.Equal(t, "confidence", payload.Errors[0].Field)
}

func TestMapErrorHidesInternalDetail(t *testing.T) {
	_, payload := mapError(errors.New("pq: connection reset"))
	assert.Equal(t, "internal server error", payload.Message)
}
