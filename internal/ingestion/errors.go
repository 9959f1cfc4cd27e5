package ingestion

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds, recorded on failed jobs and used by the HTTP layer to pick a
// status code.
const (
	KindValidation      = "validation"
	KindDuplicate       = "duplicate"
	KindExternalService = "external_service"
	KindPersistence     = "persistence"
	KindPostProcessing  = "post_processing"
	KindCancelled       = "cancelled"
)

// ErrIngestInFlight means another worker holds the ingestion lock for the
// same document.
var ErrIngestInFlight = errors.New("document is already being processed")

// PipelineError wraps a stage failure with its classification.
type PipelineError struct {
	Kind  string
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("ingestion %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func pipelineErr(kind, stage string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Err: err}
}

// KindOf extracts the classification from an error chain, defaulting to
// persistence for unclassified failures. Cancellation wins over whatever
// stage classification it happened to surface through.
func KindOf(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindPersistence
}
