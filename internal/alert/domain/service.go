package domain

import (
	"context"
	"errors"

	billdomain "github.com/atolldev/billscan/internal/bill/domain"
	"github.com/bwmarrin/snowflake"
)

var (
	ErrAlertNotFound   = errors.New("alert not found")
	ErrAlertNotActive  = errors.New("alert is not active")
	ErrAlertNotPending = errors.New("alert is already closed")
)

// DetectInput is everything the detector looks at after a bill lands.
type DetectInput struct {
	Bill       billdomain.Bill
	Previous   *billdomain.Bill
	NewNumbers []string
}

// Service detects and manages spending alerts.
type Service interface {
	// DetectForBill evaluates alert rules for a freshly processed bill.
	// Detection is idempotent: re-running it for the same bill creates
	// nothing new. Notification delivery is best effort.
	DetectForBill(ctx context.Context, input DetectInput) ([]Alert, error)

	List(ctx context.Context, filter ListFilter) ([]Alert, error)
	GetByID(ctx context.Context, id snowflake.ID) (Alert, error)
	CountActive(ctx context.Context, accountID *snowflake.ID) (int64, error)

	Acknowledge(ctx context.Context, id snowflake.ID, by string) (Alert, error)
	Resolve(ctx context.Context, id snowflake.ID, by, notes string) (Alert, error)
	Dismiss(ctx context.Context, id snowflake.ID) (Alert, error)
}

// SeverityFor maps a percentage increase to an alert severity.
func SeverityFor(pctIncrease float64) string {
	switch {
	case pctIncrease >= 50:
		return SeverityCritical
	case pctIncrease >= 30:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}
