package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrServiceNumberNotFound = errors.New("service number not found")

// Service maintains the per-account registry of observed service numbers.
type Service interface {
	// Track reconciles a bill's line items against the registry: unknown
	// numbers are registered, known ones advance their sighting window.
	// last_seen only moves forward in bill-date order, so ingesting an old
	// bill after a newer one never rewinds it.
	Track(ctx context.Context, accountID, billID snowflake.ID, billDate time.Time, items []TrackedItem) (TrackResult, error)

	List(ctx context.Context, filter ListFilter) ([]ServiceNumber, error)
	GetByID(ctx context.Context, id snowflake.ID) (ServiceNumber, error)
	SetActive(ctx context.Context, id snowflake.ID, active bool) (ServiceNumber, error)
	UpdateNotes(ctx context.Context, id snowflake.ID, notes string) (ServiceNumber, error)

	// Recent lists numbers first seen within the given window.
	Recent(ctx context.Context, hours int) ([]ServiceNumber, error)
}
