// Package domain contains persistence models for tracked service numbers.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ServiceNumber is one phone or circuit number observed on an account's
// bills. Numbers are unique per account; the same number may legitimately
// appear under different accounts.
type ServiceNumber struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	ServiceAccountID snowflake.ID  `gorm:"not null;uniqueIndex:ux_service_numbers_account_number" json:"service_account_id"`
	ServiceNumber    string        `gorm:"type:text;not null;uniqueIndex:ux_service_numbers_account_number" json:"service_number"`
	PackageName      *string       `gorm:"type:text" json:"package_name,omitempty"`
	FirstSeenBillID  *snowflake.ID `json:"first_seen_bill_id,omitempty"`
	FirstSeenDate    *time.Time    `gorm:"type:date" json:"first_seen_date,omitempty"`
	LastSeenBillID   *snowflake.ID `json:"last_seen_bill_id,omitempty"`
	LastSeenDate     *time.Time    `gorm:"type:date" json:"last_seen_date,omitempty"`
	IsActive         bool          `gorm:"not null;default:true" json:"is_active"`
	Notes            *string       `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ServiceNumber) TableName() string { return "service_numbers" }

// TrackedItem is one line item to reconcile against the registry.
type TrackedItem struct {
	ServiceNumber string
	PackageName   *string
}

// TrackResult reports what a bill's line items did to the registry.
type TrackResult struct {
	Tracked    int      `json:"tracked"`
	NewNumbers []string `json:"new_numbers"`
}

// ListFilter narrows service number listings.
type ListFilter struct {
	ServiceAccountID *snowflake.ID
	ActiveOnly       bool
	Search           string
}
