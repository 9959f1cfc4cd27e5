// Package domain contains persistence models for spending alerts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Alert types. The (bill_id, alert_type) unique constraint makes detection
// at-most-once per bill regardless of how many times it is reprocessed.
const (
	TypeHighCharge  = "high_charge"
	TypeNewLineItem = "new_line_item"
)

// Severities, in descending order of urgency.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Alert lifecycle states.
const (
	StatusActive       = "active"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
	StatusDismissed    = "dismissed"
)

// Alert flags something on a processed bill that needs a human's attention.
type Alert struct {
	ID                 snowflake.ID   `gorm:"primaryKey" json:"id"`
	BillID             snowflake.ID   `gorm:"not null;uniqueIndex:ux_alerts_bill_type" json:"bill_id"`
	ServiceAccountID   snowflake.ID   `gorm:"not null;index:ix_alerts_account_status" json:"service_account_id"`
	AlertType          string         `gorm:"type:text;not null;uniqueIndex:ux_alerts_bill_type" json:"alert_type"`
	Severity           string         `gorm:"type:text;not null" json:"severity"`
	Status             string         `gorm:"type:text;not null;default:active;index:ix_alerts_account_status" json:"status"`
	CurrentAmount      *float64       `gorm:"type:numeric(12,2)" json:"current_amount,omitempty"`
	PreviousAmount     *float64       `gorm:"type:numeric(12,2)" json:"previous_amount,omitempty"`
	PercentageIncrease *float64       `gorm:"type:numeric(8,2)" json:"percentage_increase,omitempty"`
	ThresholdExceeded  *float64       `gorm:"type:numeric(8,2)" json:"threshold_exceeded,omitempty"`
	Title              string         `gorm:"type:text;not null" json:"title"`
	Description        *string        `gorm:"type:text" json:"description,omitempty"`
	Metadata           datatypes.JSON `gorm:"type:text" json:"metadata,omitempty"`
	AcknowledgedAt     *time.Time     `json:"acknowledged_at,omitempty"`
	AcknowledgedBy     *string        `gorm:"type:text" json:"acknowledged_by,omitempty"`
	ResolvedAt         *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy         *string        `gorm:"type:text" json:"resolved_by,omitempty"`
	ResolutionNotes    *string        `gorm:"type:text" json:"resolution_notes,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Alert) TableName() string { return "alerts" }

// ListFilter narrows alert listings.
type ListFilter struct {
	ServiceAccountID *snowflake.ID
	BillID           *snowflake.ID
	Status           string
	Severity         string
	Limit            int
}
