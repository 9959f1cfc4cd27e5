// Package domain contains persistence models for bills and their line items.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Processing status lifecycle for a bill.
const (
	StatusPending        = "pending"
	StatusProcessing     = "processing"
	StatusCompleted      = "completed"
	StatusReviewRequired = "review_required"
	StatusFailed         = "failed"
)

// DuplicateReason names which signal flagged an upload as a duplicate.
// Precedence when several match: invoice number, then file hash, then
// billing period.
type DuplicateReason string

const (
	DuplicateInvoiceNumber DuplicateReason = "invoice_number"
	DuplicateFileHash      DuplicateReason = "file_hash"
	DuplicateBillingPeriod DuplicateReason = "billing_period"
)

// Bill is one processed billing document.
type Bill struct {
	ID                   snowflake.ID   `gorm:"primaryKey" json:"id"`
	ServiceAccountID     *snowflake.ID  `gorm:"index:ix_bills_account" json:"service_account_id,omitempty"`
	InvoiceNumber        string         `gorm:"type:text;not null;uniqueIndex:ux_bills_invoice_number" json:"invoice_number"`
	AccountNumber        string         `gorm:"type:text;not null" json:"account_number"`
	BillingPeriodStart   time.Time      `gorm:"type:date;not null" json:"billing_period_start"`
	BillingPeriodEnd     time.Time      `gorm:"type:date;not null" json:"billing_period_end"`
	BillDate             time.Time      `gorm:"type:date;not null" json:"bill_date"`
	DueDate              *time.Time     `gorm:"type:date" json:"due_date,omitempty"`
	CurrentCharges       float64        `gorm:"type:numeric(12,2);not null;default:0" json:"current_charges"`
	OutstandingAmount    float64        `gorm:"type:numeric(12,2);not null;default:0" json:"outstanding_amount"`
	GSTAmount            float64        `gorm:"type:numeric(12,2);not null;default:0" json:"gst_amount"`
	TotalDue             float64        `gorm:"type:numeric(12,2);not null;default:0" json:"total_due"`
	FileHash             string         `gorm:"type:text;not null;index:ix_bills_file_hash" json:"file_hash"`
	FilePath             string         `gorm:"type:text;not null" json:"-"`
	FileName             string         `gorm:"type:text;not null;index:ix_bills_file_name" json:"file_name"`
	FileSizeBytes        *int64         `json:"file_size_bytes,omitempty"`
	ProcessingStatus     string         `gorm:"type:text;not null;default:pending" json:"processing_status"`
	ExtractionConfidence *int           `json:"extraction_confidence,omitempty"`
	ExtractedData        datatypes.JSON `gorm:"type:text" json:"extracted_data,omitempty"`
	RequiresReview       bool           `gorm:"not null;default:false" json:"requires_review"`
	IsVerified           bool           `gorm:"not null;default:false" json:"is_verified"`
	ProcessedAt          *time.Time     `json:"processed_at,omitempty"`
	CreatedAt            time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	LineItems []LineItem `gorm:"foreignKey:BillID" json:"line_items,omitempty"`
}

// TableName sets the database table name.
func (Bill) TableName() string { return "bills" }

// LineItem is one billed service on a bill.
type LineItem struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	BillID             snowflake.ID `gorm:"not null;index:ix_line_items_bill" json:"bill_id"`
	ServiceNumber      string       `gorm:"type:text;not null" json:"service_number"`
	PackageName        *string      `gorm:"type:text" json:"package_name,omitempty"`
	SubscriptionCharge float64      `gorm:"type:numeric(12,2);not null;default:0" json:"subscription_charge"`
	UsageCharges       float64      `gorm:"type:numeric(12,2);not null;default:0" json:"usage_charges"`
	OtherCharges       float64      `gorm:"type:numeric(12,2);not null;default:0" json:"other_charges"`
	TotalCharge        float64      `gorm:"type:numeric(12,2);not null;default:0" json:"total_charge"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (LineItem) TableName() string { return "line_items" }

// DuplicateCheck is the outcome of duplicate detection against stored bills.
type DuplicateCheck struct {
	IsDuplicate bool            `json:"is_duplicate"`
	Reason      DuplicateReason `json:"reason,omitempty"`
	Existing    *Bill           `json:"existing,omitempty"`
}

// BillSummary is the list-view projection of a bill.
type BillSummary struct {
	Bill
	AccountName   string `json:"account_name"`
	LineItemCount int64  `json:"line_item_count"`
	AlertCount    int64  `json:"alert_count"`
}

// ServiceChange is one line-item delta between two bills.
type ServiceChange struct {
	ServiceNumber  string  `json:"service_number"`
	PreviousCharge float64 `json:"previous_charge"`
	CurrentCharge  float64 `json:"current_charge"`
	Delta          float64 `json:"delta"`
	PctChange      float64 `json:"pct_change"`
}

// BillComparison lines a bill up against the account's previous one.
type BillComparison struct {
	Current         Bill            `json:"current"`
	Previous        *Bill           `json:"previous,omitempty"`
	TotalDelta      float64         `json:"total_delta"`
	PctChange       float64         `json:"pct_change"`
	NewServices     []ServiceChange `json:"new_services"`
	RemovedServices []ServiceChange `json:"removed_services"`
	ChangedServices []ServiceChange `json:"changed_services"`
}

// ListFilter narrows bill listings.
type ListFilter struct {
	ServiceAccountID *snowflake.ID
	Status           string
	RequiresReview   *bool
	Limit            int
}
