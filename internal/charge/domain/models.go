// Package domain contains the per-service-number monthly charge ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// MonthlyCharge is one bill's worth of charges for one service number. The
// ledger is keyed on (service_number, bill_id): reprocessing a bill rewrites
// the same row instead of appending a second one.
type MonthlyCharge struct {
	ID                 snowflake.ID  `gorm:"primaryKey" json:"id"`
	ServiceNumberID    snowflake.ID  `gorm:"not null" json:"service_number_id"`
	BillID             snowflake.ID  `gorm:"not null;uniqueIndex:ux_monthly_charges_number_bill" json:"bill_id"`
	LineItemID         *snowflake.ID `json:"line_item_id,omitempty"`
	ServiceNumber      string        `gorm:"type:text;not null;uniqueIndex:ux_monthly_charges_number_bill" json:"service_number"`
	BillingPeriodStart time.Time     `gorm:"type:date;not null" json:"billing_period_start"`
	BillingPeriodEnd   time.Time     `gorm:"type:date;not null" json:"billing_period_end"`
	BillDate           time.Time     `gorm:"type:date;not null" json:"bill_date"`
	SubscriptionCharge float64       `gorm:"type:numeric(12,2);not null;default:0" json:"subscription_charge"`
	UsageCharges       float64       `gorm:"type:numeric(12,2);not null;default:0" json:"usage_charges"`
	OtherCharges       float64       `gorm:"type:numeric(12,2);not null;default:0" json:"other_charges"`
	TotalCharge        float64       `gorm:"type:numeric(12,2);not null;default:0" json:"total_charge"`
	PackageName        *string       `gorm:"type:text" json:"package_name,omitempty"`
	CreatedAt          time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (MonthlyCharge) TableName() string { return "service_number_monthly_charges" }

// RecordResult reports how much of a bill made it into the ledger.
type RecordResult struct {
	Recorded   int      `json:"recorded"`
	Skipped    int      `json:"skipped"`
	Unresolved []string `json:"unresolved,omitempty"`
}

// NumberTotals summarizes a service number's charge history.
type NumberTotals struct {
	ServiceNumber string  `json:"service_number"`
	Months        int64   `json:"months"`
	Total         float64 `json:"total"`
	Average       float64 `json:"average"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
}
