// Package domain contains persistence models for service accounts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ServiceAccount represents a billed ISP account.
type ServiceAccount struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountNumber  string       `gorm:"type:text;not null;uniqueIndex:ux_service_accounts_number" json:"account_number"`
	AccountName    string       `gorm:"type:text;not null" json:"account_name"`
	Provider       string       `gorm:"type:text;not null" json:"provider"`
	Description    *string      `gorm:"type:text" json:"description,omitempty"`
	AutoRegistered bool         `gorm:"not null;default:false" json:"auto_registered"`
	IsActive       bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ServiceAccount) TableName() string { return "service_accounts" }

// AccountStats carries aggregates shown on the accounts overview.
type AccountStats struct {
	ServiceAccount
	TotalBills         int64      `json:"total_bills"`
	TotalSpending      float64    `json:"total_spending"`
	AvgBillAmount      float64    `json:"avg_bill_amount"`
	LatestBillDate     *time.Time `json:"latest_bill_date,omitempty"`
	ActiveAlerts       int64      `json:"active_alerts"`
	CurrentMonthTotal  float64    `json:"current_month_total"`
	PreviousMonthTotal float64    `json:"previous_month_total"`
}

// MonthlyTotal is one month of completed-bill spend for an account.
type MonthlyTotal struct {
	Month     int     `json:"month"`
	MonthName string  `json:"month_name"`
	Total     float64 `json:"total"`
}

type CreateAccountInput struct {
	AccountNumber string  `json:"account_number" binding:"required"`
	AccountName   string  `json:"account_name" binding:"required"`
	Provider      string  `json:"provider"`
	Description   *string `json:"description"`
}

type UpdateAccountInput struct {
	AccountName *string `json:"account_name"`
	Provider    *string `json:"provider"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}
