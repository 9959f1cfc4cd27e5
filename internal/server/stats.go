package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type dashboardStats struct {
	TotalAccounts     int64   `json:"total_accounts"`
	TotalBills        int64   `json:"total_bills"`
	BillsInReview     int64   `json:"bills_in_review"`
	ActiveAlerts      int64   `json:"active_alerts"`
	TotalSpending     float64 `json:"total_spending"`
	CurrentMonthSpend float64 `json:"current_month_spend"`
	TrackedNumbers    int64   `json:"tracked_numbers"`
}

func (s *Server) DashboardStats(c *gin.Context) {
	ctx := c.Request.Context()
	var stats dashboardStats

	queries := []struct {
		dest *int64
		sql  string
	}{
		{&stats.TotalAccounts, `SELECT COUNT(*) FROM service_accounts WHERE is_active = TRUE`},
		{&stats.TotalBills, `SELECT COUNT(*) FROM bills WHERE processing_status IN ('completed', 'review_required')`},
		{&stats.BillsInReview, `SELECT COUNT(*) FROM bills WHERE requires_review = TRUE`},
		{&stats.ActiveAlerts, `SELECT COUNT(*) FROM alerts WHERE status = 'active'`},
		{&stats.TrackedNumbers, `SELECT COUNT(*) FROM service_numbers WHERE is_active = TRUE`},
	}
	for _, q := range queries {
		if err := s.db.WithContext(ctx).Raw(q.sql).Scan(q.dest).Error; err != nil {
			AbortWithError(c, err)
			return
		}
	}

	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(total_due), 0) FROM bills WHERE processing_status = 'completed'`,
	).Scan(&stats.TotalSpending).Error
	if err != nil {
		AbortWithError(c, err)
		return
	}

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	err = s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(total_due), 0) FROM bills
		 WHERE processing_status = 'completed'
		   AND billing_period_start >= ? AND billing_period_start < ?`,
		monthStart, monthStart.AddDate(0, 1, 0),
	).Scan(&stats.CurrentMonthSpend).Error
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
