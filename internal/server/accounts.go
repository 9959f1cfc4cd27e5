package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	accountdomain "github.com/atolldev/billscan/internal/account/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) ListAccounts(c *gin.Context) {
	accounts, err := s.accountSvc.ListWithStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": accounts})
}

func (s *Server) CreateAccount(c *gin.Context) {
	var input accountdomain.CreateAccountInput
	if err := c.ShouldBindJSON(&input); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", "account_number and account_name are required"))
		return
	}

	account, err := s.accountSvc.Create(c.Request.Context(), input)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": account})
}

func (s *Server) ListRecentAccounts(c *gin.Context) {
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "24"))

	accounts, err := s.accountSvc.Recent(c.Request.Context(), hours)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": accounts})
}

func (s *Server) GetAccount(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	account, err := s.accountSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) UpdateAccount(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var input accountdomain.UpdateAccountInput
	if err := c.ShouldBindJSON(&input); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", "invalid request body"))
		return
	}

	account, err := s.accountSvc.Update(c.Request.Context(), id, input)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) DeleteAccount(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if _, err := s.accountSvc.GetByID(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.accountSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

func (s *Server) AccountMonthlyTotals(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	year, _ := strconv.Atoi(c.DefaultQuery("year", "0"))

	totals, err := s.accountSvc.MonthlyTotals(c.Request.Context(), id, year)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": totals})
}

func (s *Server) AccountMonthlyReport(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	now := time.Now().UTC()
	year, _ := strconv.Atoi(c.DefaultQuery("year", strconv.Itoa(now.Year())))
	month, _ := strconv.Atoi(c.DefaultQuery("month", strconv.Itoa(int(now.Month()))))
	if month < 1 || month > 12 {
		AbortWithError(c, newValidationError("month", "invalid_month", "month must be between 1 and 12"))
		return
	}

	reader, err := s.reportSvc.Monthly(c.Request.Context(), id, year, time.Month(month))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	fileName := strings.ToLower(time.Month(month).String()[:3])
	c.Header("Content-Disposition", `attachment; filename="report-`+strconv.Itoa(year)+`-`+fileName+`.pdf"`)
	c.DataFromReader(http.StatusOK, -1, "application/pdf", reader, nil)
	s.log.Info("monthly report generated",
		zap.Int64("account_id", id.Int64()),
		zap.Int("year", year),
		zap.Int("month", month))
}
