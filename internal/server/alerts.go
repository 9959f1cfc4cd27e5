package server

import (
	"net/http"
	"strconv"
	"strings"

	alertdomain "github.com/atolldev/billscan/internal/alert/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListAlerts(c *gin.Context) {
	filter := alertdomain.ListFilter{
		Status:   strings.TrimSpace(c.Query("status")),
		Severity: strings.TrimSpace(c.Query("severity")),
	}

	if raw := strings.TrimSpace(c.Query("account_id")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("account_id", "invalid_id", "invalid account id"))
			return
		}
		filter.ServiceAccountID = &id
	}
	if raw := strings.TrimSpace(c.Query("bill_id")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("bill_id", "invalid_id", "invalid bill id"))
			return
		}
		filter.BillID = &id
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	alerts, err := s.alertSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

func (s *Server) GetAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	alert, err := s.alertSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}

func (s *Server) AcknowledgeAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req struct {
		By string `json:"by" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("by", "required", "by is required"))
		return
	}

	alert, err := s.alertSvc.Acknowledge(c.Request.Context(), id, strings.TrimSpace(req.By))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}

func (s *Server) ResolveAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req struct {
		By    string `json:"by" binding:"required"`
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("by", "required", "by is required"))
		return
	}

	alert, err := s.alertSvc.Resolve(c.Request.Context(), id, strings.TrimSpace(req.By), strings.TrimSpace(req.Notes))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}

func (s *Server) DismissAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	alert, err := s.alertSvc.Dismiss(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}
