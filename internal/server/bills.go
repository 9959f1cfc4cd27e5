package server

import (
	"net/http"
	"strconv"
	"strings"

	billdomain "github.com/atolldev/billscan/internal/bill/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func parseID(c *gin.Context, param string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(param)))
	if err != nil {
		AbortWithError(c, newValidationError(param, "invalid_id", "invalid id"))
		return 0, false
	}
	return id, true
}

func billFilterFromQuery(c *gin.Context) (billdomain.ListFilter, error) {
	filter := billdomain.ListFilter{Status: strings.TrimSpace(c.Query("status"))}

	if raw := strings.TrimSpace(c.Query("account_id")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return billdomain.ListFilter{}, newValidationError("account_id", "invalid_id", "invalid account id")
		}
		filter.ServiceAccountID = &id
	}
	if raw := strings.TrimSpace(c.Query("requires_review")); raw != "" {
		review, err := strconv.ParseBool(raw)
		if err != nil {
			return billdomain.ListFilter{}, newValidationError("requires_review", "invalid_bool", "must be true or false")
		}
		filter.RequiresReview = &review
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return billdomain.ListFilter{}, newValidationError("limit", "invalid_limit", "must be a non-negative integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}

func (s *Server) ListBills(c *gin.Context) {
	filter, err := billFilterFromQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summaries, err := s.billSvc.Summaries(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summaries})
}

func (s *Server) ListBillsRequiringReview(c *gin.Context) {
	bills, err := s.billSvc.RequiringReview(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bills})
}

func (s *Server) ListRecentBills(c *gin.Context) {
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "24"))

	bills, err := s.billSvc.Recent(c.Request.Context(), hours)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bills})
}

func (s *Server) GetBill(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	bill, err := s.billSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	items, err := s.billSvc.LineItems(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	bill.LineItems = items

	c.JSON(http.StatusOK, gin.H{"data": bill})
}

func (s *Server) ListBillLineItems(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	items, err := s.billSvc.LineItems(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CompareBill(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	comparison, err := s.billSvc.Compare(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": comparison})
}

func (s *Server) VerifyBill(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	bill, err := s.billSvc.Verify(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bill})
}

func (s *Server) LinkBill(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req struct {
		AccountID string `json:"account_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("account_id", "required", "account_id is required"))
		return
	}
	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil {
		AbortWithError(c, newValidationError("account_id", "invalid_id", "invalid account id"))
		return
	}

	if _, err := s.accountSvc.GetByID(c.Request.Context(), accountID); err != nil {
		AbortWithError(c, err)
		return
	}
	bill, err := s.billSvc.LinkToAccount(c.Request.Context(), id, accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bill})
}

func (s *Server) DeleteBill(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := s.billSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}
