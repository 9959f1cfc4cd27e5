package server

import (
	"net/http"
	"strconv"
	"strings"

	numberdomain "github.com/atolldev/billscan/internal/servicenumber/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListServiceNumbers(c *gin.Context) {
	filter := numberdomain.ListFilter{Search: strings.TrimSpace(c.Query("q"))}

	if raw := strings.TrimSpace(c.Query("account_id")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("account_id", "invalid_id", "invalid account id"))
			return
		}
		filter.ServiceAccountID = &id
	}
	if raw := strings.TrimSpace(c.Query("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			AbortWithError(c, newValidationError("active", "invalid_bool", "must be true or false"))
			return
		}
		filter.ActiveOnly = active
	}

	numbers, err := s.numberSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": numbers})
}

func (s *Server) ListRecentServiceNumbers(c *gin.Context) {
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "24"))

	numbers, err := s.numberSvc.Recent(c.Request.Context(), hours)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": numbers})
}

func (s *Server) GetServiceNumber(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	number, err := s.numberSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": number})
}

func (s *Server) ServiceNumberHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if _, err := s.numberSvc.GetByID(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	history, err := s.chargeSvc.HistoryForNumber(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": history})
}

func (s *Server) ServiceNumberTotals(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if _, err := s.numberSvc.GetByID(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	totals, err := s.chargeSvc.TotalsForNumber(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": totals})
}

func (s *Server) ActivateServiceNumber(c *gin.Context) {
	s.setServiceNumberActive(c, true)
}

func (s *Server) DeactivateServiceNumber(c *gin.Context) {
	s.setServiceNumberActive(c, false)
}

func (s *Server) setServiceNumberActive(c *gin.Context, active bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	number, err := s.numberSvc.SetActive(c.Request.Context(), id, active)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": number})
}

func (s *Server) UpdateServiceNumberNotes(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("notes", "invalid_request", "invalid request body"))
		return
	}

	number, err := s.numberSvc.UpdateNotes(c.Request.Context(), id, req.Notes)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": number})
}
