package server

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/atolldev/billscan/internal/ingestion"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UploadRateLimit throttles upload endpoints per client IP. Limiter failures
// fail open: a broken Redis must not block ingestion.
func (s *Server) UploadRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		res, err := s.limiter.AllowUpload(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.Warn("upload rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
				Type:    "rate_limited",
				Message: "too many uploads, slow down",
			}})
			return
		}
		c.Next()
	}
}

func (s *Server) readUpload(c *gin.Context) (string, []byte, bool) {
	file, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "required", "a file upload is required"))
		return "", nil, false
	}
	if file.Size > s.cfg.MaxUploadBytes {
		AbortWithError(c, newValidationError("file", "too_large", "file exceeds the upload size limit"))
		return "", nil, false
	}
	if ext := strings.ToLower(filepath.Ext(file.Filename)); ext != ".pdf" {
		AbortWithError(c, newValidationError("file", "unsupported_type", "only PDF uploads are supported"))
		return "", nil, false
	}

	f, err := file.Open()
	if err != nil {
		AbortWithError(c, err)
		return "", nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		AbortWithError(c, err)
		return "", nil, false
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		AbortWithError(c, newValidationError("file", "too_large", "file exceeds the upload size limit"))
		return "", nil, false
	}
	return filepath.Base(file.Filename), data, true
}

func (s *Server) UploadBill(c *gin.Context) {
	fileName, data, ok := s.readUpload(c)
	if !ok {
		return
	}

	// Callers who reviewed a pre-scan match can push the upload through the
	// duplicate gates anyway.
	skip, _ := strconv.ParseBool(c.PostForm("skip_duplicate_check"))

	result, err := s.orchestrator.Ingest(c.Request.Context(), fileName, data, ingestion.IngestOptions{
		SkipDuplicateCheck: skip,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result.Duplicate != nil {
		c.JSON(http.StatusConflict, gin.H{"data": result})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) PreScanBill(c *gin.Context) {
	_, data, ok := s.readUpload(c)
	if !ok {
		return
	}

	result, err := s.orchestrator.PreScan(c.Request.Context(), data)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	jobs, err := s.orchestrator.ListJobs(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": jobs})
}

func (s *Server) GetJob(c *gin.Context) {
	job, err := s.orchestrator.GetJob(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": job})
}
