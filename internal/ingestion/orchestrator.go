package ingestion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	accountdomain "github.com/atolldev/billscan/internal/account/domain"
	alertdomain "github.com/atolldev/billscan/internal/alert/domain"
	billdomain "github.com/atolldev/billscan/internal/bill/domain"
	chargedomain "github.com/atolldev/billscan/internal/charge/domain"
	"github.com/atolldev/billscan/internal/observability"
	"github.com/atolldev/billscan/internal/providers/extractor"
	"github.com/atolldev/billscan/internal/providers/filestore"
	"github.com/atolldev/billscan/internal/providers/pdftext"
	"github.com/atolldev/billscan/internal/providers/rasterizer"
	"github.com/atolldev/billscan/internal/ratelimit"
	numberdomain "github.com/atolldev/billscan/internal/servicenumber/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	quickScanDPI = 100
	fullScanDPI  = 200
)

// PreScanResult is what the cheap scan could learn about an upload before
// committing to full extraction.
type PreScanResult struct {
	FileHash      string                     `json:"file_hash"`
	InvoiceNumber string                     `json:"invoice_number,omitempty"`
	AccountNumber string                     `json:"account_number,omitempty"`
	Source        string                     `json:"source"`
	Duplicate     *billdomain.DuplicateCheck `json:"duplicate,omitempty"`
}

// IngestOptions tweaks one pipeline run.
type IngestOptions struct {
	// SkipDuplicateCheck lets an upload through both duplicate phases, for
	// callers who have seen the match and confirmed they want this file
	// processed anyway. The invoice number uniqueness constraint still holds
	// at persistence.
	SkipDuplicateCheck bool
}

// IngestResult summarizes one pipeline run.
type IngestResult struct {
	JobID           string                     `json:"job_id"`
	Status          string                     `json:"status"`
	Bill            *billdomain.Bill           `json:"bill,omitempty"`
	Duplicate       *billdomain.DuplicateCheck `json:"duplicate,omitempty"`
	AccountCreated  bool                       `json:"account_created"`
	NewNumbers      []string                   `json:"new_numbers,omitempty"`
	ChargesRecorded int                        `json:"charges_recorded"`
	AlertsCreated   int                        `json:"alerts_created"`
	Warnings        []string                   `json:"warnings,omitempty"`
}

type OrchestratorParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Files   filestore.Store
	Raster  rasterizer.Rasterizer
	Extract extractor.Extractor
	Limiter *ratelimit.UploadLimiter
	Metrics *observability.IngestionMetrics

	Accounts accountdomain.Service
	Bills    billdomain.Service
	Numbers  numberdomain.Service
	Charges  chargedomain.Service
	Alerts   alertdomain.Service
}

// Orchestrator drives uploads through the pipeline.
type Orchestrator struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	files   filestore.Store
	raster  rasterizer.Rasterizer
	extract extractor.Extractor
	limiter *ratelimit.UploadLimiter
	metrics *observability.IngestionMetrics

	accounts accountdomain.Service
	bills    billdomain.Service
	numbers  numberdomain.Service
	charges  chargedomain.Service
	alerts   alertdomain.Service
}

func NewOrchestrator(p OrchestratorParam) *Orchestrator {
	return &Orchestrator{
		db:      p.DB,
		log:     p.Log.Named("ingestion"),
		genID:   p.GenID,
		files:   p.Files,
		raster:  p.Raster,
		extract: p.Extract,
		limiter: p.Limiter,
		metrics: p.Metrics,

		accounts: p.Accounts,
		bills:    p.Bills,
		numbers:  p.Numbers,
		charges:  p.Charges,
		alerts:   p.Alerts,
	}
}

// PreScan runs the cheap duplicate check without touching the database for
// writes. The fallback chain is embedded text first, quick vision scan
// second, and giving up is fine: a missing invoice number just means the
// full pipeline decides later.
func (o *Orchestrator) PreScan(ctx context.Context, data []byte) (PreScanResult, error) {
	result := PreScanResult{
		FileHash: filestore.Hash(data),
		Source:   "none",
	}

	numbers := pdftext.ExtractNumbers(data)
	if numbers.InvoiceNumber != "" {
		result.InvoiceNumber = numbers.InvoiceNumber
		result.AccountNumber = numbers.AccountNumber
		result.Source = "pdf_text"
	} else {
		quick, err := o.quickScan(ctx, data)
		if err != nil {
			o.log.Warn("quick scan unavailable", zap.Error(err))
		} else if quick.InvoiceNumber != "" {
			result.InvoiceNumber = quick.InvoiceNumber
			result.AccountNumber = quick.AccountNumber
			result.Source = "quick_scan"
		}
	}

	check, err := o.bills.CheckDuplicatePreScan(ctx, result.InvoiceNumber, result.FileHash)
	if err != nil {
		return PreScanResult{}, err
	}
	if check.IsDuplicate {
		result.Duplicate = &check
	}
	return result, nil
}

func (o *Orchestrator) quickScan(ctx context.Context, data []byte) (extractor.QuickResult, error) {
	stored, err := o.files.Save(data, ".pdf")
	if err != nil {
		return extractor.QuickResult{}, err
	}

	pages, err := o.raster.RenderPages(ctx, stored.Path, rasterizer.RenderOptions{
		DPI:       quickScanDPI,
		FirstPage: 1,
		LastPage:  1,
	})
	if err != nil {
		return extractor.QuickResult{}, err
	}

	quick, err := o.extract.QuickExtract(ctx, extractor.Image{MediaType: "image/png", Data: pages[0]})
	o.metrics.ExtractionCall("quick", err)
	return quick, err
}

// Ingest runs the full pipeline for one upload.
func (o *Orchestrator) Ingest(ctx context.Context, fileName string, data []byte, opts IngestOptions) (IngestResult, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".pdf"
	}

	stored, err := o.files.Save(data, ext)
	if err != nil {
		return IngestResult{}, pipelineErr(KindPersistence, StageUploaded, err)
	}

	lockToken, locked, err := o.limiter.TryLockDocument(ctx, stored.Hash)
	if err != nil {
		o.log.Warn("ingest lock unavailable, proceeding unlocked", zap.Error(err))
	} else if !locked {
		return IngestResult{}, ErrIngestInFlight
	}
	if lockToken != "" {
		defer func() {
			if err := o.limiter.ReleaseDocument(context.WithoutCancel(ctx), stored.Hash, lockToken); err != nil {
				o.log.Warn("ingest lock release failed", zap.Error(err))
			}
		}()
	}

	job, err := o.createJob(ctx, fileName, stored)
	if err != nil {
		return IngestResult{}, pipelineErr(KindPersistence, StageUploaded, err)
	}
	result := IngestResult{JobID: job.JobID, Status: JobStatusProcessing}

	bill, duplicate, err := o.runPipeline(ctx, &job, &result, stored, data, opts)
	if err != nil {
		status := o.failJob(ctx, &job, err)
		o.metrics.JobFinished(status)
		result.Status = status
		return result, err
	}
	if duplicate != nil {
		o.finishJob(ctx, &job, JobStatusDuplicate, nil, KindDuplicate, string(duplicate.Reason))
		o.metrics.JobFinished(JobStatusDuplicate)
		result.Status = JobStatusDuplicate
		result.Duplicate = duplicate
		return result, nil
	}

	o.finishJob(ctx, &job, JobStatusCompleted, &bill.ID, "", "")
	o.metrics.JobFinished(JobStatusCompleted)
	result.Status = JobStatusCompleted
	result.Bill = &bill
	return result, nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, job *IngestionJob, result *IngestResult, stored filestore.Stored, data []byte, opts IngestOptions) (billdomain.Bill, *billdomain.DuplicateCheck, error) {
	// Pre-scan: cheap duplicate rejection before any model call. An explicit
	// skip still scans, it just refuses to halt on a match.
	o.setStage(ctx, job, StagePreScan)
	start := time.Now()
	preScan, err := o.PreScan(ctx, data)
	o.metrics.ObserveStage(StagePreScan, time.Since(start))
	if err != nil {
		return billdomain.Bill{}, nil, pipelineErr(KindPersistence, StagePreScan, err)
	}
	if preScan.Duplicate != nil && !opts.SkipDuplicateCheck {
		return billdomain.Bill{}, preScan.Duplicate, nil
	}
	if err := ctx.Err(); err != nil {
		return billdomain.Bill{}, nil, pipelineErr(KindCancelled, StagePreScan, err)
	}

	// Rendering: a document we cannot rasterize is a bad upload, not an
	// infrastructure failure.
	o.setStage(ctx, job, StageRendering)
	start = time.Now()
	pages, err := o.raster.RenderPages(ctx, stored.Path, rasterizer.RenderOptions{DPI: fullScanDPI})
	o.metrics.ObserveStage(StageRendering, time.Since(start))
	if err != nil {
		return billdomain.Bill{}, nil, pipelineErr(KindValidation, StageRendering, err)
	}
	if err := ctx.Err(); err != nil {
		return billdomain.Bill{}, nil, pipelineErr(KindCancelled, StageRendering, err)
	}

	o.setStage(ctx, job, StageExtracting)
	start = time.Now()
	images := make([]extractor.Image, 0, len(pages))
	for _, page := range pages {
		images = append(images, extractor.Image{MediaType: "image/png", Data: page})
	}
	extraction, err := o.extract.FullExtract(ctx, images)
	o.metrics.ObserveStage(StageExtracting, time.Since(start))
	o.metrics.ExtractionCall("full", err)
	if err != nil {
		var verr *extractor.ValidationError
		if errors.As(err, &verr) {
			return billdomain.Bill{}, nil, pipelineErr(KindValidation, StageExtracting, err)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return billdomain.Bill{}, nil, pipelineErr(KindCancelled, StageExtracting, err)
		}
		return billdomain.Bill{}, nil, pipelineErr(KindExternalService, StageExtracting, err)
	}

	o.setStage(ctx, job, StagePersisting)
	start = time.Now()
	account, created, err := o.accounts.Resolve(ctx, extraction.AccountNumber)
	if err != nil {
		return billdomain.Bill{}, nil, pipelineErr(KindPersistence, StagePersisting, err)
	}
	result.AccountCreated = created

	if !opts.SkipDuplicateCheck {
		periodStart, _ := time.Parse("2006-01-02", extraction.BillingPeriodStart)
		periodEnd, _ := time.Parse("2006-01-02", extraction.BillingPeriodEnd)
		check, err := o.bills.CheckDuplicateFull(ctx, account.ID, extraction.InvoiceNumber, stored.Hash, periodStart, periodEnd)
		if err != nil {
			return billdomain.Bill{}, nil, pipelineErr(KindPersistence, StagePersisting, err)
		}
		if check.IsDuplicate {
			return billdomain.Bill{}, &check, nil
		}
	}

	bill, err := o.bills.CreateFromExtraction(ctx, billdomain.CreateInput{
		ServiceAccountID: account.ID,
		Extraction:       extraction,
		FileHash:         stored.Hash,
		FilePath:         stored.Path,
		FileName:         job.FileName,
		FileSizeBytes:    stored.Size,
	})
	o.metrics.ObserveStage(StagePersisting, time.Since(start))
	if err != nil {
		if errors.Is(err, billdomain.ErrDuplicateBill) {
			// Lost a race with a concurrent upload of the same invoice.
			existing, lookupErr := o.bills.GetByInvoiceNumber(ctx, extraction.InvoiceNumber)
			if lookupErr == nil && existing != nil {
				return billdomain.Bill{}, &billdomain.DuplicateCheck{
					IsDuplicate: true,
					Reason:      billdomain.DuplicateInvoiceNumber,
					Existing:    existing,
				}, nil
			}
		}
		return billdomain.Bill{}, nil, pipelineErr(KindPersistence, StagePersisting, err)
	}

	// Post-processing is best effort: the bill is already durable, so a
	// failure here is recorded as a warning rather than failing the job.
	o.setStage(ctx, job, StagePostProcessing)
	start = time.Now()
	o.postProcess(ctx, bill, result)
	o.metrics.ObserveStage(StagePostProcessing, time.Since(start))

	return bill, nil, nil
}

func (o *Orchestrator) postProcess(ctx context.Context, bill billdomain.Bill, result *IngestResult) {
	if bill.ServiceAccountID == nil {
		return
	}

	tracked := numberdomain.TrackResult{}
	items := make([]numberdomain.TrackedItem, 0, len(bill.LineItems))
	for _, item := range bill.LineItems {
		items = append(items, numberdomain.TrackedItem{
			ServiceNumber: item.ServiceNumber,
			PackageName:   item.PackageName,
		})
	}

	tracked, err := o.numbers.Track(ctx, *bill.ServiceAccountID, bill.ID, bill.BillDate, items)
	if err != nil {
		o.warn(result, "service number tracking failed", err)
	} else {
		result.NewNumbers = tracked.NewNumbers
	}

	charges, err := o.charges.RecordForBill(ctx, bill, bill.LineItems)
	if err != nil {
		o.warn(result, "monthly charge recording failed", err)
	} else {
		result.ChargesRecorded = charges.Recorded
	}

	previous, err := o.bills.PreviousCompleted(ctx, *bill.ServiceAccountID, bill.BillingPeriodStart)
	if err != nil {
		o.warn(result, "previous bill lookup failed", err)
		return
	}
	alerts, err := o.alerts.DetectForBill(ctx, alertdomain.DetectInput{
		Bill:       bill,
		Previous:   previous,
		NewNumbers: tracked.NewNumbers,
	})
	if err != nil {
		o.warn(result, "alert detection failed", err)
		return
	}
	result.AlertsCreated = len(alerts)
	o.metrics.AlertsCreated(len(alerts))
}

func (o *Orchestrator) warn(result *IngestResult, message string, err error) {
	o.log.Warn(message, zap.Error(err))
	result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", message, err))
}

func (o *Orchestrator) createJob(ctx context.Context, fileName string, stored filestore.Stored) (IngestionJob, error) {
	now := time.Now().UTC()
	job := IngestionJob{
		ID:        o.genID.Generate(),
		JobID:     uuid.NewString(),
		FileName:  fileName,
		FilePath:  stored.Path,
		FileHash:  stored.Hash,
		Status:    JobStatusProcessing,
		Stage:     StageUploaded,
		StartedAt: &now,
	}
	if err := o.db.WithContext(ctx).Create(&job).Error; err != nil {
		return IngestionJob{}, err
	}
	return job, nil
}

func (o *Orchestrator) setStage(ctx context.Context, job *IngestionJob, stage string) {
	job.Stage = stage
	err := o.db.WithContext(ctx).Model(&IngestionJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{"stage": stage, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		o.log.Warn("job stage update failed",
			zap.String("job_id", job.JobID),
			zap.String("stage", stage),
			zap.Error(err))
	}
}

func (o *Orchestrator) failJob(ctx context.Context, job *IngestionJob, cause error) string {
	status := JobStatusFailed
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		status = JobStatusCancelled
	}
	o.finishJob(ctx, job, status, nil, KindOf(cause), cause.Error())

	if status == JobStatusCancelled {
		o.log.Warn("ingestion cancelled",
			zap.String("job_id", job.JobID),
			zap.String("stage", job.Stage))
	} else {
		o.log.Error("ingestion failed",
			zap.String("job_id", job.JobID),
			zap.String("stage", job.Stage),
			zap.Error(cause))
	}
	return status
}

func (o *Orchestrator) finishJob(ctx context.Context, job *IngestionJob, status string, billID *snowflake.ID, errorKind, errorMessage string) {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":      status,
		"finished_at": now,
		"updated_at":  now,
	}
	if status == JobStatusCompleted {
		updates["stage"] = StageDone
	}
	if billID != nil {
		updates["bill_id"] = *billID
	}
	if errorKind != "" {
		updates["error_kind"] = errorKind
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}

	// Detach from the request context so a cancelled upload still gets its
	// terminal state written.
	err := o.db.WithContext(context.WithoutCancel(ctx)).Model(&IngestionJob{}).
		Where("id = ?", job.ID).
		Updates(updates).Error
	if err != nil {
		o.log.Error("job finish update failed",
			zap.String("job_id", job.JobID),
			zap.Error(err))
	}
	job.Status = status
}

// GetJob looks a job up by its public job id.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (IngestionJob, error) {
	var job IngestionJob
	err := o.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return IngestionJob{}, fmt.Errorf("ingestion job %s: %w", jobID, gorm.ErrRecordNotFound)
		}
		return IngestionJob{}, err
	}
	return job, nil
}

// ListJobs returns recent jobs, newest first.
func (o *Orchestrator) ListJobs(ctx context.Context, limit int) ([]IngestionJob, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var jobs []IngestionJob
	err := o.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}
