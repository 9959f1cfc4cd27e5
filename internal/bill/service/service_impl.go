package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	billdomain "github.com/atolldev/billscan/internal/bill/domain"
	"github.com/atolldev/billscan/internal/providers/extractor"
	"github.com/atolldev/billscan/pkg/db"
	"github.com/atolldev/billscan/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Allowed drift between the bill's current charges and the sum of its
// line items, per line item. Mismatches flag review, never rejection.
const lineSumTolerancePerItem = 0.05

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	billrepo repository.Repository[billdomain.Bill]
	itemrepo repository.Repository[billdomain.LineItem]
}

func NewService(p ServiceParam) billdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("bill.service"),
		genID: p.GenID,

		billrepo: repository.ProvideStore[billdomain.Bill](p.DB),
		itemrepo: repository.ProvideStore[billdomain.LineItem](p.DB),
	}
}

func (s *Service) CreateFromExtraction(ctx context.Context, input billdomain.CreateInput) (billdomain.Bill, error) {
	periodStart, err := parseDate(input.Extraction.BillingPeriodStart)
	if err != nil {
		return billdomain.Bill{}, fmt.Errorf("billing period start: %w", err)
	}
	periodEnd, err := parseDate(input.Extraction.BillingPeriodEnd)
	if err != nil {
		return billdomain.Bill{}, fmt.Errorf("billing period end: %w", err)
	}
	billDate, err := parseDate(input.Extraction.BillDate)
	if err != nil {
		return billdomain.Bill{}, fmt.Errorf("bill date: %w", err)
	}
	var dueDate *time.Time
	if input.Extraction.DueDate != "" {
		parsed, err := parseDate(input.Extraction.DueDate)
		if err != nil {
			return billdomain.Bill{}, fmt.Errorf("due date: %w", err)
		}
		dueDate = &parsed
	}

	// Confidence is stored as metadata only; review is driven by whether the
	// bill's numbers hold together, not by how sure the extractor felt.
	status := billdomain.StatusCompleted
	requiresReview := false
	if !lineItemsReconcile(input.Extraction.CurrentCharges, input.Extraction.LineItems) {
		s.log.Warn("line items do not reconcile with current charges",
			zap.String("invoice_number", input.Extraction.InvoiceNumber))
		requiresReview = true
	}
	if requiresReview {
		status = billdomain.StatusReviewRequired
	}

	rawExtraction, err := json.Marshal(input.Extraction)
	if err != nil {
		return billdomain.Bill{}, fmt.Errorf("marshal extraction: %w", err)
	}

	now := time.Now().UTC()
	confidence := input.Extraction.Confidence
	accountID := input.ServiceAccountID
	bill := billdomain.Bill{
		ID:                   s.genID.Generate(),
		ServiceAccountID:     &accountID,
		InvoiceNumber:        strings.TrimSpace(input.Extraction.InvoiceNumber),
		AccountNumber:        strings.TrimSpace(input.Extraction.AccountNumber),
		BillingPeriodStart:   periodStart,
		BillingPeriodEnd:     periodEnd,
		BillDate:             billDate,
		DueDate:              dueDate,
		CurrentCharges:       input.Extraction.CurrentCharges,
		OutstandingAmount:    input.Extraction.Outstanding,
		GSTAmount:            input.Extraction.GSTAmount,
		TotalDue:             input.Extraction.TotalDue,
		FileHash:             input.FileHash,
		FilePath:             input.FilePath,
		FileName:             input.FileName,
		FileSizeBytes:        &input.FileSizeBytes,
		ProcessingStatus:     status,
		ExtractionConfidence: &confidence,
		ExtractedData:        rawExtraction,
		RequiresReview:       requiresReview,
		ProcessedAt:          &now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&bill).Error; err != nil {
			return err
		}
		for _, item := range input.Extraction.LineItems {
			li := billdomain.LineItem{
				ID:                 s.genID.Generate(),
				BillID:             bill.ID,
				ServiceNumber:      strings.TrimSpace(item.ServiceNumber),
				SubscriptionCharge: item.SubscriptionCharge,
				UsageCharges:       item.UsageCharges,
				OtherCharges:       item.OtherCharges,
				TotalCharge:        item.TotalCharge,
			}
			if item.PackageName != "" {
				name := item.PackageName
				li.PackageName = &name
			}
			if err := tx.Create(&li).Error; err != nil {
				return err
			}
			bill.LineItems = append(bill.LineItems, li)
		}
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return billdomain.Bill{}, billdomain.ErrDuplicateBill
		}
		return billdomain.Bill{}, fmt.Errorf("create bill: %w", err)
	}

	s.log.Info("bill created",
		zap.Int64("bill_id", bill.ID.Int64()),
		zap.String("invoice_number", bill.InvoiceNumber),
		zap.String("status", status),
		zap.Int("line_items", len(bill.LineItems)))
	return bill, nil
}

func (s *Service) CheckDuplicatePreScan(ctx context.Context, invoiceNumber, fileHash string) (billdomain.DuplicateCheck, error) {
	if invoiceNumber != "" {
		existing, err := s.GetByInvoiceNumber(ctx, invoiceNumber)
		if err != nil {
			return billdomain.DuplicateCheck{}, err
		}
		if existing != nil {
			return billdomain.DuplicateCheck{
				IsDuplicate: true,
				Reason:      billdomain.DuplicateInvoiceNumber,
				Existing:    existing,
			}, nil
		}
	}

	if fileHash != "" {
		existing, err := s.billrepo.FindOne(ctx, &billdomain.Bill{FileHash: fileHash})
		if err != nil {
			return billdomain.DuplicateCheck{}, err
		}
		if existing != nil {
			return billdomain.DuplicateCheck{
				IsDuplicate: true,
				Reason:      billdomain.DuplicateFileHash,
				Existing:    existing,
			}, nil
		}
	}

	return billdomain.DuplicateCheck{}, nil
}

func (s *Service) CheckDuplicateFull(ctx context.Context, accountID snowflake.ID, invoiceNumber, fileHash string, periodStart, periodEnd time.Time) (billdomain.DuplicateCheck, error) {
	check, err := s.CheckDuplicatePreScan(ctx, invoiceNumber, fileHash)
	if err != nil || check.IsDuplicate {
		return check, err
	}

	// Only completed bills block a period: a failed or review-parked bill for
	// the same month must not stop a clean re-upload.
	var existing billdomain.Bill
	err = s.db.WithContext(ctx).
		Where("service_account_id = ? AND billing_period_start = ? AND billing_period_end = ? AND processing_status = ?",
			accountID, periodStart, periodEnd, billdomain.StatusCompleted).
		First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return billdomain.DuplicateCheck{}, nil
		}
		return billdomain.DuplicateCheck{}, err
	}
	return billdomain.DuplicateCheck{
		IsDuplicate: true,
		Reason:      billdomain.DuplicateBillingPeriod,
		Existing:    &existing,
	}, nil
}

func (s *Service) PreviousCompleted(ctx context.Context, accountID snowflake.ID, beforePeriodStart time.Time) (*billdomain.Bill, error) {
	var previous billdomain.Bill
	err := s.db.WithContext(ctx).
		Where("service_account_id = ? AND billing_period_start < ? AND processing_status = ?",
			accountID, beforePeriodStart, billdomain.StatusCompleted).
		Order("billing_period_start DESC").
		First(&previous).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &previous, nil
}

func (s *Service) List(ctx context.Context, filter billdomain.ListFilter) ([]billdomain.Bill, error) {
	opts := []repository.QueryOption{repository.OrderBy("bill_date desc")}
	if filter.ServiceAccountID != nil {
		opts = append(opts, repository.Where("service_account_id = ?", *filter.ServiceAccountID))
	}
	if filter.Status != "" {
		opts = append(opts, repository.Where("processing_status = ?", filter.Status))
	}
	if filter.RequiresReview != nil {
		opts = append(opts, repository.Where("requires_review = ?", *filter.RequiresReview))
	}
	if filter.Limit > 0 {
		opts = append(opts, repository.Limit(filter.Limit))
	}

	items, err := s.billrepo.Find(ctx, &billdomain.Bill{}, opts...)
	if err != nil {
		return nil, err
	}

	bills := make([]billdomain.Bill, 0, len(items))
	for _, item := range items {
		bills = append(bills, *item)
	}
	return bills, nil
}

func (s *Service) Summaries(ctx context.Context, filter billdomain.ListFilter) ([]billdomain.BillSummary, error) {
	query := s.db.WithContext(ctx).Table("bills AS b").
		Select(`b.*,
		 COALESCE(sa.account_name, '') AS account_name,
		 (SELECT COUNT(*) FROM line_items li WHERE li.bill_id = b.id) AS line_item_count,
		 (SELECT COUNT(*) FROM alerts a WHERE a.bill_id = b.id AND a.status = 'active') AS alert_count`).
		Joins("LEFT JOIN service_accounts sa ON sa.id = b.service_account_id").
		Order("b.bill_date DESC")

	if filter.ServiceAccountID != nil {
		query = query.Where("b.service_account_id = ?", *filter.ServiceAccountID)
	}
	if filter.Status != "" {
		query = query.Where("b.processing_status = ?", filter.Status)
	}
	if filter.RequiresReview != nil {
		query = query.Where("b.requires_review = ?", *filter.RequiresReview)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var summaries []billdomain.BillSummary
	if err := query.Scan(&summaries).Error; err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (billdomain.Bill, error) {
	item, err := s.billrepo.FindOne(ctx, &billdomain.Bill{ID: id})
	if err != nil {
		return billdomain.Bill{}, err
	}
	if item == nil {
		return billdomain.Bill{}, billdomain.ErrBillNotFound
	}
	return *item, nil
}

func (s *Service) GetByInvoiceNumber(ctx context.Context, invoiceNumber string) (*billdomain.Bill, error) {
	return s.billrepo.FindOne(ctx, &billdomain.Bill{InvoiceNumber: strings.TrimSpace(invoiceNumber)})
}

func (s *Service) LineItems(ctx context.Context, billID snowflake.ID) ([]billdomain.LineItem, error) {
	items, err := s.itemrepo.Find(ctx, &billdomain.LineItem{BillID: billID},
		repository.OrderBy("service_number asc"))
	if err != nil {
		return nil, err
	}

	lineItems := make([]billdomain.LineItem, 0, len(items))
	for _, item := range items {
		lineItems = append(lineItems, *item)
	}
	return lineItems, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	// Line items, monthly charges and alerts cascade at the database level.
	return s.billrepo.Delete(ctx, id)
}

func (s *Service) LinkToAccount(ctx context.Context, billID, accountID snowflake.ID) (billdomain.Bill, error) {
	if err := s.billrepo.Update(ctx, billID, map[string]any{
		"service_account_id": accountID,
		"updated_at":         time.Now().UTC(),
	}); err != nil {
		return billdomain.Bill{}, err
	}
	return s.GetByID(ctx, billID)
}

func (s *Service) Verify(ctx context.Context, billID snowflake.ID) (billdomain.Bill, error) {
	bill, err := s.GetByID(ctx, billID)
	if err != nil {
		return billdomain.Bill{}, err
	}

	updates := map[string]any{
		"is_verified":     true,
		"requires_review": false,
		"updated_at":      time.Now().UTC(),
	}
	if bill.ProcessingStatus == billdomain.StatusReviewRequired {
		updates["processing_status"] = billdomain.StatusCompleted
	}
	if err := s.billrepo.Update(ctx, billID, updates); err != nil {
		return billdomain.Bill{}, err
	}
	return s.GetByID(ctx, billID)
}

func (s *Service) RequiringReview(ctx context.Context) ([]billdomain.Bill, error) {
	review := true
	return s.List(ctx, billdomain.ListFilter{RequiresReview: &review})
}

func (s *Service) Recent(ctx context.Context, hours int) ([]billdomain.Bill, error) {
	if hours <= 0 {
		hours = 24
	}
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	items, err := s.billrepo.Find(ctx, &billdomain.Bill{},
		repository.Where("created_at >= ?", cutoff),
		repository.OrderBy("created_at desc"))
	if err != nil {
		return nil, err
	}

	bills := make([]billdomain.Bill, 0, len(items))
	for _, item := range items {
		bills = append(bills, *item)
	}
	return bills, nil
}

func (s *Service) Compare(ctx context.Context, billID snowflake.ID) (billdomain.BillComparison, error) {
	current, err := s.GetByID(ctx, billID)
	if err != nil {
		return billdomain.BillComparison{}, err
	}

	comparison := billdomain.BillComparison{
		Current:         current,
		NewServices:     []billdomain.ServiceChange{},
		RemovedServices: []billdomain.ServiceChange{},
		ChangedServices: []billdomain.ServiceChange{},
	}
	if current.ServiceAccountID == nil {
		return comparison, nil
	}

	previous, err := s.PreviousCompleted(ctx, *current.ServiceAccountID, current.BillingPeriodStart)
	if err != nil {
		return billdomain.BillComparison{}, err
	}
	if previous == nil {
		return comparison, nil
	}
	comparison.Previous = previous
	comparison.TotalDelta = round2(current.TotalDue - previous.TotalDue)
	if previous.TotalDue > 0 {
		comparison.PctChange = round2((current.TotalDue - previous.TotalDue) / previous.TotalDue * 100)
	}

	currentItems, err := s.LineItems(ctx, current.ID)
	if err != nil {
		return billdomain.BillComparison{}, err
	}
	previousItems, err := s.LineItems(ctx, previous.ID)
	if err != nil {
		return billdomain.BillComparison{}, err
	}

	previousByNumber := make(map[string]billdomain.LineItem, len(previousItems))
	for _, item := range previousItems {
		previousByNumber[item.ServiceNumber] = item
	}

	seen := make(map[string]bool, len(currentItems))
	for _, item := range currentItems {
		seen[item.ServiceNumber] = true
		prev, ok := previousByNumber[item.ServiceNumber]
		if !ok {
			comparison.NewServices = append(comparison.NewServices, billdomain.ServiceChange{
				ServiceNumber: item.ServiceNumber,
				CurrentCharge: item.TotalCharge,
				Delta:         item.TotalCharge,
			})
			continue
		}
		if math.Abs(item.TotalCharge-prev.TotalCharge) < 0.005 {
			continue
		}
		change := billdomain.ServiceChange{
			ServiceNumber:  item.ServiceNumber,
			PreviousCharge: prev.TotalCharge,
			CurrentCharge:  item.TotalCharge,
			Delta:          round2(item.TotalCharge - prev.TotalCharge),
		}
		if prev.TotalCharge > 0 {
			change.PctChange = round2((item.TotalCharge - prev.TotalCharge) / prev.TotalCharge * 100)
		}
		comparison.ChangedServices = append(comparison.ChangedServices, change)
	}
	for _, item := range previousItems {
		if !seen[item.ServiceNumber] {
			comparison.RemovedServices = append(comparison.RemovedServices, billdomain.ServiceChange{
				ServiceNumber:  item.ServiceNumber,
				PreviousCharge: item.TotalCharge,
				Delta:          round2(-item.TotalCharge),
			})
		}
	}
	return comparison, nil
}

// lineItemsReconcile checks the extracted line items against the bill's
// current charges. Drift within the tolerance is accepted as rounding.
func lineItemsReconcile(currentCharges float64, items []extractor.LineItemResult) bool {
	if len(items) == 0 {
		return true
	}
	var sum float64
	for _, item := range items {
		sum += item.TotalCharge
	}
	tolerance := lineSumTolerancePerItem * float64(len(items))
	return math.Abs(sum-currentCharges) <= tolerance
}

func parseDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
