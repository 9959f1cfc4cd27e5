package domain

import (
	"context"
	"errors"
	"time"

	"github.com/atolldev/billscan/internal/providers/extractor"
	"github.com/bwmarrin/snowflake"
)

var (
	ErrBillNotFound  = errors.New("bill not found")
	ErrDuplicateBill = errors.New("bill already exists")
)

// CreateInput carries everything needed to persist a bill from an extraction.
type CreateInput struct {
	ServiceAccountID snowflake.ID
	Extraction       extractor.Result
	FileHash         string
	FilePath         string
	FileName         string
	FileSizeBytes    int64
}

// Service owns the bill aggregate: creation is transactional, a bill and its
// line items land together or not at all.
type Service interface {
	CreateFromExtraction(ctx context.Context, input CreateInput) (Bill, error)

	// CheckDuplicatePreScan runs before extraction, on the signals available
	// cheaply: invoice number from the quick scan and the upload's file hash.
	CheckDuplicatePreScan(ctx context.Context, invoiceNumber, fileHash string) (DuplicateCheck, error)

	// CheckDuplicateFull re-checks after full extraction, adding the billing
	// period overlap signal now that the account is known.
	CheckDuplicateFull(ctx context.Context, accountID snowflake.ID, invoiceNumber, fileHash string, periodStart, periodEnd time.Time) (DuplicateCheck, error)

	// PreviousCompleted returns the account's latest completed bill with a
	// billing period strictly before the given start, or nil.
	PreviousCompleted(ctx context.Context, accountID snowflake.ID, beforePeriodStart time.Time) (*Bill, error)

	List(ctx context.Context, filter ListFilter) ([]Bill, error)
	Summaries(ctx context.Context, filter ListFilter) ([]BillSummary, error)
	GetByID(ctx context.Context, id snowflake.ID) (Bill, error)
	GetByInvoiceNumber(ctx context.Context, invoiceNumber string) (*Bill, error)
	LineItems(ctx context.Context, billID snowflake.ID) ([]LineItem, error)
	Delete(ctx context.Context, id snowflake.ID) error

	LinkToAccount(ctx context.Context, billID, accountID snowflake.ID) (Bill, error)
	Verify(ctx context.Context, billID snowflake.ID) (Bill, error)
	RequiringReview(ctx context.Context) ([]Bill, error)
	Recent(ctx context.Context, hours int) ([]Bill, error)

	// Compare diffs a bill against the account's previous completed bill.
	Compare(ctx context.Context, billID snowflake.ID) (BillComparison, error)
}
