package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	accountdomain "github.com/atolldev/billscan/internal/account/domain"
	billdomain "github.com/atolldev/billscan/internal/bill/domain"
	"github.com/atolldev/billscan/internal/providers/extractor"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*gorm.DB, billdomain.Service, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&accountdomain.ServiceAccount{},
		&billdomain.Bill{},
		&billdomain.LineItem{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})
	return db, svc, node
}

func seedAccount(t *testing.T, db *gorm.DB, node *snowflake.Node) accountdomain.ServiceAccount {
	t.Helper()
	account := accountdomain.ServiceAccount{
		ID:            node.Generate(),
		AccountNumber: "BA12345678",
		AccountName:   "Head Office",
		Provider:      "Dhiraagu",
		IsActive:      true,
	}
	require.NoError(t, db.Create(&account).Error)
	return account
}

func extractionFixture(invoice string) extractor.Result {
	return extractor.Result{
		AccountNumber:      "BA12345678",
		InvoiceNumber:      invoice,
		BillingPeriodStart: "2025-03-01",
		BillingPeriodEnd:   "2025-03-31",
		BillDate:           "2025-04-01",
		DueDate:            "2025-04-20",
		CurrentCharges:     300,
		Outstanding:        0,
		TotalDue:           300,
		GSTAmount:          18,
		Confidence:         92,
		LineItems: []extractor.LineItemResult{
			{ServiceNumber: "7771001", PackageName: "Fibre 30M", SubscriptionCharge: 100, TotalCharge: 100},
			{ServiceNumber: "7771002", PackageName: "Postpaid 450", SubscriptionCharge: 150, UsageCharges: 50, TotalCharge: 200},
		},
	}
}

func createBill(t *testing.T, svc billdomain.Service, account accountdomain.ServiceAccount, invoice, hash string) billdomain.Bill {
	t.Helper()
	bill, err := svc.CreateFromExtraction(context.Background(), billdomain.CreateInput{
		ServiceAccountID: account.ID,
		Extraction:       extractionFixture(invoice),
		FileHash:         hash,
		FilePath:         "/tmp/" + hash + ".pdf",
		FileName:         invoice + ".pdf",
		FileSizeBytes:    2048,
	})
	require.NoError(t, err)
	return bill
}

func TestCreateFromExtractionPersistsBillAndItems(t *testing.T) {
	db, svc, node := newTestService(t)
	account := seedAccount(t, db, node)

	bill := createBill(t, svc, account, "B1-000100", "hash-a")

	assert.Equal(t, billdomain.StatusCompleted, bill.ProcessingStatus)
	assert.False(t, bill.RequiresReview)
	require.NotNil(t, bill.ExtractionConfidence)
	assert.Equal(t, 92, *bill.ExtractionConfidence)
	assert.NotNil(t, bill.ProcessedAt)
	require.Len(t, bill.LineItems, 2)

	items, err := svc.LineItems(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "7771001", items[0].ServiceNumber)
	require.NotNil(t, items[0].PackageName)
	assert.Equal(t, "Fibre 30M", *items[0].PackageName)
}

func TestCreateFromExtractionLowConfidenceStillCompletes(t *testing.T) {
	db, svc, node := newTestService(t)
	account := seedAccount(t, db, node)

	// Confidence is metadata, not a gate: a shaky extraction whose numbers
	// reconcile completes like any other.
	extraction := extractionFixture("B1-000101")
	extraction.Confidence = 55
	bill, err := svc.CreateFromExtraction(context.Background(), billdomain.CreateInput{
		ServiceAccountID: account.ID,
		Extraction:       extraction,
		FileHash:         "hash-low",
		FilePath:         "/tmp/hash-low.pdf",
		FileName:         "low.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, billdomain.StatusCompleted, bill.ProcessingStatus)
	assert.False(t, bill.RequiresReview)
	require.NotNil(t, bill.ExtractionConfidence)
	assert.Equal(t, 55, *bill.ExtractionConfidence)
}

func TestCreateFromExtractionFlagsUnreconciledLineItems(t *testing.T) {
	db, svc, node := newTestService(t)
	account := seedAccount(t, db, node)

	extraction := extractionFixture("B1-000102")
	extraction.CurrentCharges = 500 // items sum to 300
	bill, err := svc.CreateFromExtraction(context.Background(), billdomain.CreateInput{
		ServiceAccountID: account.ID,
		Extraction:       extraction,
		FileHash:         "hash-drift",
		FilePath:         "/tmp/hash-drift.pdf",
		FileName:         "drift.pdf",
	})
	require.NoError(t, err)
	assert.True(t, bill.RequiresReview)
	assert.Equal(t, billdomain.StatusReviewRequired, bill.ProcessingStatus)
}

func TestCreateFromExtractionRejectsDuplicateInvoice(t *testing.T) {
	db, svc, node := newTestService(t)
	account := seedAccount(t, db, node)
	createBill(t, svc, account, "B1-000103", "hash-b")

	_, err := svc.CreateFromExtraction(context.Background(), billdomain.CreateInput{
		ServiceAccountID: account.ID,
		Extraction:       extractionFixture("B1-000103"),
		FileHash:         "hash-c",
		FilePath:         "/tmp/hash-c.pdf",
		FileName:         "dup.pdf",
	})
	assert.ErrorIs(t, err, billdomain.ErrDuplicateBill)

	var itemCount int64
	require.NoError(t, db.Model(&billdomain.LineItem{}).Count(&itemCount).Error)
	assert.Equal(t, int64(2), itemCount, "failed create must not leave partial line items")
}

func TestDuplicatePrecedenceInvoiceBeforeFileHash(t *testing.T) {
	db, svc, node := newTestService(t)
	account := seedAccount(t, db, node)
	bill := createBill(t, svc, account, "B1-000104", "hash-d")

	// Both signals match: the invoice number wins.
	check, err := svc.CheckDuplicatePreScan(context.Background(), "B1-000104", "hash-d")
	require.NoError(t, err)
	assert.True(t, check.IsDuplicate)
	assert.Equal(t, billdomain.DuplicateInvoiceNumber, check.Reason)
	require.NotNil(t, check.Existing)
	assert.Equal(t, bill.ID, check.Existing.ID)

	// File hash alone still flags.
	check, err = svc.CheckDuplicatePreScan(context.Background(), "B1-UNSEEN", "hash-d")
	require.NoError(t, err)
	assert.True(t, check.IsDuplicate)
	assert.Equal(t, billdomain.DuplicateFileHash, check.Reason)

	// Nothing matches.
	check, err = svc.CheckDuplicatePreScan(context.Background(), "B1-UNSEEN", "hash-unseen")
	require.NoError(t, err)
	assert.False(t, check.IsDuplicate)
}

func TestCheckDuplicateFullDetectsBillingPeriod(t *testing.T) {
	db, svc, node := newTestService(t)
	account := seedAccount(t, db, node)
	createBill(t, svc, account, "B1-000105", "hash-e")

	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)
	check, err := svc.CheckDuplicateFull(context.Background(), account.ID, "B1-OTHER", "hash-other", start, end)
	require.NoError(t, err)
	assert.True(t, check.IsDuplicate)
	assert.Equal(t, billdomain.DuplicateBillingPeriod, check.Reason)
}

func TestCheckDuplicateFullIgnoresUncompletedPeriods(t *testing.T) {
	db, svc, node := newTestService(t)
	account := seedAccount(t, db, node)
	bill := createBill(t, svc, account, "B1-000110", "hash-g")

	// A bill parked for review does not block its billing period.
	require.NoError(t, db.Model(&billdomain.Bill{}).
		Where("id = ?", bill.ID).
		Update("processing_status", billdomain.StatusReviewRequired).Error)

	check, err := svc.CheckDuplicateFull(context.Background(), account.ID, "B1-OTHER", "hash-other",
		bill.BillingPeriodStart, bill.BillingPeriodEnd)
	require.NoError(t, err)
	assert.False(t, check.IsDuplicate)
}

func TestVerifyClearsReviewState(t *testing.T) {
	db, svc, node := newTestService(t)
	account := seedAccount(t, db, node)

	extraction := extractionFixture("B1-000106")
	extraction.CurrentCharges = 500 // items sum to 300, parks the bill for review
	bill, err := svc.CreateFromExtraction(context.Background(), billdomain.CreateInput{
		ServiceAccountID: account.ID,
		Extraction:       extraction,
		FileHash:         "hash-f",
		FilePath:         "/tmp/hash-f.pdf",
		FileName:         "verify.pdf",
	})
	require.NoError(t, err)
	require.True(t, bill.RequiresReview)

	verified, err := svc.Verify(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)
	assert.False(t, verified.RequiresReview)
	assert.Equal(t, billdomain.StatusCompleted, verified.ProcessingStatus)
}

func TestCompareDiffsLineItems(t *testing.T) {
	db, svc, node := newTestService(t)
	account := seedAccount(t, db, node)

	first := extractionFixture("B1-000107")
	first.BillingPeriodStart = "2025-02-01"
	first.BillingPeriodEnd = "2025-02-28"
	first.BillDate = "2025-03-01"
	first.TotalDue = 250
	first.CurrentCharges = 250
	first.LineItems = []extractor.LineItemResult{
		{ServiceNumber: "7771001", SubscriptionCharge: 100, TotalCharge: 100},
		{ServiceNumber: "7779999", SubscriptionCharge: 150, TotalCharge: 150},
	}
	_, err := svc.CreateFromExtraction(context.Background(), billdomain.CreateInput{
		ServiceAccountID: account.ID,
		Extraction:       first,
		FileHash:         "hash-feb",
		FilePath:         "/tmp/hash-feb.pdf",
		FileName:         "feb.pdf",
	})
	require.NoError(t, err)

	current := createBill(t, svc, account, "B1-000108", "hash-mar")

	comparison, err := svc.Compare(context.Background(), current.ID)
	require.NoError(t, err)
	require.NotNil(t, comparison.Previous)
	assert.Equal(t, 50.0, comparison.TotalDelta)
	assert.Equal(t, 20.0, comparison.PctChange)

	require.Len(t, comparison.NewServices, 1)
	assert.Equal(t, "7771002", comparison.NewServices[0].ServiceNumber)
	require.Len(t, comparison.RemovedServices, 1)
	assert.Equal(t, "7779999", comparison.RemovedServices[0].ServiceNumber)
	assert.Empty(t, comparison.ChangedServices, "7771001 kept the same charge")
}

func TestGetByIDNotFound(t *testing.T) {
	_, svc, node := newTestService(t)

	_, err := svc.GetByID(context.Background(), node.Generate())
	assert.ErrorIs(t, err, billdomain.ErrBillNotFound)
}
