package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	billdomain "github.com/atolldev/billscan/internal/bill/domain"
	chargedomain "github.com/atolldev/billscan/internal/charge/domain"
	numberdomain "github.com/atolldev/billscan/internal/servicenumber/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*gorm.DB, chargedomain.Service, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&numberdomain.ServiceNumber{},
		&chargedomain.MonthlyCharge{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{DB: db, Log: zap.NewNop(), GenID: node})
	return db, svc, node
}

func registerNumber(t *testing.T, db *gorm.DB, node *snowflake.Node, accountID snowflake.ID, number string) numberdomain.ServiceNumber {
	t.Helper()
	row := numberdomain.ServiceNumber{
		ID:               node.Generate(),
		ServiceAccountID: accountID,
		ServiceNumber:    number,
		IsActive:         true,
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

func billFixture(node *snowflake.Node, accountID snowflake.ID) billdomain.Bill {
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	return billdomain.Bill{
		ID:                 node.Generate(),
		ServiceAccountID:   &accountID,
		InvoiceNumber:      "B1-000200",
		BillingPeriodStart: start,
		BillingPeriodEnd:   start.AddDate(0, 1, -1),
		BillDate:           start.AddDate(0, 1, 0),
	}
}

func TestRecordForBillWritesLedgerRows(t *testing.T) {
	db, svc, node := newTestService(t)
	accountID := node.Generate()
	registered := registerNumber(t, db, node, accountID, "7771001")
	bill := billFixture(node, accountID)

	result, err := svc.RecordForBill(context.Background(), bill, []billdomain.LineItem{
		{ID: node.Generate(), BillID: bill.ID, ServiceNumber: "7771001", SubscriptionCharge: 100, UsageCharges: 25, TotalCharge: 125},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recorded)
	assert.Zero(t, result.Skipped)

	charges, err := svc.HistoryForNumber(context.Background(), registered.ID)
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.Equal(t, bill.ID, charges[0].BillID)
	assert.Equal(t, 125.0, charges[0].TotalCharge)
}

func TestRecordForBillIsIdempotent(t *testing.T) {
	db, svc, node := newTestService(t)
	accountID := node.Generate()
	registered := registerNumber(t, db, node, accountID, "7771001")
	bill := billFixture(node, accountID)
	item := billdomain.LineItem{ID: node.Generate(), BillID: bill.ID, ServiceNumber: "7771001", TotalCharge: 125}

	_, err := svc.RecordForBill(context.Background(), bill, []billdomain.LineItem{item})
	require.NoError(t, err)

	// Reprocessing rewrites the same ledger row with the corrected figures.
	item.TotalCharge = 140
	result, err := svc.RecordForBill(context.Background(), bill, []billdomain.LineItem{item})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recorded)

	charges, err := svc.HistoryForNumber(context.Background(), registered.ID)
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.Equal(t, 140.0, charges[0].TotalCharge)
}

func TestRecordForBillSkipsUnresolvedNumbers(t *testing.T) {
	db, svc, node := newTestService(t)
	accountID := node.Generate()
	registerNumber(t, db, node, accountID, "7771001")
	bill := billFixture(node, accountID)

	result, err := svc.RecordForBill(context.Background(), bill, []billdomain.LineItem{
		{ID: node.Generate(), BillID: bill.ID, ServiceNumber: "7771001", TotalCharge: 125},
		{ID: node.Generate(), BillID: bill.ID, ServiceNumber: "7779999", TotalCharge: 90},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recorded)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []string{"7779999"}, result.Unresolved)
}

func TestRecordForBillRequiresLinkedAccount(t *testing.T) {
	_, svc, node := newTestService(t)
	bill := billFixture(node, node.Generate())
	bill.ServiceAccountID = nil

	_, err := svc.RecordForBill(context.Background(), bill, nil)
	assert.Error(t, err)
}

func TestTotalsForNumberAggregatesHistory(t *testing.T) {
	db, svc, node := newTestService(t)
	accountID := node.Generate()
	registered := registerNumber(t, db, node, accountID, "7771001")

	for i, charge := range []float64{100, 150, 110} {
		bill := billFixture(node, accountID)
		bill.ID = node.Generate()
		bill.BillingPeriodStart = bill.BillingPeriodStart.AddDate(0, i, 0)
		bill.BillingPeriodEnd = bill.BillingPeriodStart.AddDate(0, 1, -1)
		bill.BillDate = bill.BillingPeriodStart.AddDate(0, 1, 0)
		_, err := svc.RecordForBill(context.Background(), bill, []billdomain.LineItem{
			{ID: node.Generate(), BillID: bill.ID, ServiceNumber: "7771001", TotalCharge: charge},
		})
		require.NoError(t, err)
	}

	totals, err := svc.TotalsForNumber(context.Background(), registered.ID)
	require.NoError(t, err)
	assert.Equal(t, "7771001", totals.ServiceNumber)
	assert.Equal(t, int64(3), totals.Months)
	assert.Equal(t, 360.0, totals.Total)
	assert.Equal(t, 120.0, totals.Average)
	assert.Equal(t, 100.0, totals.Min)
	assert.Equal(t, 150.0, totals.Max)
}
