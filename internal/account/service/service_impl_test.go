package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	accountdomain "github.com/atolldev/billscan/internal/account/domain"
	billdomain "github.com/atolldev/billscan/internal/bill/domain"
	"github.com/atolldev/billscan/internal/config"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*gorm.DB, accountdomain.Service, *snowflake.Node) {
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
		Cfg:   config.Config{DefaultProvider: "Dhiraagu"},
	})
	return db, svc, node
}

func TestResolveAutoRegistersUnknownAccount(t *testing.T) {
	_, svc, _ := newTestService(t)
	ctx := context.Background()

	account, created, err := svc.Resolve(ctx, "BA12345678")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "BA12345678", account.AccountNumber)
	assert.Equal(t, "Auto-registered BA12345678", account.AccountName)
	assert.Equal(t, "Dhiraagu", account.Provider)
	assert.True(t, account.AutoRegistered)
	require.NotNil(t, account.Description)
	assert.Contains(t, *account.Description, "Automatically registered")

	again, created, err := svc.Resolve(ctx, "BA12345678")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, account.ID, again.ID)
}

func TestResolveRejectsEmptyNumber(t *testing.T) {
	_, svc, _ := newTestService(t)

	_, _, err := svc.Resolve(context.Background(), "   ")
	assert.ErrorIs(t, err, accountdomain.ErrAccountNotFound)
}

func TestCreateDuplicateAccountNumber(t *testing.T) {
	_, svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, accountdomain.CreateAccountInput{
		AccountNumber: "BA00000001",
		AccountName:   "Head Office",
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, accountdomain.CreateAccountInput{
		AccountNumber: "BA00000001",
		AccountName:   "Branch",
	})
	assert.ErrorIs(t, err, accountdomain.ErrAccountExists)
}

func TestMonthlyTotalsZeroFillsMissingMonths(t *testing.T) {
	db, svc, node := newTestService(t)
	ctx := context.Background()

	account, err := svc.Create(ctx, accountdomain.CreateAccountInput{
		AccountNumber: "BA00000002",
		AccountName:   "Warehouse",
	})
	require.NoError(t, err)

	accountID := account.ID
	march := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&billdomain.Bill{
		ID:                 node.Generate(),
		ServiceAccountID:   &accountID,
		InvoiceNumber:      "B1-000001",
		AccountNumber:      account.AccountNumber,
		BillingPeriodStart: march,
		BillingPeriodEnd:   march.AddDate(0, 1, -1),
		BillDate:           march.AddDate(0, 1, 0),
		TotalDue:           150,
		FileHash:           "h1",
		FilePath:           "/tmp/h1.pdf",
		FileName:           "march.pdf",
		ProcessingStatus:   billdomain.StatusCompleted,
	}).Error)

	totals, err := svc.MonthlyTotals(ctx, account.ID, 2025)
	require.NoError(t, err)
	require.Len(t, totals, 12)
	assert.Equal(t, 150.0, totals[2].Total)
	assert.Equal(t, "Mar", totals[2].MonthName)
	assert.Equal(t, 0.0, totals[0].Total)
	assert.Equal(t, 0.0, totals[11].Total)
}

func TestUpdateAppliesPartialChanges(t *testing.T) {
	_, svc, _ := newTestService(t)
	ctx := context.Background()

	account, err := svc.Create(ctx, accountdomain.CreateAccountInput{
		AccountNumber: "BA00000003",
		AccountName:   "Old Name",
	})
	require.NoError(t, err)

	name := "New Name"
	inactive := false
	updated, err := svc.Update(ctx, account.ID, accountdomain.UpdateAccountInput{
		AccountName: &name,
		IsActive:    &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.AccountName)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "Dhiraagu", updated.Provider)
}
