package domain

import (
	"context"

	billdomain "github.com/atolldev/billscan/internal/bill/domain"
	"github.com/bwmarrin/snowflake"
)

// Service maintains the monthly charge ledger.
type Service interface {
	// RecordForBill writes one ledger row per line item whose service number
	// is already registered for the bill's account. Line items whose number
	// could not be resolved are skipped and reported, never fatal.
	RecordForBill(ctx context.Context, bill billdomain.Bill, items []billdomain.LineItem) (RecordResult, error)

	// HistoryForNumber returns the ledger rows for one registered number,
	// oldest billing period first.
	HistoryForNumber(ctx context.Context, serviceNumberID snowflake.ID) ([]MonthlyCharge, error)

	TotalsForNumber(ctx context.Context, serviceNumberID snowflake.ID) (NumberTotals, error)
}
