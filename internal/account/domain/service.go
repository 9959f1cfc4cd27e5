package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrAccountNotFound = errors.New("service account not found")
	ErrAccountExists   = errors.New("service account already exists")
)

// Service is the account registry.
type Service interface {
	List(ctx context.Context) ([]ServiceAccount, error)
	ListWithStats(ctx context.Context) ([]AccountStats, error)
	GetByID(ctx context.Context, id snowflake.ID) (ServiceAccount, error)
	GetByNumber(ctx context.Context, accountNumber string) (*ServiceAccount, error)
	Create(ctx context.Context, input CreateAccountInput) (ServiceAccount, error)
	Update(ctx context.Context, id snowflake.ID, input UpdateAccountInput) (ServiceAccount, error)
	Delete(ctx context.Context, id snowflake.ID) error
	Recent(ctx context.Context, hours int) ([]ServiceAccount, error)
	MonthlyTotals(ctx context.Context, id snowflake.ID, year int) ([]MonthlyTotal, error)

	// Resolve looks up an account by number, auto-registering a placeholder
	// when absent. The bool result reports whether a new account was created.
	Resolve(ctx context.Context, accountNumber string) (ServiceAccount, bool, error)
}
