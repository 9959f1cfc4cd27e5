package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	accountdomain "github.com/atolldev/billscan/internal/account/domain"
	"github.com/atolldev/billscan/internal/config"
	"github.com/atolldev/billscan/pkg/db"
	"github.com/atolldev/billscan/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Cfg   config.Config
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	defaultProvider string
	accountrepo     repository.Repository[accountdomain.ServiceAccount]
}

func NewService(p ServiceParam) accountdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("account.service"),
		genID: p.GenID,

		defaultProvider: p.Cfg.DefaultProvider,
		accountrepo:     repository.ProvideStore[accountdomain.ServiceAccount](p.DB),
	}
}

func (s *Service) List(ctx context.Context) ([]accountdomain.ServiceAccount, error) {
	items, err := s.accountrepo.Find(ctx, &accountdomain.ServiceAccount{},
		repository.OrderBy("account_name asc"))
	if err != nil {
		return nil, err
	}

	accounts := make([]accountdomain.ServiceAccount, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		accounts = append(accounts, *item)
	}
	return accounts, nil
}

func (s *Service) ListWithStats(ctx context.Context) ([]accountdomain.AccountStats, error) {
	var stats []accountdomain.AccountStats
	err := s.db.WithContext(ctx).Raw(
		`SELECT
		    sa.*,
		    COUNT(b.id) AS total_bills,
		    COALESCE(SUM(b.total_due), 0) AS total_spending,
		    COALESCE(AVG(b.total_due), 0) AS avg_bill_amount,
		    MAX(b.bill_date) AS latest_bill_date,
		    (SELECT COUNT(*) FROM alerts a
		      WHERE a.service_account_id = sa.id AND a.status = 'active') AS active_alerts
		 FROM service_accounts sa
		 LEFT JOIN bills b
		   ON sa.id = b.service_account_id AND b.processing_status = 'completed'
		 GROUP BY sa.id
		 ORDER BY sa.account_name ASC`,
	).Scan(&stats).Error
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	currentStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	previousStart := currentStart.AddDate(0, -1, 0)
	for i := range stats {
		current, err := s.periodTotal(ctx, stats[i].ID, currentStart, currentStart.AddDate(0, 1, 0))
		if err != nil {
			return nil, err
		}
		previous, err := s.periodTotal(ctx, stats[i].ID, previousStart, currentStart)
		if err != nil {
			return nil, err
		}
		stats[i].CurrentMonthTotal = current
		stats[i].PreviousMonthTotal = previous
	}
	return stats, nil
}

func (s *Service) periodTotal(ctx context.Context, accountID snowflake.ID, from, to time.Time) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(total_due), 0)
		 FROM bills
		 WHERE service_account_id = ?
		   AND billing_period_start >= ? AND billing_period_start < ?
		   AND processing_status = 'completed'`,
		accountID, from, to,
	).Scan(&total).Error
	return total, err
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (accountdomain.ServiceAccount, error) {
	item, err := s.accountrepo.FindOne(ctx, &accountdomain.ServiceAccount{ID: id})
	if err != nil {
		return accountdomain.ServiceAccount{}, err
	}
	if item == nil {
		return accountdomain.ServiceAccount{}, accountdomain.ErrAccountNotFound
	}
	return *item, nil
}

func (s *Service) GetByNumber(ctx context.Context, accountNumber string) (*accountdomain.ServiceAccount, error) {
	return s.accountrepo.FindOne(ctx, &accountdomain.ServiceAccount{AccountNumber: strings.TrimSpace(accountNumber)})
}

func (s *Service) Create(ctx context.Context, input accountdomain.CreateAccountInput) (accountdomain.ServiceAccount, error) {
	provider := strings.TrimSpace(input.Provider)
	if provider == "" {
		provider = s.defaultProvider
	}

	account := accountdomain.ServiceAccount{
		ID:            s.genID.Generate(),
		AccountNumber: strings.TrimSpace(input.AccountNumber),
		AccountName:   strings.TrimSpace(input.AccountName),
		Provider:      provider,
		Description:   input.Description,
		IsActive:      true,
	}
	if err := s.accountrepo.Create(ctx, &account); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return accountdomain.ServiceAccount{}, accountdomain.ErrAccountExists
		}
		return accountdomain.ServiceAccount{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, input accountdomain.UpdateAccountInput) (accountdomain.ServiceAccount, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if input.AccountName != nil {
		updates["account_name"] = *input.AccountName
	}
	if input.Provider != nil {
		updates["provider"] = *input.Provider
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if err := s.accountrepo.Update(ctx, id, updates); err != nil {
		return accountdomain.ServiceAccount{}, err
	}
	return s.GetByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	return s.accountrepo.Delete(ctx, id)
}

func (s *Service) Recent(ctx context.Context, hours int) ([]accountdomain.ServiceAccount, error) {
	if hours <= 0 {
		hours = 24
	}
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	items, err := s.accountrepo.Find(ctx, &accountdomain.ServiceAccount{},
		repository.Where("created_at >= ?", cutoff),
		repository.OrderBy("created_at desc"))
	if err != nil {
		return nil, err
	}

	accounts := make([]accountdomain.ServiceAccount, 0, len(items))
	for _, item := range items {
		accounts = append(accounts, *item)
	}
	return accounts, nil
}

func (s *Service) MonthlyTotals(ctx context.Context, id snowflake.ID, year int) ([]accountdomain.MonthlyTotal, error) {
	if year <= 0 {
		year = time.Now().UTC().Year()
	}

	type row struct {
		Month int
		Total float64
	}
	var rows []row
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	monthExpr := "CAST(EXTRACT(MONTH FROM billing_period_start) AS INTEGER)"
	if s.db.Dialector.Name() == "sqlite" {
		monthExpr = "CAST(strftime('%m', billing_period_start) AS INTEGER)"
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT `+monthExpr+` AS month,
		        COALESCE(SUM(total_due), 0) AS total
		 FROM bills
		 WHERE service_account_id = ?
		   AND billing_period_start >= ? AND billing_period_start < ?
		   AND processing_status = 'completed'
		 GROUP BY 1 ORDER BY 1`,
		id, from, to,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make([]accountdomain.MonthlyTotal, 12)
	for i := range totals {
		totals[i] = accountdomain.MonthlyTotal{
			Month:     i + 1,
			MonthName: time.Month(i + 1).String()[:3],
		}
	}
	for _, r := range rows {
		if r.Month >= 1 && r.Month <= 12 {
			totals[r.Month-1].Total = r.Total
		}
	}
	return totals, nil
}

// Resolve implements account auto-registration. Concurrent resolution of the
// same unknown number is settled by the account_number unique constraint: the
// loser of the race re-reads the winner's row.
func (s *Service) Resolve(ctx context.Context, accountNumber string) (accountdomain.ServiceAccount, bool, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	if accountNumber == "" {
		return accountdomain.ServiceAccount{}, false, accountdomain.ErrAccountNotFound
	}

	existing, err := s.GetByNumber(ctx, accountNumber)
	if err != nil {
		return accountdomain.ServiceAccount{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	description := "Automatically registered during bill processing. Please update account details."
	account := accountdomain.ServiceAccount{
		ID:             s.genID.Generate(),
		AccountNumber:  accountNumber,
		AccountName:    fmt.Sprintf("Auto-registered %s", accountNumber),
		Provider:       s.defaultProvider,
		Description:    &description,
		AutoRegistered: true,
		IsActive:       true,
	}
	if err := s.accountrepo.Create(ctx, &account); err != nil {
		if db.IsDuplicateKeyErr(err) {
			winner, lookupErr := s.GetByNumber(ctx, accountNumber)
			if lookupErr != nil {
				return accountdomain.ServiceAccount{}, false, lookupErr
			}
			if winner != nil {
				return *winner, false, nil
			}
		}
		return accountdomain.ServiceAccount{}, false, fmt.Errorf("auto-register account: %w", err)
	}

	s.log.Info("auto-registered account", zap.String("account_number", accountNumber))
	return account, true, nil
}
