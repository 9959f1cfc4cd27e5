package service

import (
	"context"
	"errors"
	"fmt"

	billdomain "github.com/atolldev/billscan/internal/bill/domain"
	chargedomain "github.com/atolldev/billscan/internal/charge/domain"
	numberdomain "github.com/atolldev/billscan/internal/servicenumber/domain"
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
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	chargerepo repository.Repository[chargedomain.MonthlyCharge]
}

func NewService(p ServiceParam) chargedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("charge.service"),
		genID: p.GenID,

		chargerepo: repository.ProvideStore[chargedomain.MonthlyCharge](p.DB),
	}
}

func (s *Service) RecordForBill(ctx context.Context, bill billdomain.Bill, items []billdomain.LineItem) (chargedomain.RecordResult, error) {
	if bill.ServiceAccountID == nil {
		return chargedomain.RecordResult{}, errors.New("bill is not linked to an account")
	}
	accountID := *bill.ServiceAccountID

	result := chargedomain.RecordResult{Unresolved: []string{}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			var registered numberdomain.ServiceNumber
			err := tx.Where("service_account_id = ? AND service_number = ?", accountID, item.ServiceNumber).
				First(&registered).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					result.Skipped++
					result.Unresolved = append(result.Unresolved, item.ServiceNumber)
					continue
				}
				return err
			}

			err = tx.Exec(
				`INSERT INTO service_number_monthly_charges
				   (id, service_number_id, bill_id, line_item_id, service_number,
				    billing_period_start, billing_period_end, bill_date,
				    subscription_charge, usage_charges, other_charges, total_charge,
				    package_name, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
				 ON CONFLICT (service_number, bill_id) DO UPDATE SET
				   service_number_id = excluded.service_number_id,
				   line_item_id = excluded.line_item_id,
				   billing_period_start = excluded.billing_period_start,
				   billing_period_end = excluded.billing_period_end,
				   bill_date = excluded.bill_date,
				   subscription_charge = excluded.subscription_charge,
				   usage_charges = excluded.usage_charges,
				   other_charges = excluded.other_charges,
				   total_charge = excluded.total_charge,
				   package_name = COALESCE(excluded.package_name, service_number_monthly_charges.package_name),
				   updated_at = CURRENT_TIMESTAMP`,
				s.genID.Generate(), registered.ID, bill.ID, item.ID, item.ServiceNumber,
				bill.BillingPeriodStart, bill.BillingPeriodEnd, bill.BillDate,
				item.SubscriptionCharge, item.UsageCharges, item.OtherCharges, item.TotalCharge,
				item.PackageName,
			).Error
			if err != nil {
				return fmt.Errorf("record charge for %s: %w", item.ServiceNumber, err)
			}
			result.Recorded++
		}
		return nil
	})
	if err != nil {
		return chargedomain.RecordResult{}, err
	}

	if result.Skipped > 0 {
		s.log.Warn("skipped unresolved service numbers",
			zap.Int64("bill_id", bill.ID.Int64()),
			zap.Strings("numbers", result.Unresolved))
	}
	return result, nil
}

func (s *Service) HistoryForNumber(ctx context.Context, serviceNumberID snowflake.ID) ([]chargedomain.MonthlyCharge, error) {
	items, err := s.chargerepo.Find(ctx, &chargedomain.MonthlyCharge{ServiceNumberID: serviceNumberID},
		repository.OrderBy("billing_period_start asc"))
	if err != nil {
		return nil, err
	}

	charges := make([]chargedomain.MonthlyCharge, 0, len(items))
	for _, item := range items {
		charges = append(charges, *item)
	}
	return charges, nil
}

func (s *Service) TotalsForNumber(ctx context.Context, serviceNumberID snowflake.ID) (chargedomain.NumberTotals, error) {
	var totals chargedomain.NumberTotals
	err := s.db.WithContext(ctx).Raw(
		`SELECT
		    MAX(service_number) AS service_number,
		    COUNT(*) AS months,
		    COALESCE(SUM(total_charge), 0) AS total,
		    COALESCE(AVG(total_charge), 0) AS average,
		    COALESCE(MIN(total_charge), 0) AS min,
		    COALESCE(MAX(total_charge), 0) AS max
		 FROM service_number_monthly_charges
		 WHERE service_number_id = ?`,
		serviceNumberID,
	).Scan(&totals).Error
	return totals, err
}
