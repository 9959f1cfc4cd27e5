package service

import (
	"context"
	"fmt"
	"strings"
	"time"

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

	numberrepo repository.Repository[numberdomain.ServiceNumber]
}

func NewService(p ServiceParam) numberdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("servicenumber.service"),
		genID: p.GenID,

		numberrepo: repository.ProvideStore[numberdomain.ServiceNumber](p.DB),
	}
}

func (s *Service) Track(ctx context.Context, accountID, billID snowflake.ID, billDate time.Time, items []numberdomain.TrackedItem) (numberdomain.TrackResult, error) {
	result := numberdomain.TrackResult{NewNumbers: []string{}}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			number := strings.TrimSpace(item.ServiceNumber)
			if number == "" {
				continue
			}

			var count int64
			if err := tx.Model(&numberdomain.ServiceNumber{}).
				Where("service_account_id = ? AND service_number = ?", accountID, number).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				result.NewNumbers = append(result.NewNumbers, number)
			}

			// Upsert keyed on (account, number). first_seen only moves back,
			// last_seen only moves forward, and package_name sticks once known.
			err := tx.Exec(
				`INSERT INTO service_numbers
				   (id, service_account_id, service_number, package_name,
				    first_seen_bill_id, first_seen_date, last_seen_bill_id, last_seen_date,
				    is_active, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, TRUE, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
				 ON CONFLICT (service_account_id, service_number) DO UPDATE SET
				   package_name = COALESCE(service_numbers.package_name, excluded.package_name),
				   first_seen_bill_id = CASE
				     WHEN service_numbers.first_seen_date IS NULL OR excluded.first_seen_date < service_numbers.first_seen_date
				     THEN excluded.first_seen_bill_id ELSE service_numbers.first_seen_bill_id END,
				   first_seen_date = CASE
				     WHEN service_numbers.first_seen_date IS NULL OR excluded.first_seen_date < service_numbers.first_seen_date
				     THEN excluded.first_seen_date ELSE service_numbers.first_seen_date END,
				   last_seen_bill_id = CASE
				     WHEN service_numbers.last_seen_date IS NULL OR excluded.last_seen_date >= service_numbers.last_seen_date
				     THEN excluded.last_seen_bill_id ELSE service_numbers.last_seen_bill_id END,
				   last_seen_date = CASE
				     WHEN service_numbers.last_seen_date IS NULL OR excluded.last_seen_date >= service_numbers.last_seen_date
				     THEN excluded.last_seen_date ELSE service_numbers.last_seen_date END,
				   updated_at = CURRENT_TIMESTAMP`,
				s.genID.Generate(), accountID, number, item.PackageName,
				billID, billDate, billID, billDate,
			).Error
			if err != nil {
				return fmt.Errorf("track service number %s: %w", number, err)
			}
			result.Tracked++
		}
		return nil
	})
	if err != nil {
		return numberdomain.TrackResult{}, err
	}

	if len(result.NewNumbers) > 0 {
		s.log.Info("registered new service numbers",
			zap.Int64("service_account_id", accountID.Int64()),
			zap.Strings("numbers", result.NewNumbers))
	}
	return result, nil
}

func (s *Service) List(ctx context.Context, filter numberdomain.ListFilter) ([]numberdomain.ServiceNumber, error) {
	opts := []repository.QueryOption{repository.OrderBy("service_number asc")}
	if filter.ServiceAccountID != nil {
		opts = append(opts, repository.Where("service_account_id = ?", *filter.ServiceAccountID))
	}
	if filter.ActiveOnly {
		opts = append(opts, repository.Where("is_active = ?", true))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		opts = append(opts, repository.Where("service_number LIKE ?", "%"+search+"%"))
	}

	items, err := s.numberrepo.Find(ctx, &numberdomain.ServiceNumber{}, opts...)
	if err != nil {
		return nil, err
	}

	numbers := make([]numberdomain.ServiceNumber, 0, len(items))
	for _, item := range items {
		numbers = append(numbers, *item)
	}
	return numbers, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (numberdomain.ServiceNumber, error) {
	item, err := s.numberrepo.FindOne(ctx, &numberdomain.ServiceNumber{ID: id})
	if err != nil {
		return numberdomain.ServiceNumber{}, err
	}
	if item == nil {
		return numberdomain.ServiceNumber{}, numberdomain.ErrServiceNumberNotFound
	}
	return *item, nil
}

func (s *Service) SetActive(ctx context.Context, id snowflake.ID, active bool) (numberdomain.ServiceNumber, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return numberdomain.ServiceNumber{}, err
	}
	if err := s.numberrepo.Update(ctx, id, map[string]any{
		"is_active":  active,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		return numberdomain.ServiceNumber{}, err
	}
	return s.GetByID(ctx, id)
}

func (s *Service) UpdateNotes(ctx context.Context, id snowflake.ID, notes string) (numberdomain.ServiceNumber, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return numberdomain.ServiceNumber{}, err
	}
	if err := s.numberrepo.Update(ctx, id, map[string]any{
		"notes":      notes,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		return numberdomain.ServiceNumber{}, err
	}
	return s.GetByID(ctx, id)
}

func (s *Service) Recent(ctx context.Context, hours int) ([]numberdomain.ServiceNumber, error) {
	if hours <= 0 {
		hours = 24
	}
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	items, err := s.numberrepo.Find(ctx, &numberdomain.ServiceNumber{},
		repository.Where("created_at >= ?", cutoff),
		repository.OrderBy("created_at desc"))
	if err != nil {
		return nil, err
	}

	numbers := make([]numberdomain.ServiceNumber, 0, len(items))
	for _, item := range items {
		numbers = append(numbers, *item)
	}
	return numbers, nil
}
