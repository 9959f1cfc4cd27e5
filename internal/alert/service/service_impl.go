package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	alertdomain "github.com/atolldev/billscan/internal/alert/domain"
	"github.com/atolldev/billscan/internal/config"
	"github.com/atolldev/billscan/internal/providers/slack"
	"github.com/atolldev/billscan/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Cfg   config.Config
	Slack slack.Provider
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	slack slack.Provider

	thresholdPct float64
	alertrepo    repository.Repository[alertdomain.Alert]
}

func NewService(p ServiceParam) alertdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("alert.service"),
		genID: p.GenID,
		slack: p.Slack,

		thresholdPct: p.Cfg.AlertThresholdPct,
		alertrepo:    repository.ProvideStore[alertdomain.Alert](p.DB),
	}
}

func (s *Service) DetectForBill(ctx context.Context, input alertdomain.DetectInput) ([]alertdomain.Alert, error) {
	if input.Bill.ServiceAccountID == nil {
		return nil, nil
	}

	candidates := make([]alertdomain.Alert, 0, 2)
	if alert := s.billIncreaseAlert(input); alert != nil {
		candidates = append(candidates, *alert)
	}
	if alert := s.newNumbersAlert(input); alert != nil {
		candidates = append(candidates, *alert)
	}

	created := make([]alertdomain.Alert, 0, len(candidates))
	for _, candidate := range candidates {
		// The unique (bill_id, alert_type) pair settles reprocessing: the
		// second detection of the same alert is a silent no-op.
		res := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "bill_id"}, {Name: "alert_type"}},
				DoNothing: true,
			}).
			Create(&candidate)
		if res.Error != nil {
			return nil, fmt.Errorf("create alert %s: %w", candidate.AlertType, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		created = append(created, candidate)
	}

	for _, alert := range created {
		s.notify(ctx, alert)
	}
	if len(created) > 0 {
		s.log.Info("alerts created",
			zap.Int64("bill_id", input.Bill.ID.Int64()),
			zap.Int("count", len(created)))
	}
	return created, nil
}

func (s *Service) billIncreaseAlert(input alertdomain.DetectInput) *alertdomain.Alert {
	if input.Previous == nil || input.Previous.TotalDue <= 0 {
		return nil
	}

	current := input.Bill.TotalDue
	previous := input.Previous.TotalDue
	// Threshold and severity are judged on the raw percentage; rounding is
	// for storage and display only.
	pct := (current - previous) / previous * 100
	if pct < s.thresholdPct {
		return nil
	}
	severity := alertdomain.SeverityFor(pct)
	rounded := round2(pct)

	metadata, _ := json.Marshal(map[string]any{
		"previous_invoice_number": input.Previous.InvoiceNumber,
		"previous_bill_date":      input.Previous.BillDate.Format("2006-01-02"),
		"current_total":           current,
		"previous_total":          previous,
		"percentage_increase":     rounded,
	})

	threshold := s.thresholdPct
	description := fmt.Sprintf(
		"Total due went from %.2f to %.2f (%.1f%% increase) compared to the previous bill %s.",
		previous, current, rounded, input.Previous.InvoiceNumber)
	return &alertdomain.Alert{
		ID:                 s.genID.Generate(),
		BillID:             input.Bill.ID,
		ServiceAccountID:   *input.Bill.ServiceAccountID,
		AlertType:          alertdomain.TypeHighCharge,
		Severity:           severity,
		Status:             alertdomain.StatusActive,
		CurrentAmount:      &current,
		PreviousAmount:     &previous,
		PercentageIncrease: &rounded,
		ThresholdExceeded:  &threshold,
		Title:              fmt.Sprintf("Bill increased %.1f%%", rounded),
		Description:        &description,
		Metadata:           metadata,
	}
}

func (s *Service) newNumbersAlert(input alertdomain.DetectInput) *alertdomain.Alert {
	// Every number is new on an account's first bill; only later bills
	// introducing numbers are worth flagging.
	if input.Previous == nil || len(input.NewNumbers) == 0 {
		return nil
	}

	metadata, _ := json.Marshal(map[string]any{
		"service_numbers": input.NewNumbers,
	})

	description := fmt.Sprintf("%d service number(s) appeared on this bill for the first time.", len(input.NewNumbers))
	return &alertdomain.Alert{
		ID:               s.genID.Generate(),
		BillID:           input.Bill.ID,
		ServiceAccountID: *input.Bill.ServiceAccountID,
		AlertType:        alertdomain.TypeNewLineItem,
		Severity:         alertdomain.SeverityLow,
		Status:           alertdomain.StatusActive,
		Title:            fmt.Sprintf("New service numbers on bill %s", input.Bill.InvoiceNumber),
		Description:      &description,
		Metadata:         metadata,
	}
}

func (s *Service) notify(ctx context.Context, alert alertdomain.Alert) {
	message := fmt.Sprintf("[%s] %s", alert.Severity, alert.Title)
	if alert.Description != nil {
		message += "\n" + *alert.Description
	}
	if err := s.slack.PostMessage(ctx, message); err != nil {
		s.log.Warn("alert notification failed",
			zap.Int64("alert_id", alert.ID.Int64()),
			zap.Error(err))
	}
}

func (s *Service) List(ctx context.Context, filter alertdomain.ListFilter) ([]alertdomain.Alert, error) {
	opts := []repository.QueryOption{repository.OrderBy("created_at desc")}
	if filter.ServiceAccountID != nil {
		opts = append(opts, repository.Where("service_account_id = ?", *filter.ServiceAccountID))
	}
	if filter.BillID != nil {
		opts = append(opts, repository.Where("bill_id = ?", *filter.BillID))
	}
	if filter.Status != "" {
		opts = append(opts, repository.Where("status = ?", filter.Status))
	}
	if filter.Severity != "" {
		opts = append(opts, repository.Where("severity = ?", filter.Severity))
	}
	if filter.Limit > 0 {
		opts = append(opts, repository.Limit(filter.Limit))
	}

	items, err := s.alertrepo.Find(ctx, &alertdomain.Alert{}, opts...)
	if err != nil {
		return nil, err
	}

	alerts := make([]alertdomain.Alert, 0, len(items))
	for _, item := range items {
		alerts = append(alerts, *item)
	}
	return alerts, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (alertdomain.Alert, error) {
	item, err := s.alertrepo.FindOne(ctx, &alertdomain.Alert{ID: id})
	if err != nil {
		return alertdomain.Alert{}, err
	}
	if item == nil {
		return alertdomain.Alert{}, alertdomain.ErrAlertNotFound
	}
	return *item, nil
}

func (s *Service) CountActive(ctx context.Context, accountID *snowflake.ID) (int64, error) {
	query := s.db.WithContext(ctx).Model(&alertdomain.Alert{}).
		Where("status = ?", alertdomain.StatusActive)
	if accountID != nil {
		query = query.Where("service_account_id = ?", *accountID)
	}

	var count int64
	err := query.Count(&count).Error
	return count, err
}

func (s *Service) Acknowledge(ctx context.Context, id snowflake.ID, by string) (alertdomain.Alert, error) {
	alert, err := s.GetByID(ctx, id)
	if err != nil {
		return alertdomain.Alert{}, err
	}
	if alert.Status != alertdomain.StatusActive {
		return alertdomain.Alert{}, alertdomain.ErrAlertNotActive
	}

	now := time.Now().UTC()
	if err := s.alertrepo.Update(ctx, id, map[string]any{
		"status":          alertdomain.StatusAcknowledged,
		"acknowledged_at": now,
		"acknowledged_by": by,
		"updated_at":      now,
	}); err != nil {
		return alertdomain.Alert{}, err
	}
	return s.GetByID(ctx, id)
}

func (s *Service) Resolve(ctx context.Context, id snowflake.ID, by, notes string) (alertdomain.Alert, error) {
	alert, err := s.GetByID(ctx, id)
	if err != nil {
		return alertdomain.Alert{}, err
	}
	if alert.Status != alertdomain.StatusActive && alert.Status != alertdomain.StatusAcknowledged {
		return alertdomain.Alert{}, alertdomain.ErrAlertNotPending
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":      alertdomain.StatusResolved,
		"resolved_at": now,
		"resolved_by": by,
		"updated_at":  now,
	}
	if notes != "" {
		updates["resolution_notes"] = notes
	}
	if err := s.alertrepo.Update(ctx, id, updates); err != nil {
		return alertdomain.Alert{}, err
	}
	return s.GetByID(ctx, id)
}

func (s *Service) Dismiss(ctx context.Context, id snowflake.ID) (alertdomain.Alert, error) {
	alert, err := s.GetByID(ctx, id)
	if err != nil {
		return alertdomain.Alert{}, err
	}
	if alert.Status != alertdomain.StatusActive {
		return alertdomain.Alert{}, alertdomain.ErrAlertNotActive
	}

	if err := s.alertrepo.Update(ctx, id, map[string]any{
		"status":     alertdomain.StatusDismissed,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		return alertdomain.Alert{}, err
	}
	return s.GetByID(ctx, id)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
