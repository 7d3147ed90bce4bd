package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentals/internal/database"
	"rentals/internal/domain"
	"rentals/internal/metrics"
	"rentals/internal/models"

	"github.com/rs/zerolog"
)

// AlertService owns the alert inbox. Persisted alerts are the source of truth;
// pushes through the notifier are best effort.
type AlertService struct {
	repo     domain.AlertRepository
	notifier domain.Notifier
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewAlertService(repo domain.AlertRepository, notifier domain.Notifier, logger *zerolog.Logger) *AlertService {
	return &AlertService{repo: repo, notifier: notifier, logger: logger, now: time.Now}
}

// Build returns one alert per distinct, non-zero recipient in input order.
func (s *AlertService) Build(recipients []int64, tmpl models.AlertTemplate) []*models.Alert {
	seen := make(map[int64]bool, len(recipients))
	alerts := make([]*models.Alert, 0, len(recipients))
	now := s.now()
	for _, id := range recipients {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		alerts = append(alerts, tmpl.For(id, now))
	}
	return alerts
}

// SendAlerts persists the fan-out in one transaction and then pushes it.
func (s *AlertService) SendAlerts(ctx context.Context, recipients []int64, tmpl models.AlertTemplate) ([]*models.Alert, error) {
	alerts := s.Build(recipients, tmpl)
	if len(alerts) == 0 {
		return nil, nil
	}
	if err := s.repo.CreateAlerts(ctx, alerts); err != nil {
		return nil, fmt.Errorf("failed to create alerts: %w", err)
	}
	metrics.AddAlerts(len(alerts))
	s.Dispatch(ctx, alerts)
	return alerts, nil
}

// Dispatch pushes already persisted alerts. Failures are logged and counted only.
func (s *AlertService) Dispatch(ctx context.Context, alerts []*models.Alert) {
	if s.notifier == nil {
		return
	}
	for _, a := range alerts {
		if err := s.notifier.Notify(ctx, a); err != nil {
			metrics.IncNotificationFailed("telegram")
			s.logger.Warn().Err(err).
				Int64("alert_id", a.ID).
				Int64("recipient_id", a.RecipientID).
				Msg("alert push failed")
		}
	}
}

func (s *AlertService) ListAlerts(ctx context.Context, sess *models.Session, unreadOnly bool) ([]*models.Alert, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.repo.ListAlerts(ctx, sess.UserID, unreadOnly, models.DefaultListLimit)
}

func (s *AlertService) MarkRead(ctx context.Context, sess *models.Session, alertID int64) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	err := s.repo.MarkAlertRead(ctx, alertID, sess.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("alert %d: %w", alertID, database.ErrNotFound)
	}
	return err
}
