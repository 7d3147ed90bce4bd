package service

import (
	"context"
	"fmt"
	"time"

	"rentals/internal/calendar"
	"rentals/internal/domain"
	"rentals/internal/export"
	"rentals/internal/models"

	"github.com/rs/zerolog"
)

type analyticsRepo interface {
	domain.PropertyRepository
	ListBookingsByProperty(ctx context.Context, propertyID int64) ([]*models.Booking, error)
}

// AnalyticsService reports occupancy for an owner's listings.
type AnalyticsService struct {
	repo       analyticsRepo
	exportPath string
	logger     *zerolog.Logger
}

func NewAnalyticsService(repo analyticsRepo, exportPath string, logger *zerolog.Logger) *AnalyticsService {
	return &AnalyticsService{repo: repo, exportPath: exportPath, logger: logger}
}

// OwnerStats counts requests created in [from, to] and booked days falling in it.
// Only confirmed and completed bookings occupy days.
func (s *AnalyticsService) OwnerStats(ctx context.Context, sess *models.Session, from, to time.Time) ([]*models.PropertyStats, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	from, to = calendar.Day(from), calendar.Day(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: period end before start", ErrInvalidInput)
	}
	periodDays := len(calendar.Span(from, to))

	properties, err := s.repo.ListPropertiesByOwner(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	stats := make([]*models.PropertyStats, 0, len(properties))
	for _, p := range properties {
		bookings, err := s.repo.ListBookingsByProperty(ctx, p.ID)
		if err != nil {
			return nil, err
		}

		st := &models.PropertyStats{
			PropertyID: p.ID,
			Title:      p.Title,
			Kind:       p.Kind,
			PeriodDays: periodDays,
		}
		occupied := make(map[time.Time]bool)
		for _, b := range bookings {
			created := calendar.Day(b.CreatedAt)
			if !created.Before(from) && !created.After(to) {
				st.Requests++
			}
			switch b.Status {
			case models.StatusBookingConfirmed:
				st.Confirmed++
			case models.StatusBookingCompleted:
				st.Completed++
			case models.StatusBookingDeclined:
				st.Declined++
				continue
			default:
				continue
			}
			for _, d := range b.BookedDates {
				d = calendar.Day(d)
				if !d.Before(from) && !d.After(to) {
					occupied[d] = true
				}
			}
		}
		st.BookedDays = len(occupied)
		st.OccupancyRate = float64(st.BookedDays) / float64(periodDays)
		stats = append(stats, st)
	}

	return stats, nil
}

func (s *AnalyticsService) ExportOwnerReport(ctx context.Context, sess *models.Session, from, to time.Time) (string, error) {
	stats, err := s.OwnerStats(ctx, sess, from, to)
	if err != nil {
		return "", err
	}

	path, err := export.WriteOwnerReport(s.exportPath, sess.UserID, stats, calendar.Day(from), calendar.Day(to))
	if err != nil {
		s.logger.Error().Err(err).Int64("owner_id", sess.UserID).Msg("Failed to export owner report")
		return "", err
	}

	s.logger.Info().Int64("owner_id", sess.UserID).Str("path", path).Int("properties", len(stats)).Msg("Owner report exported")
	return path, nil
}
