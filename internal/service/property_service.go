package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"rentals/internal/database"
	"rentals/internal/domain"
	"rentals/internal/events"
	"rentals/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

type propertyRepo interface {
	domain.PropertyRepository
	domain.ReviewRepository
}

type PropertyService struct {
	repo     propertyRepo
	blobs    domain.BlobStore
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewPropertyService(repo propertyRepo, blobs domain.BlobStore, eventBus domain.EventPublisher, logger *zerolog.Logger) *PropertyService {
	return &PropertyService{repo: repo, blobs: blobs, eventBus: eventBus, logger: logger}
}

// CreateProperty lists a new property owned by the session user.
func (s *PropertyService) CreateProperty(ctx context.Context, sess *models.Session, p *models.Property) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	p.OwnerID = sess.UserID
	p.Status = models.PropertyAvailable
	p.BookedDates = nil
	p.ViewingDates = nil
	if err := validateProperty(p); err != nil {
		return err
	}
	if err := s.repo.CreateProperty(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Int64("property_id", p.ID).Int64("owner_id", p.OwnerID).Str("kind", string(p.Kind)).Msg("property created")
	return nil
}

// UpdateProperty rewrites listing fields. Kind, status and calendars keep their stored values.
func (s *PropertyService) UpdateProperty(ctx context.Context, sess *models.Session, p *models.Property) (*models.Property, error) {
	current, err := s.ownedProperty(ctx, sess, p.ID)
	if err != nil {
		return nil, err
	}
	if p.Version != 0 && p.Version != current.Version {
		return nil, fmt.Errorf("property %d: %w", p.ID, database.ErrConcurrentModification)
	}

	current.Title = p.Title
	current.Description = p.Description
	current.Address = p.Address
	current.Price = p.Price
	current.Apartment = p.Apartment
	current.Transient = p.Transient
	if err := validateProperty(current); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProperty(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// SetStatus lets the owner reopen or withdraw a listing.
func (s *PropertyService) SetStatus(ctx context.Context, sess *models.Session, id int64, status models.PropertyStatus) (*models.Property, error) {
	if status != models.PropertyAvailable && status != models.PropertyUnavailable {
		return nil, fmt.Errorf("%w: unknown property status %q", ErrInvalidInput, status)
	}
	p, err := s.ownedProperty(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if p.Status == status {
		return p, nil
	}
	p.Status = status
	if err := s.repo.UpdateProperty(ctx, p); err != nil {
		return nil, err
	}

	if s.eventBus != nil {
		payload := events.PropertyEventPayload{PropertyID: p.ID, Status: string(status), ChangedByID: sess.UserID}
		if err := s.eventBus.PublishJSON(events.EventPropertyStatusChanged, payload); err != nil {
			s.logger.Error().Err(err).Int64("property_id", p.ID).Msg("publish property event")
		}
	}
	return p, nil
}

func (s *PropertyService) GetProperty(ctx context.Context, id int64) (*models.Property, error) {
	return s.repo.GetProperty(ctx, id)
}

func (s *PropertyService) ListByOwner(ctx context.Context, ownerID int64) ([]*models.Property, error) {
	return s.repo.ListPropertiesByOwner(ctx, ownerID)
}

func (s *PropertyService) ListAvailable(ctx context.Context, kind models.PropertyKind, limit int) ([]*models.Property, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown property kind %q", ErrInvalidInput, kind)
	}
	return s.repo.ListAvailableProperties(ctx, kind, limit)
}

// Calendar returns the property's occupancy flattened to plain date lists.
func (s *PropertyService) Calendar(ctx context.Context, id int64) (*models.PropertyCalendar, error) {
	p, err := s.repo.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.PropertyCalendar{
		PropertyID:   p.ID,
		Status:       p.Status,
		BookedDates:  p.AllBookedDates(),
		ViewingDates: p.AllViewingDates(),
	}, nil
}

// UploadImage stores an image in the blob store and appends its public URL.
func (s *PropertyService) UploadImage(ctx context.Context, sess *models.Session, id int64, filename string, r io.Reader) (*models.Property, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("%w: image storage is not configured", ErrInvalidInput)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !imageExtensions[ext] {
		return nil, fmt.Errorf("%w: unsupported image type %q", ErrInvalidInput, ext)
	}

	p, err := s.ownedProperty(ctx, sess, id)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("properties/%d/%s%s", p.ID, uuid.NewString(), ext)
	url, err := s.blobs.Save(ctx, key, r)
	if err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	p.Images = append(p.Images, url)
	if err := s.repo.UpdateProperty(ctx, p); err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.logger.Warn().Err(delErr).Str("key", key).Msg("orphaned image left in storage")
		}
		return nil, err
	}
	return p, nil
}

func (s *PropertyService) ListReviews(ctx context.Context, id int64) ([]*models.Review, error) {
	return s.repo.ListReviewsByProperty(ctx, id)
}

func (s *PropertyService) ownedProperty(ctx context.Context, sess *models.Session, id int64) (*models.Property, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	p, err := s.repo.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsOwnedBy(sess.UserID) {
		return nil, ErrForbidden
	}
	return p, nil
}
