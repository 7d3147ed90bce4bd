package service

import (
	"context"
	"fmt"
	"time"

	"rentals/internal/domain"
	"rentals/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionService issues and resolves the opaque tokens that identify the acting user.
type SessionService struct {
	store  domain.SessionRepository
	users  domain.UserRepository
	ttl    time.Duration
	logger *zerolog.Logger
	now    func() time.Time
}

func NewSessionService(store domain.SessionRepository, users domain.UserRepository, ttl time.Duration, logger *zerolog.Logger) *SessionService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionService{store: store, users: users, ttl: ttl, logger: logger, now: time.Now}
}

func (s *SessionService) Create(ctx context.Context, userID int64) (*models.Session, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	now := s.now()
	sess := &models.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.SaveSession(ctx, sess, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	s.logger.Info().Int64("user_id", userID).Msg("session created")
	return sess, nil
}

// Resolve returns the live session for token or ErrUnauthenticated.
func (s *SessionService) Resolve(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	sess, err := s.store.GetSession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil || sess.Expired(s.now()) {
		return nil, ErrUnauthenticated
	}
	return sess, nil
}

// Refresh pushes the expiry of a live session one TTL into the future.
func (s *SessionService) Refresh(ctx context.Context, token string) (*models.Session, error) {
	sess, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	sess.ExpiresAt = s.now().Add(s.ttl)
	if err := s.store.SaveSession(ctx, sess, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return sess, nil
}

func (s *SessionService) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return ErrUnauthenticated
	}
	if err := s.store.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
