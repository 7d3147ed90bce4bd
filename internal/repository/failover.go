package repository

import (
	"context"
	"sync/atomic"
	"time"

	"rentals/internal/domain"
	"rentals/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSessionRepository serves from primary until it errors, then from fallback.
// Primary is retried once per recoveryInterval.
type FailoverSessionRepository struct {
	primary   domain.SessionRepository
	fallback  domain.SessionRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverSessionRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	return r.now().Sub(last) > recoveryInterval
}

func (r *FailoverSessionRepository) markResult(err error) {
	if err == nil {
		if r.isDown.Swap(false) {
			r.logger.Info().Msg("primary session store recovered")
		}
		return
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("primary session store failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, token string) (*models.Session, error) {
	if r.usePrimary() {
		s, err := r.primary.GetSession(ctx, token)
		r.markResult(err)
		if err == nil {
			return s, nil
		}
	}
	return r.fallback.GetSession(ctx, token)
}

func (r *FailoverSessionRepository) SaveSession(ctx context.Context, s *models.Session, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.SaveSession(ctx, s, ttl)
		r.markResult(err)
		if err == nil {
			return nil
		}
	}
	return r.fallback.SaveSession(ctx, s, ttl)
}

// DeleteSession removes the token from both stores so a session created during an outage is also revoked.
func (r *FailoverSessionRepository) DeleteSession(ctx context.Context, token string) error {
	fbErr := r.fallback.DeleteSession(ctx, token)
	if r.usePrimary() {
		err := r.primary.DeleteSession(ctx, token)
		r.markResult(err)
		if err == nil {
			return nil
		}
	}
	return fbErr
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		r.markResult(err)
		if err == nil {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
