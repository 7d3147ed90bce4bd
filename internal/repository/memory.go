package repository

import (
	"context"
	"sync"
	"time"

	"rentals/internal/models"
)

type memorySession struct {
	session   models.Session
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// MemorySessionRepository is the in-process fallback used while Redis is unreachable.
type MemorySessionRepository struct {
	mu         sync.Mutex
	sessions   map[string]memorySession
	rateLimits map[string]*rateLimitEntry
	now        func() time.Time
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions:   make(map[string]memorySession),
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

func (r *MemorySessionRepository) GetSession(_ context.Context, token string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[token]
	if !ok {
		return nil, nil
	}
	if !r.now().Before(entry.expiresAt) {
		delete(r.sessions, token)
		return nil, nil
	}
	s := entry.session
	return &s, nil
}

func (r *MemorySessionRepository) SaveSession(_ context.Context, s *models.Session, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.Token] = memorySession{session: *s, expiresAt: r.now().Add(ttl)}
	return nil
}

func (r *MemorySessionRepository) DeleteSession(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, token)
	return nil
}

func (r *MemorySessionRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
