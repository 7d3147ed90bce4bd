package models

import "time"

type User struct {
	ID             int64     `json:"id" yaml:"id"`
	Name           string    `json:"name" yaml:"name" validate:"required,max=100"`
	Email          string    `json:"email" yaml:"email" validate:"required,email"`
	Phone          string    `json:"phone" yaml:"phone" validate:"omitempty,e164"`
	TelegramChatID int64     `json:"telegram_chat_id,omitempty" yaml:"telegram_chat_id"`
	CreatedAt      time.Time `json:"created_at" yaml:"-"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"-"`
}

// Session binds an opaque token to the acting user.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type Review struct {
	ID         int64     `json:"id"`
	BookingID  int64     `json:"booking_id"`
	PropertyID int64     `json:"property_id"`
	AuthorID   int64     `json:"author_id"`
	Rating     int       `json:"rating" validate:"gte=1,lte=5"`
	Comment    string    `json:"comment" validate:"max=2000"`
	CreatedAt  time.Time `json:"created_at"`
}

// PropertyStats summarizes one property's bookings over a period.
type PropertyStats struct {
	PropertyID    int64        `json:"property_id"`
	Title         string       `json:"title"`
	Kind          PropertyKind `json:"kind"`
	Requests      int          `json:"requests"`
	Confirmed     int          `json:"confirmed"`
	Completed     int          `json:"completed"`
	Declined      int          `json:"declined"`
	BookedDays    int          `json:"booked_days"`
	PeriodDays    int          `json:"period_days"`
	OccupancyRate float64      `json:"occupancy_rate"`
}
