package models

import "time"

type AlertType string

const (
	AlertBooking AlertType = "Booking"
	AlertInquiry AlertType = "Inquiry"
)

// Alert is an in-app notification addressed to a single recipient.
type Alert struct {
	ID          int64     `json:"id"`
	RecipientID int64     `json:"recipient_id"`
	Message     string    `json:"message"`
	Type        AlertType `json:"type"`
	BookingID   int64     `json:"booking_id,omitempty"`
	PropertyID  int64     `json:"property_id"`
	SenderID    int64     `json:"sender_id"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

// AlertTemplate holds the fields shared by every alert of one fan-out.
type AlertTemplate struct {
	Message    string
	Type       AlertType
	BookingID  int64
	PropertyID int64
	SenderID   int64
}

func (t AlertTemplate) For(recipientID int64, now time.Time) *Alert {
	return &Alert{
		RecipientID: recipientID,
		Message:     t.Message,
		Type:        t.Type,
		BookingID:   t.BookingID,
		PropertyID:  t.PropertyID,
		SenderID:    t.SenderID,
		CreatedAt:   now,
	}
}
