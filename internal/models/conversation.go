package models

import "time"

type ConversationKind string

const (
	ConversationBooking ConversationKind = "booking"
	ConversationInquiry ConversationKind = "inquiry"
)

type Conversation struct {
	ID           int64            `json:"id"`
	Kind         ConversationKind `json:"kind"`
	BookingID    int64            `json:"booking_id,omitempty"`
	PropertyID   int64            `json:"property_id"`
	Participants []int64          `json:"participants"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (c *Conversation) HasParticipant(userID int64) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}
