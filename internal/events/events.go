package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventBookingCreated          = "booking_created"
	EventBookingSubmitted        = "booking_submitted"
	EventTenantInvited           = "tenant_invited"
	EventInvitationAnswered      = "invitation_answered"
	EventViewingApproved         = "viewing_approved"
	EventBookingConfirmed        = "booking_confirmed"
	EventBookingDeclined         = "booking_declined"
	EventBookingCompleted        = "booking_completed"
	EventTenantEvicted           = "tenant_evicted"
	EventReviewSubmitted         = "review_submitted"
	EventPropertyStatusChanged   = "property_status_changed"
	EventConversationMessageSent = "conversation_message_sent"
)

// BookingEventPayload is the booking snapshot handed to event consumers.
type BookingEventPayload struct {
	BookingID   int64     `json:"booking_id"`
	PropertyID  int64     `json:"property_id"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	HostID      int64     `json:"host_id,omitempty"`
	TenantIDs   []int64   `json:"tenant_ids,omitempty"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	ChangedByID int64     `json:"changed_by_id,omitempty"`
	SubjectID   int64     `json:"subject_id,omitempty"`
	Comment     string    `json:"comment,omitempty"`
}

// PropertyEventPayload is emitted when a listing flips availability.
type PropertyEventPayload struct {
	PropertyID  int64  `json:"property_id"`
	Status      string `json:"status"`
	ChangedByID int64  `json:"changed_by_id"`
}

// MessageEventPayload is emitted for every conversation message.
type MessageEventPayload struct {
	ConversationID int64 `json:"conversation_id"`
	MessageID      int64 `json:"message_id"`
	SenderID       int64 `json:"sender_id"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. A nil logger discards handler errors.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handlers run synchronously
// and a failing handler does not stop the rest.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}

	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
