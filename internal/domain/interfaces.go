package domain

import (
	"context"
	"io"
	"time"

	"rentals/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type PropertyRepository interface {
	CreateProperty(ctx context.Context, property *models.Property) error
	GetProperty(ctx context.Context, id int64) (*models.Property, error)
	UpdateProperty(ctx context.Context, property *models.Property) error
	ListPropertiesByOwner(ctx context.Context, ownerID int64) ([]*models.Property, error)
	ListAvailableProperties(ctx context.Context, kind models.PropertyKind, limit int) ([]*models.Property, error)
}

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking, alerts []*models.Alert) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookingsByUser(ctx context.Context, userID int64) ([]*models.Booking, error)
	ListBookingsByProperty(ctx context.Context, propertyID int64) ([]*models.Booking, error)
	ApplyTransition(ctx context.Context, tr *models.BookingTransition) error
}

type AlertRepository interface {
	CreateAlerts(ctx context.Context, alerts []*models.Alert) error
	ListAlerts(ctx context.Context, recipientID int64, unreadOnly bool, limit int) ([]*models.Alert, error)
	MarkAlertRead(ctx context.Context, id, recipientID int64) error
	DeleteBookingAlerts(ctx context.Context, bookingID, recipientID int64) (int64, error)
}

type ConversationRepository interface {
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	GetConversationByBooking(ctx context.Context, bookingID int64) (*models.Conversation, error)
	GetInquiryConversation(ctx context.Context, propertyID, userID int64) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	AddParticipants(ctx context.Context, conversationID int64, userIDs []int64) error
	ListConversationsByUser(ctx context.Context, userID int64) ([]*models.Conversation, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	UpdateUserTelegram(ctx context.Context, id, chatID int64) error
}

type ReviewRepository interface {
	// CreateReview stores the review and clears the author's alerts for the booking.
	CreateReview(ctx context.Context, review *models.Review) error
	ListReviewsByProperty(ctx context.Context, propertyID int64) ([]*models.Review, error)
}

type Repository interface {
	PropertyRepository
	BookingRepository
	AlertRepository
	ConversationRepository
	UserRepository
	ReviewRepository
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type SessionRepository interface {
	RateLimiter
	GetSession(ctx context.Context, token string) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error
	DeleteSession(ctx context.Context, token string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking, status string) error
}

// Notifier pushes an already persisted alert to an out-of-app channel.
type Notifier interface {
	Notify(ctx context.Context, alert *models.Alert) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
	DeleteBookingRow(ctx context.Context, bookingID int64) error
}

type BlobStore interface {
	Save(ctx context.Context, key string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

type BookingService interface {
	CreateBooking(ctx context.Context, sess *models.Session, req models.BookingRequest) (*models.Booking, error)
	InviteTenant(ctx context.Context, sess *models.Session, bookingID, userID int64) (*models.Booking, error)
	RespondToInvitation(ctx context.Context, sess *models.Session, bookingID int64, accept bool) (*models.Booking, error)
	SubmitBooking(ctx context.Context, sess *models.Session, bookingID int64) (*models.Booking, error)
	ApproveViewing(ctx context.Context, sess *models.Session, bookingID int64) (*models.Booking, error)
	ApproveBooking(ctx context.Context, sess *models.Session, bookingID int64) (*models.Booking, error)
	DeclineBooking(ctx context.Context, sess *models.Session, bookingID int64) (*models.Booking, error)
	CompleteBooking(ctx context.Context, sess *models.Session, bookingID int64) (*models.Booking, error)
	Evict(ctx context.Context, sess *models.Session, bookingID int64, userIDs []int64) (*models.Booking, error)
	SubmitReview(ctx context.Context, sess *models.Session, bookingID int64, rating int, comment string) (*models.Review, error)
	GetBooking(ctx context.Context, sess *models.Session, id int64) (*models.Booking, error)
	ListMyBookings(ctx context.Context, sess *models.Session) ([]*models.Booking, error)
	CheckDates(ctx context.Context, propertyID int64, start time.Time, duration int) error
}

type PropertyService interface {
	CreateProperty(ctx context.Context, sess *models.Session, property *models.Property) error
	UpdateProperty(ctx context.Context, sess *models.Session, property *models.Property) (*models.Property, error)
	SetStatus(ctx context.Context, sess *models.Session, id int64, status models.PropertyStatus) (*models.Property, error)
	GetProperty(ctx context.Context, id int64) (*models.Property, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*models.Property, error)
	ListAvailable(ctx context.Context, kind models.PropertyKind, limit int) ([]*models.Property, error)
	Calendar(ctx context.Context, id int64) (*models.PropertyCalendar, error)
	UploadImage(ctx context.Context, sess *models.Session, id int64, filename string, r io.Reader) (*models.Property, error)
	ListReviews(ctx context.Context, id int64) ([]*models.Review, error)
}

type AlertService interface {
	ListAlerts(ctx context.Context, sess *models.Session, unreadOnly bool) ([]*models.Alert, error)
	MarkRead(ctx context.Context, sess *models.Session, alertID int64) error
}

type ConversationService interface {
	StartInquiry(ctx context.Context, sess *models.Session, propertyID int64, body string) (*models.Conversation, error)
	ListConversations(ctx context.Context, sess *models.Session) ([]*models.Conversation, error)
	ListMessages(ctx context.Context, sess *models.Session, conversationID int64, limit int) ([]*models.Message, error)
	SendMessage(ctx context.Context, sess *models.Session, conversationID int64, body string) (*models.Message, error)
}

type SessionService interface {
	Create(ctx context.Context, userID int64) (*models.Session, error)
	Resolve(ctx context.Context, token string) (*models.Session, error)
	Refresh(ctx context.Context, token string) (*models.Session, error)
	Invalidate(ctx context.Context, token string) error
}

type UserService interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	LinkTelegram(ctx context.Context, sess *models.Session, chatID int64) error
}

type AnalyticsService interface {
	OwnerStats(ctx context.Context, sess *models.Session, from, to time.Time) ([]*models.PropertyStats, error)
	ExportOwnerReport(ctx context.Context, sess *models.Session, from, to time.Time) (string, error)
}
