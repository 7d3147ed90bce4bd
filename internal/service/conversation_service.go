package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rentals/internal/database"
	"rentals/internal/domain"
	"rentals/internal/events"
	"rentals/internal/models"

	"github.com/rs/zerolog"
)

const maxMessageLength = 4000

type conversationRepo interface {
	domain.ConversationRepository
	GetProperty(ctx context.Context, id int64) (*models.Property, error)
}

type ConversationService struct {
	repo     conversationRepo
	alerts   *AlertService
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewConversationService(repo conversationRepo, alerts *AlertService, eventBus domain.EventPublisher, logger *zerolog.Logger) *ConversationService {
	return &ConversationService{repo: repo, alerts: alerts, eventBus: eventBus, logger: logger}
}

// EnsureBookingConversation returns the booking's conversation, creating it or
// adding missing participants as needed.
func (s *ConversationService) EnsureBookingConversation(ctx context.Context, b *models.Booking, participants []int64) (*models.Conversation, error) {
	conv, err := s.repo.GetConversationByBooking(ctx, b.ID)
	switch {
	case err == nil:
		var missing []int64
		for _, id := range participants {
			if !conv.HasParticipant(id) {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			if err := s.repo.AddParticipants(ctx, conv.ID, missing); err != nil {
				return nil, fmt.Errorf("failed to add participants: %w", err)
			}
			conv.Participants = append(conv.Participants, missing...)
		}
		return conv, nil
	case !errors.Is(err, database.ErrNotFound):
		return nil, err
	}

	conv = &models.Conversation{
		Kind:         models.ConversationBooking,
		BookingID:    b.ID,
		PropertyID:   b.PropertyID,
		Participants: dedupe(participants),
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		// another request created it first
		if errors.Is(err, database.ErrDuplicate) {
			return s.repo.GetConversationByBooking(ctx, b.ID)
		}
		return nil, err
	}
	s.logger.Debug().Int64("booking_id", b.ID).Int64("conversation_id", conv.ID).Msg("booking conversation created")
	return conv, nil
}

// StartInquiry opens (or reuses) the user's conversation with a property owner
// and posts the first message.
func (s *ConversationService) StartInquiry(ctx context.Context, sess *models.Session, propertyID int64, body string) (*models.Conversation, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	body, err := cleanBody(body)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if p.IsOwnedBy(sess.UserID) {
		return nil, fmt.Errorf("%w: owners cannot inquire about their own property", ErrForbidden)
	}

	conv, err := s.repo.GetInquiryConversation(ctx, propertyID, sess.UserID)
	if errors.Is(err, database.ErrNotFound) {
		conv = &models.Conversation{
			Kind:         models.ConversationInquiry,
			PropertyID:   propertyID,
			Participants: []int64{sess.UserID, p.OwnerID},
		}
		err = s.repo.CreateConversation(ctx, conv)
	}
	if err != nil {
		return nil, err
	}

	if _, err := s.post(ctx, conv, sess.UserID, body); err != nil {
		return nil, err
	}

	_, err = s.alerts.SendAlerts(ctx, []int64{p.OwnerID}, models.AlertTemplate{
		Message:    fmt.Sprintf("New inquiry about %q", p.Title),
		Type:       models.AlertInquiry,
		PropertyID: p.ID,
		SenderID:   sess.UserID,
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ConversationService) ListConversations(ctx context.Context, sess *models.Session) ([]*models.Conversation, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.repo.ListConversationsByUser(ctx, sess.UserID)
}

func (s *ConversationService) ListMessages(ctx context.Context, sess *models.Session, conversationID int64, limit int) ([]*models.Message, error) {
	if _, err := s.participantConversation(ctx, sess, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > models.DefaultListLimit*4 {
		limit = models.DefaultListLimit
	}
	return s.repo.ListMessages(ctx, conversationID, limit)
}

func (s *ConversationService) SendMessage(ctx context.Context, sess *models.Session, conversationID int64, body string) (*models.Message, error) {
	conv, err := s.participantConversation(ctx, sess, conversationID)
	if err != nil {
		return nil, err
	}
	body, err = cleanBody(body)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, conv, sess.UserID, body)
}

func (s *ConversationService) participantConversation(ctx context.Context, sess *models.Session, id int64) (*models.Conversation, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	conv, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(sess.UserID) {
		return nil, ErrForbidden
	}
	return conv, nil
}

func (s *ConversationService) post(ctx context.Context, conv *models.Conversation, senderID int64, body string) (*models.Message, error) {
	msg := &models.Message{ConversationID: conv.ID, SenderID: senderID, Body: body}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	if s.eventBus != nil {
		payload := events.MessageEventPayload{ConversationID: conv.ID, MessageID: msg.ID, SenderID: senderID}
		if err := s.eventBus.PublishJSON(events.EventConversationMessageSent, payload); err != nil {
			s.logger.Error().Err(err).Int64("conversation_id", conv.ID).Msg("publish message event")
		}
	}
	return msg, nil
}

func cleanBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("%w: message body is empty", ErrInvalidInput)
	}
	if len(body) > maxMessageLength {
		return "", fmt.Errorf("%w: message is longer than %d bytes", ErrInvalidInput, maxMessageLength)
	}
	return body, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
