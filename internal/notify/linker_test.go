package notify

import (
	"context"
	"errors"
	"testing"

	"rentals/internal/models"
	"rentals/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type fakeSource struct {
	ch      chan tgbotapi.Update
	stopped bool
}

func (f *fakeSource) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.ch
}

func (f *fakeSource) StopReceivingUpdates() {
	f.stopped = true
}

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Create(ctx context.Context, userID int64) (*models.Session, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockSessions) Resolve(ctx context.Context, token string) (*models.Session, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockSessions) Refresh(ctx context.Context, token string) (*models.Session, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockSessions) Invalidate(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

type mockUserService struct {
	mock.Mock
}

func (m *mockUserService) CreateUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserService) LinkTelegram(ctx context.Context, sess *models.Session, chatID int64) error {
	return m.Called(ctx, sess, chatID).Error(0)
}

func commandUpdate(chatID int64, text string) tgbotapi.Update {
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}}
}

func replyTo(chatID int64, text string) interface{} {
	return mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == chatID && msg.Text == text
	})
}

func TestChatLinker(t *testing.T) {
	logger := zerolog.Nop()
	sess := &models.Session{Token: "tok-1", UserID: 7}

	sender := new(mockSender)
	sessions := new(mockSessions)
	users := new(mockUserService)

	sessions.On("Resolve", mock.Anything, "tok-1").Return(sess, nil)
	sessions.On("Resolve", mock.Anything, "stale").Return(nil, service.ErrUnauthenticated)
	sessions.On("Resolve", mock.Anything, "broken").Return(nil, errors.New("redis down"))
	users.On("LinkTelegram", mock.Anything, sess, int64(100)).Return(nil).Once()

	sender.On("Send", replyTo(100, replyLinked)).Return(tgbotapi.Message{}, nil).Once()
	sender.On("Send", replyTo(200, replyExpired)).Return(tgbotapi.Message{}, nil).Once()
	sender.On("Send", replyTo(300, replyFailed)).Return(tgbotapi.Message{}, nil).Once()
	sender.On("Send", replyTo(400, replyHelp)).Return(tgbotapi.Message{}, nil).Twice()

	source := &fakeSource{ch: make(chan tgbotapi.Update, 8)}
	source.ch <- commandUpdate(100, "/start tok-1")
	source.ch <- commandUpdate(200, "/start stale")
	source.ch <- commandUpdate(300, "/start broken")
	source.ch <- commandUpdate(400, "/start")
	source.ch <- tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 400}, Text: "hello"}}
	source.ch <- tgbotapi.Update{}
	close(source.ch)

	NewChatLinker(source, sender, sessions, users, &logger).Run(context.Background())

	assert.True(t, source.stopped)
	sender.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestChatLinkerStopsOnCancel(t *testing.T) {
	logger := zerolog.Nop()
	source := &fakeSource{ch: make(chan tgbotapi.Update)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewChatLinker(source, new(mockSender), new(mockSessions), new(mockUserService), &logger).Run(ctx)
	assert.True(t, source.stopped)
}
