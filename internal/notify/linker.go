package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"rentals/internal/domain"
	"rentals/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// UpdateSource is the long-polling half of the bot API.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

const (
	replyLinked  = "Notifications are on. Booking and inquiry alerts will arrive in this chat."
	replyExpired = "This link has expired. Open the app and request a new one."
	replyHelp    = "Open the notification link from the app to connect this chat."
	replyFailed  = "Something went wrong, please try again later."
)

// ChatLinker answers /start <session token> deep links by attaching the chat to
// the session's user.
type ChatLinker struct {
	updates  UpdateSource
	sender   domain.TelegramSender
	sessions domain.SessionService
	users    domain.UserService
	logger   *zerolog.Logger
}

func NewChatLinker(updates UpdateSource, sender domain.TelegramSender, sessions domain.SessionService, users domain.UserService, logger *zerolog.Logger) *ChatLinker {
	return &ChatLinker{updates: updates, sender: sender, sessions: sessions, users: users, logger: logger}
}

// Run polls updates until ctx is cancelled.
func (l *ChatLinker) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := l.updates.GetUpdatesChan(u)
	defer l.updates.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("telegram linker stopping")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			l.handle(ctx, update)
		}
	}
}

func (l *ChatLinker) handle(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	log := l.logger.With().Str("request_id", uuid.NewString()).Int64("chat_id", msg.Chat.ID).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("telegram update handler panicked")
		}
	}()

	if !msg.IsCommand() || msg.Command() != "start" {
		l.reply(msg.Chat.ID, replyHelp, &log)
		return
	}
	token := strings.TrimSpace(msg.CommandArguments())
	if token == "" {
		l.reply(msg.Chat.ID, replyHelp, &log)
		return
	}

	sess, err := l.sessions.Resolve(updateCtx, token)
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) {
			l.reply(msg.Chat.ID, replyExpired, &log)
			return
		}
		log.Error().Err(err).Msg("resolve session for chat link")
		l.reply(msg.Chat.ID, replyFailed, &log)
		return
	}

	if err := l.users.LinkTelegram(updateCtx, sess, msg.Chat.ID); err != nil {
		log.Error().Err(err).Int64("user_id", sess.UserID).Msg("link telegram chat")
		l.reply(msg.Chat.ID, replyFailed, &log)
		return
	}
	log.Info().Int64("user_id", sess.UserID).Msg("telegram chat linked")
	l.reply(msg.Chat.ID, replyLinked, &log)
}

func (l *ChatLinker) reply(chatID int64, text string, log *zerolog.Logger) {
	if _, err := l.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Warn().Err(err).Msg("telegram reply failed")
	}
}
