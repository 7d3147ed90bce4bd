// Package notify pushes stored alerts to users over Telegram.
package notify

import (
	"context"
	"fmt"
	"html"

	"rentals/internal/domain"
	"rentals/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Telegram allows about 30 messages per second per bot.
const sendRate = 25

type TelegramNotifier struct {
	sender  domain.TelegramSender
	users   domain.UserRepository
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

var _ domain.Notifier = (*TelegramNotifier)(nil)

// NewBotAPI connects to Telegram and returns the API handle used as sender.
func NewBotAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	api.Debug = debug
	return api, nil
}

func NewTelegramNotifier(sender domain.TelegramSender, users domain.UserRepository, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender:  sender,
		users:   users,
		limiter: rate.NewLimiter(rate.Limit(sendRate), sendRate),
		logger:  logger,
	}
}

// Notify sends the alert to the recipient's linked chat. Users without a chat are skipped.
func (n *TelegramNotifier) Notify(ctx context.Context, alert *models.Alert) error {
	user, err := n.users.GetUserByID(ctx, alert.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to load recipient %d: %w", alert.RecipientID, err)
	}
	if user.TelegramChatID == 0 {
		n.logger.Debug().Int64("user_id", user.ID).Msg("no telegram chat linked, skipping push")
		return nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(user.TelegramChatID, FormatAlert(alert))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := n.sender.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// FormatAlert renders the push text for an alert.
func FormatAlert(alert *models.Alert) string {
	text := fmt.Sprintf("<b>%s</b>\n%s", alert.Type, html.EscapeString(alert.Message))
	if alert.BookingID != 0 {
		text += fmt.Sprintf("\nBooking #%d", alert.BookingID)
	}
	return text
}
