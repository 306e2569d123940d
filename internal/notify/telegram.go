package notify

import (
	"context"
	"fmt"
	"strings"

	"vendora/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramNotifier pushes booking status changes into an operations chat.
// Fire-and-forget: send failures are logged and never surfaced to callers.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger zerolog.Logger
}

func NewTelegramNotifier(cfg config.NotificationsConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug

	return &TelegramNotifier{
		bot:    bot,
		chatID: cfg.TelegramChatID,
		logger: logger.With().Str("component", "notifier").Logger(),
	}, nil
}

func (n *TelegramNotifier) NotifyStatusChange(ctx context.Context, bookingID int64, newStatus string, actorIDs []int64) {
	text := FormatStatusChange(bookingID, newStatus, actorIDs)

	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Warn().Err(err).
			Int64("booking_id", bookingID).
			Str("status", newStatus).
			Msg("failed to send telegram notification")
	}
}

// FormatStatusChange renders the notification line for a committed transition.
func FormatStatusChange(bookingID int64, newStatus string, actorIDs []int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Booking #%d is now %s", bookingID, newStatus)

	if len(actorIDs) > 0 {
		parts := make([]string, 0, len(actorIDs))
		for _, id := range actorIDs {
			if id != 0 {
				parts = append(parts, fmt.Sprintf("%d", id))
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, " (parties: %s)", strings.Join(parts, ", "))
		}
	}
	return b.String()
}
