package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier is the fallback notifier used when no chat integration is
// configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) NotifyStatusChange(ctx context.Context, bookingID int64, newStatus string, actorIDs []int64) {
	n.logger.Info().
		Int64("booking_id", bookingID).
		Str("status", newStatus).
		Ints64("actor_ids", actorIDs).
		Msg("booking status changed")
}
