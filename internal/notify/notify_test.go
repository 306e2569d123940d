package notify

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestFormatStatusChange(t *testing.T) {
	tests := []struct {
		name     string
		id       int64
		status   string
		actors   []int64
		expected string
	}{
		{
			name:     "with parties",
			id:       42,
			status:   "completed",
			actors:   []int64{7, 12},
			expected: "Booking #42 is now completed (parties: 7, 12)",
		},
		{
			name:     "no parties",
			id:       42,
			status:   "refunded",
			actors:   nil,
			expected: "Booking #42 is now refunded",
		},
		{
			name:     "zero actor ids are skipped",
			id:       9,
			status:   "confirmed",
			actors:   []int64{0, 3},
			expected: "Booking #9 is now confirmed (parties: 3)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatStatusChange(tt.id, tt.status, tt.actors))
		})
	}
}

func TestLogNotifierDoesNotPanic(t *testing.T) {
	logger := zerolog.New(io.Discard)
	n := NewLogNotifier(&logger)
	n.NotifyStatusChange(context.Background(), 1, "confirmed", []int64{1, 2})
}
