package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to the structured log instead of sending
// mail. Useful for local runs and tests.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Send(ctx context.Context, subject, body string) error {
	_ = ctx
	n.log.Info().Str("subject", subject).Str("body", body).Msg("notification")
	return nil
}
