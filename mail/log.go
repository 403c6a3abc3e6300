package mail

import (
	"context"

	"github.com/rs/zerolog"
)

// LogTransport records messages in the log instead of sending them. The code
// itself is never logged.
type LogTransport struct {
	logger zerolog.Logger
}

func NewLogTransport(logger zerolog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(_ context.Context, msg Message) error {
	t.logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("smtp not configured, mail not sent")
	return nil
}
