package notify

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Notifier delivers operational reports (retention sweeps, failures) to a
// configured destination.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// LogNotifier writes reports to the service log. Used when no external
// destination is configured.
type LogNotifier struct{}

// Compile-time interface check.
var _ Notifier = LogNotifier{}

func (LogNotifier) Send(_ context.Context, text string) error {
	log.Info().Str("report", text).Msg("notify")
	return nil
}
