package webcommon

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Notifier is the hook invoked when an unrecoverable persistence failure
// needs administrator attention. Mail delivery is an external collaborator;
// the production wiring logs at error level and a mail-backed implementation
// can be substituted where one is configured.
type Notifier interface {
	NotifyAdmins(ctx context.Context, subject string, err error)
}

// LogNotifier reports administrator notifications through the structured log.
type LogNotifier struct{}

func (LogNotifier) NotifyAdmins(ctx context.Context, subject string, err error) {
	log.Ctx(ctx).Error().Err(err).Str("subject", subject).Msg("administrator notification")
}
