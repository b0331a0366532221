package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"license-activation/internal/domain/model"
	"license-activation/internal/domain/ports/adapter"
	"license-activation/internal/infra/logging"
	"license-activation/internal/infra/worker"
)

var _ adapter.ActivationNotifier = (*Notifier)(nil)

// Notifier pushes activation events to admin chats on a worker pool so the
// activation request never waits on Telegram.
type Notifier struct {
	bot     adapter.TelegramBotAdapter
	chatIDs []int64
	pool    *worker.Pool
	dev     bool
	log     *zerolog.Logger
}

func NewNotifier(bot adapter.TelegramBotAdapter, chatIDs []int64, pool *worker.Pool, dev bool, logger *zerolog.Logger) *Notifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "ActivationNotifier").Logger()
	return &Notifier{bot: bot, chatIDs: chatIDs, pool: pool, dev: dev, log: &l}
}

// NotifyActivation queues one message per admin chat. It fails only when the
// queue rejects the work.
func (n *Notifier) NotifyActivation(_ context.Context, a *model.Activation) error {
	if len(n.chatIDs) == 0 {
		return nil
	}
	text := FormatActivation(a, n.dev)
	for _, id := range n.chatIDs {
		chatID := id
		err := n.pool.Submit(func(ctx context.Context) error {
			if err := n.bot.SendMessage(ctx, chatID, text); err != nil {
				return fmt.Errorf("notify chat %d: %w", chatID, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// FormatActivation renders the admin notification. Device ids are shortened
// outside dev mode.
func FormatActivation(a *model.Activation, dev bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "New activation\nCode: %s (%s, %d days)\nDevice: %s", a.Code, a.Type, a.DurationDays, logging.Redact(a.DeviceID, dev))
	if a.DeviceName != "" {
		fmt.Fprintf(&sb, " (%s)", a.DeviceName)
	}
	if a.BundleID != "" {
		fmt.Fprintf(&sb, "\nApp: %s", a.BundleID)
	}
	fmt.Fprintf(&sb, "\nAt: %s", a.ActivatedAt)
	return sb.String()
}
