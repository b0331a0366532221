package adapter

import (
	"context"

	"license-activation/internal/domain/model"
)

type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// ActivationNotifier is told about every first-time activation.
type ActivationNotifier interface {
	NotifyActivation(ctx context.Context, a *model.Activation) error
}
