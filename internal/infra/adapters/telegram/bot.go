package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"license-activation/internal/domain/ports/adapter"
	"license-activation/internal/usecase"
)

// telegram rejects messages longer than this
const maxMessageLen = 4096

// botAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

var _ adapter.TelegramBotAdapter = (*AdminBot)(nil)

// AdminBot polls updates and serves pool administration commands to the
// configured admin chats. It also delivers outgoing notifications.
type AdminBot struct {
	api      botAPI
	adminUC  usecase.AdminUseCase
	adminIDs map[int64]struct{}
	workers  int
	log      *zerolog.Logger

	mu            sync.Mutex
	cancelPolling context.CancelFunc
}

func NewAdminBot(token string, adminIDs []int64, adminUC usecase.AdminUseCase, updateWorkers int, logger *zerolog.Logger) (*AdminBot, error) {
	if token == "" {
		return nil, errors.New("bot token is empty")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = false
	return newAdminBot(api, adminIDs, adminUC, updateWorkers, logger), nil
}

func newAdminBot(api botAPI, adminIDs []int64, adminUC usecase.AdminUseCase, updateWorkers int, logger *zerolog.Logger) *AdminBot {
	if updateWorkers <= 0 {
		updateWorkers = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "AdminBot").Logger()
	ids := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		ids[id] = struct{}{}
	}
	return &AdminBot{api: api, adminUC: adminUC, adminIDs: ids, workers: updateWorkers, log: &l}
}

// AdminIDs lists the chats that receive notifications.
func (b *AdminBot) AdminIDs() []int64 {
	out := make([]int64, 0, len(b.adminIDs))
	for id := range b.adminIDs {
		out = append(out, id)
	}
	return out
}

// StartPolling blocks until ctx is cancelled or StopPolling is called.
func (b *AdminBot) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancelPolling = cancel
	b.mu.Unlock()

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for up := range updateChan {
				if err := b.handleUpdate(ctx, up); err != nil {
					b.log.Warn().Int("worker", id).Err(err).Msg("update handling failed")
				}
			}
		}(i)
	}

	defer func() {
		b.api.StopReceivingUpdates()
		close(updateChan)
		wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case updateChan <- up:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (b *AdminBot) StopPolling() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelPolling != nil {
		b.cancelPolling()
	}
}

func (b *AdminBot) handleUpdate(ctx context.Context, up tgbotapi.Update) error {
	m := up.Message
	if m == nil || !m.IsCommand() {
		return nil
	}
	h, ok := b.commandRoutes()[m.Command()]
	if !ok {
		return b.SendMessage(ctx, m.Chat.ID, "Unknown command. Try /help.")
	}
	return h(ctx, m)
}

// SendMessage sends text, split into chunks Telegram accepts.
func (b *AdminBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.DisableWebPagePreview = true
		if _, err := b.api.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

// splitMessage cuts on line boundaries where possible.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var out []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
		}
		out = append(out, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
