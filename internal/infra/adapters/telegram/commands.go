package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"license-activation/internal/domain"
	"license-activation/internal/domain/model"
	"license-activation/internal/infra/logging"
	"license-activation/internal/infra/metrics"
)

// codes shown per tier by /list
const listPreview = 50

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes defines all available bot commands and their handlers.
func (b *AdminBot) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start": b.adminOnly(b.handleHelpCommand),
		"help":  b.adminOnly(b.handleHelpCommand),

		"list":   b.adminOnly(b.handleListCommand),
		"add":    b.adminOnly(b.handleAddCommand),
		"remove": b.adminOnly(b.handleRemoveCommand),
		"gen":    b.adminOnly(b.handleGenCommand),
		"usage":  b.adminOnly(b.handleUsageCommand),
	}
}

func (b *AdminBot) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if message.From == nil {
			return nil
		}
		if _, isAdmin := b.adminIDs[message.From.ID]; !isAdmin {
			metrics.IncAdminCommand("/"+message.Command(), "unauthorized")
			return b.SendMessage(ctx, message.Chat.ID, "This bot is for administrators only.")
		}
		ctx = logging.WithAdmin(ctx, strconv.FormatInt(message.From.ID, 10))
		err := next(ctx, message)
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.IncAdminCommand("/"+message.Command(), status)
		return err
	}
}

func (b *AdminBot) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return b.SendMessage(ctx, message.Chat.ID, strings.Join([]string{
		"Code pool administration:",
		"/list - pool sizes and a preview of each tier",
		"/add <monthly|yearly> <code> [code...] - add codes",
		"/remove <monthly|yearly> <code> - remove a code",
		"/gen <monthly|yearly> [count] - generate codes (1-200, default 10)",
		"/usage [limit] [cursor] - recent activations",
	}, "\n"))
}

func (b *AdminBot) handleListCommand(ctx context.Context, message *tgbotapi.Message) error {
	ov, err := b.adminUC.Overview(ctx, 1, "")
	if err != nil {
		return b.replyError(ctx, message, err)
	}
	var sb strings.Builder
	if !ov.FetchedAt.IsZero() {
		fmt.Fprintf(&sb, "Last fetched: %s\n", ov.FetchedAt.UTC().Format(time.RFC3339))
	}
	writeTier(&sb, model.TierMonthly, ov.Monthly)
	writeTier(&sb, model.TierYearly, ov.Yearly)
	return b.SendMessage(ctx, message.Chat.ID, sb.String())
}

func writeTier(sb *strings.Builder, tier model.Tier, codes []string) {
	fmt.Fprintf(sb, "\n%s (%d):\n", tier, len(codes))
	shown := codes
	if len(shown) > listPreview {
		shown = shown[:listPreview]
	}
	for _, c := range shown {
		sb.WriteString(c)
		sb.WriteByte('\n')
	}
	if rest := len(codes) - len(shown); rest > 0 {
		fmt.Fprintf(sb, "... and %d more\n", rest)
	}
}

func (b *AdminBot) handleAddCommand(ctx context.Context, message *tgbotapi.Message) error {
	args := strings.Fields(message.CommandArguments())
	if len(args) < 2 {
		return b.SendMessage(ctx, message.Chat.ID, "Usage: /add <monthly|yearly> <code> [code...]")
	}
	tier, err := model.ParseTier(args[0])
	if err != nil {
		return b.replyError(ctx, message, err)
	}
	added, err := b.adminUC.AddCodes(ctx, tier, args[1:])
	if err != nil {
		return b.replyError(ctx, message, err)
	}
	return b.SendMessage(ctx, message.Chat.ID, fmt.Sprintf("Added %d of %d code(s) to %s.", len(added), len(args)-1, tier))
}

func (b *AdminBot) handleRemoveCommand(ctx context.Context, message *tgbotapi.Message) error {
	args := strings.Fields(message.CommandArguments())
	if len(args) != 2 {
		return b.SendMessage(ctx, message.Chat.ID, "Usage: /remove <monthly|yearly> <code>")
	}
	tier, err := model.ParseTier(args[0])
	if err != nil {
		return b.replyError(ctx, message, err)
	}
	if err := b.adminUC.RemoveCode(ctx, tier, args[1]); err != nil {
		return b.replyError(ctx, message, err)
	}
	return b.SendMessage(ctx, message.Chat.ID, fmt.Sprintf("Removed %s from %s.", args[1], tier))
}

func (b *AdminBot) handleGenCommand(ctx context.Context, message *tgbotapi.Message) error {
	args := strings.Fields(message.CommandArguments())
	if len(args) < 1 || len(args) > 2 {
		return b.SendMessage(ctx, message.Chat.ID, "Usage: /gen <monthly|yearly> [count]")
	}
	tier, err := model.ParseTier(args[0])
	if err != nil {
		return b.replyError(ctx, message, err)
	}
	count := 10
	if len(args) == 2 {
		if count, err = strconv.Atoi(args[1]); err != nil {
			return b.SendMessage(ctx, message.Chat.ID, "Count must be a number.")
		}
	}
	codes, err := b.adminUC.GenerateCodes(ctx, tier, count)
	if err != nil {
		return b.replyError(ctx, message, err)
	}
	return b.SendMessage(ctx, message.Chat.ID, fmt.Sprintf("Generated %d %s code(s):\n%s", len(codes), tier, strings.Join(codes, "\n")))
}

func (b *AdminBot) handleUsageCommand(ctx context.Context, message *tgbotapi.Message) error {
	args := strings.Fields(message.CommandArguments())
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return b.SendMessage(ctx, message.Chat.ID, "Usage: /usage [limit] [cursor]")
		}
		limit = n
	}
	cursor := ""
	if len(args) > 1 {
		cursor = args[1]
	}
	recs, next, err := b.adminUC.ListUsage(ctx, limit, cursor)
	if err != nil {
		return b.replyError(ctx, message, err)
	}
	if len(recs) == 0 {
		return b.SendMessage(ctx, message.Chat.ID, "No activations recorded.")
	}
	var sb strings.Builder
	for _, r := range recs {
		fmt.Fprintf(&sb, "%s %s %s", r.Code, r.Type, r.DeviceID)
		if r.BundleID != "" {
			fmt.Fprintf(&sb, " [%s]", r.BundleID)
		}
		fmt.Fprintf(&sb, " %s\n", r.ActivatedAt)
	}
	if next != "" {
		fmt.Fprintf(&sb, "\nMore: /usage %d %s", limit, next)
	}
	return b.SendMessage(ctx, message.Chat.ID, sb.String())
}

// replyError tells the admin what went wrong. Input errors are echoed; anything
// else is logged and reported generically.
func (b *AdminBot) replyError(ctx context.Context, message *tgbotapi.Message, err error) error {
	if domain.KindOf(err) == domain.KindInvalidInput {
		return b.SendMessage(ctx, message.Chat.ID, "Error: "+err.Error())
	}
	l := logging.With(ctx, b.log)
	l.Error().Err(err).Str("command", message.Command()).Msg("admin command failed")
	if sendErr := b.SendMessage(ctx, message.Chat.ID, "Something went wrong. Check the server logs."); sendErr != nil {
		return sendErr
	}
	return err
}
