package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/domain/ports/adapter"
)

var _ adapter.RedemptionNotifier = (*RedemptionNotifier)(nil)

// sender is the subset of *tgbotapi.BotAPI the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// RedemptionNotifier posts a short message to an operator chat for every
// redeemed code. Owner details are never included.
type RedemptionNotifier struct {
	bot    sender
	chatID int64
}

func NewRedemptionNotifier(token string, chatID int64) (*RedemptionNotifier, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram token and chat id are required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &RedemptionNotifier{bot: bot, chatID: chatID}, nil
}

func (n *RedemptionNotifier) NotifyRedeemed(ctx context.Context, c *model.BonusCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, FormatRedemption(c))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		_, err := n.bot.Send(msg)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FormatRedemption renders the MarkdownV2 notification body.
func FormatRedemption(c *model.BonusCode) string {
	mode := string(model.RedemptionEvidence)
	if c.RedemptionMode != nil {
		mode = string(*c.RedemptionMode)
	}
	used := ""
	if c.UsedAt != nil {
		used = c.UsedAt.UTC().Format("2006-01-02 15:04 MST")
	}
	return fmt.Sprintf("✅ Bonus code `%s` redeemed\n%s %d · shop %s\nmode: %s\nat: %s",
		c.Code, c.Currency, c.Amount,
		tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, c.ShopID),
		tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, strings.ReplaceAll(mode, "_", " ")),
		tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, used),
	)
}

// NoopNotifier logs instead of sending; used when no bot is configured.
type NoopNotifier struct {
	log *zerolog.Logger
}

var _ adapter.RedemptionNotifier = (*NoopNotifier)(nil)

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier { return &NoopNotifier{log: logger} }

func (n *NoopNotifier) NotifyRedeemed(ctx context.Context, c *model.BonusCode) error {
	if n.log != nil {
		n.log.Debug().Str("bonus_code_id", c.ID).Msg("[noop-telegram] redemption notification")
	}
	return nil
}
