package providers

import (
	"context"
	"fmt"

	"oncall-service/internal/config"
	"oncall-service/internal/models"
	"oncall-service/internal/notifier"
	"oncall-service/pkg/telegram"
)

type telegramConfig struct {
	ChatID int64 `json:"chat_id"`
}

// Telegram delivers notifications via the service-wide Telegram bot.
type Telegram struct {
	cfg config.Config
}

func NewTelegram(cfg config.Config) *Telegram {
	return &Telegram{cfg: cfg}
}

func (t *Telegram) Type() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, msg notifier.Message, cp models.ContactPoint) error {
	var tCfg telegramConfig
	if err := decodeConfiguration(cp, &tCfg); err != nil {
		return err
	}
	if tCfg.ChatID == 0 {
		return fmt.Errorf("missing chat_id in Telegram configuration for contact point %s", cp.ID)
	}
	if t.cfg.Telegram.BotToken == "" {
		return fmt.Errorf("missing Telegram bot token")
	}

	text := fmt.Sprintf("%s\n%s", msg.Subject, msg.Body)
	return telegram.Send(ctx, t.cfg.Telegram.BotToken, tCfg.ChatID, text)
}
