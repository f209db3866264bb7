package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
)

func Send(ctx context.Context, token string, chatID int64, message string) error {
	b, err := bot.New(token)
	if err != nil {
		return fmt.Errorf("failed to init telegram bot: %w", err)
	}
	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   message,
	})
	if err != nil {
		return fmt.Errorf("failed to send to chat_id %d: %w", chatID, err)
	}
	return nil
}
