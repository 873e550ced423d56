package notifierrepo

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram announces lifecycle events to a single chat.
func NewTelegram(botToken string, chatID int64) (Repo, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	return &telegram{bot: bot, chatID: chatID}, nil
}

func (t *telegram) Notify(_ context.Context, text string) error {
	_, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text))
	return err
}
