package handlers

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/animerealm/animerealm/animerealm/economy/delivery"
)

// Telegram adapts the bot API client to the narrow sender interfaces the rest
// of the code consumes. All sends go through here.
type Telegram struct {
	api *tgbotapi.BotAPI
}

func NewTelegram(api *tgbotapi.BotAPI) *Telegram {
	return &Telegram{api: api}
}

func (t *Telegram) SendText(_ context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := t.api.Send(msg)
	return err
}

func (t *Telegram) SendVideo(_ context.Context, chatID int64, fileID, caption string) error {
	msg := tgbotapi.NewVideo(chatID, tgbotapi.FileID(fileID))
	msg.Caption = caption
	_, err := t.api.Send(msg)
	return classifyMediaError(err)
}

func (t *Telegram) SendDocument(_ context.Context, chatID int64, fileID, caption string) error {
	msg := tgbotapi.NewDocument(chatID, tgbotapi.FileID(fileID))
	msg.Caption = caption
	_, err := t.api.Send(msg)
	return classifyMediaError(err)
}

// classifyMediaError maps the API's file-kind complaints onto
// delivery.ErrWrongMediaKind so the gate can fall back to a document send.
func classifyMediaError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "type of file mismatch") ||
		strings.Contains(msg, "wrong file identifier") {
		return delivery.ErrWrongMediaKind
	}
	return err
}
