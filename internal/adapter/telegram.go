package adapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/kairoshq/kairos/internal/errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramAdapter opens meetings as group chat invite links. Telegram has no
// presence API, so this adapter is session-only; the aggregator sees the
// platform as (UNKNOWN, 0.0).
type TelegramAdapter struct {
	token string
	bot   *tgbotapi.BotAPI
}

func NewTelegramAdapter(token string) (*TelegramAdapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init telegram bot")
	}

	slog.Info("Telegram adapter connected", "user", bot.Self.UserName)
	return &TelegramAdapter{token: token, bot: bot}, nil
}

func (t *TelegramAdapter) Platform() string {
	return "telegram"
}

// CreateSession sends the intent to the first participant's chat and returns
// an invite link for that chat. Participant ids are telegram chat ids.
func (t *TelegramAdapter) CreateSession(ctx context.Context, participants []string, meta SessionMetadata) (SessionHandle, error) {
	if len(participants) == 0 {
		return SessionHandle{}, errors.InvalidInput("no participants")
	}

	chatID, err := strconv.ParseInt(participants[0], 10, 64)
	if err != nil {
		return SessionHandle{}, errors.InvalidInput("invalid telegram chat id: " + err.Error())
	}

	if meta.Purpose != "" {
		msg := tgbotapi.NewMessage(chatID, meta.Purpose)
		if _, err := t.bot.Send(msg); err != nil {
			return SessionHandle{}, errors.MapAdapterError(err)
		}
	}

	resp, err := t.bot.Request(tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return SessionHandle{}, errors.MapAdapterError(err)
	}

	var link struct {
		InviteLink string `json:"invite_link"`
	}
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return SessionHandle{}, errors.Wrap(err, "parse invite link")
	}

	return SessionHandle{
		Handle: participants[0],
		Link:   link.InviteLink,
	}, nil
}

func (t *TelegramAdapter) Health(ctx context.Context) error {
	if t.bot == nil {
		return errors.Transient("telegram bot not initialized")
	}
	if _, err := t.bot.GetMe(); err != nil {
		return errors.Transient("telegram connection failed")
	}
	return nil
}
