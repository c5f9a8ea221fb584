package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/vadimtkacj1/juice-dispatch/internal/transport"
)

const defaultMaxConsecutiveErrors = 5

type Bot struct {
	api *tgbotapi.BotAPI

	pollTimeout          int
	maxConsecutiveErrors int

	polling atomic.Bool
}

var _ transport.Sender = (*Bot)(nil)

func New(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram auth")
	}
	return &Bot{
		api:                  api,
		pollTimeout:          30,
		maxConsecutiveErrors: defaultMaxConsecutiveErrors,
	}, nil
}

func (b *Bot) WithPollTimeout(seconds int) *Bot {
	if seconds > 0 {
		b.pollTimeout = seconds
	}
	return b
}

func (b *Bot) Self() string {
	if b.api == nil {
		return ""
	}
	return b.api.Self.UserName
}

// Polling сообщает, крутится ли сейчас long-poll цикл (для /health).
func (b *Bot) Polling() bool {
	return b.polling.Load()
}

func (b *Bot) SendMessage(ctx context.Context, chatID, text string, action *transport.Action) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "bad chat id %q", chatID)
	}

	msg := tgbotapi.NewMessage(id, text)
	if action != nil {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(action.Label, action.CallbackID),
			),
		)
	}

	if _, err := b.api.Send(msg); err != nil {
		return errors.Wrapf(err, "telegram send to %s", chatID)
	}
	return nil
}

// Run крутит long-poll до отмены контекста. После maxConsecutiveErrors подряд
// цикл останавливается насовсем — дальше только рестарт процесса.
func (b *Bot) Run(ctx context.Context, onAction transport.ActionHandler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout

	b.polling.Store(true)
	defer b.polling.Store(false)

	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := b.api.GetUpdates(u)
		if err != nil {
			consecutive++
			slog.Error("telegram poll", "error", err.Error(), "consecutive", consecutive)
			if consecutive >= b.maxConsecutiveErrors {
				return errors.Wrap(err, "polling stopped after consecutive errors")
			}
			time.Sleep(3 * time.Second)
			continue
		}
		consecutive = 0

		for _, upd := range updates {
			if upd.UpdateID >= u.Offset {
				u.Offset = upd.UpdateID + 1
			}

			cb := upd.CallbackQuery
			if cb == nil {
				continue
			}

			// Убираем "часики" на кнопке; ответ по сути придёт отдельным сообщением.
			if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
				slog.Warn("answer callback", "error", err.Error())
			}

			if onAction != nil {
				onAction(ctx, cb.Data, strconv.FormatInt(cb.From.ID, 10))
			}
		}
	}
}
