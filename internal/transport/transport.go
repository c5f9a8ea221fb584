package transport

import "context"

// Action — одна inline-кнопка под сообщением; CallbackID приходит обратно
// при нажатии.
type Action struct {
	Label      string
	CallbackID string
}

// Sender отправляет сообщение одному получателю. Ошибка по одному чату не
// влияет на доставку остальным.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string, action *Action) error
}

// ActionHandler вызывается на каждое нажатие кнопки.
type ActionHandler func(ctx context.Context, callbackID, fromChatID string)
