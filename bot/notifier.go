package bot

import (
	"context"
	"errors"

	"github.com/m3rciful/akibot/core/telegram/sender"
	"github.com/m3rciful/akibot/game/session"

	tele "gopkg.in/telebot.v4"
)

// MessageSender delivers a message to an arbitrary chat; *tele.Bot implements it.
type MessageSender interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
}

// NewNotifier returns a session.Notifier that posts HTML text to a chat
// through the async dispatcher, or directly when d is nil.
func NewNotifier(api MessageSender, d *sender.Dispatcher) session.Notifier {
	return session.NotifierFunc(func(ctx context.Context, chatID int64, text string) error {
		send := func() error {
			_, err := api.Send(tele.ChatID(chatID), text, &tele.SendOptions{ParseMode: tele.ModeHTML})
			return err
		}
		if d == nil {
			return send()
		}
		err := d.Enqueue(ctx, "notify", "sendMessage", send)
		if errors.Is(err, sender.ErrQueueFull) {
			return send()
		}
		return err
	})
}
