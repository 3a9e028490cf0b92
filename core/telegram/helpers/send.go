package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/akibot/core/logger"
	"github.com/m3rciful/akibot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := globalDispatcher.Load()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	if err := disp.Enqueue(ctx, action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, logger.CompSender, "queue.fallback",
				slog.String("action", action),
				slog.String("endpoint", endpoint),
				logger.Err(err),
			)
			return run()
		}
		return err
	}
	return nil
}

func htmlOptions(markup []*tele.ReplyMarkup) *tele.SendOptions {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return opts
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string) error {
	return sendAsync(c, "send.text", "sendMessage", func() error {
		return c.Send(text)
	})
}

// SendHTML sends an HTML formatted message with optional reply markup.
// Interactive messages go out synchronously so keyboards keep their order.
func SendHTML(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := htmlOptions(markup)
	if opts.ReplyMarkup != nil {
		return c.Send(text, opts)
	}
	return sendAsync(c, "send.html", "sendMessage", func() error {
		return c.Send(text, opts)
	})
}

// SendPhotoHTML sends a photo by URL with an HTML caption.
func SendPhotoHTML(c tele.Context, url, caption string, markup ...*tele.ReplyMarkup) error {
	photo := &tele.Photo{File: tele.FromURL(url), Caption: caption}
	return c.Send(photo, htmlOptions(markup))
}

// DeleteAsync deletes the message the update refers to without blocking the handler.
func DeleteAsync(c tele.Context) error {
	if c.Message() == nil {
		return nil
	}
	return sendAsync(c, "delete", "deleteMessage", c.Delete)
}

// EditMarkup replaces the inline keyboard of the message the callback came from.
func EditMarkup(c tele.Context, markup *tele.ReplyMarkup) error {
	if c.Callback() == nil {
		return nil
	}
	return sendAsync(c, "edit.markup", "editMessageReplyMarkup", func() error {
		return c.Edit(markup)
	})
}
