package router

import (
	"log/slog"
	"time"

	tg "github.com/m3rciful/akibot/core/telegram"
	"github.com/m3rciful/akibot/core/telegram/callbacks"
	"github.com/m3rciful/akibot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// answeringContext remembers whether the handler answered the callback query.
type answeringContext struct {
	tele.Context
	answered *bool
}

func (a answeringContext) Respond(resp ...*tele.CallbackResponse) error {
	*a.answered = true
	return a.Context.Respond(resp...)
}

// CallbackRoute returns a handler that routes callbacks by their unique key.
// Queries the handler leaves unanswered get an empty answer afterwards.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if c.Callback() == nil {
			return nil
		}

		key, _ := callbacks.ParseCallbackData(c.Callback())
		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		answered := false
		ac := answeringContext{Context: c, answered: &answered}
		defer func() {
			if !answered {
				_ = c.Respond()
			}
		}()

		cbHandler, ok := reg.GetCallback(key)
		if !ok {
			cbHandler = reg.CallbackNotFound()
			if cbHandler == nil {
				cbHandler = opts.NotFound
			}
			extras = append(extras, slog.String("reason", "not_found"))
		}
		if cbHandler == nil {
			logHandlerSummary(c, name, start, "skip", nil, extras...)
			return nil
		}
		return handleWithSummary(c, name, start, func() error {
			return cbHandler(ac)
		}, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
