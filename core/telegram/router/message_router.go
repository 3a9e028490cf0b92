package router

import (
	"strings"
	"time"

	tg "github.com/m3rciful/akibot/core/telegram"
	"github.com/m3rciful/akibot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// TextOptions controls fallback behaviour for text updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoutes handles text that telebot did not match to a command endpoint:
// case variants of registered commands and aliases, then the fallbacks.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()

		if reg != nil {
			if word := commandWord(c.Text()); word != "" {
				if key, cmd, ok := reg.LookupCommand(word); ok && cmd.Handler != nil && !cmd.AdminOnly {
					return handleWithSummary(c, normalizeHandlerName(key), start, func() error {
						return cmd.Handler(c)
					})
				}
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, func() error {
				return opts.UnknownText(c)
			})
		}
		logHandlerSummary(c, "unknown_text", start, "skip", nil)
		return nil
	}

	return []tg.Route{{
		Endpoint: tele.OnText,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}}
}

// commandWord extracts "/cmd" from "/CMD@botname args", lower-cased.
func commandWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	word, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(word)
}
