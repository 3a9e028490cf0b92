package router

import tele "gopkg.in/telebot.v4"

// Fallbacks supplies the handlers used when an update matches no
// registered command or callback.
type Fallbacks interface {
	UnknownText() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}

// FallbacksFrom builds callback and text options from p.
func FallbacksFrom(p Fallbacks) (CallbackOptions, TextOptions) {
	if p == nil {
		return CallbackOptions{}, TextOptions{}
	}
	return CallbackOptions{NotFound: p.UnknownCallback()}, TextOptions{UnknownText: p.UnknownText()}
}
