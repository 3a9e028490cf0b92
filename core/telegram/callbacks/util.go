package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// prefix marks callback data produced by tele.ReplyMarkup.Data.
const prefix = "\f"

// Encode builds callback data in Telebot's \f<unique>|<payload> form.
func Encode(unique, payload string) string {
	if payload == "" {
		return prefix + unique
	}
	return prefix + unique + "|" + payload
}

// ParseCallbackData splits Telebot's \f<unique>|<payload> encoding.
// Data without the prefix is treated as a bare unique.
func ParseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, prefix)
	unique, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(unique), payload
}

// CallbackKey returns the unique part of the callback in c.
func CallbackKey(c tele.Context) string {
	k, _ := ParseCallbackData(c.Callback())
	return k
}

// CallbackPayload returns the payload after '|' of the callback in c.
func CallbackPayload(c tele.Context) string {
	_, p := ParseCallbackData(c.Callback())
	return p
}
