package bot

import (
	"context"
	"errors"
	"sync"

	tele "gopkg.in/telebot.v4"
)

// ChatMemberGetter looks up a user's membership; *tele.Bot implements it.
type ChatMemberGetter interface {
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
}

var errAdminsUnbound = errors.New("bot: admin lookup used before the bot started")

// TelegramAdmins answers gate.AdminChecker from Telegram chat membership.
// In a private chat the only user is treated as its administrator.
// The API is bound once the bot exists.
type TelegramAdmins struct {
	mu  sync.RWMutex
	api ChatMemberGetter
}

// NewTelegramAdmins returns an oracle bound to api, which may be nil.
func NewTelegramAdmins(api ChatMemberGetter) *TelegramAdmins {
	return &TelegramAdmins{api: api}
}

// Bind sets the API used for membership lookups.
func (a *TelegramAdmins) Bind(api ChatMemberGetter) {
	a.mu.Lock()
	a.api = api
	a.mu.Unlock()
}

// IsAdmin reports whether userID administers chatID.
func (a *TelegramAdmins) IsAdmin(_ context.Context, chatID, userID int64) (bool, error) {
	if chatID == userID {
		return true, nil
	}
	a.mu.RLock()
	api := a.api
	a.mu.RUnlock()
	if api == nil {
		return false, errAdminsUnbound
	}
	member, err := api.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err != nil {
		return false, err
	}
	return member.Role == tele.Administrator || member.Role == tele.Creator, nil
}
