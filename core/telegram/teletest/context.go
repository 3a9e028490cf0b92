// Package teletest provides a scriptable tele.Context for handler tests.
package teletest

import (
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"
)

// Sent records one outbound call made through the context.
type Sent struct {
	What any
	Opts []any
}

// Text returns the message text or photo caption of the call.
func (s Sent) Text() string {
	switch v := s.What.(type) {
	case string:
		return v
	case *tele.Photo:
		return v.Caption
	}
	return ""
}

// Markup returns the reply markup passed with the call, if any.
func (s Sent) Markup() *tele.ReplyMarkup {
	for _, o := range s.Opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return v.ReplyMarkup
			}
		case *tele.ReplyMarkup:
			return v
		}
	}
	return nil
}

// Context implements the parts of tele.Context that handlers use.
// Calling any other method panics through the nil embedded interface.
type Context struct {
	tele.Context

	update tele.Update

	mu        sync.Mutex
	store     map[string]any
	sent      []Sent
	responses []*tele.CallbackResponse
	deleted   int

	// SendErr, when set, is returned by Send.
	SendErr error
}

// NewMessage returns a context for a text message in chatID from userID.
func NewMessage(updateID int, chatID, userID int64, text string) *Context {
	return &Context{update: tele.Update{
		ID: updateID,
		Message: &tele.Message{
			ID:     updateID,
			Sender: &tele.User{ID: userID, FirstName: "User"},
			Chat:   &tele.Chat{ID: chatID, Type: chatType(chatID, userID)},
			Text:   text,
		},
	}}
}

// NewCallback returns a context for an inline button press with raw data.
func NewCallback(updateID int, chatID, userID int64, data string) *Context {
	return &Context{update: tele.Update{
		ID: updateID,
		Callback: &tele.Callback{
			ID:     "cb",
			Sender: &tele.User{ID: userID, FirstName: "User"},
			Data:   data,
			Message: &tele.Message{
				ID:   updateID,
				Chat: &tele.Chat{ID: chatID, Type: chatType(chatID, userID)},
			},
		},
	}}
}

func chatType(chatID, userID int64) tele.ChatType {
	if chatID == userID {
		return tele.ChatPrivate
	}
	return tele.ChatSuperGroup
}

func (c *Context) Update() tele.Update { return c.update }

func (c *Context) Message() *tele.Message {
	if c.update.Message != nil {
		return c.update.Message
	}
	if c.update.Callback != nil {
		return c.update.Callback.Message
	}
	return nil
}

func (c *Context) Callback() *tele.Callback { return c.update.Callback }

func (c *Context) Query() *tele.Query { return c.update.Query }

func (c *Context) Sender() *tele.User {
	switch {
	case c.update.Callback != nil:
		return c.update.Callback.Sender
	case c.update.Message != nil:
		return c.update.Message.Sender
	}
	return nil
}

func (c *Context) Chat() *tele.Chat {
	if m := c.Message(); m != nil {
		return m.Chat
	}
	return nil
}

func (c *Context) Recipient() tele.Recipient { return c.Chat() }

func (c *Context) Text() string {
	if m := c.Message(); m != nil {
		return m.Text
	}
	return ""
}

func (c *Context) Data() string {
	if c.update.Callback != nil {
		return c.update.Callback.Data
	}
	return ""
}

func (c *Context) Args() []string {
	f := strings.Fields(c.Text())
	if len(f) == 0 {
		return nil
	}
	return f[1:]
}

func (c *Context) Get(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store[key]
}

func (c *Context) Set(key string, val any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = make(map[string]any)
	}
	c.store[key] = val
}

func (c *Context) Send(what any, opts ...any) error {
	if c.SendErr != nil {
		return c.SendErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, Sent{What: what, Opts: opts})
	return nil
}

func (c *Context) Reply(what any, opts ...any) error { return c.Send(what, opts...) }

func (c *Context) Edit(what any, opts ...any) error { return c.Send(what, opts...) }

func (c *Context) Delete() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted++
	return nil
}

func (c *Context) Respond(resp ...*tele.CallbackResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(resp) == 0 {
		resp = []*tele.CallbackResponse{{}}
	}
	c.responses = append(c.responses, resp...)
	return nil
}

// Sent returns a copy of the recorded outbound calls.
func (c *Context) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// LastText returns the text of the most recent outbound call.
func (c *Context) LastText() string {
	sent := c.Sent()
	if len(sent) == 0 {
		return ""
	}
	return sent[len(sent)-1].Text()
}

// Responses returns the callback answers sent so far.
func (c *Context) Responses() []*tele.CallbackResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*tele.CallbackResponse(nil), c.responses...)
}

// Deleted reports how many times Delete was called.
func (c *Context) Deleted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleted
}
