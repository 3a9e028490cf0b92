package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/akibot/core/logger"
	tg "github.com/m3rciful/akibot/core/telegram"
	"github.com/m3rciful/akibot/core/telegram/callbacks"
	"github.com/m3rciful/akibot/core/telegram/commands"
	"github.com/m3rciful/akibot/core/telegram/helpers"
	"github.com/m3rciful/akibot/core/telegram/keyboard"
	"github.com/m3rciful/akibot/game/engine"
	"github.com/m3rciful/akibot/game/gate"
	"github.com/m3rciful/akibot/game/session"

	tele "gopkg.in/telebot.v4"
)

// userSaveTimeout bounds the best-effort user upsert on every update.
const userSaveTimeout = 2 * time.Second

// Users records who talked to the bot.
type Users interface {
	SaveUser(ctx context.Context, userID int64) error
	CountUsers(ctx context.Context) (int, error)
}

// Handlers turns Telegram updates into gate and session calls.
type Handlers struct {
	manager *session.Manager
	gate    *gate.Gate
	users   Users
}

// NewHandlers builds the handler set. users may be nil.
func NewHandlers(m *session.Manager, g *gate.Gate, users Users) *Handlers {
	return &Handlers{manager: m, gate: g, users: users}
}

// Register adds the bot's commands and callbacks to reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.onStart,
		Description: "Instruções",
	})
	reg.RegisterCommand("/jogar", commands.Command{
		Handler:     h.onPlay,
		Description: "Iniciar novo jogo",
		Aliases:     []string{"play"},
	})
	reg.RegisterCommand("/cancelar", commands.Command{
		Handler:     h.onCancel,
		Description: "Cancelar jogo atual",
		Aliases:     []string{"cancel"},
	})
	reg.RegisterCommand("/bloquear", commands.Command{
		Handler:     h.onLock,
		Description: "Bloquear o bot neste chat (admins)",
		Aliases:     []string{"lock"},
	})
	reg.RegisterCommand("/desbloquear", commands.Command{
		Handler:     h.onUnlock,
		Description: "Desbloquear o bot neste chat (admins)",
		Aliases:     []string{"unlock"},
	})
	reg.RegisterCommand("/stats", commands.Command{
		Handler:     h.onStats,
		Description: "Estatísticas",
		AdminOnly:   true,
		Hidden:      true,
	})
	if err := reg.RegisterCallback(cbAnswer, h.onAnswer); err != nil {
		return err
	}
	return reg.RegisterCallback(cbVerdict, h.onVerdict)
}

// request carries the ids of an admitted update.
type request struct {
	ctx    context.Context
	chatID int64
	userID int64
}

// begin records the user and asks the gate. When the update is rejected it
// tells the user where appropriate and reports false.
func (h *Handlers) begin(c tele.Context, action gate.Action) (request, bool, error) {
	ctx := helpers.BuildContext(c)
	chatID, userID := helpers.IDs(c)
	req := request{ctx: ctx, chatID: chatID, userID: userID}
	h.saveUser(ctx, userID)

	err := h.gate.Admit(ctx, chatID, userID, action)
	switch {
	case err == nil:
		return req, true, nil
	case errors.Is(err, gate.ErrChatLocked):
		// a locked chat stays quiet; buttons still need an answer
		if c.Callback() != nil {
			return req, false, c.Respond(&tele.CallbackResponse{Text: msgLocked})
		}
		return req, false, nil
	default:
		return req, false, h.notice(c, msgLockUnavailable)
	}
}

func (h *Handlers) saveUser(ctx context.Context, userID int64) {
	if h.users == nil || userID == 0 {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, userSaveTimeout)
	defer cancel()
	if err := h.users.SaveUser(sctx, userID); err != nil {
		logger.Warn(ctx, logger.CompStorage, "user.save",
			slog.String("status", "fail"),
			slog.String("err_code", gate.CodePersistenceFailure),
			logger.Err(err),
		)
	}
}

// notice answers a button press with an alert and anything else with a message.
func (h *Handlers) notice(c tele.Context, text string) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: true})
	}
	return helpers.SendHTML(c, text)
}

// dropMessage deletes the message a button belongs to.
func (h *Handlers) dropMessage(c tele.Context) {
	if c.Callback() == nil {
		return
	}
	if err := helpers.DeleteAsync(c); err != nil {
		logger.Debug(helpers.BuildContext(c), logger.CompTG, "message.delete", logger.Err(err))
	}
}

func (h *Handlers) onStart(c tele.Context) error {
	if _, ok, err := h.begin(c, gate.ActionStart); !ok {
		return err
	}
	var name string
	if u := c.Sender(); u != nil {
		name = u.FirstName
	}
	return helpers.SendHTML(c, welcomeText(name))
}

func (h *Handlers) onPlay(c tele.Context) error {
	req, ok, err := h.begin(c, gate.ActionPlay)
	if !ok {
		return err
	}
	res, err := h.manager.Create(req.ctx, req.chatID, req.userID)
	var active *session.ActiveError
	switch {
	case errors.As(err, &active):
		if active.OwnerID == req.userID {
			return helpers.SendHTML(c, msgAlreadyOwner)
		}
		return helpers.SendHTML(c, alreadyActiveText(active.OwnerID))
	case errors.Is(err, session.ErrNoActiveSession):
		// cancelled while the engine was starting
		return nil
	case err != nil:
		return helpers.SendHTML(c, msgStartFailed)
	}
	helpers.WithSession(c, res.Session.ID.String())
	return helpers.SendHTML(c, questionText(res.Session), answerKeyboard())
}

func (h *Handlers) onCancel(c tele.Context) error {
	req, ok, err := h.begin(c, gate.ActionCancel)
	if !ok {
		return err
	}
	snap, found := h.manager.Get(req.chatID)
	if !found {
		return helpers.SendHTML(c, msgNoActive)
	}
	isAdmin := snap.OwnerID != req.userID && h.gate.IsAdmin(req.ctx, req.chatID, req.userID)
	_, err = h.manager.Cancel(req.ctx, req.chatID, req.userID, isAdmin)
	switch {
	case errors.Is(err, session.ErrWrongOwner):
		return helpers.SendHTML(c, msgCancelDenied)
	case errors.Is(err, session.ErrNoActiveSession):
		return helpers.SendHTML(c, msgNoActive)
	case err != nil:
		return fmt.Errorf("cancel: %w", err)
	}
	return helpers.SendHTML(c, msgCancelled)
}

func (h *Handlers) onLock(c tele.Context) error {
	req, ok, err := h.begin(c, gate.ActionLock)
	if !ok {
		return err
	}
	ended, err := h.gate.Lock(req.ctx, req.chatID, req.userID)
	switch {
	case errors.Is(err, gate.ErrNotAdmin):
		return helpers.SendHTML(c, msgNotAdmin)
	case err != nil:
		return helpers.SendHTML(c, msgLockUnavailable)
	case ended:
		return helpers.SendHTML(c, msgLockDoneEnded)
	}
	return helpers.SendHTML(c, msgLockDone)
}

func (h *Handlers) onUnlock(c tele.Context) error {
	req, ok, err := h.begin(c, gate.ActionUnlock)
	if !ok {
		return err
	}
	switch err := h.gate.Unlock(req.ctx, req.chatID, req.userID); {
	case errors.Is(err, gate.ErrNotAdmin):
		return helpers.SendHTML(c, msgNotAdmin)
	case err != nil:
		return helpers.SendHTML(c, msgLockUnavailable)
	}
	return helpers.SendHTML(c, msgUnlockDone)
}

func (h *Handlers) onStats(c tele.Context) error {
	req, ok, err := h.begin(c, gate.ActionStats)
	if !ok {
		return err
	}
	var users int
	if h.users != nil {
		if users, err = h.users.CountUsers(req.ctx); err != nil {
			logger.Error(req.ctx, logger.CompStorage, "user.count",
				slog.String("err_code", gate.CodePersistenceFailure),
				logger.Err(err),
			)
			return helpers.SendHTML(c, msgFailed)
		}
	}
	return helpers.SendHTML(c, statsText(users, h.manager.Len()))
}

func (h *Handlers) onAnswer(c tele.Context) error {
	payload := callbacks.CallbackPayload(c)
	var answer engine.Answer
	if payload != payloadBack {
		a, err := engine.ParseAnswer(payload)
		if err != nil {
			return nil
		}
		answer = a
	}

	req, ok, err := h.begin(c, gate.ActionAnswer)
	if !ok {
		return err
	}
	var res session.Result
	if payload == payloadBack {
		res, err = h.manager.GoBack(req.ctx, req.chatID, req.userID)
	} else {
		res, err = h.manager.SubmitAnswer(req.ctx, req.chatID, req.userID, answer)
	}
	if err != nil {
		return h.sessionError(c, err)
	}
	helpers.WithSession(c, res.Session.ID.String())

	switch res.Kind {
	case session.KindAlreadyFirst:
		return c.Respond(&tele.CallbackResponse{Text: msgAlreadyFirst})
	case session.KindGuess:
		h.dropMessage(c)
		return h.sendGuess(c, res.Proposal)
	}
	h.dropMessage(c)
	return helpers.SendHTML(c, questionText(res.Session), answerKeyboard())
}

func (h *Handlers) onVerdict(c tele.Context) error {
	payload := callbacks.CallbackPayload(c)
	if payload != payloadCorrect && payload != payloadWrong {
		return nil
	}
	req, ok, err := h.begin(c, gate.ActionVerdict)
	if !ok {
		return err
	}
	res, err := h.manager.ResolveGuess(req.ctx, req.chatID, req.userID, payload == payloadCorrect)
	if err != nil {
		return h.sessionError(c, err)
	}
	ctx := helpers.WithSession(c, res.Session.ID.String())
	if err := helpers.EditMarkup(c, keyboard.RemoveInline()); err != nil {
		logger.Debug(ctx, logger.CompTG, "markup.remove", logger.Err(err))
	}
	if res.Kind == session.KindVictory {
		return helpers.SendHTML(c, msgVictory)
	}
	return helpers.SendHTML(c, msgDefeat)
}

func (h *Handlers) sendGuess(c tele.Context, p *engine.Proposal) error {
	text := guessText(p)
	if p != nil && p.PhotoURL != "" {
		err := helpers.SendPhotoHTML(c, p.PhotoURL, text, verdictKeyboard())
		if err == nil {
			return nil
		}
		logger.Warn(helpers.BuildContext(c), logger.CompTG, "guess.photo",
			slog.String("status", "fail"),
			logger.Err(err),
		)
	}
	return helpers.SendHTML(c, text, verdictKeyboard())
}

// sessionError turns a lifecycle error into a reply. Internal detail never
// reaches the chat.
func (h *Handlers) sessionError(c tele.Context, err error) error {
	switch {
	case errors.Is(err, session.ErrWrongOwner):
		return c.Respond(&tele.CallbackResponse{Text: msgWrongOwner, ShowAlert: true})
	case errors.Is(err, session.ErrBusy):
		return c.Respond(&tele.CallbackResponse{Text: msgBusy})
	case errors.Is(err, session.ErrGuessPending):
		return c.Respond(&tele.CallbackResponse{Text: msgGuessPending})
	case errors.Is(err, session.ErrExpired):
		h.dropMessage(c)
		return helpers.SendHTML(c, msgTimedOut)
	case errors.Is(err, session.ErrNoActiveSession):
		h.dropMessage(c)
		return helpers.SendHTML(c, msgSessionGone)
	case errors.Is(err, session.ErrEngineFailure):
		h.dropMessage(c)
		return helpers.SendHTML(c, msgEngineFailed)
	}
	logger.Error(helpers.BuildContext(c), logger.CompSession, "session.error", logger.Err(err))
	return helpers.SendHTML(c, msgFailed)
}

// UnknownText implements router.Fallbacks. Only private chats get a hint.
func (h *Handlers) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		if chat := c.Chat(); chat == nil || chat.Type != tele.ChatPrivate {
			return nil
		}
		return helpers.SendText(c, msgUnknownText)
	}
}

// UnknownCallback implements router.Fallbacks; stale or foreign buttons
// are ignored and the router answers them.
func (h *Handlers) UnknownCallback() tele.HandlerFunc {
	return nil
}

// onRateLimited is called by the rate-limit middleware.
func onRateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: msgRateLimited})
	}
	return nil
}

// onOwnerOnly rejects owner-only commands.
func onOwnerOnly(c tele.Context) error {
	return helpers.SendText(c, msgOwnerOnly)
}
