package bot

import (
	"github.com/m3rciful/akibot/core/telegram/keyboard"
	"github.com/m3rciful/akibot/game/engine"

	tele "gopkg.in/telebot.v4"
)

// Callback uniques and the payloads that are not engine answers.
const (
	cbAnswer  = "answer"
	cbVerdict = "verdict"

	payloadBack    = "back"
	payloadCorrect = "correct"
	payloadWrong   = "wrong"
)

func answerKeyboard() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "✅ Sim", Unique: cbAnswer, Data: string(engine.Yes)},
			{Text: "❌ Não", Unique: cbAnswer, Data: string(engine.No)},
		},
		[]keyboard.InlineBtn{
			{Text: "🤔 Não sei", Unique: cbAnswer, Data: string(engine.IDK)},
		},
		[]keyboard.InlineBtn{
			{Text: "👍 Provavelmente sim", Unique: cbAnswer, Data: string(engine.Probably)},
			{Text: "👎 Provavelmente não", Unique: cbAnswer, Data: string(engine.ProbablyNot)},
		},
		[]keyboard.InlineBtn{
			{Text: "↩️ Corrigir resposta", Unique: cbAnswer, Data: payloadBack},
		},
	)
}

func verdictKeyboard() *tele.ReplyMarkup {
	return keyboard.InlineButtonsNPerRow([]keyboard.InlineBtn{
		{Text: "✅ Acertou!", Unique: cbVerdict, Data: payloadCorrect},
		{Text: "❌ Errou", Unique: cbVerdict, Data: payloadWrong},
	}, 2)
}
