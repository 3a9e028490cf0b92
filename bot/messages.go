package bot

import (
	"fmt"
	"strings"

	"github.com/m3rciful/akibot/core/telegram/format"
	"github.com/m3rciful/akibot/game/engine"
	"github.com/m3rciful/akibot/game/session"
)

// Telegram caps photo captions at 1024 characters.
const captionLimit = 1024

const (
	msgAlreadyOwner    = "❗ Você já tem um jogo ativo!\nUse /cancelar para encerrar e começar um novo."
	msgStartFailed     = "😕 Desculpe, ocorreu um erro ao iniciar o jogo.\nTente novamente em alguns instantes."
	msgNoActive        = "❗ Não há nenhum jogo ativo no momento."
	msgCancelDenied    = "❗ Apenas quem iniciou o jogo ou administradores podem cancelá-lo."
	msgCancelled       = "✅ Jogo cancelado!\nUse /jogar para começar um novo."
	msgSessionGone     = "⏱️ Esta sessão expirou.\nUse /jogar para começar um novo jogo."
	msgTimedOut        = "⏱️ Tempo esgotado! O jogo foi encerrado por inatividade.\nUse /jogar para começar um novo jogo."
	msgWrongOwner      = "❗ Este jogo pertence a outro usuário!"
	msgEngineFailed    = "😕 Ocorreu um erro. O jogo foi encerrado.\nUse /jogar para começar novamente."
	msgAlreadyFirst    = "❗ Você já está na primeira pergunta!"
	msgBusy            = "⏳ Calma, ainda estou pensando..."
	msgGuessPending    = "❗ Diga se acertei usando os botões do palpite."
	msgLocked          = "🔒 O bot está bloqueado neste chat.\nUm administrador pode usar /desbloquear."
	msgLockUnavailable = "😕 Não consegui verificar este chat agora.\nTente novamente em alguns instantes."
	msgNotAdmin        = "❗ Apenas administradores podem usar este comando."
	msgLockDone        = "🔒 Bot bloqueado neste chat."
	msgLockDoneEnded   = "🔒 Bot bloqueado neste chat.\nO jogo em andamento foi encerrado."
	msgUnlockDone      = "🔓 Bot desbloqueado neste chat."
	msgRateLimited     = "⏳ Devagar! Tente novamente em instantes."
	msgUnknownText     = "Não entendi. Use /jogar para começar um jogo ou /start para ver as instruções."
	msgOwnerOnly       = "❗ Comando restrito."
	msgFailed          = "😕 Algo deu errado.\nUse /jogar para começar novamente."

	msgVictory = "🎉 <b>ACERTEI NOVAMENTE!</b>\n\n" +
		"Oba! Consegui adivinhar! 🎊\n\n" +
		"Obrigado por jogar!\n\n" +
		"Use /jogar para uma nova partida."

	msgDefeat = "😅 <b>VOCÊ ME VENCEU!</b>\n\n" +
		"Ah, errei dessa vez! 😔\n\n" +
		"Parabéns, você é bom! 🏆\n\n" +
		"Use /jogar para tentar novamente."
)

func welcomeText(firstName string) string {
	if strings.TrimSpace(firstName) == "" {
		firstName = "jogador"
	}
	return "🎮 <b>BEM-VINDO AO AKINATOR!</b>\n" +
		"Olá, " + format.Bold(firstName) + "! 👋\n\n" +
		"Pense em um personagem real ou fictício e eu tentarei adivinhar quem é!\n\n" +
		"<b>Como jogar:</b>\n" +
		"🎲 /jogar - Iniciar novo jogo\n" +
		"❌ /cancelar - Cancelar jogo atual\n\n" +
		"Pronto? Use /jogar para começar!"
}

func alreadyActiveText(ownerID int64) string {
	return fmt.Sprintf("❗ Já existe um jogo ativo neste chat.\nAguarde o término ou peça ao usuário (ID: %d) para usar /cancelar.", ownerID)
}

func questionText(s session.Snapshot) string {
	return fmt.Sprintf("📋 <b>Pergunta %d</b>\n📊 <b>Progresso:</b> %d%%\n\n❓ %s",
		s.QuestionIndex, int(s.Progress), format.Bold(s.Question))
}

func guessText(p *engine.Proposal) string {
	name, desc := "Desconhecido", "Sem descrição"
	if p != nil {
		if n := strings.TrimSpace(p.Name); n != "" {
			name = n
		}
		if d := strings.TrimSpace(p.Description); d != "" {
			desc = d
		}
	}
	// leave room for the markup around the description
	desc = format.Truncate(desc, captionLimit/2)
	return "🎯 <b>EU ACHO QUE SEI!</b>\n\n" +
		"🎭 " + format.Bold(format.Truncate(name, 200)) + "\n\n" +
		"📝 " + format.Italic(desc) + "\n\n" +
		"Acertei?"
}

func statsText(users, active int) string {
	return fmt.Sprintf("📊 <b>Estatísticas</b>\n👤 Usuários: %d\n🎮 Jogos ativos: %d", users, active)
}
