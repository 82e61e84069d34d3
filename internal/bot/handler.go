// Package bot is the Discord-facing edge: it turns inbound messages into
// ledger operations, runs the small command surface and formats replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pastelaria/aluminio-bot/internal/ledger"
	"github.com/pastelaria/aluminio-bot/internal/models"
	"github.com/pastelaria/aluminio-bot/internal/parser"
	"github.com/pastelaria/aluminio-bot/internal/reset"
	"github.com/pastelaria/aluminio-bot/internal/schedule"
)

const helpText = "**📋 Comandos do Bot de Alumínio:**\n\n" +
	"**Para registrar alumínio:**\n" +
	"- `Passaporte: 123 Guardou: 50x Alumínio`\n" +
	"- `Pass: 123 Guardou: 50x Al`\n\n" +
	"**Para retirar alumínio:**\n" +
	"- `Passaporte: 123 Retirou: 50x Alumínio`\n" +
	"- `Pass: 123 Retirou: 50x Al`\n\n" +
	"**Comandos administrativos:**\n" +
	"- `!reset` - Reseta os valores (apenas admins, apenas domingos)\n" +
	"- `!ajuda` ou `!help` - Mostra esta mensagem\n\n" +
	"**Observações:**\n" +
	"- Registros aos domingos não são contabilizados\n" +
	"- Reset automático ocorre aos domingos após o horário configurado"

const templateText = "**Copie e complete o template abaixo:**\n" +
	"`Passaporte: (inserir) Guardou: (quantidade)x Alumínio`"

// Sender is the slice of discordgo.Session the handler needs; split out so
// tests can capture replies.
type Sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Permissioner answers whether the author may run admin commands.
type Permissioner func(s *discordgo.Session, userID, channelID string) (bool, error)

type Handler struct {
	ledger *ledger.Ledger
	reset  *reset.Coordinator
	admin  Permissioner
	clock  func() time.Time
	sleep  func(time.Duration)
	log    zerolog.Logger
}

func NewHandler(l *ledger.Ledger, r *reset.Coordinator, log zerolog.Logger) *Handler {
	return &Handler{
		ledger: l,
		reset:  r,
		admin:  sessionPermissioner,
		clock:  schedule.Now,
		sleep:  time.Sleep,
		log:    log.With().Str("component", "bot").Logger(),
	}
}

// WithClock overrides the time source; used by tests.
func (h *Handler) WithClock(clock func() time.Time) *Handler {
	h.clock = clock
	return h
}

// Attach registers the message handler on a live session.
func (h *Handler) Attach(s *discordgo.Session) {
	s.AddHandler(h.OnMessage)
}

func (h *Handler) OnMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	reply := h.HandleText(context.Background(), s, m)
	if reply == "" {
		return
	}
	h.send(s, m.ChannelID, reply)
}

// HandleText runs the command surface and the update pipeline for one
// message and returns the reply text; empty means no reply.
func (h *Handler) HandleText(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) string {
	lower := strings.ToLower(strings.TrimSpace(m.Content))

	switch {
	case strings.HasPrefix(lower, "!reset"):
		return h.handleReset(ctx, s, m)
	case lower == "!ajuda" || lower == "!help":
		return helpText
	case lower == "!add":
		return templateText
	}

	res := parser.Extract(m.Content)
	if !res.Actionable() {
		return ""
	}

	op := models.Operation{
		ID:          uuid.New().String(),
		Identity:    res.Identity,
		Amount:      res.Amount,
		Kind:        res.Kind,
		SubmittedAt: h.clock(),
	}
	out, err := h.ledger.Apply(ctx, op)
	if err != nil {
		h.log.Error().Err(err).Str("identity", op.Identity).Msg("apply failed")
		return fmt.Sprintf("❌ Ocorreu um erro ao processar esta mensagem: %v", err)
	}
	return FormatOutcome(out)
}

func (h *Handler) handleReset(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) string {
	isAdmin, err := h.admin(s, m.Author.ID, m.ChannelID)
	if err != nil {
		h.log.Error().Err(err).Msg("permission lookup failed")
		return ""
	}
	if !isAdmin {
		return ""
	}
	if h.clock().Weekday() != time.Sunday {
		return "⚠️ O reset manual só pode ser realizado aos domingos."
	}
	if err := h.reset.ResetWeekly(ctx); err != nil {
		return "❌ **Erro ao realizar reset dominical.** Verifique os logs para mais detalhes."
	}
	return fmt.Sprintf("✅ **Reset dominical realizado com sucesso!** Valores zerados e metas resetadas para %d.", reset.QuotaBaseline)
}

// send delivers a reply, honoring the transport's rate-limit signal once:
// sleep the indicated cooldown and resend exactly one more time.
func (h *Handler) send(s Sender, channelID, content string) {
	_, err := s.ChannelMessageSend(channelID, content)
	if err == nil {
		return
	}

	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		h.log.Warn().Dur("retry_after", rl.RetryAfter).Msg("rate limited, resending once")
		h.sleep(rl.RetryAfter)
		if _, err := s.ChannelMessageSend(channelID, content); err != nil {
			h.log.Error().Err(err).Msg("resend after rate limit failed")
		}
		return
	}
	h.log.Error().Err(err).Msg("send reply failed")
}

// FormatOutcome renders the user-facing reply. Every variant names the
// identity, amount and operation that was attempted.
func FormatOutcome(out ledger.Outcome) string {
	verb := "registrou"
	if out.Kind == models.Withdraw {
		verb = "retirou"
	}

	switch out.Status {
	case ledger.StatusApplied:
		msg := fmt.Sprintf("✅ **Passaporte %s** %s **%dx Alumínio** em `%s` no baú de Membros da PASTELARIA. Atualizado registro existente. Meta Semanal: %d.",
			out.Identity, verb, out.Amount, out.Slot.Section, out.NewTotal)
		if out.Kind == models.Deposit {
			msg += " Contribuição adicionada à sua meta semanal!"
		}
		return msg
	case ledger.StatusCreated:
		return fmt.Sprintf("✅ **Passaporte %s** %s **%dx Alumínio** em `%s` no baú de Membros da PASTELARIA. Criado novo registro. Meta Semanal: %d. Contribuição adicionada à sua meta semanal!",
			out.Identity, verb, out.Amount, out.Slot.Section, out.NewTotal)
	case ledger.StatusUnregistered:
		return fmt.Sprintf("⚠️ **Passaporte %s** tentou retirar **%dx Alumínio**, mas não é da PASTELARIA DO CHINA.",
			out.Identity, out.Amount)
	case ledger.StatusNoFarmDay:
		return "⚠️ **Atenção:** Aos domingos não é contabilizado farm de Alumínio. Os valores serão zerados ao final do dia para a nova semana."
	case ledger.StatusQueued:
		return fmt.Sprintf("⚠️ Problema temporário de conexão com a planilha. Seu registro (%s, %dx, %s) foi salvo e será processado em breve.",
			out.Identity, out.Amount, out.Kind)
	case ledger.StatusRejected:
		return "❌ " + out.Reason
	}
	return ""
}

func sessionPermissioner(s *discordgo.Session, userID, channelID string) (bool, error) {
	perms, err := s.UserChannelPermissions(userID, channelID)
	if err != nil {
		return false, err
	}
	return perms&discordgo.PermissionAdministrator != 0, nil
}
