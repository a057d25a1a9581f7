// Package bot is the Telegram command center: the operator confirms,
// discards and settles value bets, registers cover bets and asks for
// manual recalculations from chat. It is a thin adapter over ops.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/cyborgbet/cyborgbet/internal/ops"
	"github.com/cyborgbet/cyborgbet/internal/pkg/config"
	"github.com/cyborgbet/cyborgbet/internal/pkg/models"
)

// Min interval between any two alert messages to the same chat, to stay
// under Telegram's per-chat rate limit.
const alertSendInterval = 2 * time.Second

// Bot runs the Telegram update loop and renders ops results.
type Bot struct {
	api     *tgbotapi.BotAPI
	svc     *ops.Service
	chatID  int64
	allowed map[int64]bool
	timeout int

	mu        sync.Mutex
	lastAlert time.Time
}

func New(cfg *config.TelegramConfig, svc *ops.Service) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	api.Debug = false

	var allowed map[int64]bool
	if len(cfg.AllowedUserIDs) > 0 {
		allowed = make(map[int64]bool, len(cfg.AllowedUserIDs))
		for _, id := range cfg.AllowedUserIDs {
			allowed[id] = true
		}
	}

	slog.Info("telegram bot authorized", "username", api.Self.UserName)
	return &Bot{
		api:     api,
		svc:     svc,
		chatID:  cfg.ChatID,
		allowed: allowed,
		timeout: cfg.UpdateTimeout,
	}, nil
}

// Run consumes updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			slog.Info("telegram bot stopped")
			return nil
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			if b.allowed != nil && (update.Message.From == nil || !b.allowed[update.Message.From.ID]) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if !message.IsCommand() {
		// Ingestion path: a feeder posts an observation document as a
		// plain JSON message.
		if strings.HasPrefix(strings.TrimSpace(message.Text), "{") {
			b.handleObservation(ctx, message.Chat.ID, message.Text)
		}
		return
	}
	args := strings.Fields(message.CommandArguments())
	chatID := message.Chat.ID

	switch message.Command() {
	case "start", "help":
		b.reply(chatID, helpText)
	case "status":
		b.handleStatus(ctx, chatID)
	case "piazzata":
		b.handleConfirm(ctx, chatID, args)
	case "scartata":
		b.handleDiscard(ctx, chatID)
	case "vinta":
		b.handleSettle(ctx, chatID, true)
	case "persa":
		b.handleSettle(ctx, chatID, false)
	case "mug":
		b.handleCover(ctx, chatID, args)
	case "copertura":
		b.handleAdvanceCover(ctx, chatID)
	case "lay":
		b.handlePlanCover(chatID, args)
	case "ricalcola":
		b.handleRecalculate(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help to see available commands.")
	}
}

const helpText = `Cyborg Bot Online. Listening for boosted prices.

/status - account dashboard
/piazzata <importo> - confirm the latest pending value bet
/scartata - discard the latest pending value bet
/vinta - settle the latest placed bet as won
/persa - settle the latest placed bet as lost
/mug <costo> [2up] - register a cover bet
/copertura - advance the open cover bet one step
/lay <puntata> <quota_back> <quota_lay> - lay stake and qualifying loss
/ricalcola <promo> <lay> <back> - manual EV and stake`

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	view, err := b.svc.Snapshot(ctx)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf(
		"\U0001F4CA *STATUS ACCOUNT*\nOperatore: %s\nBankroll Iniziale: €%s\nBankroll Corrente: €%s\nTrust Score: %d/100",
		view.Operator, view.InitialBankroll.StringFixed(2), view.CurrentBankroll.StringFixed(2), view.TrustScore))
}

func (b *Bot) handleConfirm(ctx context.Context, chatID int64, args []string) {
	if len(args) < 1 {
		b.reply(chatID, "Uso: /piazzata <importo>")
		return
	}
	stake, err := parseAmount(args[0])
	if err != nil {
		b.reply(chatID, "Uso: /piazzata <importo>")
		return
	}

	view, err := b.svc.Confirm(ctx, stake)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	msg := fmt.Sprintf("✅ Confermata scommessa da €%s. Trust Score aggiornato a %d.",
		stake.StringFixed(2), view.TrustScore)
	if view.CoverAdvised {
		msg += "\n⚠️ *ATTENZIONE:* il Trust Score è sceso sotto 40. Piazza una /mug bet il prima possibile per evitare la profilazione del conto."
	}
	b.reply(chatID, msg)
}

func (b *Bot) handleDiscard(ctx context.Context, chatID int64) {
	if err := b.svc.Discard(ctx); err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, "❌ Operazione scartata e storicizzata.")
}

func (b *Bot) handleSettle(ctx context.Context, chatID int64, won bool) {
	view, err := b.svc.Settle(ctx, won)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if won {
		b.reply(chatID, fmt.Sprintf("\U0001F3C6 Vincita registrata. Bankroll: €%s", view.CurrentBankroll.StringFixed(2)))
		return
	}
	b.reply(chatID, fmt.Sprintf("Persa registrata. Bankroll: €%s", view.CurrentBankroll.StringFixed(2)))
}

func (b *Bot) handleCover(ctx context.Context, chatID int64, args []string) {
	if len(args) < 1 {
		b.reply(chatID, "Uso: /mug <costo_qualificante> [2up]")
		return
	}
	cost, err := parseAmount(args[0])
	if err != nil {
		b.reply(chatID, "Uso: /mug <costo_qualificante> [2up]")
		return
	}
	coverType := models.CoverTypeRandomMultiple
	if len(args) > 1 && strings.EqualFold(args[1], "2up") {
		coverType = models.CoverTypeMatched2Up
	}

	view, err := b.svc.RegisterCover(ctx, cost, coverType)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("\U0001F6E1 Mug Bet registrata (Costo: €%s). Trust Score salito a %d.",
		cost.StringFixed(2), view.TrustScore))
}

func (b *Bot) handleAdvanceCover(ctx context.Context, chatID int64) {
	state, err := b.svc.AdvanceCover(ctx)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Cover bet avanzata a %s.", state))
}

func (b *Bot) handlePlanCover(chatID int64, args []string) {
	if len(args) < 3 {
		b.reply(chatID, "Uso: /lay <puntata> <quota_back> <quota_lay>\nEsempio: /lay 10 2.00 2.15")
		return
	}
	backStake, err1 := parseAmount(args[0])
	backPrice, err2 := parseAmount(args[1])
	layPrice, err3 := parseAmount(args[2])
	if err1 != nil || err2 != nil || err3 != nil {
		b.reply(chatID, "Valori non validi. Esempio: /lay 10 2.00 2.15")
		return
	}

	plan, err := b.svc.PlanCover(backStake, backPrice, layPrice)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	verdict := "✅ Perdita qualificante accettabile."
	if !plan.Acceptable {
		verdict = "❌ Perdita qualificante troppo alta. Cerca quote più vicine."
	}
	b.reply(chatID, fmt.Sprintf(
		"\U0001F6E1 *COPERTURA*\nBancata suggerita: €%s\nEsito qualificante: €%s\n%s",
		plan.LayStake.StringFixed(2), plan.Loss.StringFixed(2), verdict))
}

func (b *Bot) handleRecalculate(ctx context.Context, chatID int64, args []string) {
	if len(args) < 3 {
		b.reply(chatID, "Uso: /ricalcola <quota_promo> <quota_lay> <quota_back>\nEsempio: /ricalcola 3.0 2.15 2.05")
		return
	}
	promo, err1 := parseAmount(args[0])
	lay, err2 := parseAmount(args[1])
	back, err3 := parseAmount(args[2])
	if err1 != nil || err2 != nil || err3 != nil {
		b.reply(chatID, "Quote non valide. Esempio: /ricalcola 3.0 2.15 2.05")
		return
	}

	rc, err := b.svc.Recalculate(ctx, promo, lay, back)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	evPercent := rc.EV.Mul(decimal.NewFromInt(100))
	msg := fmt.Sprintf(
		"\U0001F504 *RICALCOLO MANUALE*\n\nPromo: %s\nExchange Lay/Back: %s/%s\nFair Odd: %s\n*EV*: %s%%\n*Stake Suggerito*: €%s\n\n",
		promo, lay, back, rc.FairPrice.StringFixed(2), evPercent.StringFixed(2), rc.Stake.StringFixed(2))
	if rc.Stake.Sign() > 0 {
		msg += fmt.Sprintf("✅ EV positivo. Conferma con:\n`/piazzata %s`", rc.Stake.StringFixed(2))
	} else {
		msg += "❌ EV negativo o trascurabile. Sconsigliato."
	}
	b.reply(chatID, msg)
}

// observationDocument is the wire form feeders post to the chat: one
// promotional sighting with its reference-market counterpart.
type observationDocument struct {
	Promo     models.PromoObservation     `json:"promo"`
	Reference models.ReferenceObservation `json:"reference"`
}

func (b *Bot) handleObservation(ctx context.Context, chatID int64, text string) {
	var doc observationDocument
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		b.reply(chatID, "Documento osservazione non valido: "+err.Error())
		return
	}

	d, err := b.svc.Detect(ctx, doc.Promo, doc.Reference)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	switch d.Outcome {
	case ops.OutcomeNoMatch:
		slog.Info("observation discarded, no entity match",
			"home", doc.Promo.HomeTeam, "away", doc.Promo.AwayTeam)
	case ops.OutcomeNoValue:
		slog.Info("observation discarded, no value",
			"selection", doc.Promo.Selection, "ev", d.EV)
	case ops.OutcomeOpportunity:
		if err := b.svc.Record(ctx, d); err != nil {
			b.replyError(chatID, err)
			return
		}
		b.AlertOpportunity(d)
	}
}

// AlertOpportunity pushes a detected opportunity to the configured chat,
// rate limited so a burst of detections cannot trip the Telegram API.
func (b *Bot) AlertOpportunity(d *ops.Detection) {
	b.mu.Lock()
	if since := time.Since(b.lastAlert); since < alertSendInterval {
		time.Sleep(alertSendInterval - since)
	}
	b.lastAlert = time.Now()
	b.mu.Unlock()

	review := ""
	if d.NeedsReview {
		review = "\n⚠️ Nome squadra da verificare manualmente."
	}
	msg := fmt.Sprintf(
		"\U0001F3AF *SUPERQUOTA RILEVATA*\n%s v %s\n%s / %s\nQuota: %s (fair %s)\nEV: %s%%\nStake suggerito: €%s%s\n\nConferma con /piazzata, rifiuta con /scartata.",
		d.Event.HomeTeam, d.Event.AwayTeam,
		d.Bet.Market, d.Bet.Selection,
		d.Bet.BoostedPrice, d.Bet.FairPrice,
		d.Bet.EVPercent.StringFixed(2), d.Bet.SuggestedStake.StringFixed(2), review)
	b.reply(b.chatID, msg)
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		slog.Error("failed to send telegram message", "error", err)
	}
}

// replyError maps core errors to operator-facing messages. Not-found is a
// polite no-op; a lost race asks the operator to retry.
func (b *Bot) replyError(chatID int64, err error) {
	switch {
	case errors.Is(err, ops.ErrNotFound):
		b.reply(chatID, "Nessuna operazione in attesa.")
	case errors.Is(err, ops.ErrConcurrentTransition):
		b.reply(chatID, "L'operazione è cambiata nel frattempo. Controlla /status e riprova.")
	case errors.Is(err, ops.ErrNoAccount):
		b.reply(chatID, "Errore DB: nessun account trovato.")
	default:
		slog.Error("command failed", "error", err)
		b.reply(chatID, "Ops, c'è stato un errore: "+err.Error())
	}
}

// parseAmount accepts both comma and dot decimal separators, since
// operators type amounts the Italian way.
func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
}
