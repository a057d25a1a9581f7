// Package ops drives the bet and account state machines: detection of
// promotional value, confirm/discard/settle of value bets, cover-bet
// registration and the trust-score accounting that rides every transition.
package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cyborgbet/cyborgbet/internal/engine/calculator"
	"github.com/cyborgbet/cyborgbet/internal/engine/matcher"
	"github.com/cyborgbet/cyborgbet/internal/pkg/config"
	"github.com/cyborgbet/cyborgbet/internal/pkg/models"
	"github.com/cyborgbet/cyborgbet/internal/storage"
)

// Trust-score policy. Placing a +EV bet is what the soft book profiles,
// so it costs trust; a cover bet buys some back. The warning threshold is
// advisory: the front end nags the operator, nothing happens automatically.
const (
	trustPenalty   = 10
	trustReward    = 15
	trustWarnBelow = 40
	trustFloor     = 0
	trustCeil      = 100
)

var (
	// ErrNotFound means no record was in the required state for the
	// requested action. Reported to the user as a no-op, never a crash.
	ErrNotFound = errors.New("no record in the required state")

	// ErrConcurrentTransition means the targeted record changed state
	// between read and write. The caller should re-fetch and retry; the
	// core never retries on its own.
	ErrConcurrentTransition = errors.New("record is no longer in the expected state")

	// ErrNoAccount means the singleton account row is missing.
	ErrNoAccount = errors.New("no account configured")
)

// DetectionOutcome classifies what Detect produced.
type DetectionOutcome int

const (
	// OutcomeOpportunity carries a persistable draft.
	OutcomeOpportunity DetectionOutcome = iota
	// OutcomeNoValue means the names resolved but the EV (or the sized
	// stake) was not worth acting on. EV is still populated.
	OutcomeNoValue
	// OutcomeNoMatch means entity resolution failed.
	OutcomeNoMatch
)

// Detection is the result of running one promotional observation against
// one reference observation. Event and Bet are drafts: Detect never
// persists, Record does.
type Detection struct {
	Outcome     DetectionOutcome
	EV          decimal.Decimal
	NeedsReview bool
	Event       *models.SportEvent
	Bet         *models.ValueBet
}

// AccountView is the account snapshot handed to the front end.
type AccountView struct {
	Operator        string
	InitialBankroll decimal.Decimal
	CurrentBankroll decimal.Decimal
	TrustScore      int
	CoverAdvised    bool
}

// Recalculation is a manual EV/stake computation for an opportunity the
// ingestion pipeline missed.
type Recalculation struct {
	FairPrice decimal.Decimal
	EV        decimal.Decimal
	Stake     decimal.Decimal
}

// Service wires the calculator, the matcher and the store into the
// operations the front end drives. All methods are synchronous; atomicity
// comes from the store transaction they run in.
type Service struct {
	store   storage.Store
	matcher *matcher.Matcher
	cfg     *config.EngineConfig
}

func New(store storage.Store, m *matcher.Matcher, cfg *config.EngineConfig) *Service {
	return &Service{store: store, matcher: m, cfg: cfg}
}

// Detect resolves the promo observation against the reference observation
// and computes fair price, EV and a suggested stake. The returned draft is
// not persisted; pass it to Record once the alert is out.
func (s *Service) Detect(ctx context.Context, promo models.PromoObservation, ref models.ReferenceObservation) (*Detection, error) {
	candidates := []string{ref.HomeTeam, ref.AwayTeam}

	home := s.matcher.Match(ctx, models.EntityTeam, promo.HomeTeam, candidates)
	away := s.matcher.Match(ctx, models.EntityTeam, promo.AwayTeam, candidates)
	if home.Outcome == matcher.Rejected || away.Outcome == matcher.Rejected {
		slog.Info("detection dropped: entity resolution failed",
			"home", promo.HomeTeam, "away", promo.AwayTeam,
			"home_score", home.Score, "away_score", away.Score)
		return &Detection{Outcome: OutcomeNoMatch}, nil
	}

	fair, err := calculator.FairPrice(ref.Prices, ref.Index)
	if err != nil {
		return nil, fmt.Errorf("reference odds rejected: %w", err)
	}

	ev := calculator.ExpectedValue(promo.BoostedPrice, fair)
	evPercent := ev.Mul(decimal.NewFromInt(100))
	if evPercent.LessThan(decimal.NewFromFloat(s.cfg.MinValuePercent)) {
		return &Detection{Outcome: OutcomeNoValue, EV: ev}, nil
	}

	account, err := s.store.Account(ctx)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNoAccount
	}

	promoCap := decimal.NewFromFloat(s.cfg.DefaultPromoCap)
	if promo.PromoCap.Valid {
		promoCap = promo.PromoCap.Decimal
	}
	stake := calculator.KellyStake(promo.BoostedPrice, fair, account.CurrentBankroll,
		promoCap, decimal.NewFromFloat(s.cfg.KellyFraction))
	if stake.IsZero() {
		return &Detection{Outcome: OutcomeNoValue, EV: ev}, nil
	}

	event := &models.SportEvent{
		ID:          uuid.New(),
		StartTime:   promo.StartTime,
		Sport:       promo.Sport,
		Competition: promo.Competition,
		HomeTeam:    home.Name,
		AwayTeam:    away.Name,
	}
	bet := &models.ValueBet{
		ID:             uuid.New(),
		EventID:        event.ID,
		Selection:      promo.Selection,
		Market:         promo.Market,
		NormalPrice:    promo.NormalPrice,
		BoostedPrice:   promo.BoostedPrice,
		FairPrice:      fair.Round(3),
		EVPercent:      evPercent.Round(3),
		SuggestedStake: stake,
		State:          models.BetStatePending,
		DetectedAt:     time.Now().UTC(),
	}

	slog.Info("value opportunity detected",
		"event", event.HomeTeam+" v "+event.AwayTeam,
		"market", bet.Market, "selection", bet.Selection,
		"boosted", bet.BoostedPrice, "fair", bet.FairPrice,
		"ev_percent", bet.EVPercent, "stake", stake)

	return &Detection{
		Outcome:     OutcomeOpportunity,
		EV:          ev,
		NeedsReview: home.Outcome == matcher.NeedsReview || away.Outcome == matcher.NeedsReview,
		Event:       event,
		Bet:         bet,
	}, nil
}

// Record persists a detected opportunity: the event and its PENDING value
// bet, in one transaction.
func (s *Service) Record(ctx context.Context, d *Detection) error {
	if d.Outcome != OutcomeOpportunity {
		return fmt.Errorf("only opportunities can be recorded")
	}
	return s.store.Tx(ctx, func(tx storage.StoreTx) error {
		if err := tx.SaveEvent(d.Event); err != nil {
			return err
		}
		return tx.SaveValueBet(d.Bet)
	})
}

// Confirm transitions the most recently detected PENDING value bet to
// PIAZZATA with the stake the operator actually placed, and applies the
// trust penalty and the bankroll debit in the same transaction.
func (s *Service) Confirm(ctx context.Context, stake decimal.Decimal) (*AccountView, error) {
	var view *AccountView
	err := s.store.Tx(ctx, func(tx storage.StoreTx) error {
		vb, err := tx.LatestValueBet(models.BetStatePending)
		if err != nil {
			return err
		}
		if vb == nil {
			return ErrNotFound
		}

		ok, err := tx.TransitionValueBet(vb.ID, models.BetStatePending, models.BetStatePlaced,
			decimal.NullDecimal{Decimal: stake, Valid: true})
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentTransition
		}

		account, err := tx.Account()
		if err != nil {
			return err
		}
		if account == nil {
			return ErrNoAccount
		}
		account.TrustScore = clampTrust(account.TrustScore - trustPenalty)
		account.CurrentBankroll = account.CurrentBankroll.Sub(stake)
		if err := tx.SaveAccount(account); err != nil {
			return err
		}

		view = s.view(account)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("value bet confirmed", "stake", stake, "trust_score", view.TrustScore)
	return view, nil
}

// Discard transitions the most recent PENDING value bet to SCARTATA.
// The record stays for audit; no money moves.
func (s *Service) Discard(ctx context.Context) error {
	err := s.store.Tx(ctx, func(tx storage.StoreTx) error {
		vb, err := tx.LatestValueBet(models.BetStatePending)
		if err != nil {
			return err
		}
		if vb == nil {
			return ErrNotFound
		}
		ok, err := tx.TransitionValueBet(vb.ID, models.BetStatePending, models.BetStateRejected, decimal.NullDecimal{})
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentTransition
		}
		return nil
	})
	if err == nil {
		slog.Info("value bet discarded")
	}
	return err
}

// Settle closes the most recent PIAZZATA value bet. A win credits the
// bankroll with the full return (actual stake times boosted price); a loss
// only flips the state, the stake already left at confirmation.
func (s *Service) Settle(ctx context.Context, won bool) (*AccountView, error) {
	to := models.BetStateLost
	if won {
		to = models.BetStateWon
	}

	var view *AccountView
	err := s.store.Tx(ctx, func(tx storage.StoreTx) error {
		vb, err := tx.LatestValueBet(models.BetStatePlaced)
		if err != nil {
			return err
		}
		if vb == nil {
			return ErrNotFound
		}
		ok, err := tx.TransitionValueBet(vb.ID, models.BetStatePlaced, to, decimal.NullDecimal{})
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentTransition
		}

		account, err := tx.Account()
		if err != nil {
			return err
		}
		if account == nil {
			return ErrNoAccount
		}
		if won && vb.ActualStake.Valid {
			account.CurrentBankroll = account.CurrentBankroll.Add(vb.ActualStake.Decimal.Mul(vb.BoostedPrice))
			if err := tx.SaveAccount(account); err != nil {
				return err
			}
		}

		view = s.view(account)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("value bet settled", "won", won, "bankroll", view.CurrentBankroll)
	return view, nil
}

// RegisterCover creates a cover bet in PENDING and applies the trust
// reward and the qualifying-cost debit atomically. Recording the cover is
// committing the funds, same convention as the value-bet flow.
func (s *Service) RegisterCover(ctx context.Context, cost decimal.Decimal, coverType models.CoverType) (*AccountView, error) {
	cb := &models.CoverBet{
		ID:             uuid.New(),
		Type:           coverType,
		QualifyingCost: cost,
		State:          models.CoverStatePending,
		RegisteredAt:   time.Now().UTC(),
	}

	var view *AccountView
	err := s.store.Tx(ctx, func(tx storage.StoreTx) error {
		if err := tx.SaveCoverBet(cb); err != nil {
			return err
		}

		account, err := tx.Account()
		if err != nil {
			return err
		}
		if account == nil {
			return ErrNoAccount
		}
		account.TrustScore = clampTrust(account.TrustScore + trustReward)
		account.CurrentBankroll = account.CurrentBankroll.Sub(cost)
		if err := tx.SaveAccount(account); err != nil {
			return err
		}

		view = s.view(account)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("cover bet registered", "type", coverType, "cost", cost, "trust_score", view.TrustScore)
	return view, nil
}

// AdvanceCover moves the most recent open cover bet one step along its
// lifecycle and returns the state it reached.
func (s *Service) AdvanceCover(ctx context.Context) (models.CoverState, error) {
	var reached models.CoverState
	err := s.store.Tx(ctx, func(tx storage.StoreTx) error {
		cb, err := tx.LatestOpenCoverBet()
		if err != nil {
			return err
		}
		if cb == nil {
			return ErrNotFound
		}
		next, ok := cb.State.Next(cb.Type)
		if !ok {
			return ErrNotFound
		}
		applied, err := tx.TransitionCoverBet(cb.ID, cb.State, next)
		if err != nil {
			return err
		}
		if !applied {
			return ErrConcurrentTransition
		}
		reached = next
		return nil
	})
	if err != nil {
		return "", err
	}
	slog.Info("cover bet advanced", "state", reached)
	return reached, nil
}

// Snapshot returns the current account dashboard.
func (s *Service) Snapshot(ctx context.Context) (*AccountView, error) {
	account, err := s.store.Account(ctx)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNoAccount
	}
	return s.view(account), nil
}

// Recalculate runs the manual pipeline for an exchange market the bot
// missed: de-vig the back/lay pair, compute EV against the promo price,
// size a stake from the current bankroll and the default cap.
func (s *Service) Recalculate(ctx context.Context, promoPrice, layPrice, backPrice decimal.Decimal) (*Recalculation, error) {
	fair, err := calculator.FairPrice([]decimal.Decimal{backPrice, layPrice}, 0)
	if err != nil {
		return nil, err
	}
	ev := calculator.ExpectedValue(promoPrice, fair)

	account, err := s.store.Account(ctx)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNoAccount
	}

	stake := calculator.KellyStake(promoPrice, fair, account.CurrentBankroll,
		decimal.NewFromFloat(s.cfg.DefaultPromoCap), decimal.NewFromFloat(s.cfg.KellyFraction))

	return &Recalculation{FairPrice: fair, EV: ev, Stake: stake}, nil
}

// CoverPlan is the lay-side arithmetic for one qualifying back bet.
type CoverPlan struct {
	LayStake   decimal.Decimal
	Loss       decimal.Decimal
	Acceptable bool
}

// PlanCover computes the lay stake covering a back bet at the configured
// exchange commission and checks the qualifying loss against the
// acceptable fraction of the back stake.
func (s *Service) PlanCover(backStake, backPrice, layPrice decimal.Decimal) (*CoverPlan, error) {
	commission := decimal.NewFromFloat(s.cfg.ExchangeCommission)
	lay, err := calculator.LayStake(backStake, backPrice, layPrice, commission)
	if err != nil {
		return nil, err
	}
	ok, loss := calculator.EvaluateCoverLoss(backStake, lay, commission,
		decimal.NewFromFloat(s.cfg.MaxCoverLossFraction))
	return &CoverPlan{LayStake: lay, Loss: loss, Acceptable: ok}, nil
}

func (s *Service) view(a *models.Account) *AccountView {
	return &AccountView{
		Operator:        a.OperatorName,
		InitialBankroll: a.InitialBankroll,
		CurrentBankroll: a.CurrentBankroll,
		TrustScore:      a.TrustScore,
		CoverAdvised:    a.TrustScore < trustWarnBelow,
	}
}

func clampTrust(score int) int {
	if score < trustFloor {
		return trustFloor
	}
	if score > trustCeil {
		return trustCeil
	}
	return score
}
