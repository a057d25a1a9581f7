package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the single owner of the strategy. The initial bankroll is
// fixed at creation; the current bankroll moves with every placed bet and
// cover bet. TrustScore models the soft book's suspicion of the account:
// it stays within [0, 100] and starts at full trust.
type Account struct {
	ID              uuid.UUID       `json:"id"`
	OperatorName    string          `json:"operator_name"`
	InitialBankroll decimal.Decimal `json:"initial_bankroll"`
	CurrentBankroll decimal.Decimal `json:"current_bankroll"`
	TrustScore      int             `json:"trust_score"`
}

// SportEvent is a fixture, immutable once created. Team names are stored
// in the reference-book canonical form after matching.
type SportEvent struct {
	ID          uuid.UUID `json:"id"`
	StartTime   time.Time `json:"start_time"`
	Sport       string    `json:"sport"`
	Competition string    `json:"competition"`
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
}

// ValueBet is one detected opportunity. Records are never deleted:
// discarded and settled bets remain for audit.
type ValueBet struct {
	ID             uuid.UUID           `json:"id"`
	EventID        uuid.UUID           `json:"event_id"`
	Selection      string              `json:"selection"`
	Market         string              `json:"market"`
	NormalPrice    decimal.NullDecimal `json:"normal_price"` // un-boosted price, when known
	BoostedPrice   decimal.Decimal     `json:"boosted_price"`
	FairPrice      decimal.Decimal     `json:"fair_price"`
	EVPercent      decimal.Decimal     `json:"ev_percent"`
	SuggestedStake decimal.Decimal     `json:"suggested_stake"`
	ActualStake    decimal.NullDecimal `json:"actual_stake"` // set on confirmation
	State          BetState            `json:"state"`
	DetectedAt     time.Time           `json:"detected_at"`
}

// CoverBet is a qualifying wager placed to rehabilitate the trust score.
// The linked event is optional: a cover registered from the chat front end
// carries only its type and qualifying cost.
type CoverBet struct {
	ID             uuid.UUID       `json:"id"`
	EventID        uuid.NullUUID   `json:"event_id"`
	Type           CoverType       `json:"type"`
	QualifyingCost decimal.Decimal `json:"qualifying_cost"`
	State          CoverState      `json:"state"`
	RegisteredAt   time.Time       `json:"registered_at"`
}

// NameMapping caches a resolved soft-book -> sharp-book name pair.
// Human-confirmed entries are authoritative and bypass fuzzy matching;
// unconfirmed entries are advisory only.
type NameMapping struct {
	ID        uuid.UUID      `json:"id"`
	Category  EntityCategory `json:"category"`
	SoftName  string         `json:"soft_name"`
	SharpName string         `json:"sharp_name"`
	FuzzScore int            `json:"fuzz_score"`
	Confirmed bool           `json:"confirmed"`
}
