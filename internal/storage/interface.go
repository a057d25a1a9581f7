package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cyborgbet/cyborgbet/internal/pkg/models"
)

// Store is the persistence surface the betting core runs on. Everything
// that mutates the account rides a Tx together with the state transition
// that caused it, so a crash can never leave a half-applied effect.
type Store interface {
	// Tx runs fn inside one transaction. The account row is locked for the
	// duration, which serializes concurrent confirmations.
	Tx(ctx context.Context, fn func(tx StoreTx) error) error

	// Account reads the singleton account outside a transaction.
	Account(ctx context.Context) (*models.Account, error)

	// ConfirmedMapping returns the human-confirmed reference name for a
	// soft-book string, if one exists.
	ConfirmedMapping(ctx context.Context, category models.EntityCategory, softName string) (string, bool, error)

	// SaveMapping persists a name mapping. Saving an existing
	// (category, soft, sharp) triple is a no-op, not a duplicate row.
	SaveMapping(ctx context.Context, m *models.NameMapping) error

	// Close closes the underlying connection.
	Close() error
}

// StoreTx is the per-transaction view. Transition methods report whether
// the optimistic state check held at write time; a false return means a
// concurrent writer got there first.
type StoreTx interface {
	Account() (*models.Account, error)
	SaveAccount(a *models.Account) error

	SaveEvent(e *models.SportEvent) error

	SaveValueBet(vb *models.ValueBet) error
	LatestValueBet(state models.BetState) (*models.ValueBet, error)
	TransitionValueBet(id uuid.UUID, from, to models.BetState, actualStake decimal.NullDecimal) (bool, error)

	SaveCoverBet(cb *models.CoverBet) error
	LatestOpenCoverBet() (*models.CoverBet, error)
	TransitionCoverBet(id uuid.UUID, from, to models.CoverState) (bool, error)
}
