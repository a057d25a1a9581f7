package ops

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cyborgbet/cyborgbet/internal/pkg/models"
	"github.com/cyborgbet/cyborgbet/internal/storage"
)

// memStore is an in-memory Store for tests. The transaction mutex gives
// the same serialized-account guarantee the Postgres row lock does.
type memStore struct {
	mu       sync.Mutex
	account  *models.Account
	events   map[uuid.UUID]*models.SportEvent
	bets     []*models.ValueBet
	covers   []*models.CoverBet
	mappings []*models.NameMapping

	// afterLatest, when set, runs between the latest-pending read and the
	// transition write, to provoke the lost-update race on purpose.
	afterLatest func(tx *memTx)
}

var _ storage.Store = (*memStore)(nil)

func newMemStore(bankroll string) *memStore {
	initial := decimal.RequireFromString(bankroll)
	return &memStore{
		account: &models.Account{
			ID:              uuid.New(),
			OperatorName:    "operator",
			InitialBankroll: initial,
			CurrentBankroll: initial,
			TrustScore:      100,
		},
		events: make(map[uuid.UUID]*models.SportEvent),
	}
}

func (s *memStore) Tx(_ context.Context, fn func(tx storage.StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{s: s})
}

func (s *memStore) Account(_ context.Context) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := *s.account
	return &acc, nil
}

func (s *memStore) ConfirmedMapping(_ context.Context, category models.EntityCategory, softName string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mappings {
		if m.Confirmed && m.Category == category && m.SoftName == softName {
			return m.SharpName, true, nil
		}
	}
	return "", false, nil
}

func (s *memStore) SaveMapping(_ context.Context, m *models.NameMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.mappings {
		if existing.Category == m.Category && existing.SoftName == m.SoftName && existing.SharpName == m.SharpName {
			return nil
		}
	}
	s.mappings = append(s.mappings, m)
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) betByID(id uuid.UUID) *models.ValueBet {
	for _, b := range s.bets {
		if b.ID == id {
			return b
		}
	}
	return nil
}

type memTx struct {
	s *memStore
}

var _ storage.StoreTx = (*memTx)(nil)

func (t *memTx) Account() (*models.Account, error) {
	acc := *t.s.account
	return &acc, nil
}

func (t *memTx) SaveAccount(a *models.Account) error {
	copied := *a
	t.s.account = &copied
	return nil
}

func (t *memTx) SaveEvent(e *models.SportEvent) error {
	copied := *e
	t.s.events[e.ID] = &copied
	return nil
}

func (t *memTx) SaveValueBet(vb *models.ValueBet) error {
	copied := *vb
	t.s.bets = append(t.s.bets, &copied)
	return nil
}

func (t *memTx) LatestValueBet(state models.BetState) (*models.ValueBet, error) {
	var latest *models.ValueBet
	for _, b := range t.s.bets {
		if b.State != state {
			continue
		}
		if latest == nil || b.DetectedAt.After(latest.DetectedAt) {
			latest = b
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	if t.s.afterLatest != nil {
		hook := t.s.afterLatest
		t.s.afterLatest = nil
		hook(t)
	}
	return &copied, nil
}

func (t *memTx) TransitionValueBet(id uuid.UUID, from, to models.BetState, actualStake decimal.NullDecimal) (bool, error) {
	b := t.s.betByID(id)
	if b == nil || b.State != from {
		return false, nil
	}
	b.State = to
	if actualStake.Valid {
		b.ActualStake = actualStake
	}
	return true, nil
}

func (t *memTx) SaveCoverBet(cb *models.CoverBet) error {
	copied := *cb
	t.s.covers = append(t.s.covers, &copied)
	return nil
}

func (t *memTx) LatestOpenCoverBet() (*models.CoverBet, error) {
	var latest *models.CoverBet
	for _, c := range t.s.covers {
		if c.State == models.CoverStateClosed {
			continue
		}
		if latest == nil || c.RegisteredAt.After(latest.RegisteredAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (t *memTx) TransitionCoverBet(id uuid.UUID, from, to models.CoverState) (bool, error) {
	for _, c := range t.s.covers {
		if c.ID == id {
			if c.State != from {
				return false, nil
			}
			c.State = to
			return true, nil
		}
	}
	return false, nil
}
