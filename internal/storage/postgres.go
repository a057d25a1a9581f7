package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/cyborgbet/cyborgbet/internal/pkg/config"
	"github.com/cyborgbet/cyborgbet/internal/pkg/models"
)

// Ensure Postgres implements Store
var _ Store = (*Postgres)(nil)

// Postgres stores all betting entities in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// Open connects to PostgreSQL and creates the schema if needed.
func Open(cfg *config.PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Postgres{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("postgres storage initialized")
	return s, nil
}

func (s *Postgres) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		operator_name TEXT NOT NULL,
		initial_bankroll NUMERIC(12, 2) NOT NULL,
		current_bankroll NUMERIC(12, 2) NOT NULL,
		trust_score INTEGER NOT NULL DEFAULT 100 CHECK (trust_score BETWEEN 0 AND 100)
	);

	CREATE TABLE IF NOT EXISTS sport_events (
		id UUID PRIMARY KEY,
		start_time TIMESTAMPTZ NOT NULL,
		sport TEXT NOT NULL,
		competition TEXT NOT NULL,
		home_team TEXT NOT NULL,
		away_team TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS value_bets (
		id UUID PRIMARY KEY,
		event_id UUID NOT NULL REFERENCES sport_events(id),
		selection TEXT NOT NULL,
		market TEXT NOT NULL,
		normal_price NUMERIC(8, 3),
		boosted_price NUMERIC(8, 3) NOT NULL,
		fair_price NUMERIC(8, 3) NOT NULL,
		ev_percent NUMERIC(8, 3) NOT NULL,
		suggested_stake NUMERIC(10, 2) NOT NULL,
		actual_stake NUMERIC(10, 2),
		state TEXT NOT NULL DEFAULT 'PENDING',
		detected_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_value_bets_state_detected ON value_bets(state, detected_at DESC);

	CREATE TABLE IF NOT EXISTS cover_bets (
		id UUID PRIMARY KEY,
		event_id UUID REFERENCES sport_events(id),
		cover_type TEXT NOT NULL,
		qualifying_cost NUMERIC(10, 2) NOT NULL,
		state TEXT NOT NULL DEFAULT 'PENDING',
		registered_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cover_bets_state_registered ON cover_bets(state, registered_at DESC);

	CREATE TABLE IF NOT EXISTS name_mappings (
		id UUID PRIMARY KEY,
		category TEXT NOT NULL,
		soft_name TEXT NOT NULL,
		sharp_name TEXT NOT NULL,
		fuzz_score INTEGER NOT NULL,
		confirmed BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (category, soft_name, sharp_name)
	);

	CREATE INDEX IF NOT EXISTS idx_name_mappings_lookup ON name_mappings(category, soft_name) WHERE confirmed;
	`

	_, err := s.db.ExecContext(ctx, query)
	return err
}

// EnsureAccount returns the singleton account, creating it with full trust
// when the table is empty. The initial bankroll is fixed at creation and
// never updated afterwards.
func (s *Postgres) EnsureAccount(ctx context.Context, operator string, initialBankroll decimal.Decimal) (*models.Account, error) {
	acc, err := s.Account(ctx)
	if err != nil {
		return nil, err
	}
	if acc != nil {
		return acc, nil
	}

	acc = &models.Account{
		ID:              uuid.New(),
		OperatorName:    operator,
		InitialBankroll: initialBankroll,
		CurrentBankroll: initialBankroll,
		TrustScore:      100,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, operator_name, initial_bankroll, current_bankroll, trust_score)
		 VALUES ($1, $2, $3, $4, $5)`,
		acc.ID, acc.OperatorName, acc.InitialBankroll, acc.CurrentBankroll, acc.TrustScore)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	slog.Info("account created", "operator", operator, "bankroll", initialBankroll)
	return acc, nil
}

func (s *Postgres) Account(ctx context.Context) (*models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT id, operator_name, initial_bankroll, current_bankroll, trust_score
		 FROM accounts LIMIT 1`))
}

func (s *Postgres) ConfirmedMapping(ctx context.Context, category models.EntityCategory, softName string) (string, bool, error) {
	var sharpName string
	err := s.db.QueryRowContext(ctx,
		`SELECT sharp_name FROM name_mappings
		 WHERE category = $1 AND soft_name = $2 AND confirmed
		 LIMIT 1`,
		string(category), softName).Scan(&sharpName)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up mapping: %w", err)
	}
	return sharpName, true, nil
}

func (s *Postgres) SaveMapping(ctx context.Context, m *models.NameMapping) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO name_mappings (id, category, soft_name, sharp_name, fuzz_score, confirmed)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (category, soft_name, sharp_name) DO NOTHING`,
		m.ID, string(m.Category), m.SoftName, m.SharpName, m.FuzzScore, m.Confirmed)
	if err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}
	return nil
}

// Tx runs fn in one transaction. Rolled back on error, committed otherwise.
func (s *Postgres) Tx(ctx context.Context, fn func(tx StoreTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	ptx := &pgTx{ctx: ctx, tx: tx}
	if err := fn(ptx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

// pgTx implements StoreTx on a live *sql.Tx.
type pgTx struct {
	ctx context.Context
	tx  *sql.Tx
}

// Account locks the singleton account row for the rest of the transaction.
// Concurrent confirmations queue up here instead of interleaving stale
// trust-score reads.
func (t *pgTx) Account() (*models.Account, error) {
	return scanAccount(t.tx.QueryRowContext(t.ctx,
		`SELECT id, operator_name, initial_bankroll, current_bankroll, trust_score
		 FROM accounts LIMIT 1 FOR UPDATE`))
}

func (t *pgTx) SaveAccount(a *models.Account) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE accounts SET current_bankroll = $1, trust_score = $2 WHERE id = $3`,
		a.CurrentBankroll, a.TrustScore, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

func (t *pgTx) SaveEvent(e *models.SportEvent) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO sport_events (id, start_time, sport, competition, home_team, away_team)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.StartTime, e.Sport, e.Competition, e.HomeTeam, e.AwayTeam)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

func (t *pgTx) SaveValueBet(vb *models.ValueBet) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO value_bets (id, event_id, selection, market, normal_price, boosted_price,
		                         fair_price, ev_percent, suggested_stake, actual_stake, state, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		vb.ID, vb.EventID, vb.Selection, vb.Market, vb.NormalPrice, vb.BoostedPrice,
		vb.FairPrice, vb.EVPercent, vb.SuggestedStake, vb.ActualStake, string(vb.State), vb.DetectedAt)
	if err != nil {
		return fmt.Errorf("failed to save value bet: %w", err)
	}
	return nil
}

// LatestValueBet returns the most recently detected bet in the given
// state, or nil when there is none.
func (t *pgTx) LatestValueBet(state models.BetState) (*models.ValueBet, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT id, event_id, selection, market, normal_price, boosted_price,
		        fair_price, ev_percent, suggested_stake, actual_stake, state, detected_at
		 FROM value_bets WHERE state = $1
		 ORDER BY detected_at DESC LIMIT 1`,
		string(state))

	vb := &models.ValueBet{}
	err := row.Scan(&vb.ID, &vb.EventID, &vb.Selection, &vb.Market, &vb.NormalPrice, &vb.BoostedPrice,
		&vb.FairPrice, &vb.EVPercent, &vb.SuggestedStake, &vb.ActualStake, &vb.State, &vb.DetectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load value bet: %w", err)
	}
	return vb, nil
}

// TransitionValueBet flips the bet state with an optimistic check: the
// update only applies if the record is still in the expected state.
func (t *pgTx) TransitionValueBet(id uuid.UUID, from, to models.BetState, actualStake decimal.NullDecimal) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE value_bets
		 SET state = $1, actual_stake = COALESCE($2, actual_stake)
		 WHERE id = $3 AND state = $4`,
		string(to), actualStake, id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to transition value bet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *pgTx) SaveCoverBet(cb *models.CoverBet) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO cover_bets (id, event_id, cover_type, qualifying_cost, state, registered_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		cb.ID, cb.EventID, string(cb.Type), cb.QualifyingCost, string(cb.State), cb.RegisteredAt)
	if err != nil {
		return fmt.Errorf("failed to save cover bet: %w", err)
	}
	return nil
}

// LatestOpenCoverBet returns the most recently registered cover bet that
// has not been closed yet, or nil.
func (t *pgTx) LatestOpenCoverBet() (*models.CoverBet, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT id, event_id, cover_type, qualifying_cost, state, registered_at
		 FROM cover_bets WHERE state <> $1
		 ORDER BY registered_at DESC LIMIT 1`,
		string(models.CoverStateClosed))

	cb := &models.CoverBet{}
	err := row.Scan(&cb.ID, &cb.EventID, &cb.Type, &cb.QualifyingCost, &cb.State, &cb.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cover bet: %w", err)
	}
	return cb, nil
}

func (t *pgTx) TransitionCoverBet(id uuid.UUID, from, to models.CoverState) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE cover_bets SET state = $1 WHERE id = $2 AND state = $3`,
		string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to transition cover bet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	acc := &models.Account{}
	err := row.Scan(&acc.ID, &acc.OperatorName, &acc.InitialBankroll, &acc.CurrentBankroll, &acc.TrustScore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return acc, nil
}
