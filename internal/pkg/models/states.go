package models

// BetState is the lifecycle state of a value bet. States are persisted by
// their symbolic names, matching the soft-book operation log conventions.
type BetState string

const (
	BetStatePending  BetState = "PENDING"
	BetStatePlaced   BetState = "PIAZZATA"
	BetStateRejected BetState = "SCARTATA"
	BetStateWon      BetState = "VINCENTE"
	BetStateLost     BetState = "PERDENTE"
)

// CanTransitionTo reports whether the bet state machine allows moving to
// the given state. PENDING is the only initial state; SCARTATA, VINCENTE
// and PERDENTE are terminal.
func (s BetState) CanTransitionTo(to BetState) bool {
	switch s {
	case BetStatePending:
		return to == BetStatePlaced || to == BetStateRejected
	case BetStatePlaced:
		return to == BetStateWon || to == BetStateLost
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s BetState) Terminal() bool {
	return s == BetStateRejected || s == BetStateWon || s == BetStateLost
}

// CoverState is the lifecycle state of a cover bet.
type CoverState string

const (
	CoverStatePending  CoverState = "PENDING"
	CoverStatePlaced   CoverState = "PIAZZATA"
	CoverStateAwait2Up CoverState = "ATTESA_2UP"
	CoverStateClosed   CoverState = "CHIUSA"
)

// Next returns the state a cover bet of the given type advances to.
// Matched 2-up covers wait for the secondary settlement before closing;
// random multiples close as soon as they are placed.
func (s CoverState) Next(t CoverType) (CoverState, bool) {
	switch s {
	case CoverStatePending:
		return CoverStatePlaced, true
	case CoverStatePlaced:
		if t == CoverTypeMatched2Up {
			return CoverStateAwait2Up, true
		}
		return CoverStateClosed, true
	case CoverStateAwait2Up:
		return CoverStateClosed, true
	}
	return s, false
}

// CoverType distinguishes the two cover strategies.
type CoverType string

const (
	CoverTypeRandomMultiple CoverType = "MULTIPLA_CASUALE"
	CoverTypeMatched2Up     CoverType = "MATCHED_BET_2UP"
)

// EntityCategory is the kind of entity a name mapping resolves.
type EntityCategory string

const (
	EntityTeam   EntityCategory = "SQUADRA"
	EntityPlayer EntityCategory = "GIOCATORE"
)
