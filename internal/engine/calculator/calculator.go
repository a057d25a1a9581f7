// Package calculator holds the pure odds and staking math: multiplicative
// de-vigging, expected value, fractional Kelly sizing and exchange cover
// arithmetic. Everything money-bearing runs on decimals so stake rounding
// never drifts.
package calculator

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidOdds is returned when a price is not strictly above 1 or
	// the odds set is empty. Never recovered silently.
	ErrInvalidOdds = errors.New("invalid odds")

	// ErrIndexOutOfRange is returned when the selection index does not
	// address an outcome in the odds set.
	ErrIndexOutOfRange = errors.New("selection index out of range")

	// ErrDivisionByZero is returned when the lay price equals the
	// commission in the lay-stake formula. Bad input data, not transient.
	ErrDivisionByZero = errors.New("lay price equals commission")
)

var (
	one  = decimal.NewFromInt(1)
	five = decimal.NewFromInt(5)

	// denominators closer to zero than this are treated as zero
	divEpsilon = decimal.New(1, -4) // 0.0001
)

// Devig strips the bookmaker margin from a set of mutually exclusive
// outcome prices using the multiplicative method. The returned
// probabilities sum to 1 (within decimal division precision).
func Devig(odds []decimal.Decimal) ([]decimal.Decimal, error) {
	if len(odds) == 0 {
		return nil, fmt.Errorf("%w: empty odds set", ErrInvalidOdds)
	}

	implied := make([]decimal.Decimal, len(odds))
	total := decimal.Zero
	for i, price := range odds {
		if price.Cmp(one) <= 0 {
			return nil, fmt.Errorf("%w: price %s at index %d is not above 1", ErrInvalidOdds, price, i)
		}
		implied[i] = one.Div(price)
		total = total.Add(implied[i])
	}

	probs := make([]decimal.Decimal, len(implied))
	for i, p := range implied {
		probs[i] = p.Div(total)
	}
	return probs, nil
}

// FairPrice returns the de-vigged price of one selection: the reciprocal
// of its true probability.
func FairPrice(odds []decimal.Decimal, index int) (decimal.Decimal, error) {
	if index < 0 || index >= len(odds) {
		return decimal.Zero, fmt.Errorf("%w: index %d, %d outcomes", ErrIndexOutOfRange, index, len(odds))
	}
	probs, err := Devig(odds)
	if err != nil {
		return decimal.Zero, err
	}
	return one.Div(probs[index]), nil
}

// ExpectedValue returns the proportional edge of the promotional price over
// the fair price: promo/fair - 1. Positive means the promotion over-pays.
func ExpectedValue(promoPrice, fairPrice decimal.Decimal) decimal.Decimal {
	return promoPrice.Div(fairPrice).Sub(one)
}

// KellyStake sizes a stake with the fractional Kelly criterion, capped at
// the promotional limit and rounded to a multiple of 5 (human operators do
// not place decimal stakes). Returns zero for any non-positive edge.
//
// When rounding overshoots the cap, the stake steps down to the next lower
// multiple of 5; if stepping down would reach zero, the cap itself wins,
// even when the cap is below one rounding step.
func KellyStake(promoPrice, fairPrice, bankroll, promoCap, fraction decimal.Decimal) decimal.Decimal {
	b := promoPrice.Sub(one)
	if b.Sign() <= 0 || fairPrice.Cmp(one) <= 0 {
		return decimal.Zero
	}

	p := one.Div(fairPrice)
	q := one.Sub(p)

	// f = (p*(b) - q) / b
	f := p.Mul(b).Sub(q).Div(b)
	if f.Sign() <= 0 {
		return decimal.Zero
	}

	suggested := bankroll.Mul(f.Mul(fraction))
	if suggested.Cmp(promoCap) > 0 {
		suggested = promoCap
	}

	stake := roundToFive(suggested)
	if stake.Cmp(promoCap) > 0 {
		stepped := stake.Sub(five)
		if stepped.Sign() > 0 {
			stake = stepped
		} else {
			stake = promoCap
		}
	}
	if stake.Sign() < 0 {
		return decimal.Zero
	}
	return stake
}

// roundToFive rounds to the nearest multiple of 5.
func roundToFive(v decimal.Decimal) decimal.Decimal {
	return v.Div(five).Round(0).Mul(five)
}

// LayStake returns the exchange lay amount that covers a back bet:
// (backStake * backPrice) / (layPrice - commission).
func LayStake(backStake, backPrice, layPrice, commission decimal.Decimal) (decimal.Decimal, error) {
	denom := layPrice.Sub(commission)
	if denom.Abs().Cmp(divEpsilon) < 0 {
		return decimal.Zero, fmt.Errorf("%w: lay %s, commission %s", ErrDivisionByZero, layPrice, commission)
	}
	return backStake.Mul(backPrice).Div(denom), nil
}

// EvaluateCoverLoss measures the qualifying loss of a back/lay cover as
// layStake*(1-commission) - backStake. A non-negative loss is a profit and
// always acceptable; otherwise the loss must stay within maxLossFraction
// of the back stake.
func EvaluateCoverLoss(backStake, layStake, commission, maxLossFraction decimal.Decimal) (bool, decimal.Decimal) {
	loss := layStake.Mul(one.Sub(commission)).Sub(backStake)
	if loss.Sign() >= 0 {
		return true, loss
	}
	if backStake.Sign() <= 0 {
		return false, loss
	}
	lossFraction := loss.Abs().Div(backStake)
	return lossFraction.Cmp(maxLossFraction) <= 0, loss
}
