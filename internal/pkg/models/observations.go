package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PromoObservation is one raw promotional-odds sighting produced by the
// soft-book ingestion collaborator. Names are in the soft book's own form
// and have not been matched yet.
type PromoObservation struct {
	Sport        string              `json:"sport"`
	Competition  string              `json:"competition"`
	HomeTeam     string              `json:"home_team"`
	AwayTeam     string              `json:"away_team"`
	StartTime    time.Time           `json:"start_time"`
	Market       string              `json:"market"`
	Selection    string              `json:"selection"`
	NormalPrice  decimal.NullDecimal `json:"normal_price"`
	BoostedPrice decimal.Decimal     `json:"boosted_price"`
	PromoCap     decimal.NullDecimal `json:"promo_cap"` // promotional stake limit, when intercepted
}

// ReferenceObservation is one raw reference-market sighting. Prices are a
// mutually exclusive outcome set (a back/lay pair or a full market), with
// Index pointing at the outcome the promotion is priced on.
type ReferenceObservation struct {
	HomeTeam string            `json:"home_team"`
	AwayTeam string            `json:"away_team"`
	Prices   []decimal.Decimal `json:"prices"`
	Index    int               `json:"index"`
}
