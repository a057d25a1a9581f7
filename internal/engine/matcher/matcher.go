// Package matcher resolves soft-book entity names to their reference-book
// form. A confirmed mapping cache is the authoritative fast path; anything
// else goes through abbreviation expansion and token-sort fuzzy scoring
// with confidence tiers.
package matcher

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/google/uuid"

	"github.com/cyborgbet/cyborgbet/internal/pkg/models"
)

// MappingStore is the persistence the matcher needs: confirmed-mapping
// lookup and duplicate-suppressing save.
type MappingStore interface {
	ConfirmedMapping(ctx context.Context, category models.EntityCategory, softName string) (string, bool, error)
	SaveMapping(ctx context.Context, m *models.NameMapping) error
}

// Outcome classifies a match result so callers branch on structure instead
// of catching errors.
type Outcome int

const (
	Rejected Outcome = iota
	Matched
	NeedsReview
)

// Result is the outcome of one resolution attempt. Name is empty when the
// outcome is Rejected.
type Result struct {
	Name    string
	Score   float64
	Outcome Outcome
}

// abbreviations expand common betting shorthand before scoring. Keys and
// replacements are applied against a space-padded lowercase name so partial
// words do not collide.
var abbreviations = []struct{ abbr, expansion string }{
	{"man ", "manchester "},
	{"utd", "united"},
	{"fc", ""},
	{"cf", ""},
	{"ac ", ""},
	{"inter ", "internazionale "},
}

// Matcher scores soft-book names against reference-book candidates.
type Matcher struct {
	store          MappingStore
	highConfidence float64
	review         float64
	lev            *metrics.Levenshtein
}

// New creates a matcher with the given confidence tiers (typically 85/60).
func New(store MappingStore, highConfidence, review float64) *Matcher {
	return &Matcher{
		store:          store,
		highConfidence: highConfidence,
		review:         review,
		lev:            metrics.NewLevenshtein(),
	}
}

// Match resolves softName against candidates.
//
// A confirmed cached mapping whose target is still among the candidates
// returns immediately with full confidence. A cached target missing from
// the candidate list is stale: it falls through to a fresh fuzzy pass
// instead of failing. An empty candidate list is a rejection with zero
// score, never an error. Cache reads and writes are best effort.
func (m *Matcher) Match(ctx context.Context, category models.EntityCategory, softName string, candidates []string) Result {
	if mapped, ok := m.cachedMapping(ctx, category, softName); ok {
		for _, c := range candidates {
			if c == mapped {
				slog.Info("mapping cache hit", "soft", softName, "sharp", mapped)
				return Result{Name: mapped, Score: 100, Outcome: Matched}
			}
		}
		slog.Warn("confirmed mapping is stale, re-matching", "soft", softName, "cached", mapped)
	}

	if len(candidates) == 0 {
		return Result{}
	}

	query := tokenSort(expandAbbreviations(softName))
	best := -1
	bestScore := 0.0
	for i, c := range candidates {
		score := strutil.Similarity(query, tokenSort(expandAbbreviations(c)), m.lev) * 100
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best < 0 {
		return Result{}
	}
	sharpName := candidates[best]

	switch {
	case bestScore >= m.highConfidence:
		slog.Info("high confidence match", "soft", softName, "sharp", sharpName, "score", bestScore)
		m.saveMapping(ctx, category, softName, sharpName, bestScore, true)
		return Result{Name: sharpName, Score: bestScore, Outcome: Matched}
	case bestScore >= m.review:
		slog.Warn("uncertain match, needs human review", "soft", softName, "sharp", sharpName, "score", bestScore)
		m.saveMapping(ctx, category, softName, sharpName, bestScore, false)
		return Result{Name: sharpName, Score: bestScore, Outcome: NeedsReview}
	default:
		slog.Info("match rejected", "soft", softName, "closest", sharpName, "score", bestScore)
		return Result{Score: bestScore}
	}
}

func (m *Matcher) cachedMapping(ctx context.Context, category models.EntityCategory, softName string) (string, bool) {
	mapped, ok, err := m.store.ConfirmedMapping(ctx, category, softName)
	if err != nil {
		slog.Error("mapping cache lookup failed", "soft", softName, "error", err)
		return "", false
	}
	return mapped, ok
}

func (m *Matcher) saveMapping(ctx context.Context, category models.EntityCategory, softName, sharpName string, score float64, confirmed bool) {
	mapping := &models.NameMapping{
		ID:        uuid.New(),
		Category:  category,
		SoftName:  softName,
		SharpName: sharpName,
		FuzzScore: int(score),
		Confirmed: confirmed,
	}
	if err := m.store.SaveMapping(ctx, mapping); err != nil {
		slog.Error("failed to save name mapping", "soft", softName, "sharp", sharpName, "error", err)
	}
}

// expandAbbreviations lowercases the name and expands the shorthand table.
// The name is padded with spaces so replacements only hit whole words.
func expandAbbreviations(name string) string {
	padded := " " + strings.ToLower(name) + " "
	for _, a := range abbreviations {
		padded = strings.ReplaceAll(padded, " "+a.abbr, " "+a.expansion)
	}
	return strings.TrimSpace(padded)
}

// tokenSort makes the comparison order-insensitive over tokens, so
// "City Manchester" scores the same as "Manchester City".
func tokenSort(name string) string {
	tokens := strings.Fields(name)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
