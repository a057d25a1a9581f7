package matcher

import (
	"context"
	"testing"

	"github.com/cyborgbet/cyborgbet/internal/pkg/models"
)

type fakeStore struct {
	confirmed map[string]string // softName -> sharpName
	saved     []*models.NameMapping
}

func newFakeStore() *fakeStore {
	return &fakeStore{confirmed: make(map[string]string)}
}

func (f *fakeStore) ConfirmedMapping(_ context.Context, _ models.EntityCategory, softName string) (string, bool, error) {
	name, ok := f.confirmed[softName]
	return name, ok, nil
}

func (f *fakeStore) SaveMapping(_ context.Context, m *models.NameMapping) error {
	f.saved = append(f.saved, m)
	return nil
}

func TestMatch_HighConfidence(t *testing.T) {
	store := newFakeStore()
	m := New(store, 85, 60)

	res := m.Match(context.Background(), models.EntityTeam, "Man City", []string{"Manchester City FC", "Aston Villa"})

	if res.Outcome != Matched {
		t.Fatalf("outcome = %v, want Matched (score %.1f)", res.Outcome, res.Score)
	}
	if res.Name != "Manchester City FC" {
		t.Errorf("name = %q, want Manchester City FC", res.Name)
	}
	if res.Score < 85 {
		t.Errorf("score = %.1f, want >= 85", res.Score)
	}
	if len(store.saved) != 1 || !store.saved[0].Confirmed {
		t.Errorf("expected one confirmed mapping saved, got %+v", store.saved)
	}
}

func TestMatch_TokenOrderInsensitive(t *testing.T) {
	m := New(newFakeStore(), 85, 60)

	res := m.Match(context.Background(), models.EntityTeam, "City Manchester", []string{"Manchester City"})

	if res.Outcome != Matched || res.Score < 99 {
		t.Errorf("reversed token order should score as an exact match, got outcome %v score %.1f", res.Outcome, res.Score)
	}
}

func TestMatch_AbbreviationExpansion(t *testing.T) {
	m := New(newFakeStore(), 85, 60)

	tests := []struct {
		soft      string
		candidate string
	}{
		{"Man Utd", "Manchester United"},
		{"Inter", "Internazionale"},
		{"Juventus FC", "Juventus"},
	}
	for _, tt := range tests {
		res := m.Match(context.Background(), models.EntityTeam, tt.soft, []string{tt.candidate, "Bologna"})
		if res.Outcome != Matched || res.Name != tt.candidate {
			t.Errorf("Match(%q) = %+v, want %q matched", tt.soft, res, tt.candidate)
		}
	}
}

func TestMatch_Rejected(t *testing.T) {
	store := newFakeStore()
	m := New(store, 85, 60)

	res := m.Match(context.Background(), models.EntityTeam, "Random Team", []string{"Manchester City FC"})

	if res.Outcome != Rejected {
		t.Fatalf("outcome = %v, want Rejected", res.Outcome)
	}
	if res.Name != "" {
		t.Errorf("name = %q, want empty on rejection", res.Name)
	}
	if res.Score >= 60 {
		t.Errorf("score = %.1f, want < 60", res.Score)
	}
	if len(store.saved) != 0 {
		t.Errorf("rejected matches must not be persisted, got %+v", store.saved)
	}
}

func TestMatch_EmptyCandidates(t *testing.T) {
	m := New(newFakeStore(), 85, 60)

	res := m.Match(context.Background(), models.EntityTeam, "Man City", nil)

	if res.Outcome != Rejected || res.Score != 0 || res.Name != "" {
		t.Errorf("empty candidate list should be a zero-score rejection, got %+v", res)
	}
}

func TestMatch_ConfirmedCacheFastPath(t *testing.T) {
	store := newFakeStore()
	store.confirmed["MCI"] = "Manchester City FC"
	m := New(store, 85, 60)

	res := m.Match(context.Background(), models.EntityTeam, "MCI", []string{"Manchester City FC", "Aston Villa"})

	if res.Outcome != Matched || res.Name != "Manchester City FC" || res.Score != 100 {
		t.Errorf("cache hit should return full confidence, got %+v", res)
	}
	if len(store.saved) != 0 {
		t.Errorf("cache hit must not re-persist, got %+v", store.saved)
	}
}

func TestMatch_StaleCacheFallsBackToFuzzy(t *testing.T) {
	store := newFakeStore()
	store.confirmed["Man City"] = "Manchester City (W)"
	m := New(store, 85, 60)

	// Cached target is not in the candidate list; fuzzy matching recovers.
	res := m.Match(context.Background(), models.EntityTeam, "Man City", []string{"Manchester City FC", "Aston Villa"})

	if res.Outcome != Matched || res.Name != "Manchester City FC" {
		t.Errorf("stale cache should fall back to fuzzy matching, got %+v", res)
	}
}

func TestMatch_ReviewTier(t *testing.T) {
	store := newFakeStore()
	m := New(store, 99, 40)

	// Thresholds forced apart so a decent-but-imperfect score lands in the
	// review band.
	res := m.Match(context.Background(), models.EntityTeam, "Mancester Cty", []string{"Manchester City", "Aston Villa"})

	if res.Outcome != NeedsReview {
		t.Fatalf("outcome = %v (score %.1f), want NeedsReview", res.Outcome, res.Score)
	}
	if len(store.saved) != 1 || store.saved[0].Confirmed {
		t.Errorf("review-tier match should persist an unconfirmed mapping, got %+v", store.saved)
	}
}
