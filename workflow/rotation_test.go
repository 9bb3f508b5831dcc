package workflow

import (
	"testing"
	"time"

	"github.com/dwellmatch/estates_backend/models"
)

func adAt(id int, lastShown *time.Time) *models.Advertisement {
	return &models.Advertisement{ID: id, LastShownAt: lastShown}
}

func TestNextAd_NeverShownFirst(t *testing.T) {
	shown := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	pool := []*models.Advertisement{
		adAt(1, &shown),
		adAt(2, nil),
	}
	got := NextAd(pool)
	if got == nil || got.ID != 2 {
		t.Fatalf("expected never-shown ad 2, got %+v", got)
	}
}

func TestNextAd_OldestShownWins(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	later := base.Add(time.Minute)
	pool := []*models.Advertisement{
		adAt(1, &later),
		adAt(2, &base),
	}
	got := NextAd(pool)
	if got == nil || got.ID != 2 {
		t.Fatalf("expected least-recently-shown ad 2, got %+v", got)
	}
}

func TestNextAd_EmptyPool(t *testing.T) {
	if got := NextAd(nil); got != nil {
		t.Fatalf("expected nil for empty pool, got %+v", got)
	}
}

// Three never-shown ads rotated three times must each be shown exactly once.
func TestNextAd_FreshPoolRotatesEveryAdOnce(t *testing.T) {
	pool := []*models.Advertisement{adAt(3, nil), adAt(1, nil), adAt(2, nil)}

	seen := map[int]int{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < len(pool); i++ {
		winner := NextAd(pool)
		if winner == nil {
			t.Fatalf("step %d: no winner", i)
		}
		seen[winner.ID]++
		now = now.Add(time.Second)
		shown := now
		winner.LastShownAt = &shown
		winner.TimesShown++
	}

	for _, ad := range pool {
		if seen[ad.ID] != 1 {
			t.Fatalf("ad %d shown %d times in one rotation cycle, want 1 (seen=%v)", ad.ID, seen[ad.ID], seen)
		}
	}
}
