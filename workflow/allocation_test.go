package workflow

import (
	"testing"
	"time"

	"github.com/dwellmatch/estates_backend/models"
)

func agentAt(id int, lastAssigned *time.Time) *models.Agent {
	return &models.Agent{ID: id, LastRequestAssignedAt: lastAssigned}
}

func tp(t time.Time) *time.Time { return &t }

func TestNextAgent_NeverAssignedWinsOverOldTimestamp(t *testing.T) {
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	pool := []*models.Agent{
		agentAt(1, tp(old)),
		agentAt(2, nil),
		agentAt(3, tp(old.Add(time.Hour))),
	}

	got := NextAgent(pool, 0)
	if got == nil || got.ID != 2 {
		t.Fatalf("expected never-assigned agent 2 to win, got %+v", got)
	}
}

func TestNextAgent_OldestTimestampWins(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	pool := []*models.Agent{
		agentAt(1, tp(base.Add(2*time.Minute))),
		agentAt(2, tp(base)),
		agentAt(3, tp(base.Add(time.Minute))),
	}

	got := NextAgent(pool, 0)
	if got == nil || got.ID != 2 {
		t.Fatalf("expected oldest-served agent 2 to win, got %+v", got)
	}
}

func TestNextAgent_TieBrokenByLowestId(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Same timestamp everywhere: id decides, and it must be deterministic
	// regardless of pool order.
	pools := [][]*models.Agent{
		{agentAt(3, tp(base)), agentAt(1, tp(base)), agentAt(2, tp(base))},
		{agentAt(1, tp(base)), agentAt(2, tp(base)), agentAt(3, tp(base))},
		{agentAt(2, tp(base)), agentAt(3, tp(base)), agentAt(1, tp(base))},
	}
	for i, pool := range pools {
		got := NextAgent(pool, 0)
		if got == nil || got.ID != 1 {
			t.Fatalf("pool order %d: expected agent 1 on tie, got %+v", i, got)
		}
	}

	// Same for never-assigned ties.
	got := NextAgent([]*models.Agent{agentAt(9, nil), agentAt(4, nil)}, 0)
	if got == nil || got.ID != 4 {
		t.Fatalf("expected agent 4 on nil tie, got %+v", got)
	}
}

func TestNextAgent_ExcludesReleasingAgent(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	pool := []*models.Agent{
		agentAt(1, tp(base)),
		agentAt(2, tp(base.Add(time.Minute))),
	}

	got := NextAgent(pool, 1)
	if got == nil || got.ID != 2 {
		t.Fatalf("expected agent 2 when agent 1 is excluded, got %+v", got)
	}

	// Pool of one: excluding the only member yields no winner, the
	// request queues instead of bouncing back to the releaser.
	if got := NextAgent([]*models.Agent{agentAt(1, tp(base))}, 1); got != nil {
		t.Fatalf("expected nil when the only agent is excluded, got %+v", got)
	}
}

func TestNextAgent_EmptyPool(t *testing.T) {
	if got := NextAgent(nil, 0); got != nil {
		t.Fatalf("expected nil for empty pool, got %+v", got)
	}
}

// Simulates N sequential assignments against a stable pool and checks the
// round-robin property: after each full cycle every agent has been picked
// exactly once more, so counts never differ by more than one.
func TestNextAgent_FairDistributionOverManyRounds(t *testing.T) {
	const poolSize = 7
	const rounds = 100

	pool := make([]*models.Agent, 0, poolSize)
	for i := 1; i <= poolSize; i++ {
		pool = append(pool, agentAt(i, nil))
	}

	counts := map[int]int{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for r := 0; r < rounds; r++ {
		winner := NextAgent(pool, 0)
		if winner == nil {
			t.Fatalf("round %d: no winner from non-empty pool", r)
		}
		counts[winner.ID]++
		now = now.Add(time.Second)
		winner.LastRequestAssignedAt = tp(now)
	}

	min, max := rounds, 0
	for i := 1; i <= poolSize; i++ {
		c := counts[i]
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	if max-min > 1 {
		t.Fatalf("unfair distribution after %d rounds: min=%d max=%d counts=%v", rounds, min, max, counts)
	}
}
