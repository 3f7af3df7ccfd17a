package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-progression-engine/internal/domain"
)

func TestActiveBoosts_Window(t *testing.T) {
	db := newProgressionDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 6, 20, 0, 0, 0, time.UTC)

	seed := []domain.BoostEvent{
		{Name: "running", XPMultiplier: 2, StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)},
		{Name: "ended", XPMultiplier: 3, StartsAt: now.Add(-2 * time.Hour), EndsAt: now},
		{Name: "future", XPMultiplier: 4, StartsAt: now.Add(time.Minute), EndsAt: now.Add(time.Hour)},
	}
	for i := range seed {
		if err := CreateBoost(ctx, db, &seed[i]); err != nil {
			t.Fatalf("CreateBoost: %v", err)
		}
		if seed[i].ID == "" {
			t.Fatalf("id should be assigned")
		}
	}

	active, err := ActiveBoosts(ctx, db, now)
	if err != nil {
		t.Fatalf("ActiveBoosts: %v", err)
	}
	if len(active) != 1 || active[0].Name != "running" {
		t.Fatalf("active = %+v; want only 'running'", active)
	}
}

func TestRecordParticipation_Accumulates(t *testing.T) {
	db := newProgressionDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ev := &domain.BoostEvent{Name: "weekend", XPMultiplier: 2, StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)}
	if err := CreateBoost(ctx, db, ev); err != nil {
		t.Fatalf("CreateBoost: %v", err)
	}

	for _, xp := range []int64{5, 7, 0} {
		if err := RecordParticipation(ctx, db, []string{ev.ID}, "u1", xp, now); err != nil {
			t.Fatalf("RecordParticipation: %v", err)
		}
	}
	_ = RecordParticipation(ctx, db, []string{ev.ID}, "u2", 20, now)
	_ = RecordParticipation(ctx, db, nil, "u3", 20, now)

	top, err := EventStandings(ctx, db, ev.ID, 10)
	if err != nil {
		t.Fatalf("EventStandings: %v", err)
	}
	if len(top) != 2 || top[0].UserID != "u2" || top[1].UserID != "u1" || top[1].XP != 12 {
		t.Fatalf("standings = %+v", top)
	}
}
