package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBoostService_CreateValidates(t *testing.T) {
	s := &BoostService{DB: newTestDB(t), Clock: newFakeClock(weekdayNoon)}
	ctx := context.Background()

	bad := []BoostInput{
		{Name: "", StartsAt: weekdayNoon, EndsAt: weekdayNoon.Add(time.Hour)},
		{Name: "empty window", StartsAt: weekdayNoon, EndsAt: weekdayNoon},
		{Name: "negative", XPMultiplier: -1, StartsAt: weekdayNoon, EndsAt: weekdayNoon.Add(time.Hour)},
	}
	for _, in := range bad {
		if _, err := s.Create(ctx, in); !errors.Is(err, ErrInvalidBoost) {
			t.Fatalf("%q: want ErrInvalidBoost, got %v", in.Name, err)
		}
	}

	ev, err := s.Create(ctx, BoostInput{Name: " weekend ", XPMultiplier: 1.5, StartsAt: weekdayNoon, EndsAt: weekdayNoon.Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID == "" || ev.Name != "weekend" || ev.CoinsMultiplier != 1 || ev.DailyMultiplier != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestBoostService_StackedMultipliers(t *testing.T) {
	clk := newFakeClock(weekdayNoon)
	s := &BoostService{DB: newTestDB(t), Clock: clk}
	ctx := context.Background()

	if f, err := s.ActiveXPMultiplier(ctx); err != nil || f != 1 {
		t.Fatalf("no events: f=%v err=%v", f, err)
	}
	for _, in := range []BoostInput{
		{Name: "a", XPMultiplier: 2, CoinsMultiplier: 3, StartsAt: weekdayNoon.Add(-time.Hour), EndsAt: weekdayNoon.Add(time.Hour)},
		{Name: "b", XPMultiplier: 1.5, StartsAt: weekdayNoon.Add(-time.Minute), EndsAt: weekdayNoon.Add(time.Minute)},
		{Name: "future", XPMultiplier: 10, StartsAt: weekdayNoon.Add(time.Hour), EndsAt: weekdayNoon.Add(2 * time.Hour)},
	} {
		if _, err := s.Create(ctx, in); err != nil {
			t.Fatal(err)
		}
	}
	if f, _ := s.ActiveXPMultiplier(ctx); f != 3 {
		t.Fatalf("xp multiplier=%v want 3", f)
	}
	if f, _ := s.ActiveCoinsMultiplier(ctx); f != 3 {
		t.Fatalf("coins multiplier=%v want 3", f)
	}

	// end is exclusive
	clk.Advance(time.Minute)
	if f, _ := s.ActiveXPMultiplier(ctx); f != 2 {
		t.Fatalf("after b ended: %v", f)
	}
}
