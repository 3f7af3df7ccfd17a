package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/eventbus"
	"github.com/tbourn/go-progression-engine/internal/repo"
)

func TestAward_FirstMessageStaysLevelOne(t *testing.T) {
	e := newTestEngine(t, newFakeClock(weekdayNoon))
	ctx := context.Background()

	res, err := e.Award(ctx, AwardRequest{UserID: "u1", Source: domain.SourceMessage, Content: "hi all"})
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if res.Denied || res.FinalAmount != 5 || res.Multiplier != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.TotalXP != 5 || res.NewLevel != 1 || res.LeveledUp {
		t.Fatalf("unexpected totals: %+v", res)
	}
	u := mustUser(t, e, "u1")
	if u.TotalXP != 5 || u.CurrentXP != 5 || u.Level != 1 || u.DailyMessages != 5 || u.DailyTotal != 5 {
		t.Fatalf("unexpected record: %+v", u)
	}
	if n, _ := repo.CountActivity(ctx, e.DB, "u1"); n != 1 {
		t.Fatalf("activity rows=%d want 1", n)
	}
}

func TestAward_CapMinusOneIsDenied(t *testing.T) {
	clk := newFakeClock(weekdayNoon)
	e := newTestEngine(t, clk)
	ctx := context.Background()

	if _, err := repo.FindOrCreateUser(ctx, e.DB, "u1"); err != nil {
		t.Fatal(err)
	}
	err := e.DB.Model(&domain.User{}).Where("user_id = ?", "u1").Updates(map[string]any{
		"daily_messages": 499,
		"daily_total":    499,
		"counter_date":   e.Window.Today(weekdayNoon),
	}).Error
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Award(ctx, AwardRequest{UserID: "u1", Source: domain.SourceMessage, Content: "one more"})
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if !res.Denied || res.Reason != ReasonDailyCap {
		t.Fatalf("want daily_cap, got %+v", res)
	}
	u := mustUser(t, e, "u1")
	if u.TotalXP != 0 || u.DailyMessages != 499 {
		t.Fatalf("record changed: %+v", u)
	}
}

func TestAward_DailyCapNeverExceeded(t *testing.T) {
	clk := newFakeClock(weekdayNoon)
	e := newTestEngine(t, clk)
	ctx := context.Background()

	// reactions: 2 XP each, cap 100; the 30s cooldown is stepped over
	for i := 0; i < 80; i++ {
		if _, err := e.Award(ctx, AwardRequest{UserID: "u1", Source: domain.SourceReaction}); err != nil {
			t.Fatalf("award %d: %v", i, err)
		}
		clk.Advance(31 * time.Second)
	}
	u := mustUser(t, e, "u1")
	if u.DailyReactions != 100 || u.TotalXP != 100 {
		t.Fatalf("reactions=%d total=%d want 100/100", u.DailyReactions, u.TotalXP)
	}
}

func TestAward_ConcurrentAwardsAllLand(t *testing.T) {
	e := newTestEngine(t, newFakeClock(weekdayNoon))
	ctx := context.Background()
	if _, err := repo.FindOrCreateUser(ctx, e.DB, "u1"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Award(ctx, AwardRequest{UserID: "u1", Source: domain.SourceVoice, BaseOverride: ptr(int64(5))})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("award: %v", err)
		}
	}
	if u := mustUser(t, e, "u1"); u.TotalXP != 10 || u.Level != 1 {
		t.Fatalf("total=%d level=%d want 10/1", u.TotalXP, u.Level)
	}
}

func TestAward_LevelUpFiresExactlyOnce(t *testing.T) {
	e := newTestEngine(t, newFakeClock(weekdayNoon))
	ctx := context.Background()

	var fired atomic.Int32
	e.Cascade.Register("probe", func(_ context.Context, ev LevelUp) error {
		if ev.OldLevel != 1 || ev.NewLevel != 2 {
			t.Errorf("unexpected transition %d->%d", ev.OldLevel, ev.NewLevel)
		}
		fired.Add(1)
		return nil
	})

	if _, err := repo.FindOrCreateUser(ctx, e.DB, "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AdminAward(ctx, "u1", 270); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.Award(ctx, AwardRequest{UserID: "u1", Source: domain.SourceVoice, BaseOverride: ptr(int64(5))})
		}()
	}
	wg.Wait()

	if got := fired.Load(); got != 1 {
		t.Fatalf("level-up fired %d times, want 1", got)
	}
	u := mustUser(t, e, "u1")
	if u.TotalXP != 320 || u.Level != 2 || u.CurrentXP != 320-282 {
		t.Fatalf("unexpected record: %+v", u)
	}
	var rows int64
	e.DB.Model(&domain.ActivityLog{}).Where("user_id = ? AND kind = ?", "u1", domain.ActivityLevelUp).Count(&rows)
	if rows != 1 {
		t.Fatalf("level_up rows=%d want 1", rows)
	}
}

func TestAward_GuardDenials(t *testing.T) {
	clk := newFakeClock(weekdayNoon)
	e := newTestEngine(t, clk)
	ctx := context.Background()

	if _, err := e.Award(ctx, AwardRequest{UserID: "u1", Source: domain.SourceMessage, Content: "free nitro here click"}); err != nil {
		t.Fatal(err)
	}
	res, _ := e.Award(ctx, AwardRequest{UserID: "u1", Source: domain.SourceMessage, Content: "different words"})
	if !res.Denied || res.Reason != ReasonCooldown || res.Suspicious {
		t.Fatalf("want cooldown, got %+v", res)
	}

	clk.Advance(2 * time.Minute)
	res, _ = e.Award(ctx, AwardRequest{UserID: "u1", Source: domain.SourceMessage, Content: "FREE nitro here, click!"})
	if !res.Denied || res.Reason != ReasonDuplicate || !res.Suspicious || res.ActivityID == "" {
		t.Fatalf("want suspicious duplicate, got %+v", res)
	}

	// one grant plus one suspicious denial; the cooldown denial is not logged
	if n, _ := repo.CountActivity(ctx, e.DB, "u1"); n != 2 {
		t.Fatalf("activity rows=%d want 2", n)
	}
	if u := mustUser(t, e, "u1"); u.TotalXP != 5 {
		t.Fatalf("total=%d want 5", u.TotalXP)
	}
}

func TestAward_InvalidInput(t *testing.T) {
	e := newTestEngine(t, newFakeClock(weekdayNoon))
	ctx := context.Background()

	cases := []struct {
		name string
		req  AwardRequest
		want error
	}{
		{"empty user", AwardRequest{Source: domain.SourceMessage}, ErrEmptyUserID},
		{"unknown source", AwardRequest{UserID: "u1", Source: "karma"}, ErrInvalidSource},
		{"daily via award", AwardRequest{UserID: "u1", Source: domain.SourceDaily}, ErrInvalidSource},
		{"negative override", AwardRequest{UserID: "u1", Source: domain.SourceInvite, BaseOverride: ptr(int64(-1))}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.Award(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
		})
	}
}

func TestAward_MultipliersAndBoostEvent(t *testing.T) {
	saturdayPeak := time.Date(2026, 3, 7, 19, 0, 0, 0, time.UTC)
	e := newTestEngine(t, newFakeClock(saturdayPeak))
	ctx := context.Background()

	_, err := e.Boosts.Create(ctx, BoostInput{
		Name:         "launch week",
		XPMultiplier: 2,
		StartsAt:     saturdayPeak.Add(-time.Hour),
		EndsAt:       saturdayPeak.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create boost: %v", err)
	}

	res, err := e.Award(ctx, AwardRequest{UserID: "u1", Source: domain.SourceVoice, BaseOverride: ptr(int64(5)), IsBoosted: true})
	if err != nil {
		t.Fatal(err)
	}
	// floor(5 * 1.25 * 1.5 * 2 * 1.2) = floor(22.5)
	if res.FinalAmount != 22 || !res.Breakdown.EventActive {
		t.Fatalf("final=%d breakdown=%+v", res.FinalAmount, res.Breakdown)
	}
	// floor(22 * 0.1) coins
	if res.CoinsGained != 2 {
		t.Fatalf("coins=%d want 2", res.CoinsGained)
	}

	active, _ := e.Boosts.Active(ctx)
	standings, err := e.Boosts.Standings(ctx, active[0].ID, 5)
	if err != nil || len(standings) != 1 || standings[0].XP != 22 {
		t.Fatalf("standings=%+v err=%v", standings, err)
	}
}

func TestAward_StreakMultiplierNeedsLiveStreak(t *testing.T) {
	clk := newFakeClock(weekdayNoon)
	e := newTestEngine(t, clk)
	ctx := context.Background()

	if _, err := repo.FindOrCreateUser(ctx, e.DB, "u1"); err != nil {
		t.Fatal(err)
	}
	e.DB.Model(&domain.User{}).Where("user_id = ?", "u1").Updates(map[string]any{
		"streak_current":    9,
		"last_claimed_date": "2026-03-01",
	})
	res, _ := e.Award(ctx, AwardRequest{UserID: "u1", Source: domain.SourceInvite})
	if res.Breakdown.Streak != 1 {
		t.Fatalf("broken streak should not multiply: %+v", res.Breakdown)
	}

	e.DB.Model(&domain.User{}).Where("user_id = ?", "u1").Update("last_claimed_date", "2026-03-03")
	res, _ = e.Award(ctx, AwardRequest{UserID: "u1", Source: domain.SourceInvite})
	if res.Breakdown.Streak != 1.1 || res.FinalAmount != 55 {
		t.Fatalf("live streak: %+v", res)
	}
}

func TestHelpers_TiersAndAmounts(t *testing.T) {
	r := testEngineConfig().Rewards
	r.MessageXP, r.MessageXPMax = 5, 15
	if got := MessageLengthTier("ok", r); got != 5 {
		t.Fatalf("short tier=%d", got)
	}
	if got := MessageLengthTier(strings.Repeat("a", 60), r); got != 10 {
		t.Fatalf("mid tier=%d", got)
	}
	if got := MessageLengthTier(strings.Repeat("a", 250), r); got != 15 {
		t.Fatalf("long tier=%d", got)
	}

	e := &Engine{Rewards: testEngineConfig().Rewards}
	for humans, want := range map[int]int64{2: 3, 3: 4, 5: 6, 20: 6} {
		if got := e.VoiceTickAmount(humans); got != want {
			t.Fatalf("VoiceTickAmount(%d)=%d want %d", humans, got, want)
		}
	}
	if got := StreakBonus(30, r); got != 200 {
		t.Fatalf("streak bonus cap: %d", got)
	}

	e.Rewards.MessageXPMax = 9
	e.Intn = func(n int64) int64 { return n - 1 }
	if got := e.baseAmount(AwardRequest{Source: domain.SourceMessage}); got != 9 {
		t.Fatalf("ranged base=%d want 9", got)
	}
}

func TestAward_EmojiMessagesAreNotSuspicious(t *testing.T) {
	clk := newFakeClock(weekdayNoon)
	e := newTestEngine(t, clk)
	ctx := context.Background()

	if res, err := e.Award(ctx, AwardRequest{UserID: "u1", Source: domain.SourceMessage, Content: "👍"}); err != nil || res.Denied {
		t.Fatalf("first: %+v err=%v", res, err)
	}
	clk.Advance(2 * time.Minute)
	res, err := e.Award(ctx, AwardRequest{UserID: "u1", Source: domain.SourceMessage, Content: "😂🎉"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if res.Denied || res.Suspicious {
		t.Fatalf("distinct emoji denied: %+v", res)
	}
	if u := mustUser(t, e, "u1"); u.TotalXP != 10 {
		t.Fatalf("total_xp=%d want 10", u.TotalXP)
	}
}

func TestAward_PublishesMillisecondTimestamp(t *testing.T) {
	hub := eventbus.NewHub()
	e := NewEngine(newTestDB(t), testEngineConfig(), newFakeClock(weekdayNoon), hub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := hub.Subscribe(ctx, 4)

	if _, err := e.Award(ctx, AwardRequest{UserID: "u1", Source: domain.SourceReaction}); err != nil {
		t.Fatalf("award: %v", err)
	}
	select {
	case ev := <-sub:
		if ev.Type != eventbus.TypeAward || ev.Timestamp != weekdayNoon.UnixMilli() {
			t.Fatalf("event=%+v want type %q at %d", ev, eventbus.TypeAward, weekdayNoon.UnixMilli())
		}
	case <-time.After(time.Second):
		t.Fatalf("no award event")
	}
}
