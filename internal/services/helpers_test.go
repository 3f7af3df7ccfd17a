package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-progression-engine/internal/config"
	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/repo"
)

// fakeClock is a settable Clock for deterministic tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// weekdayNoon is a Wednesday outside peak hours.
var weekdayNoon = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func testGuardConfig() config.GuardConfig {
	return config.GuardConfig{
		BurstWindow:        10 * time.Second,
		BurstLimit:         8,
		PenaltyDuration:    5 * time.Minute,
		HistorySize:        5,
		DuplicateThreshold: 0.85,
		StateTTL:           30 * time.Minute,
		MinVoiceMembers:    2,
		MuteTolerance:      2 * time.Minute,
	}
}

func testCooldowns() config.CooldownConfig {
	return config.CooldownConfig{Message: 60 * time.Second, Reaction: 30 * time.Second}
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		Timezone:    "UTC",
		Curve:       config.CurveConfig{BaseXP: 100, Exponent: 1.5, MaxLevel: 1000},
		Caps:        testCaps(),
		Cooldowns:   testCooldowns(),
		Guard:       testGuardConfig(),
		Multipliers: testMultipliers(),
		Rewards: config.RewardConfig{
			MessageXP: 5, MessageXPMax: 5, ReactionXP: 2, InviteXP: 50, VoiceXP: 3,
			DailyXP: 100, StreakBonusPerDay: 10, StreakBonusCap: 200,
			CoinsPerXP: 0.1, DailyCoins: 25,
		},
		Voice: config.VoiceConfig{TickInterval: time.Minute, ShutdownTimeout: 10 * time.Second},
	}
}

// newTestDB opens a private in-memory database with every table migrated.
// A single connection serialises concurrent transactions.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestEngine(t *testing.T, clk Clock) *Engine {
	t.Helper()
	return NewEngine(newTestDB(t), testEngineConfig(), clk, nil)
}

func mustUser(t *testing.T, e *Engine, id string) *domain.User {
	t.Helper()
	u, err := repo.GetUser(context.Background(), e.DB, id)
	if err != nil {
		t.Fatalf("get user %s: %v", id, err)
	}
	return u
}

func ptr[T any](v T) *T { return &v }
