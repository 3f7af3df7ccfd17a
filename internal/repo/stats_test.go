package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-progression-engine/internal/domain"
)

// newTestDB opens a private in-memory database. A single connection keeps
// concurrent transactions serialised instead of failing with table locks.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
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

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestActivityStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, _, err := ActivityStats(context.Background(), db, "u1"); err == nil {
		t.Fatalf("expected error due to missing activity table")
	}
}

func TestActivityStats_EmptyAndNewest(t *testing.T) {
	db := newTestDB(t, &domain.ActivityLog{})
	ctx := context.Background()

	n, newest, err := ActivityStats(ctx, db, "u1")
	if err != nil || n != 0 || newest != nil {
		t.Fatalf("empty stats = (%d, %v, %v)", n, newest, err)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		e := &domain.ActivityLog{UserID: "u1", Kind: domain.ActivityAward, Source: domain.SourceMessage, Amount: 5, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := AppendActivity(ctx, db, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	_ = AppendActivity(ctx, db, &domain.ActivityLog{UserID: "u2", Kind: domain.ActivityAward, Source: domain.SourceVoice, CreatedAt: base.Add(time.Hour)})

	n, newest, err = ActivityStats(ctx, db, "u1")
	if err != nil || n != 3 {
		t.Fatalf("stats = (%d, %v)", n, err)
	}
	if newest == nil || !newest.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("newest = %v; want %v", newest, base.Add(2*time.Minute))
	}
}

func TestLeaderboardAndRank(t *testing.T) {
	db := newTestDB(t, &domain.User{})
	ctx := context.Background()

	for id, xp := range map[string]int64{"a": 50, "b": 300, "c": 120, "d": 120} {
		if err := db.Create(&domain.User{UserID: id, TotalXP: xp, Level: 1}).Error; err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	top, err := Leaderboard(ctx, db, 3)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	got := []string{top[0].UserID, top[1].UserID, top[2].UserID}
	want := []string{"b", "c", "d"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v; want %v", got, want)
		}
	}

	if r, _ := RankOf(ctx, db, 300); r != 1 {
		t.Fatalf("rank of top = %d", r)
	}
	if r, _ := RankOf(ctx, db, 120); r != 2 {
		t.Fatalf("ties share a rank, got %d", r)
	}
	if r, _ := RankOf(ctx, db, 50); r != 4 {
		t.Fatalf("rank of last = %d", r)
	}
}
