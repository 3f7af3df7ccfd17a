// Package repo implements the data persistence layer for the progression
// engine, backed by GORM. This file provides the progression record
// operations. Every XP mutation is a single conditional UPDATE evaluated by
// the database, never a read-modify-write in Go.
//
// Functions that must observe their own writes (AddXP followed by GetUser,
// RemoveXP) expect to run inside the caller's transaction:
//
//	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
//		if err := repo.AddXP(ctx, tx, grant); err != nil {
//			return err
//		}
//		u, err := repo.GetUser(ctx, tx, grant.UserID)
//		...
//	})
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-progression-engine/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrCapReached is returned by AddXP when applying the grant would push a
// daily counter past its cap. Nothing is written in that case.
var ErrCapReached = errors.New("daily cap reached")

// counterColumns are reset together when counter_date is stale.
var counterColumns = []string{"daily_messages", "daily_voice", "daily_reactions", "daily_invites"}

// Caps bounds a grant against today's counters. Source applies to the
// counter column of the grant's source.
type Caps struct {
	Total  int64
	Source int64
}

// XPGrant describes one atomic XP increment.
type XPGrant struct {
	UserID string
	Source domain.Source
	Amount int64
	Day    string // counter day key (domain.DateLayout)
	Now    time.Time
	Caps   *Caps // nil = uncapped
}

// FindOrCreateUser returns the progression record for userID, inserting a
// fresh level-1 record when none exists. Concurrent callers race safely on
// the primary key.
func FindOrCreateUser(ctx context.Context, db *gorm.DB, userID string) (*domain.User, error) {
	u := &domain.User{UserID: userID, Level: 1}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(u).Error; err != nil {
		return nil, err
	}
	return GetUser(ctx, db, userID)
}

// GetUser fetches a progression record or returns ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, userID string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetDailyCounters returns today's counters; a stale counter_date reads as zero.
func GetDailyCounters(ctx context.Context, db *gorm.DB, userID, day string) (domain.DailyCounters, error) {
	u, err := GetUser(ctx, db, userID)
	if err != nil {
		return domain.DailyCounters{}, err
	}
	return u.Counters(day), nil
}

// AddXP atomically adds g.Amount to total_xp/current_xp and, for sources
// with a daily counter, to today's counters, resetting them first when
// counter_date is stale. With g.Caps set, the row only changes when
// neither the total nor the source counter would exceed its cap; otherwise
// ErrCapReached is returned.
func AddXP(ctx context.Context, db *gorm.DB, g XPGrant) error {
	if g.Amount < 0 {
		return fmt.Errorf("negative xp grant %d", g.Amount)
	}

	updates := map[string]any{
		"total_xp":       gorm.Expr("total_xp + ?", g.Amount),
		"current_xp":     gorm.Expr("current_xp + ?", g.Amount),
		"last_active_at": g.Now,
	}

	q := db.WithContext(ctx).Model(&domain.User{}).Where("user_id = ?", g.UserID)

	if col := g.Source.CounterColumn(); col != "" {
		for _, c := range counterColumns {
			if c == col {
				updates[c] = gorm.Expr(todayValue(c)+" + ?", g.Day, g.Amount)
			} else {
				updates[c] = gorm.Expr(todayValue(c), g.Day)
			}
		}
		updates["daily_total"] = gorm.Expr(todayValue("daily_total")+" + ?", g.Day, g.Amount)
		updates["counter_date"] = g.Day

		if g.Caps != nil {
			q = q.Where(todayValue("daily_total")+" + ? <= ?", g.Day, g.Amount, g.Caps.Total).
				Where(todayValue(col)+" + ? <= ?", g.Day, g.Amount, g.Caps.Source)
		}
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return missOrCap(ctx, db, g.UserID)
	}
	return nil
}

// todayValue yields column's value as of the bound day: the stored value
// when counter_date matches, zero otherwise. It takes one bind parameter.
func todayValue(column string) string {
	return "(CASE WHEN counter_date = ? THEN " + column + " ELSE 0 END)"
}

func missOrCap(ctx context.Context, db *gorm.DB, userID string) error {
	var n int64
	if err := db.WithContext(ctx).Model(&domain.User{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrCapReached
}

// RemoveXP lowers total_xp by up to amount, never below zero, and returns
// the amount actually removed together with the updated record. It must run
// inside a transaction: the first statement takes the row's write lock so
// the read that follows cannot race another writer.
func RemoveXP(ctx context.Context, db *gorm.DB, userID string, amount int64, now time.Time) (int64, *domain.User, error) {
	if amount < 0 {
		return 0, nil, fmt.Errorf("negative xp removal %d", amount)
	}
	res := db.WithContext(ctx).Model(&domain.User{}).Where("user_id = ?", userID).Update("updated_at", now)
	if res.Error != nil {
		return 0, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, nil, ErrNotFound
	}

	u, err := GetUser(ctx, db, userID)
	if err != nil {
		return 0, nil, err
	}
	removed := amount
	if removed > u.TotalXP {
		removed = u.TotalXP
	}
	if removed > 0 {
		err = db.WithContext(ctx).Model(&domain.User{}).Where("user_id = ?", userID).
			Update("total_xp", gorm.Expr("total_xp - ?", removed)).Error
		if err != nil {
			return 0, nil, err
		}
		u.TotalXP -= removed
	}
	return removed, u, nil
}

// SetLevel stores a recomputed level and the XP earned inside it.
func SetLevel(ctx context.Context, db *gorm.DB, userID string, level int, currentXP int64) error {
	res := db.WithContext(ctx).Model(&domain.User{}).Where("user_id = ?", userID).
		Updates(map[string]any{"level": level, "current_xp": currentXP})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimDaily records today's claim and advances the streak in one
// conditional update: a claim made the day after the previous one extends
// the streak, any longer gap restarts it at 1. It reports false when today
// was already claimed.
func ClaimDaily(ctx context.Context, db *gorm.DB, userID, today, yesterday string) (bool, error) {
	const next = "(CASE WHEN last_claimed_date = ? THEN streak_current + 1 ELSE 1 END)"
	res := db.WithContext(ctx).Model(&domain.User{}).
		Where("user_id = ? AND last_claimed_date <> ?", userID, today).
		Updates(map[string]any{
			"streak_current":    gorm.Expr(next, yesterday),
			"streak_longest":    gorm.Expr("CASE WHEN "+next+" > streak_longest THEN "+next+" ELSE streak_longest END", yesterday, yesterday),
			"last_claimed_date": today,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AddCoins increments the coin balance.
func AddCoins(ctx context.Context, db *gorm.DB, userID string, amount int64) error {
	return increment(ctx, db, userID, "coins", amount)
}

// AddVoiceMinutes increments the coarse voice-minutes statistic.
func AddVoiceMinutes(ctx context.Context, db *gorm.DB, userID string, minutes int64) error {
	return increment(ctx, db, userID, "voice_minutes", minutes)
}

func increment(ctx context.Context, db *gorm.DB, userID, column string, by int64) error {
	res := db.WithContext(ctx).Model(&domain.User{}).Where("user_id = ?", userID).
		Update(column, gorm.Expr(column+" + ?", by))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// EachUserBatch walks every progression record in primary-key order,
// handing batches of up to size rows to fn.
func EachUserBatch(ctx context.Context, db *gorm.DB, size int, fn func(tx *gorm.DB, batch []domain.User) error) error {
	if size <= 0 {
		size = 200
	}
	var batch []domain.User
	return db.WithContext(ctx).FindInBatches(&batch, size, func(tx *gorm.DB, _ int) error {
		return fn(tx, batch)
	}).Error
}
