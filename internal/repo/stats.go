// Package repo implements the data persistence layer for the progression
// engine, backed by GORM. This file provides aggregate queries: activity
// metadata for conditional responses (ETag) and the XP leaderboard.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-progression-engine/internal/domain"
)

// ActivityStats returns the number of activity rows for userID and the
// newest CreatedAt among them (nil when there are none).
func ActivityStats(ctx context.Context, db *gorm.DB, userID string) (count int64, newest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ActivityLog{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}

// Leaderboard returns the top users by lifetime XP.
func Leaderboard(ctx context.Context, db *gorm.DB, limit int) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Order("total_xp DESC, user_id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// RankOf returns the 1-based rank a record with totalXP would hold.
func RankOf(ctx context.Context, db *gorm.DB, totalXP int64) (int64, error) {
	var ahead int64
	err := db.WithContext(ctx).Model(&domain.User{}).Where("total_xp > ?", totalXP).Count(&ahead).Error
	return ahead + 1, err
}
