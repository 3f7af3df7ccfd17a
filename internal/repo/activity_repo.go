// Package repo implements the data persistence layer for the progression
// engine, backed by GORM. This file provides the append-only activity log.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-progression-engine/internal/domain"
)

// AppendActivity inserts an activity row, filling ID and CreatedAt when unset.
func AppendActivity(ctx context.Context, db *gorm.DB, e *domain.ActivityLog) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(e).Error
}

// GetActivity fetches one activity row by ID.
func GetActivity(ctx context.Context, db *gorm.DB, id string) (*domain.ActivityLog, error) {
	var e domain.ActivityLog
	if err := db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// CountActivity counts a user's activity rows.
func CountActivity(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.ActivityLog{}).Where("user_id = ?", userID).Count(&total).Error
	return total, err
}

// ListActivityPage returns a page of a user's activity, newest first.
func ListActivityPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.ActivityLog, error) {
	var out []domain.ActivityLog
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
