// Package repo implements the data persistence layer for the progression
// engine, backed by GORM. This file provides boost events and the event
// participation ledger.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-progression-engine/internal/domain"
)

// CreateBoost inserts a boost event, assigning an ID when unset.
func CreateBoost(ctx context.Context, db *gorm.DB, e *domain.BoostEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Create(e).Error
}

// ActiveBoosts lists events whose window contains now.
func ActiveBoosts(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.BoostEvent, error) {
	var out []domain.BoostEvent
	err := db.WithContext(ctx).
		Where("starts_at <= ? AND ends_at > ?", now, now).
		Order("starts_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// RecordParticipation adds xp to the user's tally for each event.
func RecordParticipation(ctx context.Context, db *gorm.DB, eventIDs []string, userID string, xp int64, now time.Time) error {
	if len(eventIDs) == 0 || xp <= 0 {
		return nil
	}
	rows := make([]domain.EventParticipation, 0, len(eventIDs))
	for _, id := range eventIDs {
		rows = append(rows, domain.EventParticipation{EventID: id, UserID: userID, XP: xp, UpdatedAt: now})
	}
	return db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"xp":         gorm.Expr("event_participation.xp + excluded.xp"),
			"updated_at": now,
		}),
	}).Create(&rows).Error
}

// EventStandings returns the top participants of an event by XP.
func EventStandings(ctx context.Context, db *gorm.DB, eventID string, limit int) ([]domain.EventParticipation, error) {
	var out []domain.EventParticipation
	err := db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("xp DESC, user_id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
