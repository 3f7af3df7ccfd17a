package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/repo"
)

// AdminAward grants amount XP with no guard, caps or multipliers. The user
// must already exist.
func (e *Engine) AdminAward(ctx context.Context, userID string, amount int64) (AwardResult, error) {
	tr := otel.Tracer("services/Engine")
	ctx, span := tr.Start(ctx, "AdminAward",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.Int64("xp.amount", amount)),
	)
	defer span.End()

	res := AwardResult{
		UserID:      userID,
		Source:      domain.SourceAdmin,
		BaseAmount:  amount,
		Multiplier:  1,
		Breakdown:   Multiplier{Peak: 1, Weekend: 1, Event: 1, Boost: 1, Streak: 1},
		FinalAmount: amount,
	}
	if amount <= 0 {
		return res, ErrInvalidAmount
	}

	now := e.now()
	g := repo.XPGrant{UserID: userID, Source: domain.SourceAdmin, Amount: amount, Day: e.Window.Today(now), Now: now}
	if err := e.commit(ctx, g, &res, domain.ActivityAdjust); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return res, ErrUserNotFound
		}
		span.RecordError(err)
		return res, err
	}
	e.count(res)
	log.Info().Str("user_id", userID).Int64("amount", amount).Int64("total_xp", res.TotalXP).Msg("admin xp award")

	e.fireLevelUp(ctx, res, now)
	return res, nil
}

// RemovalResult reports an admin removal.
type RemovalResult struct {
	UserID     string `json:"user_id"`
	Requested  int64  `json:"requested"`
	Removed    int64  `json:"removed"`
	TotalXP    int64  `json:"total_xp"`
	Level      int    `json:"level"`
	ActivityID string `json:"activity_id"`
}

// AdminRemove removes up to amount XP, never taking the total below zero,
// and reports what was actually removed. The level is recomputed and may
// drop; drops do not fire the cascade.
func (e *Engine) AdminRemove(ctx context.Context, userID string, amount int64) (RemovalResult, error) {
	tr := otel.Tracer("services/Engine")
	ctx, span := tr.Start(ctx, "AdminRemove",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.Int64("xp.amount", amount)),
	)
	defer span.End()

	res := RemovalResult{UserID: userID, Requested: amount}
	if amount <= 0 {
		return res, ErrInvalidAmount
	}
	now := e.now()

	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, u, err := repo.RemoveXP(ctx, tx, userID, amount, now)
		if err != nil {
			return err
		}
		level := e.Curve.LevelFromTotalXP(u.TotalXP)
		if err := repo.SetLevel(ctx, tx, userID, level, e.Curve.IntoLevel(u.TotalXP, level)); err != nil {
			return err
		}
		entry := &domain.ActivityLog{
			UserID:     userID,
			Kind:       domain.ActivityAdjust,
			Source:     domain.SourceAdmin,
			BaseAmount: -amount,
			Multiplier: 1,
			Amount:     -r,
			TotalAfter: u.TotalXP,
			LevelAfter: level,
			Reason:     "remove",
			CreatedAt:  now.UTC(),
		}
		if err := repo.AppendActivity(ctx, tx, entry); err != nil {
			return err
		}
		res.Removed, res.TotalXP, res.Level, res.ActivityID = r, u.TotalXP, level, entry.ID
		return nil
	})
	if errors.Is(err, repo.ErrNotFound) {
		return res, ErrUserNotFound
	}
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	log.Info().Str("user_id", userID).Int64("requested", amount).Int64("removed", res.Removed).Msg("admin xp removal")
	return res, nil
}

// RecomputeLevels re-derives every stored level from its total, as needed
// after the curve changes. It returns how many records changed. Transitions
// found here are corrections, not earned level-ups, so the cascade is not
// fired.
func (e *Engine) RecomputeLevels(ctx context.Context) (int, error) {
	tr := otel.Tracer("services/Engine")
	ctx, span := tr.Start(ctx, "RecomputeLevels")
	defer span.End()

	changed := 0
	err := repo.EachUserBatch(ctx, e.DB, 200, func(_ *gorm.DB, batch []domain.User) error {
		for _, u := range batch {
			level := e.Curve.LevelFromTotalXP(u.TotalXP)
			into := e.Curve.IntoLevel(u.TotalXP, level)
			if level == u.Level && into == u.CurrentXP {
				continue
			}
			if err := repo.SetLevel(ctx, e.DB, u.UserID, level, into); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return changed, err
	}
	span.SetAttributes(attribute.Int("users.changed", changed))
	return changed, nil
}

// ClearPenalty lifts an active anti-exploit penalty.
func (e *Engine) ClearPenalty(userID string) bool {
	ok := e.Guard.ClearPenalty(userID)
	if ok {
		log.Info().Str("user_id", userID).Msg("penalty cleared")
	}
	return ok
}
