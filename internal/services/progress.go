// Package services – read models
//
// Read-side views over the progression record: the progress card, the
// activity feed and the leaderboard. Nothing here mutates state.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/repo"
)

// ProgressView is the progress card of one user.
type ProgressView struct {
	UserID        string                  `json:"user_id"`
	Level         int                     `json:"level"`
	TotalXP       int64                   `json:"total_xp"`
	CurrentXP     int64                   `json:"current_xp"`
	NextLevelXP   int64                   `json:"next_level_xp"`
	Progress      float64                 `json:"progress"`
	Rank          int64                   `json:"rank"`
	Coins         int64                   `json:"coins"`
	VoiceMinutes  int64                   `json:"voice_minutes"`
	Streak        int                     `json:"streak"`
	LongestStreak int                     `json:"longest_streak"`
	ClaimedToday  bool                    `json:"claimed_today"`
	Today         domain.DailyCounters    `json:"today"`
	Remaining     map[domain.Source]int64 `json:"remaining"`
	Guard         GuardState              `json:"guard"`
	LastActiveAt  *time.Time              `json:"last_active_at,omitempty"`
}

// Progress builds the progress card, or returns ErrUserNotFound.
func (e *Engine) Progress(ctx context.Context, userID string) (*ProgressView, error) {
	tr := otel.Tracer("services/Engine")
	ctx, span := tr.Start(ctx, "Progress", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	u, err := repo.GetUser(ctx, e.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	rank, err := repo.RankOf(ctx, e.DB, u.TotalXP)
	if err != nil {
		return nil, err
	}

	now := e.now()
	today := e.Window.Today(now)
	v := &ProgressView{
		UserID:        u.UserID,
		Level:         u.Level,
		TotalXP:       u.TotalXP,
		CurrentXP:     u.CurrentXP,
		NextLevelXP:   e.Curve.XPForLevel(u.Level + 1),
		Progress:      e.Curve.Progress(u.TotalXP, u.Level),
		Rank:          rank,
		Coins:         u.Coins,
		VoiceMinutes:  u.VoiceMinutes,
		Streak:        EffectiveStreak(u, today, e.Window.Yesterday(now)),
		LongestStreak: u.StreakLongest,
		ClaimedToday:  u.LastClaimedDate == today,
		Today:         u.Counters(today),
		Remaining:     make(map[domain.Source]int64),
		Guard:         e.Guard.StateFor(userID, domain.SourceMessage),
		LastActiveAt:  u.LastActiveAt,
	}
	for _, src := range domain.AllSources {
		if !src.CapExempt() {
			v.Remaining[src] = e.Window.Remaining(u, src, now)
		}
	}
	return v, nil
}

// ActivityPage returns a page of the user's activity, newest first, and the
// total number of entries.
func (e *Engine) ActivityPage(ctx context.Context, userID string, page, pageSize int) ([]domain.ActivityLog, int64, error) {
	tr := otel.Tracer("services/Engine")
	ctx, span := tr.Start(ctx, "ActivityPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	if _, err := repo.GetUser(ctx, e.DB, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, ErrUserNotFound
		}
		return nil, 0, err
	}
	total, err := repo.CountActivity(ctx, e.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ActivityLog{}, 0, nil
	}
	items, err := repo.ListActivityPage(ctx, e.DB, userID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Leaderboard returns the top users by lifetime XP.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]domain.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return repo.Leaderboard(ctx, e.DB, limit)
}

// ActivityVersion returns the number of activity rows for userID and the
// newest timestamp among them. Handlers derive a weak ETag from it.
func (e *Engine) ActivityVersion(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.ActivityStats(ctx, e.DB, userID)
}

// Activity fetches a single activity entry, as needed to replay a stored
// admin correction.
func (e *Engine) Activity(ctx context.Context, id string) (*domain.ActivityLog, error) {
	a, err := repo.GetActivity(ctx, e.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return a, err
}

// MessageTier is the message base amount for content under the configured
// length tiers.
func (e *Engine) MessageTier(content string) int64 {
	return MessageLengthTier(content, e.Rewards)
}
