package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/repo"
)

// DailyResult is the outcome of a successful daily claim.
type DailyResult struct {
	XPGained      int64 `json:"xp_gained"`
	StreakBonus   int64 `json:"streak_bonus"`
	NewStreak     int   `json:"new_streak"`
	LongestStreak int   `json:"longest_streak"`
	CoinsGained   int64 `json:"coins_gained"`
	TotalXP       int64 `json:"total_xp"`
	Level         int   `json:"level"`
	LeveledUp     bool  `json:"leveled_up"`
}

// AwardDaily claims today's reward. It returns nil when today was already
// claimed. The claim, the daily grant and the streak bonus commit together;
// both grants bypass the guard and the daily window.
func (e *Engine) AwardDaily(ctx context.Context, userID string) (*DailyResult, error) {
	tr := otel.Tracer("services/Engine")
	ctx, span := tr.Start(ctx, "AwardDaily", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrEmptyUserID
	}
	if _, err := repo.FindOrCreateUser(ctx, e.DB, userID); err != nil {
		return nil, err
	}

	now := e.now()
	today, yesterday := e.Window.Today(now), e.Window.Yesterday(now)
	dailyMult := e.eventFactor(ctx, "daily")
	coinsMult := e.eventFactor(ctx, "coins")

	var (
		out   *DailyResult
		first AwardResult
		last  AwardResult
	)
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := repo.ClaimDaily(ctx, tx, userID, today, yesterday)
		if err != nil || !claimed {
			return err
		}
		u, err := repo.GetUser(ctx, tx, userID)
		if err != nil {
			return err
		}

		xp := Apply(e.Rewards.DailyXP, dailyMult)
		bonus := StreakBonus(u.StreakCurrent, e.Rewards)
		out = &DailyResult{
			XPGained:      xp,
			StreakBonus:   bonus,
			NewStreak:     u.StreakCurrent,
			LongestStreak: u.StreakLongest,
		}

		first = AwardResult{UserID: userID, Source: domain.SourceDaily, BaseAmount: e.Rewards.DailyXP, Multiplier: dailyMult, FinalAmount: xp}
		if xp > 0 {
			g := repo.XPGrant{UserID: userID, Source: domain.SourceDaily, Amount: xp, Day: today, Now: now}
			if err := e.commitTx(ctx, tx, g, &first, domain.ActivityAward); err != nil {
				return err
			}
		} else {
			first.TotalXP, first.OldLevel, first.NewLevel = u.TotalXP, u.Level, u.Level
		}
		last = first

		if bonus > 0 {
			last = AwardResult{UserID: userID, Source: domain.SourceStreak, BaseAmount: bonus, Multiplier: 1, FinalAmount: bonus}
			g := repo.XPGrant{UserID: userID, Source: domain.SourceStreak, Amount: bonus, Day: today, Now: now}
			if err := e.commitTx(ctx, tx, g, &last, domain.ActivityAward); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if out == nil {
		xpDenials.WithLabelValues(string(domain.SourceDaily), string(ReasonAlreadyClaimed)).Inc()
		return nil, nil
	}

	out.TotalXP, out.Level = last.TotalXP, last.NewLevel
	if out.XPGained > 0 {
		e.count(first)
	}
	if out.StreakBonus > 0 {
		e.count(last)
	}

	if coins := Apply(e.Rewards.DailyCoins, coinsMult); coins > 0 {
		if err := repo.AddCoins(ctx, e.DB, userID, coins); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("daily coin award failed")
		} else {
			out.CoinsGained = coins
		}
	}

	// one cascade for the whole claim, from the level before the daily grant
	combined := AwardResult{
		UserID:    userID,
		Source:    domain.SourceDaily,
		TotalXP:   last.TotalXP,
		OldLevel:  first.OldLevel,
		NewLevel:  last.NewLevel,
		LeveledUp: last.NewLevel > first.OldLevel,
	}
	out.LeveledUp = combined.LeveledUp
	e.fireLevelUp(ctx, combined, now)
	return out, nil
}
