package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-progression-engine/internal/repo"
)

// Economy grants the secondary currency for XP earned.
type Economy interface {
	AwardCoins(ctx context.Context, userID string, xpAmount int64, multiplier float64) (int64, error)
}

// CoinLedger stores coins on the progression record:
// coins = floor(xpAmount * Rate * multiplier).
type CoinLedger struct {
	DB   *gorm.DB
	Rate float64
}

var _ Economy = (*CoinLedger)(nil)

// AwardCoins credits the coins and returns how many were granted.
func (l *CoinLedger) AwardCoins(ctx context.Context, userID string, xpAmount int64, multiplier float64) (int64, error) {
	if multiplier <= 0 {
		multiplier = 1
	}
	coins := Apply(xpAmount, l.Rate*multiplier)
	if coins <= 0 {
		return 0, nil
	}
	if err := repo.AddCoins(ctx, l.DB, userID, coins); err != nil {
		return 0, err
	}
	return coins, nil
}
