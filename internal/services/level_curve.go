package services

import (
	"math"

	"github.com/tbourn/go-progression-engine/internal/config"
)

// LevelCurve maps cumulative XP to levels. Level 1 is free; reaching level
// n from n-1 costs floor(BaseXP * n^Exponent).
type LevelCurve struct {
	BaseXP   float64
	Exponent float64
	MaxLevel int
}

// NewLevelCurve builds a curve from configuration.
func NewLevelCurve(c config.CurveConfig) LevelCurve {
	return LevelCurve{BaseXP: c.BaseXP, Exponent: c.Exponent, MaxLevel: c.MaxLevel}
}

// XPForLevel is the XP needed to advance from level-1 to level.
func (c LevelCurve) XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	return int64(math.Floor(c.BaseXP * math.Pow(float64(level), c.Exponent)))
}

// TotalXPForLevel is the cumulative XP at which level is reached.
func (c LevelCurve) TotalXPForLevel(level int) int64 {
	var total int64
	for l := 2; l <= level; l++ {
		total += c.XPForLevel(l)
	}
	return total
}

// LevelFromTotalXP returns the highest level whose cumulative threshold does
// not exceed total, scanning upward from 1.
func (c LevelCurve) LevelFromTotalXP(total int64) int {
	level := 1
	var reached int64
	for c.MaxLevel <= 0 || level < c.MaxLevel {
		next := reached + c.XPForLevel(level+1)
		if next > total {
			break
		}
		reached = next
		level++
	}
	return level
}

// Progress is the fraction of the way from level to level+1, in [0,1].
func (c LevelCurve) Progress(total int64, level int) float64 {
	floor := c.TotalXPForLevel(level)
	span := c.XPForLevel(level + 1)
	if span <= 0 {
		return 1
	}
	p := float64(total-floor) / float64(span)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// IntoLevel is the XP earned past the threshold of level.
func (c LevelCurve) IntoLevel(total int64, level int) int64 {
	into := total - c.TotalXPForLevel(level)
	if into < 0 {
		return 0
	}
	return into
}
