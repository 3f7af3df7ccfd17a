package services

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-progression-engine/internal/config"
)

// floorEpsilon absorbs binary float error so 100 * 1.15 floors to 115.
const floorEpsilon = 1e-9

// EventMultiplierSource reports the product of the multipliers of all
// currently active boost events, per reward kind. Each returns 1 when no
// event is running.
type EventMultiplierSource interface {
	ActiveXPMultiplier(ctx context.Context) (float64, error)
	ActiveCoinsMultiplier(ctx context.Context) (float64, error)
	ActiveDailyMultiplier(ctx context.Context) (float64, error)
}

// MultiplierContext carries the per-user inputs of a composition.
type MultiplierContext struct {
	IsBoosted  bool // membership boost (e.g. server booster role)
	StreakDays int
}

// Multiplier is the breakdown of one composition. Every factor is 1 when it
// does not apply.
type Multiplier struct {
	Peak        float64 `json:"peak"`
	Weekend     float64 `json:"weekend"`
	Event       float64 `json:"event"`
	Boost       float64 `json:"boost"`
	Streak      float64 `json:"streak"`
	EventActive bool    `json:"event_active"`
}

// Total is the product of every factor.
func (m Multiplier) Total() float64 {
	return m.Peak * m.Weekend * m.Event * m.Boost * m.Streak
}

// Apply floors base*factor exactly once, after every factor is multiplied in.
func Apply(base int64, factor float64) int64 {
	if base <= 0 || factor <= 0 {
		return 0
	}
	return int64(math.Floor(float64(base)*factor + floorEpsilon))
}

// MultiplierComposer combines the contextual bonus factors.
type MultiplierComposer struct {
	Policy   config.MultiplierConfig
	Location *time.Location
	Clock    Clock
	Events   EventMultiplierSource // optional
}

// Compose evaluates every factor at the composer's current time. A failing
// event source is logged and treated as no active event.
func (mc *MultiplierComposer) Compose(ctx context.Context, in MultiplierContext) Multiplier {
	now := mc.Clock.Now().In(mc.location())
	m := Multiplier{Peak: 1, Weekend: 1, Event: 1, Boost: 1, Streak: 1}

	if mc.inPeak(now.Hour()) {
		m.Peak = mc.Policy.Peak
	}
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		m.Weekend = mc.Policy.Weekend
	}
	if in.IsBoosted {
		m.Boost = mc.Policy.Boost
	}
	if mc.Policy.StreakMinDays > 0 && in.StreakDays >= mc.Policy.StreakMinDays {
		m.Streak = mc.Policy.Streak
	}
	if mc.Events != nil {
		f, err := mc.Events.ActiveXPMultiplier(ctx)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("event multiplier lookup failed")
		case f > 0 && f != 1:
			m.Event = f
			m.EventActive = true
		}
	}
	return m
}

// inPeak reports whether hour falls in [PeakStartHour, PeakEndHour), wrapping
// past midnight when the start is after the end.
func (mc *MultiplierComposer) inPeak(hour int) bool {
	start, end := mc.Policy.PeakStartHour, mc.Policy.PeakEndHour
	switch {
	case start == end:
		return false
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}

func (mc *MultiplierComposer) location() *time.Location {
	if mc.Location == nil {
		return time.UTC
	}
	return mc.Location
}
