package config

import (
	"errors"
	"fmt"
	"time"
)

// CurveConfig shapes the level curve: xpForLevel(n) = floor(BaseXP * n^Exponent).
type CurveConfig struct {
	BaseXP   float64 `mapstructure:"base_xp"`
	Exponent float64 `mapstructure:"exponent"`
	MaxLevel int     `mapstructure:"max_level"`
}

// CapsConfig holds the maximum XP per calendar day, overall and per source.
type CapsConfig struct {
	Total     int64 `mapstructure:"total"`
	Messages  int64 `mapstructure:"messages"`
	Voice     int64 `mapstructure:"voice"`
	Reactions int64 `mapstructure:"reactions"`
	Invites   int64 `mapstructure:"invites"`
}

// CooldownConfig holds the per-source cooldown after a successful grant.
type CooldownConfig struct {
	Message  time.Duration `mapstructure:"message"`
	Reaction time.Duration `mapstructure:"reaction"`
}

// GuardConfig tunes burst detection, penalties, duplicate detection and
// voice validity.
type GuardConfig struct {
	BurstWindow        time.Duration `mapstructure:"burst_window"`
	BurstLimit         int           `mapstructure:"burst_limit"`
	PenaltyDuration    time.Duration `mapstructure:"penalty_duration"`
	HistorySize        int           `mapstructure:"history_size"`
	DuplicateThreshold float64       `mapstructure:"duplicate_threshold"`
	StateTTL           time.Duration `mapstructure:"state_ttl"`
	MinVoiceMembers    int           `mapstructure:"min_voice_members"`
	MuteTolerance      time.Duration `mapstructure:"mute_tolerance"`
}

// MultiplierConfig holds the contextual bonus factors.
type MultiplierConfig struct {
	PeakStartHour int     `mapstructure:"peak_start_hour"`
	PeakEndHour   int     `mapstructure:"peak_end_hour"`
	Peak          float64 `mapstructure:"peak"`
	Weekend       float64 `mapstructure:"weekend"`
	Boost         float64 `mapstructure:"boost"`
	Streak        float64 `mapstructure:"streak"`
	StreakMinDays int     `mapstructure:"streak_min_days"`
}

// RewardConfig holds base amounts per source plus daily and coin rewards.
type RewardConfig struct {
	MessageXP         int64   `mapstructure:"message_xp"`
	MessageXPMax      int64   `mapstructure:"message_xp_max"`
	ReactionXP        int64   `mapstructure:"reaction_xp"`
	InviteXP          int64   `mapstructure:"invite_xp"`
	VoiceXP           int64   `mapstructure:"voice_xp"`
	DailyXP           int64   `mapstructure:"daily_xp"`
	StreakBonusPerDay int64   `mapstructure:"streak_bonus_per_day"`
	StreakBonusCap    int64   `mapstructure:"streak_bonus_cap"`
	CoinsPerXP        float64 `mapstructure:"coins_per_xp"`
	DailyCoins        int64   `mapstructure:"daily_coins"`
}

// VoiceConfig controls the reconciliation loop.
type VoiceConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// EngineConfig groups every progression tunable.
type EngineConfig struct {
	Timezone    string           `mapstructure:"timezone"`
	Curve       CurveConfig      `mapstructure:"curve"`
	Caps        CapsConfig       `mapstructure:"caps"`
	Cooldowns   CooldownConfig   `mapstructure:"cooldowns"`
	Guard       GuardConfig      `mapstructure:"guard"`
	Multipliers MultiplierConfig `mapstructure:"multipliers"`
	Rewards     RewardConfig     `mapstructure:"rewards"`
	Voice       VoiceConfig      `mapstructure:"voice"`
}

func engineFromEnv() EngineConfig {
	return EngineConfig{
		Timezone: getenv("XP_TIMEZONE", "UTC"),
		Curve: CurveConfig{
			BaseXP:   getfloat("XP_CURVE_BASE", 100),
			Exponent: getfloat("XP_CURVE_EXPONENT", 1.5),
			MaxLevel: getint("XP_MAX_LEVEL", 1000),
		},
		Caps: CapsConfig{
			Total:     getint64("XP_CAP_TOTAL", 1000),
			Messages:  getint64("XP_CAP_MESSAGES", 500),
			Voice:     getint64("XP_CAP_VOICE", 600),
			Reactions: getint64("XP_CAP_REACTIONS", 100),
			Invites:   getint64("XP_CAP_INVITES", 300),
		},
		Cooldowns: CooldownConfig{
			Message:  getdur("XP_COOLDOWN_MESSAGE", 60*time.Second),
			Reaction: getdur("XP_COOLDOWN_REACTION", 30*time.Second),
		},
		Guard: GuardConfig{
			BurstWindow:        getdur("XP_BURST_WINDOW", 10*time.Second),
			BurstLimit:         getint("XP_BURST_LIMIT", 8),
			PenaltyDuration:    getdur("XP_PENALTY_DURATION", 5*time.Minute),
			HistorySize:        getint("XP_DUPLICATE_HISTORY", 5),
			DuplicateThreshold: getfloat("XP_DUPLICATE_THRESHOLD", 0.85),
			StateTTL:           getdur("XP_GUARD_STATE_TTL", 30*time.Minute),
			MinVoiceMembers:    getint("XP_VOICE_MIN_MEMBERS", 2),
			MuteTolerance:      getdur("XP_VOICE_MUTE_TOLERANCE", 2*time.Minute),
		},
		Multipliers: MultiplierConfig{
			PeakStartHour: getint("XP_PEAK_START_HOUR", 18),
			PeakEndHour:   getint("XP_PEAK_END_HOUR", 23),
			Peak:          getfloat("XP_MULT_PEAK", 1.25),
			Weekend:       getfloat("XP_MULT_WEEKEND", 1.5),
			Boost:         getfloat("XP_MULT_BOOST", 1.2),
			Streak:        getfloat("XP_MULT_STREAK", 1.1),
			StreakMinDays: getint("XP_STREAK_MIN_DAYS", 7),
		},
		Rewards: RewardConfig{
			MessageXP:         getint64("XP_MESSAGE", 5),
			MessageXPMax:      getint64("XP_MESSAGE_MAX", 5),
			ReactionXP:        getint64("XP_REACTION", 2),
			InviteXP:          getint64("XP_INVITE", 50),
			VoiceXP:           getint64("XP_VOICE_PER_MINUTE", 3),
			DailyXP:           getint64("XP_DAILY", 100),
			StreakBonusPerDay: getint64("XP_STREAK_BONUS_PER_DAY", 10),
			StreakBonusCap:    getint64("XP_STREAK_BONUS_CAP", 200),
			CoinsPerXP:        getfloat("COINS_PER_XP", 0.1),
			DailyCoins:        getint64("COINS_DAILY", 25),
		},
		Voice: VoiceConfig{
			TickInterval:    getdur("VOICE_TICK_INTERVAL", time.Minute),
			ShutdownTimeout: getdur("VOICE_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
	}
}

// Location resolves Timezone, falling back to UTC.
func (e EngineConfig) Location() *time.Location {
	if e.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks the engine tunables for values the engine cannot work with.
func (e EngineConfig) Validate() error {
	if _, err := time.LoadLocation(e.Timezone); err != nil {
		return fmt.Errorf("XP_TIMEZONE: %w", err)
	}
	if e.Curve.BaseXP <= 0 || e.Curve.Exponent <= 0 {
		return errors.New("level curve base and exponent must be > 0")
	}
	if e.Curve.MaxLevel < 2 {
		return errors.New("XP_MAX_LEVEL must be >= 2")
	}
	c := e.Caps
	if c.Total <= 0 || c.Messages <= 0 || c.Voice <= 0 || c.Reactions <= 0 || c.Invites <= 0 {
		return errors.New("daily caps must be > 0")
	}
	if e.Cooldowns.Message < 0 || e.Cooldowns.Reaction < 0 {
		return errors.New("cooldowns must be >= 0")
	}
	g := e.Guard
	if g.BurstWindow <= 0 || g.BurstLimit < 1 || g.PenaltyDuration <= 0 {
		return errors.New("burst window, limit and penalty must be positive")
	}
	if g.DuplicateThreshold <= 0 || g.DuplicateThreshold > 1 {
		return errors.New("XP_DUPLICATE_THRESHOLD must be in (0,1]")
	}
	if g.MinVoiceMembers < 1 {
		return errors.New("XP_VOICE_MIN_MEMBERS must be >= 1")
	}
	m := e.Multipliers
	if m.PeakStartHour < 0 || m.PeakStartHour > 23 || m.PeakEndHour < 0 || m.PeakEndHour > 24 {
		return errors.New("peak hours must be within a day")
	}
	if m.Peak <= 0 || m.Weekend <= 0 || m.Boost <= 0 || m.Streak <= 0 {
		return errors.New("multipliers must be > 0")
	}
	r := e.Rewards
	if r.MessageXP < 0 || r.MessageXPMax < r.MessageXP {
		return errors.New("XP_MESSAGE_MAX must be >= XP_MESSAGE >= 0")
	}
	if r.CoinsPerXP < 0 {
		return errors.New("COINS_PER_XP must be >= 0")
	}
	if e.Voice.TickInterval <= 0 || e.Voice.ShutdownTimeout <= 0 {
		return errors.New("voice tick interval and shutdown timeout must be > 0")
	}
	return nil
}
