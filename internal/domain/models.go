// Package domain defines the persistence models of the progression engine:
// per-user progression records, the append-only activity log, boost events
// and their participation ledger. These types are mapped with GORM and are
// shared across the repository and service layers.
package domain

import "time"

// DateLayout is the calendar-day key used for daily counters and streaks.
const DateLayout = "2006-01-02"

// User is the progression record of one community member.
//
// Fields:
//   - TotalXP: lifetime XP; only admin removal ever lowers it.
//   - CurrentXP: XP earned inside the current level.
//   - Level: always equal to the level derived from TotalXP.
//   - Daily*: per-source XP earned on CounterDate; DailyTotal is their sum.
//   - Streak*: consecutive daily-claim streak and its best value.
//   - Coins / VoiceMinutes: secondary currency and a coarse voice statistic.
type User struct {
	UserID    string `json:"user_id"    gorm:"type:varchar(64);primaryKey"`
	CurrentXP int64  `json:"current_xp" gorm:"not null;default:0"`
	TotalXP   int64  `json:"total_xp"   gorm:"not null;default:0;index:idx_users_total_xp"`
	Level     int    `json:"level"      gorm:"not null;default:1"`

	DailyTotal     int64  `json:"daily_total"     gorm:"not null;default:0"`
	DailyMessages  int64  `json:"daily_messages"  gorm:"not null;default:0"`
	DailyVoice     int64  `json:"daily_voice"     gorm:"not null;default:0"`
	DailyReactions int64  `json:"daily_reactions" gorm:"not null;default:0"`
	DailyInvites   int64  `json:"daily_invites"   gorm:"not null;default:0"`
	CounterDate    string `json:"counter_date"    gorm:"type:varchar(10);not null;default:''"`

	StreakCurrent   int    `json:"streak_current"    gorm:"not null;default:0"`
	StreakLongest   int    `json:"streak_longest"    gorm:"not null;default:0"`
	LastClaimedDate string `json:"last_claimed_date" gorm:"type:varchar(10);not null;default:''"`

	Coins        int64      `json:"coins"         gorm:"not null;default:0"`
	VoiceMinutes int64      `json:"voice_minutes" gorm:"not null;default:0"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// DailyCounters is a read view of the per-day counters of a User.
type DailyCounters struct {
	Date      string `json:"date"`
	Total     int64  `json:"total"`
	Messages  int64  `json:"messages"`
	Voice     int64  `json:"voice"`
	Reactions int64  `json:"reactions"`
	Invites   int64  `json:"invites"`
}

// Counters returns the counters as of day. A stale CounterDate yields zeroed
// counters dated day, which is how the daily window resets lazily on read.
func (u *User) Counters(day string) DailyCounters {
	if u.CounterDate != day {
		return DailyCounters{Date: day}
	}
	return DailyCounters{
		Date:      day,
		Total:     u.DailyTotal,
		Messages:  u.DailyMessages,
		Voice:     u.DailyVoice,
		Reactions: u.DailyReactions,
		Invites:   u.DailyInvites,
	}
}

// For returns the counter tracked for src (0 for sources without one).
func (d DailyCounters) For(src Source) int64 {
	switch src {
	case SourceMessage:
		return d.Messages
	case SourceVoice:
		return d.Voice
	case SourceReaction:
		return d.Reactions
	case SourceInvite:
		return d.Invites
	}
	return 0
}

// Activity kinds recorded in the log.
const (
	ActivityAward   = "award"
	ActivityDenied  = "denied"
	ActivityLevelUp = "level_up"
	ActivityAdjust  = "admin_adjust"
)

// ActivityLog is an append-only audit row for every grant, suspicious denial,
// admin correction and level transition.
type ActivityLog struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string    `json:"user_id"     gorm:"type:varchar(64);not null;index:idx_user_activity,priority:1"`
	Kind       string    `json:"kind"        gorm:"type:varchar(16);not null"`
	Source     Source    `json:"source"      gorm:"type:varchar(16);not null"`
	BaseAmount int64     `json:"base_amount" gorm:"not null;default:0"`
	Multiplier float64   `json:"multiplier"  gorm:"not null;default:1"`
	Amount     int64     `json:"amount"      gorm:"not null;default:0"`
	TotalAfter int64     `json:"total_after" gorm:"not null;default:0"`
	LevelAfter int       `json:"level_after" gorm:"not null;default:1"`
	Suspicious bool      `json:"suspicious"  gorm:"not null;default:false"`
	Reason     string    `json:"reason,omitempty" gorm:"type:varchar(64)"`
	CreatedAt  time.Time `json:"created_at"  gorm:"index:idx_user_activity,priority:2"`
}

// TableName returns the database table name for ActivityLog.
func (ActivityLog) TableName() string { return "activity_logs" }

// BoostEvent is a time-boxed community event. Multipliers of overlapping
// active events stack multiplicatively.
type BoostEvent struct {
	ID              string    `json:"id"               gorm:"type:char(36);primaryKey"`
	Name            string    `json:"name"             gorm:"type:varchar(128);not null"`
	XPMultiplier    float64   `json:"xp_multiplier"    gorm:"not null;default:1"`
	CoinsMultiplier float64   `json:"coins_multiplier" gorm:"not null;default:1"`
	DailyMultiplier float64   `json:"daily_multiplier" gorm:"not null;default:1"`
	StartsAt        time.Time `json:"starts_at"        gorm:"not null;index:idx_boost_window,priority:1"`
	EndsAt          time.Time `json:"ends_at"          gorm:"not null;index:idx_boost_window,priority:2"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName returns the database table name for BoostEvent.
func (BoostEvent) TableName() string { return "boost_events" }

// Active reports whether now falls inside [StartsAt, EndsAt).
func (e BoostEvent) Active(now time.Time) bool {
	return !now.Before(e.StartsAt) && now.Before(e.EndsAt)
}

// EventParticipation accumulates the XP a user earned while an event ran.
type EventParticipation struct {
	EventID   string    `json:"event_id"   gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);primaryKey"`
	XP        int64     `json:"xp"         gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`

	Event BoostEvent `json:"-" gorm:"foreignKey:EventID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for EventParticipation.
func (EventParticipation) TableName() string { return "event_participation" }
