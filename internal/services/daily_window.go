package services

import (
	"time"

	"github.com/tbourn/go-progression-engine/internal/config"
	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/repo"
)

// DailyCounterWindow applies the per-source and total daily caps. Counters
// belong to a calendar day in Location and read as zero once that day has
// passed; the persisted reset happens on the next write.
type DailyCounterWindow struct {
	Caps     config.CapsConfig
	Location *time.Location
}

// Today returns the counter day key for t.
func (w DailyCounterWindow) Today(t time.Time) string {
	return dayKey(t, w.Location)
}

// Yesterday returns the day key of the calendar day before t.
func (w DailyCounterWindow) Yesterday(t time.Time) string {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	return dayKey(t.In(loc).AddDate(0, 0, -1), loc)
}

// CapFor returns the daily cap for src; 0 means src is not capped.
func (w DailyCounterWindow) CapFor(src domain.Source) int64 {
	switch src {
	case domain.SourceMessage:
		return w.Caps.Messages
	case domain.SourceVoice:
		return w.Caps.Voice
	case domain.SourceReaction:
		return w.Caps.Reactions
	case domain.SourceInvite:
		return w.Caps.Invites
	}
	return 0
}

// Check reports whether u may still earn from src today. It is the cheap
// pre-check; the authoritative check is the conditional update built from
// Limits.
func (w DailyCounterWindow) Check(u *domain.User, src domain.Source, now time.Time) (bool, DenyReason) {
	if src.CapExempt() {
		return true, ""
	}
	c := u.Counters(w.Today(now))
	if c.Total >= w.Caps.Total {
		return false, ReasonDailyCap
	}
	if limit := w.CapFor(src); limit > 0 && c.For(src) >= limit {
		return false, ReasonDailyCap
	}
	return true, ""
}

// Limits returns the caps to enforce atomically for src, or nil when src is
// exempt.
func (w DailyCounterWindow) Limits(src domain.Source) *repo.Caps {
	if src.CapExempt() || src.CounterColumn() == "" {
		return nil
	}
	return &repo.Caps{Total: w.Caps.Total, Source: w.CapFor(src)}
}

// Remaining returns how much more XP src may earn today.
func (w DailyCounterWindow) Remaining(u *domain.User, src domain.Source, now time.Time) int64 {
	if src.CapExempt() {
		return -1
	}
	c := u.Counters(w.Today(now))
	left := w.Caps.Total - c.Total
	if limit := w.CapFor(src); limit > 0 && limit-c.For(src) < left {
		left = limit - c.For(src)
	}
	if left < 0 {
		return 0
	}
	return left
}
