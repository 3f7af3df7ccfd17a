package domain

import (
	"fmt"
	"strings"
)

// Source identifies where a grant of XP came from. The set is closed: every
// value the engine accepts is listed in AllSources.
type Source string

const (
	SourceMessage  Source = "message"
	SourceVoice    Source = "voice"
	SourceReaction Source = "reaction"
	SourceInvite   Source = "invite"
	SourceDaily    Source = "daily"
	SourceStreak   Source = "streak"
	SourceAdmin    Source = "admin"
)

// AllSources lists every accepted Source in a stable order.
var AllSources = []Source{
	SourceMessage,
	SourceVoice,
	SourceReaction,
	SourceInvite,
	SourceDaily,
	SourceStreak,
	SourceAdmin,
}

// ParseSource maps a case-insensitive name onto a Source.
func ParseSource(s string) (Source, error) {
	v := Source(strings.ToLower(strings.TrimSpace(s)))
	if v.Valid() {
		return v, nil
	}
	return "", fmt.Errorf("unknown xp source %q", s)
}

// Valid reports whether s is a member of the closed set.
func (s Source) Valid() bool {
	for _, k := range AllSources {
		if k == s {
			return true
		}
	}
	return false
}

// CapExempt reports whether grants from s bypass the daily window entirely.
// Exempt grants neither check nor increment the daily counters.
func (s Source) CapExempt() bool {
	switch s {
	case SourceDaily, SourceStreak, SourceAdmin:
		return true
	}
	return false
}

// EarnsCoins reports whether grants from s are forwarded to the economy and
// the event participation tracker.
func (s Source) EarnsCoins() bool {
	switch s {
	case SourceMessage, SourceVoice, SourceReaction:
		return true
	}
	return false
}

// CounterColumn returns the users column holding the per-day counter for s,
// or "" when s has no dedicated counter.
func (s Source) CounterColumn() string {
	switch s {
	case SourceMessage:
		return "daily_messages"
	case SourceVoice:
		return "daily_voice"
	case SourceReaction:
		return "daily_reactions"
	case SourceInvite:
		return "daily_invites"
	}
	return ""
}
