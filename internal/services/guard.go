package services

import (
	"sync"
	"time"

	"github.com/tbourn/go-progression-engine/internal/config"
	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/presence"
	"github.com/tbourn/go-progression-engine/internal/textsim"
)

// GuardPhase tags the anti-exploit state of a (user, source) pair.
type GuardPhase int

const (
	PhaseIdle GuardPhase = iota
	PhaseCooldown
	PhasePenalized
)

func (p GuardPhase) String() string {
	switch p {
	case PhaseCooldown:
		return "cooldown"
	case PhasePenalized:
		return "penalized"
	default:
		return "idle"
	}
}

// MarshalText renders the phase by name in JSON.
func (p GuardPhase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// GuardState is Idle, Cooldown(Until) or Penalized(Until).
type GuardState struct {
	Phase GuardPhase `json:"phase"`
	Until time.Time  `json:"until,omitempty"`
}

// Verdict is the guard's answer for one attempt.
type Verdict struct {
	Allowed    bool
	Reason     DenyReason
	Suspicious bool
}

var allow = Verdict{Allowed: true}

func deny(r DenyReason, suspicious bool) Verdict {
	return Verdict{Reason: r, Suspicious: suspicious}
}

// gcEvery is how many lookups pass between sweeps of idle entries.
const gcEvery = 1024

type userGuard struct {
	penaltyUntil time.Time
	cooldowns    map[domain.Source]time.Time
	attempts     map[domain.Source][]time.Time
	history      []textsim.Sample
	lastSeen     time.Time
}

// state resolves the tagged state in one place; expired deadlines read as
// Idle without any timer.
func (u *userGuard) state(src domain.Source, now time.Time) GuardState {
	switch {
	case now.Before(u.penaltyUntil):
		return GuardState{Phase: PhasePenalized, Until: u.penaltyUntil}
	case now.Before(u.cooldowns[src]):
		return GuardState{Phase: PhaseCooldown, Until: u.cooldowns[src]}
	default:
		return GuardState{Phase: PhaseIdle}
	}
}

// Guard is the in-memory anti-exploit state for one community. It is safe
// for concurrent use.
type Guard struct {
	cfg       config.GuardConfig
	cooldowns config.CooldownConfig
	clock     Clock

	mu      sync.Mutex
	users   map[string]*userGuard
	lookups uint64
}

// NewGuard builds a Guard.
func NewGuard(cfg config.GuardConfig, cooldowns config.CooldownConfig, clock Clock) *Guard {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Guard{
		cfg:       cfg,
		cooldowns: cooldowns,
		clock:     clock,
		users:     make(map[string]*userGuard),
	}
}

func (g *Guard) cooldownFor(src domain.Source) time.Duration {
	switch src {
	case domain.SourceMessage:
		return g.cooldowns.Message
	case domain.SourceReaction:
		return g.cooldowns.Reaction
	}
	return 0
}

// entry returns the state of userID, creating it when absent. It sweeps
// stale entries first so an expired entry can be evicted even when it is the
// one being fetched. Callers hold g.mu.
func (g *Guard) entry(userID string, now time.Time) *userGuard {
	g.lookups++
	if g.lookups >= gcEvery {
		g.sweep(now)
		g.lookups = 0
	}
	u, ok := g.users[userID]
	if !ok {
		u = &userGuard{
			cooldowns: make(map[domain.Source]time.Time),
			attempts:  make(map[domain.Source][]time.Time),
		}
		g.users[userID] = u
	}
	u.lastSeen = now
	return u
}

func (g *Guard) sweep(now time.Time) {
	for id, u := range g.users {
		if now.Before(u.penaltyUntil) {
			continue
		}
		if now.Sub(u.lastSeen) >= g.cfg.StateTTL {
			delete(g.users, id)
		}
	}
}

// Check evaluates one award attempt. Exempt sources always pass. Voice is
// only subject to penalties; message, reaction and invite attempts also feed
// the burst window, and message content is compared against recent history.
func (g *Guard) Check(userID string, src domain.Source, content string) Verdict {
	if src.CapExempt() {
		return allow
	}
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	u := g.entry(userID, now)
	st := u.state(src, now)
	if st.Phase == PhasePenalized {
		return deny(ReasonPenalized, false)
	}
	if src == domain.SourceVoice {
		return allow
	}

	if g.burst(u, src, now) {
		u.penaltyUntil = now.Add(g.cfg.PenaltyDuration)
		u.attempts = make(map[domain.Source][]time.Time)
		return deny(ReasonBurst, true)
	}
	if st.Phase == PhaseCooldown {
		return deny(ReasonCooldown, false)
	}
	if src == domain.SourceMessage && content != "" {
		if g.duplicate(u, textsim.NewSample(content)) {
			return deny(ReasonDuplicate, true)
		}
	}
	return allow
}

// burst records the attempt and reports whether the sliding window now holds
// more than BurstLimit attempts.
func (g *Guard) burst(u *userGuard, src domain.Source, now time.Time) bool {
	cutoff := now.Add(-g.cfg.BurstWindow)
	kept := u.attempts[src][:0]
	for _, t := range u.attempts[src] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	u.attempts[src] = kept
	return len(kept) > g.cfg.BurstLimit
}

// duplicate compares s with the recent history and remembers it when new.
func (g *Guard) duplicate(u *userGuard, s textsim.Sample) bool {
	for _, h := range u.history {
		if textsim.Similar(h, s, g.cfg.DuplicateThreshold) {
			return true
		}
	}
	if g.cfg.HistorySize <= 0 {
		return false
	}
	u.history = append(u.history, s)
	if over := len(u.history) - g.cfg.HistorySize; over > 0 {
		u.history = append(u.history[:0], u.history[over:]...)
	}
	return false
}

// RecordSuccess starts the cooldown of src after a granted award.
func (g *Guard) RecordSuccess(userID string, src domain.Source) {
	d := g.cooldownFor(src)
	if d <= 0 {
		return
	}
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entry(userID, now).cooldowns[src] = now.Add(d)
}

// StateFor reports the current tagged state without recording an attempt.
func (g *Guard) StateFor(userID string, src domain.Source) GuardState {
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[userID]
	if !ok {
		return GuardState{Phase: PhaseIdle}
	}
	return u.state(src, now)
}

// ClearPenalty lifts an active penalty. It reports whether one was active.
func (g *Guard) ClearPenalty(userID string) bool {
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[userID]
	if !ok || !now.Before(u.penaltyUntil) {
		return false
	}
	u.penaltyUntil = time.Time{}
	return true
}

// Len returns the number of tracked users.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.users)
}

// CheckVoice decides whether a voice minute may earn XP: the channel needs
// at least MinVoiceMembers non-bot members and the user must not have been
// muted or deafened for longer than MuteTolerance. Failing either is a silent
// skip, never a penalty.
func (g *Guard) CheckVoice(st presence.State, members []presence.Member) Verdict {
	humans := 0
	for _, m := range members {
		if !m.IsBot {
			humans++
		}
	}
	if humans < g.cfg.MinVoiceMembers {
		return deny(ReasonLowPopulation, false)
	}
	if st.Silenced() && g.clock.Now().Sub(st.SilencedSince) > g.cfg.MuteTolerance {
		return deny(ReasonMuted, false)
	}
	return allow
}
