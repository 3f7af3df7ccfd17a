// Package services – VoiceSessionTracker
//
// The tracker owns the in-memory voice session table and is the engine's
// only clock-driven loop. Per user the states are Disconnected, then
// Connected(channel), possibly Connected(otherChannel), then Disconnected.
//
// XP is only granted by the periodic tick, one award per whole minute since
// the session was last reconciled. Leaving, switching and shutdown credit
// the coarse voice-minutes statistic but never XP. The last reconciliation
// time lives only in memory, so a restart loses at most the partial minute
// of each open session.
package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-progression-engine/internal/config"
	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/eventbus"
	"github.com/tbourn/go-progression-engine/internal/presence"
	"github.com/tbourn/go-progression-engine/internal/repo"
)

// VoicePresence exposes the live voice state of the platform.
type VoicePresence interface {
	State(userID string) (presence.State, bool)
	Members(channelID string) []presence.Member
}

// VoiceSession is one continuous connection to a voice channel.
type VoiceSession struct {
	UserID             string    `json:"user_id"`
	ChannelID          string    `json:"channel_id"`
	JoinedAt           time.Time `json:"joined_at"`
	LastReconciledAt   time.Time `json:"last_reconciled_at"`
	AccumulatedMinutes int64     `json:"accumulated_minutes"`
	AwardedMinutes     int64     `json:"awarded_minutes"`

	seq uint64
}

// VoiceTracker reconciles voice sessions into XP and voice minutes.
type VoiceTracker struct {
	Engine   *Engine
	Presence VoicePresence
	Hub      *eventbus.Hub
	Clock    Clock
	Interval time.Duration

	mu       sync.Mutex
	sessions map[string]*VoiceSession
	nextSeq  uint64
	stopped  bool

	tickMu sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewVoiceTracker builds a tracker that awards through engine.
func NewVoiceTracker(engine *Engine, p VoicePresence, hub *eventbus.Hub, cfg config.VoiceConfig) *VoiceTracker {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &VoiceTracker{
		Engine:   engine,
		Presence: p,
		Hub:      hub,
		Clock:    engine.Clock,
		Interval: interval,
		sessions: make(map[string]*VoiceSession),
	}
}

func (t *VoiceTracker) now() time.Time {
	if t.Clock == nil {
		return time.Now()
	}
	return t.Clock.Now()
}

// Join opens a session, creating the user's record if needed. Joining the channel the user is already in is a
// no-op; joining another channel is a switch.
func (t *VoiceTracker) Join(ctx context.Context, userID, channelID string) error {
	if userID == "" || channelID == "" {
		return ErrEmptyUserID
	}
	if _, err := repo.FindOrCreateUser(ctx, t.Engine.DB, userID); err != nil {
		return err
	}
	now := t.now()

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrTrackerStopped
	}
	prev := t.sessions[userID]
	if prev != nil && prev.ChannelID == channelID {
		t.mu.Unlock()
		return nil
	}
	t.open(userID, channelID, now)
	t.mu.Unlock()

	if prev != nil {
		t.flush(ctx, *prev, now)
	}
	return nil
}

// open installs a fresh session. Callers hold t.mu.
func (t *VoiceTracker) open(userID, channelID string, now time.Time) {
	t.nextSeq++
	t.sessions[userID] = &VoiceSession{
		UserID:           userID,
		ChannelID:        channelID,
		JoinedAt:         now,
		LastReconciledAt: now,
		seq:              t.nextSeq,
	}
	voiceSessions.Set(float64(len(t.sessions)))
}

// Leave closes the user's session and credits its remaining whole minutes
// to the voice-minutes statistic.
func (t *VoiceTracker) Leave(ctx context.Context, userID string) error {
	now := t.now()
	t.mu.Lock()
	s, ok := t.sessions[userID]
	if ok {
		delete(t.sessions, userID)
		voiceSessions.Set(float64(len(t.sessions)))
	}
	stopped := t.stopped
	t.mu.Unlock()

	if !ok {
		if stopped {
			return ErrTrackerStopped
		}
		return nil
	}
	t.flush(ctx, *s, now)
	return nil
}

// Switch moves the user to channelID: the old session is flushed and a
// fresh one starts.
func (t *VoiceTracker) Switch(ctx context.Context, userID, channelID string) error {
	return t.Join(ctx, userID, channelID)
}

// HandleVoiceState applies a platform voice-state change. The tracker's own
// table decides whether it is a join, a switch or a leave; oldChannel is
// only logged when it disagrees.
func (t *VoiceTracker) HandleVoiceState(ctx context.Context, userID, oldChannel, newChannel string) error {
	cur, ok := t.Session(userID)
	if ok && oldChannel != "" && cur.ChannelID != oldChannel {
		log.Debug().Str("user_id", userID).Str("reported", oldChannel).
			Str("tracked", cur.ChannelID).Msg("voice state out of sync")
	}
	if newChannel == "" {
		return t.Leave(ctx, userID)
	}
	return t.Join(ctx, userID, newChannel)
}

// Session returns a copy of the user's session.
func (t *VoiceTracker) Session(userID string) (VoiceSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[userID]
	if !ok {
		return VoiceSession{}, false
	}
	return *s, true
}

// Sessions returns copies of every open session ordered by user ID.
func (t *VoiceTracker) Sessions() []VoiceSession {
	t.mu.Lock()
	out := make([]VoiceSession, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, *s)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// flush credits the whole minutes of s not yet reconciled.
func (t *VoiceTracker) flush(ctx context.Context, s VoiceSession, now time.Time) {
	minutes := wholeMinutes(s.LastReconciledAt, now)
	if minutes > 0 {
		if err := repo.AddVoiceMinutes(ctx, t.Engine.DB, s.UserID, minutes); err != nil {
			log.Warn().Err(err).Str("user_id", s.UserID).Int64("minutes", minutes).Msg("voice minutes flush failed")
		}
	}
	t.Hub.Publish(eventbus.Event{
		Type:   eventbus.TypeVoiceSession,
		UserID: s.UserID,
		Data: map[string]any{
			"channel_id":      s.ChannelID,
			"minutes":         s.AccumulatedMinutes + minutes,
			"awarded_minutes": s.AwardedMinutes,
		},
	})
}

func wholeMinutes(from, to time.Time) int64 {
	if !to.After(from) {
		return 0
	}
	return int64(to.Sub(from) / time.Minute)
}

// Tick reconciles every open session once. Sessions are handled
// independently: a failure for one user is logged and the pass continues.
func (t *VoiceTracker) Tick(ctx context.Context) {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()

	start := time.Now()
	defer func() { voiceTickDur.Observe(time.Since(start).Seconds()) }()

	tr := otel.Tracer("services/VoiceTracker")
	ctx, span := tr.Start(ctx, "Tick")
	defer span.End()

	now := t.now()
	t.mu.Lock()
	snap := make([]VoiceSession, 0, len(t.sessions))
	for _, s := range t.sessions {
		snap = append(snap, *s)
	}
	t.mu.Unlock()
	span.SetAttributes(attribute.Int("voice.sessions", len(snap)))

	for _, s := range snap {
		t.reconcile(ctx, s, now)
	}
}

func (t *VoiceTracker) reconcile(ctx context.Context, s VoiceSession, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("user_id", s.UserID).Msg("voice reconcile panicked")
		}
	}()

	st, ok := t.Presence.State(s.UserID)
	switch {
	case !ok || st.ChannelID == "":
		t.prune(ctx, s, now)
		return
	case st.ChannelID != s.ChannelID:
		if err := t.Join(ctx, s.UserID, st.ChannelID); err != nil {
			log.Warn().Err(err).Str("user_id", s.UserID).Msg("voice switch during tick failed")
		}
		return
	}

	minutes := wholeMinutes(s.LastReconciledAt, now)
	if minutes <= 0 {
		return
	}

	members := t.Presence.Members(s.ChannelID)
	var awarded int64
	if v := t.Engine.Guard.CheckVoice(st, members); v.Allowed {
		awarded = t.awardMinutes(ctx, s.UserID, minutes, humans(members))
	} else {
		log.Debug().Str("user_id", s.UserID).Str("reason", string(v.Reason)).
			Int64("minutes", minutes).Msg("voice minutes skipped")
	}

	credited := false
	t.mu.Lock()
	if cur, ok := t.sessions[s.UserID]; ok && cur.seq == s.seq {
		cur.LastReconciledAt = cur.LastReconciledAt.Add(time.Duration(minutes) * time.Minute)
		cur.AccumulatedMinutes += minutes
		cur.AwardedMinutes += awarded
		credited = true
	}
	t.mu.Unlock()

	// a session closed meanwhile was flushed from the old reconcile point
	if credited {
		if err := repo.AddVoiceMinutes(ctx, t.Engine.DB, s.UserID, minutes); err != nil {
			log.Warn().Err(err).Str("user_id", s.UserID).Msg("voice minutes update failed")
		}
	}
}

// awardMinutes issues one voice award per minute and returns how many were
// granted. It stops early on errors and once the daily cap is hit.
func (t *VoiceTracker) awardMinutes(ctx context.Context, userID string, minutes int64, humans int) int64 {
	amount := t.Engine.VoiceTickAmount(humans)
	var granted int64
	for i := int64(0); i < minutes; i++ {
		res, err := t.Engine.Award(ctx, AwardRequest{
			UserID:       userID,
			Source:       domain.SourceVoice,
			BaseOverride: &amount,
		})
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("voice award failed")
			return granted
		}
		if res.Denied {
			if res.Reason == ReasonDailyCap || res.Reason == ReasonPenalized {
				return granted
			}
			continue
		}
		granted++
	}
	return granted
}

func (t *VoiceTracker) prune(ctx context.Context, s VoiceSession, now time.Time) {
	removed := false
	t.mu.Lock()
	if cur, ok := t.sessions[s.UserID]; ok && cur.seq == s.seq {
		delete(t.sessions, s.UserID)
		voiceSessions.Set(float64(len(t.sessions)))
		s = *cur
		removed = true
	}
	t.mu.Unlock()
	if removed {
		log.Debug().Str("user_id", s.UserID).Msg("pruned voice session without live state")
		t.flush(ctx, s, now)
	}
}

func humans(members []presence.Member) int {
	n := 0
	for _, m := range members {
		if !m.IsBot {
			n++
		}
	}
	return n
}

// Start runs the reconciliation loop in the background until Stop,
// Shutdown or ctx cancellation.
func (t *VoiceTracker) Start(ctx context.Context) {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		t.Run(ctx)
	}()
}

// Run ticks every Interval until ctx is done. A slow tick delays the next
// one; it never overlaps it.
func (t *VoiceTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	log.Info().Dur("interval", t.Interval).Msg("voice tracker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("voice tracker stopped")
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Stop halts the loop started by Start and waits for it to exit.
func (t *VoiceTracker) Stop() {
	t.runMu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.runMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Shutdown stops the loop, refuses new sessions and flushes every open
// session's partial time into the voice-minutes statistic. Sessions not
// flushed before ctx expires are dropped. The table is empty afterwards.
func (t *VoiceTracker) Shutdown(ctx context.Context) error {
	tr := otel.Tracer("services/VoiceTracker")
	ctx, span := tr.Start(ctx, "Shutdown")
	defer span.End()

	t.Stop()
	now := t.now()

	t.mu.Lock()
	t.stopped = true
	pending := make([]VoiceSession, 0, len(t.sessions))
	for _, s := range t.sessions {
		pending = append(pending, *s)
	}
	t.sessions = make(map[string]*VoiceSession)
	voiceSessions.Set(0)
	t.mu.Unlock()

	flushed := 0
	for _, s := range pending {
		if ctx.Err() != nil {
			break
		}
		t.flush(ctx, s, now)
		flushed++
	}
	if dropped := len(pending) - flushed; dropped > 0 {
		log.Warn().Int("dropped", dropped).Msg("voice sessions dropped at shutdown deadline")
		return ctx.Err()
	}
	log.Info().Int("flushed", flushed).Msg("voice sessions flushed")
	return nil
}
