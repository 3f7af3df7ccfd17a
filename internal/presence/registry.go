// Package presence keeps the live voice state reported by the chat platform:
// who is in which channel, whether they are bots and whether they are muted.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Member is one occupant of a voice channel.
type Member struct {
	UserID string `json:"user_id"`
	IsBot  bool   `json:"is_bot"`
}

// State is a user's current voice state. An empty ChannelID means the user
// is not connected.
type State struct {
	UserID        string    `json:"user_id"`
	ChannelID     string    `json:"channel_id"`
	IsBot         bool      `json:"is_bot"`
	SelfMute      bool      `json:"self_mute"`
	SelfDeaf      bool      `json:"self_deaf"`
	SilencedSince time.Time `json:"silenced_since,omitempty"`
}

// Silenced reports whether the user is muted or deafened.
func (s State) Silenced() bool { return s.SelfMute || s.SelfDeaf }

// Registry is a concurrency-safe map of voice states.
type Registry struct {
	mu    sync.RWMutex
	users map[string]State
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]State)}
}

// Update stores st and returns the previous state, if any. SilencedSince is
// kept across updates while the user stays silenced and reset when they
// unmute. A state without a channel removes the user.
func (r *Registry) Update(st State, now time.Time) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, had := r.users[st.UserID]
	if st.ChannelID == "" {
		delete(r.users, st.UserID)
		return prev, had
	}
	switch {
	case !st.Silenced():
		st.SilencedSince = time.Time{}
	case had && prev.Silenced() && !prev.SilencedSince.IsZero():
		st.SilencedSince = prev.SilencedSince
	case st.SilencedSince.IsZero():
		st.SilencedSince = now
	}
	r.users[st.UserID] = st
	return prev, had
}

// Remove forgets userID.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	delete(r.users, userID)
	r.mu.Unlock()
}

// State returns the stored state of userID.
func (r *Registry) State(userID string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.users[userID]
	return st, ok
}

// Members lists the occupants of channelID ordered by user ID.
func (r *Registry) Members(channelID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Member
	for _, st := range r.users {
		if st.ChannelID == channelID {
			out = append(out, Member{UserID: st.UserID, IsBot: st.IsBot})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Len returns the number of connected users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
