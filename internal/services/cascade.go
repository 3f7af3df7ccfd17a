// Package services – LevelUpCascade
//
// The cascade is the boundary where confirmed level-ups leave the engine.
// Handlers (badges, roles, titles, notifications) run synchronously in
// registration order. A failing or panicking handler is logged and skipped;
// it never affects the award that caused the level-up or the handlers after
// it. Handlers must tolerate seeing the same transition twice.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/eventbus"
	"github.com/tbourn/go-progression-engine/internal/repo"
)

// LevelUp describes one confirmed level transition.
type LevelUp struct {
	UserID   string
	OldLevel int
	NewLevel int
	TotalXP  int64
	Source   domain.Source
	At       time.Time
}

// LevelUpHandler reacts to a level-up.
type LevelUpHandler func(ctx context.Context, ev LevelUp) error

type namedHandler struct {
	name string
	fn   LevelUpHandler
}

// Cascade fans a level-up out to registered handlers.
type Cascade struct {
	mu       sync.RWMutex
	handlers []namedHandler
}

// NewCascade returns a cascade with no handlers.
func NewCascade() *Cascade { return &Cascade{} }

// Register appends a handler.
func (c *Cascade) Register(name string, h LevelUpHandler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, namedHandler{name: name, fn: h})
	c.mu.Unlock()
}

// Len returns the number of registered handlers.
func (c *Cascade) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers)
}

// Fire invokes every handler once, in order.
func (c *Cascade) Fire(ctx context.Context, ev LevelUp) {
	if c == nil {
		return
	}
	c.mu.RLock()
	hs := append([]namedHandler(nil), c.handlers...)
	c.mu.RUnlock()

	for _, h := range hs {
		if err := safeCall(ctx, h.fn, ev); err != nil {
			log.Error().Err(err).
				Str("handler", h.name).
				Str("user_id", ev.UserID).
				Int("old_level", ev.OldLevel).
				Int("new_level", ev.NewLevel).
				Msg("level-up handler failed")
		}
	}
}

func safeCall(ctx context.Context, fn LevelUpHandler, ev LevelUp) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, ev)
}

// ActivityHandler records a level_up row in the activity log.
func ActivityHandler(db *gorm.DB) LevelUpHandler {
	return func(ctx context.Context, ev LevelUp) error {
		return repo.AppendActivity(ctx, db, &domain.ActivityLog{
			UserID:     ev.UserID,
			Kind:       domain.ActivityLevelUp,
			Source:     ev.Source,
			TotalAfter: ev.TotalXP,
			LevelAfter: ev.NewLevel,
			Multiplier: 1,
			Reason:     fmt.Sprintf("%d->%d", ev.OldLevel, ev.NewLevel),
			CreatedAt:  ev.At,
		})
	}
}

// MetricsHandler counts level-ups.
func MetricsHandler() LevelUpHandler {
	return func(context.Context, LevelUp) error {
		levelUps.Inc()
		return nil
	}
}

// PublishHandler forwards level-ups to the event hub.
func PublishHandler(hub *eventbus.Hub) LevelUpHandler {
	return func(_ context.Context, ev LevelUp) error {
		hub.Publish(eventbus.Event{
			Type:      eventbus.TypeLevelUp,
			UserID:    ev.UserID,
			Timestamp: ev.At.UnixMilli(),
			Data: map[string]any{
				"old_level": ev.OldLevel,
				"new_level": ev.NewLevel,
				"total_xp":  ev.TotalXP,
				"source":    string(ev.Source),
			},
		})
		return nil
	}
}
