// Package services – BoostService
//
// BoostService owns time-boxed community events. It is the engine's event
// multiplier source (overlapping active events stack multiplicatively) and
// its event-participation tracker.
package services

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/repo"
)

// ParticipationTracker accumulates XP earned while events are running.
type ParticipationTracker interface {
	RecordParticipation(ctx context.Context, userID string, xp int64) error
}

// BoostInput is the payload for creating a boost event.
type BoostInput struct {
	Name            string
	XPMultiplier    float64
	CoinsMultiplier float64
	DailyMultiplier float64
	StartsAt        time.Time
	EndsAt          time.Time
}

// BoostService implements EventMultiplierSource and ParticipationTracker.
type BoostService struct {
	DB    *gorm.DB
	Clock Clock
}

var (
	_ EventMultiplierSource = (*BoostService)(nil)
	_ ParticipationTracker  = (*BoostService)(nil)
)

func (s *BoostService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

// Create validates and stores a boost event. Unset multipliers default to 1.
func (s *BoostService) Create(ctx context.Context, in BoostInput) (*domain.BoostEvent, error) {
	tr := otel.Tracer("services/BoostService")
	ctx, span := tr.Start(ctx, "Create", trace.WithAttributes(attribute.String("boost.name", in.Name)))
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" || !in.EndsAt.After(in.StartsAt) {
		return nil, ErrInvalidBoost
	}
	mults := []*float64{&in.XPMultiplier, &in.CoinsMultiplier, &in.DailyMultiplier}
	for _, m := range mults {
		if *m == 0 {
			*m = 1
		}
		if *m < 0 {
			return nil, ErrInvalidBoost
		}
	}
	ev := &domain.BoostEvent{
		Name:            name,
		XPMultiplier:    in.XPMultiplier,
		CoinsMultiplier: in.CoinsMultiplier,
		DailyMultiplier: in.DailyMultiplier,
		StartsAt:        in.StartsAt.UTC(),
		EndsAt:          in.EndsAt.UTC(),
	}
	if err := repo.CreateBoost(ctx, s.DB, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Active lists the events running now.
func (s *BoostService) Active(ctx context.Context) ([]domain.BoostEvent, error) {
	return repo.ActiveBoosts(ctx, s.DB, s.now())
}

// Standings returns the leading participants of an event.
func (s *BoostService) Standings(ctx context.Context, eventID string, limit int) ([]domain.EventParticipation, error) {
	if limit <= 0 {
		limit = 10
	}
	return repo.EventStandings(ctx, s.DB, eventID, limit)
}

func (s *BoostService) product(ctx context.Context, pick func(domain.BoostEvent) float64) (float64, error) {
	evs, err := s.Active(ctx)
	if err != nil {
		return 1, err
	}
	f := 1.0
	for _, ev := range evs {
		if m := pick(ev); m > 0 {
			f *= m
		}
	}
	return f, nil
}

// ActiveXPMultiplier is the product of the XP multipliers of running events.
func (s *BoostService) ActiveXPMultiplier(ctx context.Context) (float64, error) {
	return s.product(ctx, func(e domain.BoostEvent) float64 { return e.XPMultiplier })
}

// ActiveCoinsMultiplier is the product of the coin multipliers of running events.
func (s *BoostService) ActiveCoinsMultiplier(ctx context.Context) (float64, error) {
	return s.product(ctx, func(e domain.BoostEvent) float64 { return e.CoinsMultiplier })
}

// ActiveDailyMultiplier is the product of the daily-reward multipliers of
// running events.
func (s *BoostService) ActiveDailyMultiplier(ctx context.Context) (float64, error) {
	return s.product(ctx, func(e domain.BoostEvent) float64 { return e.DailyMultiplier })
}

// RecordParticipation credits xp to every running event.
func (s *BoostService) RecordParticipation(ctx context.Context, userID string, xp int64) error {
	evs, err := s.Active(ctx)
	if err != nil || len(evs) == 0 {
		return err
	}
	ids := make([]string, 0, len(evs))
	for _, ev := range evs {
		ids = append(ids, ev.ID)
	}
	return repo.RecordParticipation(ctx, s.DB, ids, userID, xp, s.now())
}
