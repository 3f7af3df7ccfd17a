// Package services – XPAwardEngine
//
// Engine is the single entry point for XP. Award runs the pipeline for
// platform events (messages, reactions, invites, voice ticks):
//
//  1. resolve or create the progression record
//  2. ask the anti-exploit guard for a verdict
//  3. pre-check the daily window
//  4. pick the base amount (override, constant or range)
//  5. compose multipliers and floor once
//  6. atomically increment XP and today's counters under the caps
//  7. recompute the level from the authoritative total
//  8. append the activity entry
//  9. grant coins and event participation for coin-earning sources
//  10. fire the level-up cascade once per confirmed transition
//
// Steps 6 to 8 share one transaction. Because the stored level is read after
// the increment inside that transaction, exactly one of several concurrent
// awards observes a given level transition.
//
// Observability: public methods are OpenTelemetry-instrumented; grants and
// denials feed the Prometheus collectors in metrics.go.
package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-progression-engine/internal/config"
	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/eventbus"
	"github.com/tbourn/go-progression-engine/internal/repo"
)

// AwardRequest is one award attempt.
type AwardRequest struct {
	UserID       string
	Source       domain.Source
	BaseOverride *int64 // replaces the source's base amount when set
	Content      string // message text, used for duplicate detection
	IsBoosted    bool   // membership boost
}

// AwardResult is the outcome of an award. Denied results carry a reason and
// leave the record untouched.
type AwardResult struct {
	UserID      string        `json:"user_id"`
	Source      domain.Source `json:"source"`
	Denied      bool          `json:"denied"`
	Reason      DenyReason    `json:"reason,omitempty"`
	Suspicious  bool          `json:"suspicious,omitempty"`
	BaseAmount  int64         `json:"base_amount"`
	Multiplier  float64       `json:"multiplier"`
	Breakdown   Multiplier    `json:"breakdown"`
	FinalAmount int64         `json:"final_amount"`
	TotalXP     int64         `json:"total_xp"`
	OldLevel    int           `json:"old_level"`
	NewLevel    int           `json:"new_level"`
	LeveledUp   bool          `json:"leveled_up"`
	CoinsGained int64         `json:"coins_gained"`
	ActivityID  string        `json:"activity_id,omitempty"`
}

// Engine awards XP.
type Engine struct {
	DB            *gorm.DB
	Curve         LevelCurve
	Window        DailyCounterWindow
	Composer      *MultiplierComposer
	Guard         *Guard
	Boosts        *BoostService
	Events        EventMultiplierSource
	Economy       Economy
	Participation ParticipationTracker
	Cascade       *Cascade
	Rewards       config.RewardConfig
	Clock         Clock
	Hub           *eventbus.Hub // receives xp_awarded events; may be nil

	// Intn returns a value in [0,n). It picks message amounts inside
	// [MessageXP, MessageXPMax]; nil uses math/rand/v2.
	Intn func(n int64) int64
}

// NewEngine wires an engine from configuration. Boost events back the event
// multipliers and participation, coins are stored on the progression record,
// and level-ups are logged, counted and published to hub (which may be nil).
func NewEngine(db *gorm.DB, cfg config.EngineConfig, clock Clock, hub *eventbus.Hub) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	loc := cfg.Location()
	boosts := &BoostService{DB: db, Clock: clock}

	e := &Engine{
		DB:            db,
		Curve:         NewLevelCurve(cfg.Curve),
		Window:        DailyCounterWindow{Caps: cfg.Caps, Location: loc},
		Composer:      &MultiplierComposer{Policy: cfg.Multipliers, Location: loc, Clock: clock, Events: boosts},
		Guard:         NewGuard(cfg.Guard, cfg.Cooldowns, clock),
		Boosts:        boosts,
		Events:        boosts,
		Economy:       &CoinLedger{DB: db, Rate: cfg.Rewards.CoinsPerXP},
		Participation: boosts,
		Cascade:       NewCascade(),
		Rewards:       cfg.Rewards,
		Clock:         clock,
		Hub:           hub,
	}
	e.Cascade.Register("activity", ActivityHandler(db))
	e.Cascade.Register("metrics", MetricsHandler())
	if hub != nil {
		e.Cascade.Register("publish", PublishHandler(hub))
	}
	return e
}

func (e *Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock.Now()
}

// Award runs the award pipeline. Policy denials are reported in the result;
// the error is reserved for invalid input and infrastructure faults.
func (e *Engine) Award(ctx context.Context, req AwardRequest) (AwardResult, error) {
	tr := otel.Tracer("services/Engine")
	ctx, span := tr.Start(ctx, "Award",
		trace.WithAttributes(
			attribute.String("user.id", req.UserID),
			attribute.String("xp.source", string(req.Source)),
		),
	)
	defer span.End()

	res := AwardResult{UserID: req.UserID, Source: req.Source, Multiplier: 1}
	if strings.TrimSpace(req.UserID) == "" {
		return res, ErrEmptyUserID
	}
	if !req.Source.Valid() || req.Source.CapExempt() {
		return res, ErrInvalidSource
	}
	if req.BaseOverride != nil && *req.BaseOverride < 0 {
		return res, ErrInvalidAmount
	}

	u, err := repo.FindOrCreateUser(ctx, e.DB, req.UserID)
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	res.TotalXP, res.OldLevel, res.NewLevel = u.TotalXP, u.Level, u.Level

	if v := e.Guard.Check(req.UserID, req.Source, req.Content); !v.Allowed {
		return e.deny(ctx, res, v.Reason, v.Suspicious), nil
	}

	now := e.now()
	if ok, reason := e.Window.Check(u, req.Source, now); !ok {
		return e.deny(ctx, res, reason, false), nil
	}

	res.BaseAmount = e.baseAmount(req)
	res.Breakdown = e.Composer.Compose(ctx, MultiplierContext{
		IsBoosted:  req.IsBoosted,
		StreakDays: EffectiveStreak(u, e.Window.Today(now), e.Window.Yesterday(now)),
	})
	res.Multiplier = res.Breakdown.Total()
	res.FinalAmount = Apply(res.BaseAmount, res.Multiplier)
	span.SetAttributes(attribute.Int64("xp.amount", res.FinalAmount))
	if res.FinalAmount <= 0 {
		return res, nil
	}

	grant := repo.XPGrant{
		UserID: req.UserID,
		Source: req.Source,
		Amount: res.FinalAmount,
		Day:    e.Window.Today(now),
		Now:    now,
		Caps:   e.Window.Limits(req.Source),
	}
	err = e.commit(ctx, grant, &res, domain.ActivityAward)
	if errors.Is(err, repo.ErrCapReached) {
		return e.deny(ctx, res, ReasonDailyCap, false), nil
	}
	if err != nil {
		span.RecordError(err)
		return res, err
	}

	e.Guard.RecordSuccess(req.UserID, req.Source)
	e.count(res)

	if req.Source.EarnsCoins() {
		res.CoinsGained = e.rewardCoins(ctx, req.UserID, res.FinalAmount)
	}
	e.Hub.Publish(eventbus.Event{
		Type:      eventbus.TypeAward,
		UserID:    req.UserID,
		Timestamp: now.UnixMilli(),
		Data: map[string]any{
			"source":   string(req.Source),
			"amount":   res.FinalAmount,
			"total_xp": res.TotalXP,
		},
	})
	e.fireLevelUp(ctx, res, now)
	return res, nil
}

// commit applies g and recomputes the level in one transaction.
func (e *Engine) commit(ctx context.Context, g repo.XPGrant, res *AwardResult, kind string) error {
	return e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return e.commitTx(ctx, tx, g, res, kind)
	})
}

// commitTx is commit's body for callers that already hold a transaction.
func (e *Engine) commitTx(ctx context.Context, tx *gorm.DB, g repo.XPGrant, res *AwardResult, kind string) error {
	if err := repo.AddXP(ctx, tx, g); err != nil {
		return err
	}
	u, err := repo.GetUser(ctx, tx, g.UserID)
	if err != nil {
		return err
	}
	level := e.Curve.LevelFromTotalXP(u.TotalXP)
	if err := repo.SetLevel(ctx, tx, u.UserID, level, e.Curve.IntoLevel(u.TotalXP, level)); err != nil {
		return err
	}

	entry := &domain.ActivityLog{
		UserID:     g.UserID,
		Kind:       kind,
		Source:     g.Source,
		BaseAmount: res.BaseAmount,
		Multiplier: res.Multiplier,
		Amount:     g.Amount,
		TotalAfter: u.TotalXP,
		LevelAfter: level,
		CreatedAt:  g.Now.UTC(),
	}
	if err := repo.AppendActivity(ctx, tx, entry); err != nil {
		return err
	}

	res.TotalXP = u.TotalXP
	res.OldLevel = u.Level
	res.NewLevel = level
	res.LeveledUp = level > u.Level
	res.ActivityID = entry.ID
	return nil
}

// deny finalizes a denied result. Only suspicious denials reach the
// activity log; plain ones are counted and logged at debug.
func (e *Engine) deny(ctx context.Context, res AwardResult, reason DenyReason, suspicious bool) AwardResult {
	res.Denied, res.Reason, res.Suspicious = true, reason, suspicious
	res.FinalAmount = 0
	xpDenials.WithLabelValues(string(res.Source), string(reason)).Inc()

	if !suspicious {
		log.Debug().Str("user_id", res.UserID).Str("source", string(res.Source)).
			Str("reason", string(reason)).Msg("xp award denied")
		return res
	}

	log.Warn().Str("user_id", res.UserID).Str("source", string(res.Source)).
		Str("reason", string(reason)).Msg("suspicious xp activity")
	entry := &domain.ActivityLog{
		UserID:     res.UserID,
		Kind:       domain.ActivityDenied,
		Source:     res.Source,
		Multiplier: 1,
		TotalAfter: res.TotalXP,
		LevelAfter: res.NewLevel,
		Suspicious: true,
		Reason:     string(reason),
		CreatedAt:  e.now().UTC(),
	}
	if err := repo.AppendActivity(ctx, e.DB, entry); err != nil {
		log.Error().Err(err).Str("user_id", res.UserID).Msg("append suspicious activity")
	} else {
		res.ActivityID = entry.ID
	}
	return res
}

func (e *Engine) count(res AwardResult) {
	xpAwards.WithLabelValues(string(res.Source)).Inc()
	xpPoints.WithLabelValues(string(res.Source)).Add(float64(res.FinalAmount))
}

// rewardCoins forwards a grant to the economy and the participation
// tracker. Failures are logged; the XP grant already stands.
func (e *Engine) rewardCoins(ctx context.Context, userID string, xp int64) int64 {
	var coins int64
	if e.Economy != nil {
		mult := e.eventFactor(ctx, "coins")
		c, err := e.Economy.AwardCoins(ctx, userID, xp, mult)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("coin award failed")
		} else {
			coins = c
		}
	}
	if e.Participation != nil {
		if err := e.Participation.RecordParticipation(ctx, userID, xp); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("event participation failed")
		}
	}
	return coins
}

// eventFactor reads one of the event multipliers, treating failures as 1.
func (e *Engine) eventFactor(ctx context.Context, kind string) float64 {
	if e.Events == nil {
		return 1
	}
	var (
		f   float64
		err error
	)
	switch kind {
	case "coins":
		f, err = e.Events.ActiveCoinsMultiplier(ctx)
	case "daily":
		f, err = e.Events.ActiveDailyMultiplier(ctx)
	default:
		f, err = e.Events.ActiveXPMultiplier(ctx)
	}
	if err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("event multiplier lookup failed")
		return 1
	}
	if f <= 0 {
		return 1
	}
	return f
}

func (e *Engine) fireLevelUp(ctx context.Context, res AwardResult, at time.Time) {
	if !res.LeveledUp {
		return
	}
	log.Info().Str("user_id", res.UserID).Int("old_level", res.OldLevel).
		Int("new_level", res.NewLevel).Msg("level up")
	e.Cascade.Fire(ctx, LevelUp{
		UserID:   res.UserID,
		OldLevel: res.OldLevel,
		NewLevel: res.NewLevel,
		TotalXP:  res.TotalXP,
		Source:   res.Source,
		At:       at.UTC(),
	})
}

func (e *Engine) baseAmount(req AwardRequest) int64 {
	if req.BaseOverride != nil {
		return *req.BaseOverride
	}
	r := e.Rewards
	switch req.Source {
	case domain.SourceMessage:
		if r.MessageXPMax <= r.MessageXP {
			return r.MessageXP
		}
		return r.MessageXP + e.intn(r.MessageXPMax-r.MessageXP+1)
	case domain.SourceVoice:
		return r.VoiceXP
	case domain.SourceReaction:
		return r.ReactionXP
	case domain.SourceInvite:
		return r.InviteXP
	}
	return 0
}

func (e *Engine) intn(n int64) int64 {
	if e.Intn != nil {
		return e.Intn(n)
	}
	return rand.Int64N(n)
}

// MessageLengthTier maps message length onto the configured message range:
// short messages earn the minimum, long ones the maximum.
func MessageLengthTier(content string, r config.RewardConfig) int64 {
	n := utf8.RuneCountInString(strings.TrimSpace(content))
	switch {
	case r.MessageXPMax <= r.MessageXP:
		return r.MessageXP
	case n >= 200:
		return r.MessageXPMax
	case n >= 50:
		return r.MessageXP + (r.MessageXPMax-r.MessageXP)/2
	default:
		return r.MessageXP
	}
}

// VoiceTickAmount is the per-minute voice reward for a channel with humans
// non-bot members: one extra XP per listener beyond two, at most double.
func (e *Engine) VoiceTickAmount(humans int) int64 {
	base := e.Rewards.VoiceXP
	if humans <= 2 {
		return base
	}
	amt := base + int64(humans-2)
	if amt > 2*base {
		return 2 * base
	}
	return amt
}

// EffectiveStreak is the streak that still counts today: a streak whose
// last claim is older than yesterday is already broken.
func EffectiveStreak(u *domain.User, today, yesterday string) int {
	if u.LastClaimedDate == today || u.LastClaimedDate == yesterday {
		return u.StreakCurrent
	}
	return 0
}

// StreakBonus is the XP bonus for a streak of days.
func StreakBonus(days int, r config.RewardConfig) int64 {
	bonus := int64(days) * r.StreakBonusPerDay
	if r.StreakBonusCap > 0 && bonus > r.StreakBonusCap {
		return r.StreakBonusCap
	}
	return bonus
}
