// Progression HTTP handlers.
//
// The handlers are thin adapters over the progression engine: they decode
// platform events and admin commands, call the services, and translate
// results into JSON. Award policy lives entirely in the services package.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/eventbus"
	"github.com/tbourn/go-progression-engine/internal/presence"
	"github.com/tbourn/go-progression-engine/internal/services"
	"github.com/tbourn/go-progression-engine/internal/utils"
)

//
// Service contracts (context-aware)
//

// ProgressionService awards XP and serves the read models.
//
// Implementations must be safe for concurrent use and honor ctx.
type ProgressionService interface {
	// Award runs the award pipeline for one platform event.
	Award(ctx context.Context, req services.AwardRequest) (services.AwardResult, error)
	// AwardDaily claims the daily reward; nil means already claimed today.
	AwardDaily(ctx context.Context, userID string) (*services.DailyResult, error)
	// MessageTier maps message content onto the message base amount.
	MessageTier(content string) int64
	// Progress returns the progress card of a user.
	Progress(ctx context.Context, userID string) (*services.ProgressView, error)
	// ActivityPage returns a page of a user's activity and the total count.
	ActivityPage(ctx context.Context, userID string, page, pageSize int) ([]domain.ActivityLog, int64, error)
	// ActivityVersion returns the row count and newest timestamp for ETags.
	ActivityVersion(ctx context.Context, userID string) (int64, *time.Time, error)
	// Leaderboard returns the top users by lifetime XP.
	Leaderboard(ctx context.Context, limit int) ([]domain.User, error)
}

// AdminService applies manual corrections.
type AdminService interface {
	AdminAward(ctx context.Context, userID string, amount int64) (services.AwardResult, error)
	AdminRemove(ctx context.Context, userID string, amount int64) (services.RemovalResult, error)
	ClearPenalty(userID string) bool
	// Activity fetches a stored entry to replay an idempotent correction.
	Activity(ctx context.Context, id string) (*domain.ActivityLog, error)
}

// VoiceService consumes voice-state changes.
type VoiceService interface {
	HandleVoiceState(ctx context.Context, userID, oldChannel, newChannel string) error
	Sessions() []services.VoiceSession
}

// BoostService manages community boost events.
type BoostService interface {
	Create(ctx context.Context, in services.BoostInput) (*domain.BoostEvent, error)
	Active(ctx context.Context) ([]domain.BoostEvent, error)
	Standings(ctx context.Context, eventID string, limit int) ([]domain.EventParticipation, error)
}

// PresenceUpdater records the live voice state reported by the platform.
type PresenceUpdater interface {
	Update(st presence.State, now time.Time) (presence.State, bool)
}

// IdempotencyStore persists the outcome of admin corrections.
type IdempotencyStore interface {
	Get(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error)
	Put(ctx context.Context, userID, scope, key, activityID string, status int) error
}

//
// Handler wiring
//

// Handlers groups the progression endpoints.
type Handlers struct {
	progress ProgressionService
	admin    AdminService
	voice    VoiceService
	boosts   BoostService
	presence PresenceUpdater
	idem     IdempotencyStore
	hub      *eventbus.Hub
}

// Deps lists the collaborators of Handlers. Nil members disable the
// endpoints that need them.
type Deps struct {
	Progress    ProgressionService
	Admin       AdminService
	Voice       VoiceService
	Boosts      BoostService
	Presence    PresenceUpdater
	Idempotency IdempotencyStore
	Hub         *eventbus.Hub
}

// New constructs Handlers from deps.
func New(d Deps) *Handlers {
	return &Handlers{
		progress: d.Progress,
		admin:    d.Admin,
		voice:    d.Voice,
		boosts:   d.Boosts,
		presence: d.Presence,
		idem:     d.Idempotency,
		hub:      d.Hub,
	}
}

// pathUser reads and trims the :id path parameter.
func pathUser(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" || len(id) > 64 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id must be 1-64 characters")
		return "", false
	}
	return id, true
}

// actor is the authenticated caller, as set by upstream auth middleware.
func actor(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "anonymous"
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination reads page/page_size with defaults 1/20 and a 100 cap.
func clampPagination(c *gin.Context) (int, int) {
	return utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), 20),
		100,
	)
}

// serviceError maps service errors onto HTTP responses.
func serviceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeUserNotFound, "user has no progression record")
	case errors.Is(err, services.ErrEmptyUserID):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidSource):
		fail(c, http.StatusBadRequest, ErrCodeInvalidSource, err.Error())
	case errors.Is(err, services.ErrInvalidAmount):
		fail(c, http.StatusBadRequest, ErrCodeInvalidAmount, err.Error())
	case errors.Is(err, services.ErrInvalidBoost):
		fail(c, http.StatusBadRequest, ErrCodeInvalidBoost, err.Error())
	case errors.Is(err, services.ErrTrackerStopped):
		fail(c, http.StatusServiceUnavailable, ErrCodeTrackerStopped, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "request cancelled")
	default:
		fail(c, http.StatusInternalServerError, fallback, err.Error())
	}
}
