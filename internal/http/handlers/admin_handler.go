// Admin endpoints (mounted behind middleware.AdminAuth):
//   - POST /admin/users/{id}/xp             (grant, Idempotency-Key aware)
//   - POST /admin/users/{id}/xp/remove      (removal, Idempotency-Key aware)
//   - POST /admin/users/{id}/penalty/clear
//   - POST /admin/boosts
//
// Idempotency:
// When the client sends an Idempotency-Key and a correction with the same
// (user, route, key) already succeeded, the stored activity entry is
// replayed with `Idempotency-Replayed: true` and nothing is applied again.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/http/middleware"
	"github.com/tbourn/go-progression-engine/internal/services"
)

// AdjustXPRequest is the payload of admin grants and removals.
type AdjustXPRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0" example:"250"`
	// Note is logged with the correction.
	Note string `json:"note" binding:"max=200" example:"event prize"`
}

// AdjustmentResponse describes an applied (or replayed) correction.
type AdjustmentResponse struct {
	UserID     string `json:"user_id"`
	Amount     int64  `json:"amount" example:"-50"`
	TotalXP    int64  `json:"total_xp"`
	Level      int    `json:"level"`
	LeveledUp  bool   `json:"leveled_up"`
	ActivityID string `json:"activity_id"`
}

// PenaltyResponse reports whether a penalty was lifted.
type PenaltyResponse struct {
	Cleared bool `json:"cleared"`
}

// CreateBoostRequest schedules a boost event. Omitted multipliers are 1.
type CreateBoostRequest struct {
	Name            string    `json:"name" binding:"required,max=128" example:"Launch week"`
	XPMultiplier    float64   `json:"xp_multiplier" example:"2"`
	CoinsMultiplier float64   `json:"coins_multiplier" example:"1.5"`
	DailyMultiplier float64   `json:"daily_multiplier" example:"1"`
	StartsAt        time.Time `json:"starts_at" binding:"required" example:"2026-03-07T00:00:00Z"`
	EndsAt          time.Time `json:"ends_at" binding:"required" example:"2026-03-14T00:00:00Z"`
}

// AdminAwardXP godoc
// @ID          adminAwardXP
// @Summary     Grant XP (admin)
// @Description Grants XP without guard, caps or multipliers. Level-ups fire as usual.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id               path    string                    true   "Platform user ID"  example(184467440737095516)
// @Param       Idempotency-Key  header  string                    false  "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.AdjustXPRequest  true   "Amount"
// @Success     200  {object} handlers.AdjustmentResponse
// @Header      200  {string} Idempotency-Replayed "true when served from a stored result"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/users/{id}/xp [post]
func (h *Handlers) AdminAwardXP(c *gin.Context) {
	h.adjust(c, func(uid string, amount int64) (AdjustmentResponse, error) {
		res, err := h.admin.AdminAward(c.Request.Context(), uid, amount)
		return AdjustmentResponse{
			UserID:     uid,
			Amount:     res.FinalAmount,
			TotalXP:    res.TotalXP,
			Level:      res.NewLevel,
			LeveledUp:  res.LeveledUp,
			ActivityID: res.ActivityID,
		}, err
	})
}

// AdminRemoveXP godoc
// @ID          adminRemoveXP
// @Summary     Remove XP (admin)
// @Description Removes up to `amount` XP (never below zero) and recomputes the level.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id               path    string                    true   "Platform user ID"  example(184467440737095516)
// @Param       Idempotency-Key  header  string                    false  "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.AdjustXPRequest  true   "Amount"
// @Success     200  {object} handlers.AdjustmentResponse
// @Header      200  {string} Idempotency-Replayed "true when served from a stored result"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/users/{id}/xp/remove [post]
func (h *Handlers) AdminRemoveXP(c *gin.Context) {
	h.adjust(c, func(uid string, amount int64) (AdjustmentResponse, error) {
		res, err := h.admin.AdminRemove(c.Request.Context(), uid, amount)
		return AdjustmentResponse{
			UserID:     uid,
			Amount:     -res.Removed,
			TotalXP:    res.TotalXP,
			Level:      res.Level,
			ActivityID: res.ActivityID,
		}, err
	})
}

// adjust runs one idempotent correction.
func (h *Handlers) adjust(c *gin.Context, apply func(uid string, amount int64) (AdjustmentResponse, error)) {
	uid, okID := pathUser(c)
	if !okID {
		return
	}
	var req AdjustXPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidAmount, "amount must be a positive integer")
		return
	}
	ctx := c.Request.Context()
	scope := c.FullPath()
	key, hasKey := middleware.GetIdempotencyKey(c)
	useIdem := hasKey && h.idem != nil

	// Idempotency (replay path).
	if useIdem {
		rec, err := h.idem.Get(ctx, uid, scope, key, time.Now().UTC())
		if err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		}
		if rec != nil {
			if a, err := h.admin.Activity(ctx, rec.ActivityID); err == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, rec.Status, adjustmentFrom(a))
				return
			}
		}
	}

	resp, err := apply(uid, req.Amount)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	middleware.LoggerFrom(c).Info().
		Str("actor", actor(c)).
		Str("user_id", uid).
		Int64("amount", resp.Amount).
		Str("note", req.Note).
		Msg("admin xp correction")

	// Idempotency (store path), best effort.
	if useIdem && resp.ActivityID != "" {
		if err := h.idem.Put(ctx, uid, scope, key, resp.ActivityID, http.StatusOK); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency store failed")
		}
	}
	ok(c, http.StatusOK, resp)
}

func adjustmentFrom(a *domain.ActivityLog) AdjustmentResponse {
	return AdjustmentResponse{
		UserID:     a.UserID,
		Amount:     a.Amount,
		TotalXP:    a.TotalAfter,
		Level:      a.LevelAfter,
		ActivityID: a.ID,
	}
}

// ClearPenalty godoc
// @ID          clearPenalty
// @Summary     Lift an anti-exploit penalty (admin)
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Platform user ID"  example(184467440737095516)
// @Success     200  {object} handlers.PenaltyResponse
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Router      /admin/users/{id}/penalty/clear [post]
func (h *Handlers) ClearPenalty(c *gin.Context) {
	uid, okID := pathUser(c)
	if !okID {
		return
	}
	cleared := h.admin.ClearPenalty(uid)
	middleware.LoggerFrom(c).Info().Str("actor", actor(c)).Str("user_id", uid).Bool("cleared", cleared).Msg("penalty clear")
	ok(c, http.StatusOK, PenaltyResponse{Cleared: cleared})
}

// CreateBoost godoc
// @ID          createBoost
// @Summary     Schedule a boost event (admin)
// @Description Overlapping events stack multiplicatively. The window is [starts_at, ends_at).
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.CreateBoostRequest  true  "Boost event"
// @Success     201  {object} domain.BoostEvent
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/boosts [post]
func (h *Handlers) CreateBoost(c *gin.Context) {
	var req CreateBoostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name, starts_at and ends_at are required")
		return
	}
	ev, err := h.boosts.Create(c.Request.Context(), services.BoostInput{
		Name:            req.Name,
		XPMultiplier:    req.XPMultiplier,
		CoinsMultiplier: req.CoinsMultiplier,
		DailyMultiplier: req.DailyMultiplier,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
	})
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusCreated, ev)
}
