// Award endpoints:
//   - POST /users/{id}/awards   (message, reaction and invite events)
//   - POST /users/{id}/daily    (daily check-in)
//
// A denied award is a normal outcome: it is returned with 200 and the
// denial reason, never as an error envelope.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/http/middleware"
	"github.com/tbourn/go-progression-engine/internal/services"
)

// AwardEventRequest is a platform activity event.
type AwardEventRequest struct {
	// Source is one of message, reaction, invite.
	Source string `json:"source" binding:"required" example:"message"`
	// Content is the message text; it picks the length tier and feeds
	// duplicate detection.
	Content string `json:"content" binding:"max=4000" example:"has anyone tried the new raid?"`
	// IsBoosted marks members who boost the community.
	IsBoosted bool `json:"is_boosted" example:"false"`
}

// DailyResponse is the outcome of a daily check-in.
type DailyResponse struct {
	Claimed bool                  `json:"claimed"`
	Reason  services.DenyReason   `json:"reason,omitempty" example:"already_claimed"`
	Result  *services.DailyResult `json:"result,omitempty"`
}

// directSources are the sources a caller may award over HTTP. Voice is
// credited by the tracker; daily and streak by the check-in.
var directSources = map[domain.Source]bool{
	domain.SourceMessage:  true,
	domain.SourceReaction: true,
	domain.SourceInvite:   true,
}

// PostAward godoc
// @ID          postAward
// @Summary     Award XP for an activity event
// @Description Runs the award pipeline (guard, daily caps, multipliers, level-up). Denials return 200 with `denied=true` and a reason.
// @Tags        Awards
// @Accept      json
// @Produce     json
// @Param       id    path  string                      true  "Platform user ID"  example(184467440737095516)
// @Param       body  body  handlers.AwardEventRequest  true  "Activity event"
// @Success     200  {object} services.AwardResult
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     429  {object} handlers.ErrorResponse "Rate limited"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /users/{id}/awards [post]
func (h *Handlers) PostAward(c *gin.Context) {
	uid, okID := pathUser(c)
	if !okID {
		return
	}
	var req AwardEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "source required; content at most 4000 characters")
		return
	}
	src, err := domain.ParseSource(req.Source)
	if err != nil || !directSources[src] {
		fail(c, http.StatusBadRequest, ErrCodeInvalidSource, "source must be one of: message, reaction, invite")
		return
	}

	ar := services.AwardRequest{
		UserID:    uid,
		Source:    src,
		Content:   req.Content,
		IsBoosted: req.IsBoosted,
	}
	if src == domain.SourceMessage {
		if strings.TrimSpace(req.Content) == "" {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message content required")
			return
		}
		tier := h.progress.MessageTier(req.Content)
		ar.BaseOverride = &tier
	}

	res, err := h.progress.Award(c.Request.Context(), ar)
	if err != nil {
		serviceError(c, err, ErrCodeAwardFailed)
		return
	}
	if res.Denied {
		middleware.LoggerFrom(c).Debug().
			Str("user_id", uid).
			Str("source", string(src)).
			Str("reason", string(res.Reason)).
			Msg("award denied")
	}
	ok(c, http.StatusOK, res)
}

// ClaimDaily godoc
// @ID          claimDaily
// @Summary     Daily check-in
// @Description Grants the daily reward and the streak bonus once per calendar day.
// @Tags        Awards
// @Produce     json
// @Param       id  path  string  true  "Platform user ID"  example(184467440737095516)
// @Success     200  {object} handlers.DailyResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /users/{id}/daily [post]
func (h *Handlers) ClaimDaily(c *gin.Context) {
	uid, okID := pathUser(c)
	if !okID {
		return
	}
	res, err := h.progress.AwardDaily(c.Request.Context(), uid)
	if err != nil {
		serviceError(c, err, ErrCodeAwardFailed)
		return
	}
	if res == nil {
		ok(c, http.StatusOK, DailyResponse{Claimed: false, Reason: services.ReasonAlreadyClaimed})
		return
	}
	ok(c, http.StatusOK, DailyResponse{Claimed: true, Result: res})
}
