package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/utils"
)

// ActiveBoostsResponse lists the boost events running now.
type ActiveBoostsResponse struct {
	Boosts []domain.BoostEvent `json:"boosts"`
}

// StandingsResponse ranks the participants of one event.
type StandingsResponse struct {
	EventID   string                      `json:"event_id"`
	Standings []domain.EventParticipation `json:"standings"`
}

// ActiveBoosts godoc
// @ID          activeBoosts
// @Summary     Running boost events
// @Tags        Boosts
// @Produce     json
// @Success     200  {object} handlers.ActiveBoostsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /boosts/active [get]
func (h *Handlers) ActiveBoosts(c *gin.Context) {
	evs, err := h.boosts.Active(c.Request.Context())
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	if evs == nil {
		evs = []domain.BoostEvent{}
	}
	ok(c, http.StatusOK, ActiveBoostsResponse{Boosts: evs})
}

// BoostStandings godoc
// @ID          boostStandings
// @Summary     Event participation standings
// @Tags        Boosts
// @Produce     json
// @Param       id     path   string  true   "Boost event ID"  format(uuid)
// @Param       limit  query  int     false  "Number of participants"  minimum(1) maximum(100) default(10)
// @Success     200  {object} handlers.StandingsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /boosts/{id}/standings [get]
func (h *Handlers) BoostStandings(c *gin.Context) {
	id := c.Param("id")
	_, limit := utils.ClampPage(1, utils.AtoiDefault(c.Query("limit"), 10), 100)
	rows, err := h.boosts.Standings(c.Request.Context(), id, limit)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	if rows == nil {
		rows = []domain.EventParticipation{}
	}
	ok(c, http.StatusOK, StandingsResponse{EventID: id, Standings: rows})
}
