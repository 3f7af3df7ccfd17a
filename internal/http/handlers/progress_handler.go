// Read-side endpoints:
//   - GET /users/{id}/progress
//   - GET /users/{id}/activity   (paginated, ETag support)
//   - GET /leaderboard
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/utils"
)

// ListActivityResponse is a page of activity entries.
type ListActivityResponse struct {
	Activity   []domain.ActivityLog `json:"activity"`
	Pagination Pagination           `json:"pagination"`
}

// LeaderboardResponse lists the top users by lifetime XP.
type LeaderboardResponse struct {
	Users []domain.User `json:"users"`
}

// GetProgress godoc
// @ID          getProgress
// @Summary     Progress card
// @Description Level, XP into the level, rank, coins, streak, today's counters and remaining caps of a user.
// @Tags        Progress
// @Produce     json
// @Param       id   path  string  true  "Platform user ID"  example(184467440737095516)
// @Success     200  {object} services.ProgressView
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /users/{id}/progress [get]
func (h *Handlers) GetProgress(c *gin.Context) {
	uid, okID := pathUser(c)
	if !okID {
		return
	}
	v, err := h.progress.Progress(c.Request.Context(), uid)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, v)
}

// ListActivity godoc
// @ID          listActivity
// @Summary     Activity feed
// @Description Returns a page of grants, suspicious denials, admin corrections and level-ups, newest first.
// @Tags        Progress
// @Produce     json
// @Param       id             path    string  true   "Platform user ID"            example(184467440737095516)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"activity:u1:12:1741089600\")
// @Param       page           query   int     false  "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"              minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListActivityResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /users/{id}/activity [get]
func (h *Handlers) ListActivity(c *gin.Context) {
	uid, okID := pathUser(c)
	if !okID {
		return
	}
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, newest, err := h.progress.ActivityVersion(ctx, uid); err == nil {
		var ts int64
		if newest != nil {
			ts = newest.Unix()
		}
		etag := fmt.Sprintf(`W/"activity:%s:%d:%d:%d:%d"`, uid, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.progress.ActivityPage(ctx, uid, page, pageSize)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListActivityResponse{
		Activity:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// Leaderboard godoc
// @ID          leaderboard
// @Summary     Leaderboard
// @Tags        Progress
// @Produce     json
// @Param       limit  query  int  false  "Number of users"  minimum(1) maximum(100) default(10)
// @Success     200  {object} handlers.LeaderboardResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /leaderboard [get]
func (h *Handlers) Leaderboard(c *gin.Context) {
	_, limit := utils.ClampPage(1, utils.AtoiDefault(c.Query("limit"), 10), 100)
	users, err := h.progress.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	ok(c, http.StatusOK, LeaderboardResponse{Users: users})
}
