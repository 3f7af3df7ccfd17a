// Voice endpoints:
//   - POST /voice/state      (platform voice-state update)
//   - GET  /voice/sessions   (open sessions)
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-progression-engine/internal/presence"
	"github.com/tbourn/go-progression-engine/internal/services"
)

// VoiceStateRequest mirrors a platform voice-state update. An empty
// channel_id means the user left voice.
type VoiceStateRequest struct {
	UserID    string `json:"user_id" binding:"required,max=64" example:"184467440737095516"`
	ChannelID string `json:"channel_id" binding:"max=64" example:"general-voice"`
	IsBot     bool   `json:"is_bot" example:"false"`
	SelfMute  bool   `json:"self_mute" example:"false"`
	SelfDeaf  bool   `json:"self_deaf" example:"false"`
}

// VoiceSessionsResponse lists open voice sessions.
type VoiceSessionsResponse struct {
	Sessions []services.VoiceSession `json:"sessions"`
}

// VoiceState godoc
// @ID          voiceState
// @Summary     Apply a voice-state update
// @Description Updates live presence and opens, switches or closes the user's voice session. Bots are tracked for population only.
// @Tags        Voice
// @Accept      json
// @Param       body  body  handlers.VoiceStateRequest  true  "Voice state"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     503  {object} handlers.ErrorResponse "Tracker stopped"
// @Router      /voice/state [post]
func (h *Handlers) VoiceState(c *gin.Context) {
	var req VoiceStateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id required")
		return
	}
	uid := strings.TrimSpace(req.UserID)
	channel := strings.TrimSpace(req.ChannelID)

	prev, had := h.presence.Update(presence.State{
		UserID:    uid,
		ChannelID: channel,
		IsBot:     req.IsBot,
		SelfMute:  req.SelfMute,
		SelfDeaf:  req.SelfDeaf,
	}, time.Now())
	if req.IsBot {
		noContent(c)
		return
	}

	var old string
	if had {
		old = prev.ChannelID
	}
	if err := h.voice.HandleVoiceState(c.Request.Context(), uid, old, channel); err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// VoiceSessions godoc
// @ID          voiceSessions
// @Summary     List open voice sessions
// @Tags        Voice
// @Produce     json
// @Success     200  {object} handlers.VoiceSessionsResponse
// @Router      /voice/sessions [get]
func (h *Handlers) VoiceSessions(c *gin.Context) {
	ok(c, http.StatusOK, VoiceSessionsResponse{Sessions: h.voice.Sessions()})
}
