package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-progression-engine/internal/eventbus"
	"github.com/tbourn/go-progression-engine/internal/http/middleware"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
	streamBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS middleware in front.
	CheckOrigin: func(*http.Request) bool { return true },
}

// LevelUpStream godoc
// @ID          levelUpStream
// @Summary     Live progression events (websocket)
// @Description Upgrades to a websocket and pushes level-up events as JSON. `type` selects other events (xp_awarded, voice_session_closed); `user_id` narrows to one user. Slow readers lose events rather than stall the engine.
// @Tags        Stream
// @Param       type     query  string  false  "Event type"  default(level_up)
// @Param       user_id  query  string  false  "Only events for this user"
// @Success     101  {string} string "Switching Protocols"
// @Failure     503  {object} handlers.ErrorResponse "Stream disabled"
// @Router      /stream/levelups [get]
func (h *Handlers) LevelUpStream(c *gin.Context) {
	if h.hub == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "event stream disabled")
		return
	}
	kind := c.DefaultQuery("type", eventbus.TypeLevelUp)
	only := c.Query("user_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		middleware.LoggerFrom(c).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	events := h.hub.Subscribe(ctx, streamBuffer)

	// Reader: the client sends nothing useful; a read error means it left.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if ev.Type != kind || (only != "" && ev.UserID != only) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}
