// README: WebSocket stream of lifecycle events for admin dashboards.
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"transferhub/internal/modules/events"
	"transferhub/internal/modules/user"
)

const (
	streamBuffer    = 64
	streamWriteWait = 5 * time.Second
)

type StreamHandler struct {
	broker   *events.Broker
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewStreamHandler(broker *events.Broker, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{broker: broker, logger: logger}
}

// Events upgrades the connection and forwards every broker event as JSON
// until either side goes away. Optional ?job_id= narrows the stream.
func (h *StreamHandler) Events(c *gin.Context) {
	if !requireRole(c, user.RoleAdmin) {
		return
	}
	jobID := c.Query("job_id")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	sub := h.broker.Subscribe(ctx, streamBuffer)

	// the read loop only notices the peer closing
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for e := range sub {
		if jobID != "" && string(e.JobID) != jobID {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(streamWriteWait))
}

