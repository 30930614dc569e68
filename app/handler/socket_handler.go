package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/ipc"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/pubsub"
)

const eventWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Workers and event consumers are same-origin or CLI clients.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SocketHandler serves the two WebSocket surfaces: the internal worker
// registration socket and the public event stream.
type SocketHandler struct {
	hub       *ipc.Hub
	bus       *pubsub.Fanout[model.Event]
	authToken string
}

// NewSocketHandler creates socket handler
func NewSocketHandler(hub *ipc.Hub, bus *pubsub.Fanout[model.Event], authToken string) *SocketHandler {
	return &SocketHandler{hub: hub, bus: bus, authToken: authToken}
}

// WorkerSocket registers a dialing worker on the control channel. The
// worker authenticates with the spawn token it was forked with.
func (h *SocketHandler) WorkerSocket(c *gin.Context) {
	workerID := c.GetHeader(constants.WorkerIDHeader)
	if workerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing worker id"})
		return
	}

	token := c.GetHeader(constants.WorkerAuthHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.authToken)) != 1 {
		logger.WarnCtx(c.Request.Context(), "worker %s presented an invalid spawn token", workerID)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WarnCtx(c.Request.Context(), "worker %s upgrade failed: %v", workerID, err)
		return
	}

	logger.InfoCtx(c.Request.Context(), "worker %s registered on control channel", workerID)
	// The session outlives this request; the hub owns the connection
	// from here.
	h.hub.Attach(context.Background(), workerID, conn)
}

// EventSocket streams cluster events to an observing client until it
// disconnects.
func (h *SocketHandler) EventSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WarnCtx(c.Request.Context(), "event stream upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe, err := h.bus.SubscribeCh(ctx)
	if err != nil {
		logger.WarnCtx(c.Request.Context(), "event stream subscribe failed: %v", err)
		return
	}
	defer unsubscribe()

	// Drain client frames so close handshakes and pings are processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
