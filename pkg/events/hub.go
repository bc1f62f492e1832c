package events

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tokenlease/pkg/response"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
	sendBuffer = 32
)

// Subscriber is one websocket connection. A non-zero TokenID limits the
// stream to that token.
type Subscriber struct {
	ID      string
	TokenID int64
	Conn    *websocket.Conn
	Send    chan Event
	Done    chan struct{}
}

// Hub broadcasts events to every connected subscriber.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	logger      *zap.Logger
	upgrader    websocket.Upgrader
}

func NewHub(logger *zap.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		subscribers: make(map[string]*Subscriber),
		logger:      logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func (h *Hub) add(tokenID int64, conn *websocket.Conn) *Subscriber {
	sub := &Subscriber{
		ID:      uuid.NewString(),
		TokenID: tokenID,
		Conn:    conn,
		Send:    make(chan Event, sendBuffer),
		Done:    make(chan struct{}),
	}

	h.mu.Lock()
	h.subscribers[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subscribers[id]; ok {
		close(sub.Done)
		delete(h.subscribers, id)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish queues e for every matching subscriber. A subscriber whose queue is
// full misses the event.
func (h *Hub) Publish(_ context.Context, e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers {
		if sub.TokenID != 0 && sub.TokenID != e.TokenID {
			continue
		}
		select {
		case sub.Send <- e:
		case <-sub.Done:
		default:
			h.logger.Warn("event dropped for slow subscriber", zap.String("subscriber", sub.ID), zap.String("kind", string(e.Kind)))
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subscribers {
		close(sub.Done)
		sub.Conn.Close()
		delete(h.subscribers, id)
	}
}

func (h *Hub) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws/events", h.serveEvents)
}

// @Summary      Stream token events
// @Description  Upgrades to a websocket that receives every committed token event as JSON. token_id narrows the stream to one token.
// @Tags         events
// @Param        token_id  query  int  false  "Token ID filter"
// @Success      101
// @Failure      400  {object}  response.APIResponse "Invalid token id"
// @Router       /ws/events [get]
func (h *Hub) serveEvents(c *gin.Context) {
	var tokenID int64
	if raw := c.Query("token_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			response.SendErrorResponse(c, http.StatusBadRequest, "invalid_request", "invalid token id")
			return
		}
		tokenID = id
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.add(tokenID, conn)
	h.logger.Debug("event subscriber connected", zap.String("subscriber", sub.ID), zap.Int64("token_id", tokenID))

	go h.readLoop(sub)
	go h.writeLoop(sub)
}

// readLoop only services control frames; subscribers never send data.
func (h *Hub) readLoop(sub *Subscriber) {
	defer func() {
		h.remove(sub.ID)
		sub.Conn.Close()
		h.logger.Debug("event subscriber disconnected", zap.String("subscriber", sub.ID))
	}()

	sub.Conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.Conn.SetPongHandler(func(string) error {
		sub.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := sub.Conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", zap.String("subscriber", sub.ID), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-sub.Done:
			sub.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			sub.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case e := <-sub.Send:
			sub.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.Conn.WriteJSON(e); err != nil {
				h.logger.Warn("websocket write error", zap.String("subscriber", sub.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			sub.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
