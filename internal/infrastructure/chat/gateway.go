package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	"livecast/internal/core/services"
	"livecast/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// Gateway relays chat messages between websocket clients watching the same
// stream. Messages are also forwarded to the vendor messaging channel so
// native RTM clients see them.
type Gateway struct {
	lifecycle ports.Lifecycle
	messaging ports.MessagingBackend
	auth      services.AuthService
	logger    *zap.SugaredLogger

	maxMessageBytes int64

	mu    sync.RWMutex
	rooms map[domain.StreamID]map[*client]struct{}

	upgrader websocket.Upgrader
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	userID domain.UserID
}

type chatMessage struct {
	ID        string    `json:"id"`
	StreamID  string    `json:"stream_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func NewGateway(lifecycle ports.Lifecycle, messaging ports.MessagingBackend, auth services.AuthService, maxMessageBytes int64, logger *zap.SugaredLogger) *Gateway {
	if maxMessageBytes <= 0 {
		maxMessageBytes = 4096
	}
	return &Gateway{
		lifecycle:       lifecycle,
		messaging:       messaging,
		auth:            auth,
		logger:          logger,
		maxMessageBytes: maxMessageBytes,
		rooms:           make(map[domain.StreamID]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS upgrades GET /ws/chat/:id. The platform token travels in the
// "token" query parameter because browsers cannot set websocket headers.
func (g *Gateway) HandleWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}

	claims, err := g.auth.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	streamID := domain.StreamID(c.Param("id"))
	stream, err := g.lifecycle.Get(c.Request.Context(), streamID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}
	if !stream.EnableChat || !stream.Joinable() {
		c.JSON(http.StatusConflict, gin.H{"error": "chat unavailable for this stream"})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warnw("websocket upgrade failed", "error", err, "stream_id", streamID)
		return
	}

	cl := &client{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		userID: claims.UserID,
	}
	g.register(streamID, cl)

	go g.writePump(cl)
	go g.readPump(streamID, stream.ChannelName, cl)
}

func (g *Gateway) register(streamID domain.StreamID, cl *client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[streamID]
	if !ok {
		room = make(map[*client]struct{})
		g.rooms[streamID] = room
	}
	room[cl] = struct{}{}
}

func (g *Gateway) unregister(streamID domain.StreamID, cl *client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[streamID]
	if !ok {
		return
	}
	if _, ok := room[cl]; ok {
		delete(room, cl)
		close(cl.send)
	}
	if len(room) == 0 {
		delete(g.rooms, streamID)
	}
}

func (g *Gateway) broadcast(streamID domain.StreamID, payload []byte) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for cl := range g.rooms[streamID] {
		select {
		case cl.send <- payload:
		default:
			// Slow consumer, drop the message rather than block the room.
		}
	}
}

// CloseRoom disconnects every client in a stream's chat room. Called when
// the stream ends or is deleted.
func (g *Gateway) CloseRoom(streamID domain.StreamID) {
	g.mu.Lock()
	room, ok := g.rooms[streamID]
	if ok {
		delete(g.rooms, streamID)
	}
	g.mu.Unlock()

	for cl := range room {
		close(cl.send)
	}
}

func (g *Gateway) readPump(streamID domain.StreamID, channelName string, cl *client) {
	defer func() {
		g.unregister(streamID, cl)
		cl.conn.Close()
	}()

	cl.conn.SetReadLimit(g.maxMessageBytes)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var incoming struct {
			Text string `json:"text"`
		}
		if err := cl.conn.ReadJSON(&incoming); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debugw("websocket read error", "error", err, "stream_id", streamID)
			}
			return
		}
		if incoming.Text == "" {
			continue
		}

		msg := chatMessage{
			ID:        utils.GenerateMessageID(),
			StreamID:  string(streamID),
			SenderID:  string(cl.userID),
			Text:      incoming.Text,
			Timestamp: time.Now().UTC(),
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			continue
		}

		g.broadcast(streamID, payload)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := g.messaging.SendChannelMessage(ctx, channelName, cl.userID, incoming.Text); err != nil {
			g.logger.Warnw("vendor message relay failed",
				"error", err,
				"stream_id", streamID,
				"channel", channelName,
			)
		}
		cancel()
	}
}

func (g *Gateway) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
