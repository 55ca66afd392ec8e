package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"redswarm/internal/logging"
	"redswarm/internal/server/app"
)

const (
	clientBuffer = 128
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

// StreamHandler pushes session events to websocket clients.
type StreamHandler struct {
	coordinator Coordinator
	broadcaster *app.EventBroadcaster
	upgrader    websocket.Upgrader
	logger      logging.Logger
}

func NewStreamHandler(coordinator Coordinator, broadcaster *app.EventBroadcaster, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		coordinator: coordinator,
		broadcaster: broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logging.NewComponentLogger("StreamHandler"),
	}
}

// originChecker allows same-host requests and the configured origins. A
// "*" entry allows everything.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleStream upgrades the request, replays the session backlog and then
// relays live events until either side goes away.
func (h *StreamHandler) HandleStream(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.coordinator.Session(sessionID); err != nil {
		writeError(c, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed for session %s: %v", sessionID, err)
		return
	}
	defer func() { _ = conn.Close() }()

	// Register before reading the backlog: an event may then arrive twice,
	// never zero times.
	ch := make(chan app.Event, clientBuffer)
	h.broadcaster.RegisterClient(sessionID, ch)
	defer h.broadcaster.UnregisterClient(sessionID, ch)
	backlog := h.broadcaster.History(sessionID)

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	for _, event := range backlog {
		if err := h.write(conn, event); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := h.write(conn, event); err != nil {
				h.logger.Debug("WebSocket write failed for session %s: %v", sessionID, err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) write(conn *websocket.Conn, event app.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(event)
}

// readPump drains client frames so control messages are processed. It
// closes closed when the peer disconnects.
func (h *StreamHandler) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
