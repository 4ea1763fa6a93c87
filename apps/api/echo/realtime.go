package echoapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/events"
	"github.com/schoolhub/schoolhub/core/school"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RealtimeMessage is pushed to the dashboards for every forwarded event.
type RealtimeMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type wsClient struct {
	conn     *websocket.Conn
	schoolID string
	admin    bool
	send     chan RealtimeMessage
	done     chan struct{}
	once     sync.Once
}

func (c *wsClient) stop() {
	c.once.Do(func() { close(c.done) })
}

// sees reports whether the client may receive the events of schoolID.
// The empty schoolID is reserved to admins; "*" reaches everyone.
func (c *wsClient) sees(schoolID string) bool {
	return c.admin || schoolID == "*" || (schoolID != "" && schoolID == c.schoolID)
}

// hub forwards the bus events to the websocket clients.
type hub struct {
	logger core.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	offs    []func()
	closed  bool
}

func newHub(bus *events.Bus, logger core.Logger) *hub {
	h := &hub{logger: logger, clients: make(map[*wsClient]struct{})}

	h.offs = append(h.offs,
		bus.On(events.DataUpdated, func(payload interface{}) {
			change, ok := payload.(events.DataChange)
			if !ok {
				return
			}
			schoolID := change.SchoolID()
			if change.Table == "*" {
				schoolID = "*"
			}
			h.broadcast(schoolID, RealtimeMessage{Event: events.DataUpdated, Data: change})
		}),
		bus.On(events.SchoolCreated, h.forwardSchool(events.SchoolCreated)),
		bus.On(events.SchoolUpdated, h.forwardSchool(events.SchoolUpdated)),
		bus.On(events.SchoolDeleted, func(payload interface{}) {
			id, _ := payload.(string)
			h.broadcast(id, RealtimeMessage{Event: events.SchoolDeleted, Data: map[string]string{"id": id}})
		}),
		bus.On(events.SyncCompleted, func(payload interface{}) {
			h.broadcast("*", RealtimeMessage{Event: events.SyncCompleted, Data: payload})
		}),
	)
	return h
}

func (h *hub) forwardSchool(event string) events.Handler {
	return func(payload interface{}) {
		sch, ok := payload.(school.School)
		if !ok {
			return
		}
		h.broadcast(sch.ID, RealtimeMessage{Event: event, Data: sch})
	}
}

// broadcast never blocks: clients whose buffer is full are disconnected.
func (h *hub) broadcast(schoolID string, msg RealtimeMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if !c.sees(schoolID) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			c.stop()
		}
	}
}

func (h *hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *hub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// close unsubscribes from the bus and disconnects every client.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, off := range h.offs {
		off()
	}
	for c := range h.clients {
		delete(h.clients, c)
		c.stop()
	}
}

// realtime upgrades the request to a websocket receiving the events of the user's school.
// The token is given as `?token=`, browsers cannot set headers on websocket requests.
func (s *Server) realtime(ctx echo.Context) error {
	if !s.deps.Conf.Sync.EnableRealtime {
		return errHttpNotFound
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// the upgrader already replied
		s.deps.Logger.Warn("realtime: websocket upgrade: " + err.Error())
		return nil
	}

	c := &wsClient{
		conn:     conn,
		schoolID: claims.SchoolID,
		admin:    claims.IsAdmin,
		send:     make(chan RealtimeMessage, wsSendBuffer),
		done:     make(chan struct{}),
	}
	if !s.hub.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(wsWriteWait))
		return conn.Close()
	}

	go s.writePump(c)
	s.readPump(c)
	return nil
}

// readPump discards the client messages; it returns once the connection is closed.
func (s *Server) readPump(c *wsClient) {
	defer s.hub.unregister(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.deps.Logger.Warn("realtime: websocket read: " + err.Error())
			}
			return
		}
	}
}

func (s *Server) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteJSON(RealtimeMessage{Event: "connected"}); err != nil {
		return
	}

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				s.deps.Logger.Warn("realtime: websocket write: " + err.Error())
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
