// Package hub is the server end of the stream socket: it tracks room
// membership per connection and fans events out to rooms.
package hub

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/time/rate"

	"github.com/anonto42/shelfstream/internal/metrics"
	"github.com/anonto42/shelfstream/internal/models"
)

// Participants answers whether a user takes part in a conversation
type Participants interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// Config tunes connection handling
type Config struct {
	SendBuffer   int
	RPS          float64
	Burst        int
	WriteTimeout time.Duration
	PongWait     time.Duration
	MaxFrame     int64
	// Participants guards conversation rooms. Conversation joins are
	// refused when it is nil.
	Participants Participants
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.RPS <= 0 {
		c.RPS = 10
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.MaxFrame <= 0 {
		c.MaxFrame = 8 << 10
	}
	return c
}

// PersonalRoom is the internal room behind stream:personal for userID
func PersonalRoom(userID string) string { return models.RoomPersonal + ":" + userID }

// ShelvesRoom is the internal room behind stream:shelves for userID
func ShelvesRoom(userID string) string { return models.RoomShelves + ":" + userID }

// ConversationRoom carries typing indicators of one conversation
func ConversationRoom(id string) string { return models.ConversationRoom(id) }

type client struct {
	ctx     context.Context
	id      string
	userID  string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	rooms   map[string]bool
	closed  bool
}

// Hub owns every connection of the process
type Hub struct {
	cfg     Config
	metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}
	rooms   map[string]map[*client]struct{}
}

// New creates a hub. m may be nil.
func New(cfg Config, m *metrics.Metrics) *Hub {
	return &Hub{
		cfg:     cfg.withDefaults(),
		metrics: m,
		clients: make(map[*client]struct{}),
		rooms:   make(map[string]map[*client]struct{}),
	}
}

// Serve runs conn until it closes or ctx is done. userID is empty for
// anonymous connections.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, userID string) {
	c := &client{
		ctx:     ctx,
		id:      uuid.NewString(),
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, h.cfg.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(h.cfg.RPS), h.cfg.Burst),
		rooms:   make(map[string]bool),
	}
	h.register(c)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(c)
	}()
	h.readPump(c)
	h.unregister(c)
	<-done
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.ConnOpened()
	jww.DEBUG.Printf("socket %s connected (user %q)", c.id, c.userID)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return
	}
	c.closed = true
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	close(c.send)
	rooms := len(h.rooms)
	h.mu.Unlock()

	h.metrics.ConnClosed()
	h.metrics.SetRooms(rooms)
	jww.DEBUG.Printf("socket %s disconnected", c.id)
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(h.cfg.MaxFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})
	for {
		var env models.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				jww.INFO.Printf("socket %s read failed: %v", c.id, err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		if !c.limiter.Allow() {
			h.metrics.RateLimited()
			jww.DEBUG.Printf("socket %s rate limited, dropping %s", c.id, env.Event)
			continue
		}
		h.handle(c, env)
	}
}

func (h *Hub) writePump(c *client) {
	ping := time.NewTicker(h.cfg.PongWait * 9 / 10)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				jww.DEBUG.Printf("socket %s write failed: %v", c.id, err)
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handle(c *client, env models.Envelope) {
	switch {
	case strings.HasPrefix(env.Event, models.JoinPrefix):
		public := strings.TrimPrefix(env.Event, models.JoinPrefix)
		room, ok := h.resolve(c, public)
		if !ok {
			h.reply(c, models.EventError, map[string]string{"error": "cannot join " + public})
			return
		}
		h.join(c, room)
	case strings.HasPrefix(env.Event, models.LeavePrefix):
		public := strings.TrimPrefix(env.Event, models.LeavePrefix)
		if strings.HasPrefix(public, models.ConversationPrefix) {
			h.leave(c, public)
			return
		}
		if room, ok := h.resolve(c, public); ok {
			h.leave(c, room)
		}
	case env.Event == models.EventUserTyping:
		h.relayTyping(c, env.Data)
	default:
		jww.DEBUG.Printf("socket %s sent unknown event %q", c.id, env.Event)
	}
}

// resolve maps a room name used by clients to the hub's room. Per-user
// rooms need an authenticated connection, conversation rooms a participant.
func (h *Hub) resolve(c *client, public string) (string, bool) {
	switch {
	case public == models.RoomGlobal, public == models.RoomLastActions:
		return public, true
	case public == models.RoomPersonal && c.userID != "":
		return PersonalRoom(c.userID), true
	case public == models.RoomShelves && c.userID != "":
		return ShelvesRoom(c.userID), true
	case strings.HasPrefix(public, models.ConversationPrefix) && len(public) > len(models.ConversationPrefix) && c.userID != "":
		if h.participant(c, strings.TrimPrefix(public, models.ConversationPrefix)) {
			return public, true
		}
	}
	return "", false
}

func (h *Hub) participant(c *client, conversationID string) bool {
	if h.cfg.Participants == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(c.ctx, h.cfg.WriteTimeout)
	defer cancel()
	ok, err := h.cfg.Participants.IsParticipant(ctx, conversationID, c.userID)
	if err != nil {
		jww.WARN.Printf("socket %s: participant lookup for %s failed: %v", c.id, conversationID, err)
		return false
	}
	return ok
}

func (h *Hub) join(c *client, room string) {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = true
	rooms := len(h.rooms)
	h.mu.Unlock()
	h.metrics.SetRooms(rooms)
}

func (h *Hub) leave(c *client, room string) {
	h.mu.Lock()
	h.leaveLocked(c, room)
	rooms := len(h.rooms)
	h.mu.Unlock()
	h.metrics.SetRooms(rooms)
}

func (h *Hub) leaveLocked(c *client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) relayTyping(c *client, data json.RawMessage) {
	if c.userID == "" {
		return
	}
	var ev models.Typing
	if err := json.Unmarshal(data, &ev); err != nil || ev.ConversationID == "" {
		jww.DEBUG.Printf("socket %s sent a bad typing frame", c.id)
		return
	}
	room := ConversationRoom(ev.ConversationID)
	h.mu.RLock()
	member := c.rooms[room]
	h.mu.RUnlock()
	if !member {
		return
	}
	ev.UserID = c.userID
	h.broadcast(c, models.EventUserTyping, ev, room)
}

func (h *Hub) reply(c *client, event string, payload any) {
	frame, err := encode(event, payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// Broadcast sends event to every member of rooms. A connection that sits in
// several of the rooms receives the frame once. It returns the number of
// connections reached.
func (h *Hub) Broadcast(event string, payload any, rooms ...string) int {
	return h.broadcast(nil, event, payload, rooms...)
}

func (h *Hub) broadcast(except *client, event string, payload any, rooms ...string) int {
	frame, err := encode(event, payload)
	if err != nil {
		jww.ERROR.Printf("failed to encode %s: %v", event, err)
		return 0
	}

	var slow []*client
	sent := 0
	seen := make(map[*client]bool)
	h.mu.RLock()
	for _, room := range rooms {
		for c := range h.rooms[room] {
			if c == except || seen[c] || c.closed {
				continue
			}
			seen[c] = true
			select {
			case c.send <- frame:
				sent++
			default:
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		jww.WARN.Printf("socket %s is not keeping up, disconnecting", c.id)
		_ = c.conn.Close()
	}
	h.metrics.Emitted(event, sent)
	return sent
}

// Members counts the connections in room
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Connections counts open connections
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects everyone
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.RUnlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

func encode(event string, payload any) ([]byte, error) {
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
