// Package socket wraps one shared WebSocket connection to the stream service
// with typed event subscriptions and room membership that is replayed after
// every reconnect.
package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/anonto42/shelfstream/internal/models"
)

var (
	// ErrNotReady is returned when the adapter has not been constructed
	ErrNotReady = errors.New("socket adapter not ready")
	// ErrNotConnected is returned when sending while no connection is up
	ErrNotConnected = errors.New("socket not connected")
)

// Handler receives the raw payload of one event
type Handler func(data json.RawMessage)

// Config configures an Adapter
type Config struct {
	// URL is the ws:// or wss:// endpoint of the gateway
	URL string
	// Token is sent as a bearer token on the handshake when not empty
	Token  string
	Header http.Header
	Dialer *websocket.Dialer
	// NewBackOff returns the reconnect policy. Defaults to exponential
	// backoff that never gives up.
	NewBackOff   func() backoff.BackOff
	WriteTimeout time.Duration
}

type subscription struct {
	id uint64
	fn Handler
}

// Adapter is a single shared connection. A nil *Adapter stands for a socket
// that is not ready yet: every method on it is a no-op.
type Adapter struct {
	cfg Config

	mu       sync.Mutex
	conn     *websocket.Conn
	rooms    map[string]struct{}
	handlers map[string][]subscription
	nextID   uint64

	writeMu sync.Mutex
}

// New creates an Adapter. Nothing is dialed until Run is called.
func New(cfg Config) *Adapter {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0
			return b
		}
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Adapter{
		cfg:      cfg,
		rooms:    make(map[string]struct{}),
		handlers: make(map[string][]subscription),
	}
}

// Run keeps the connection up until ctx ends, reconnecting with backoff.
// Every successful connect raises models.EventConnect and re-joins all rooms
// the caller currently wants.
func (a *Adapter) Run(ctx context.Context) error {
	if a == nil {
		return ErrNotReady
	}
	b := a.cfg.NewBackOff()
	for {
		conn, err := a.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				return errors.Wrap(err, "giving up on socket")
			}
			jww.WARN.Printf("socket dial %s failed, retrying in %s: %+v", a.cfg.URL, wait, err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		b.Reset()
		a.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (a *Adapter) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	for k, v := range a.cfg.Header {
		header[k] = v
	}
	if a.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+a.cfg.Token)
	}
	conn, resp, err := a.cfg.Dialer.DialContext(ctx, a.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "handshake rejected with status %d", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "failed to dial socket")
	}
	return conn, nil
}

// serve owns conn until it fails or ctx ends
func (a *Adapter) serve(ctx context.Context, conn *websocket.Conn) {
	a.mu.Lock()
	a.conn = conn
	rooms := a.roomsLocked()
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	for _, room := range rooms {
		if err := a.write(conn, models.Envelope{Event: models.JoinEvent(room)}); err != nil {
			jww.WARN.Printf("failed to rejoin %s: %+v", room, err)
		}
	}
	jww.INFO.Printf("socket connected to %s, rejoined %d rooms", a.cfg.URL, len(rooms))
	a.dispatch(models.EventConnect, nil)

	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil {
				jww.WARN.Printf("socket read failed: %+v", err)
			}
			break
		}
		if env.Event == "" {
			jww.DEBUG.Printf("dropping frame without event name")
			continue
		}
		a.dispatch(env.Event, env.Data)
	}

	a.mu.Lock()
	if a.conn == conn {
		a.conn = nil
	}
	a.mu.Unlock()
	_ = conn.Close()
	a.dispatch(models.EventDisconnect, nil)
}

func (a *Adapter) roomsLocked() []string {
	rooms := make([]string, 0, len(a.rooms))
	for r := range a.rooms {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms
}

// JoinRoom records that the caller wants room and signals the server. The
// signal is fire-and-forget; while disconnected it is sent on next connect.
func (a *Adapter) JoinRoom(room string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.rooms[room] = struct{}{}
	a.mu.Unlock()
	if err := a.Emit(models.JoinEvent(room), nil); err != nil && !errors.Is(err, ErrNotConnected) {
		jww.WARN.Printf("failed to join %s: %+v", room, err)
	}
}

// LeaveRoom drops room from the wanted set and signals the server
func (a *Adapter) LeaveRoom(room string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	delete(a.rooms, room)
	a.mu.Unlock()
	if err := a.Emit(models.LeaveEvent(room), nil); err != nil && !errors.Is(err, ErrNotConnected) {
		jww.WARN.Printf("failed to leave %s: %+v", room, err)
	}
}

// Rooms lists the rooms the adapter will (re)join
func (a *Adapter) Rooms() []string {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.roomsLocked()
}

// Connected reports whether a connection is currently up
func (a *Adapter) Connected() bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// OnEvent subscribes fn to event and returns its disposer. Calling the
// disposer more than once is harmless.
func (a *Adapter) OnEvent(event string, fn Handler) (dispose func()) {
	if a == nil || fn == nil {
		return func() {}
	}
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.handlers[event] = append(a.handlers[event], subscription{id: id, fn: fn})
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { a.unsubscribe(event, id) })
	}
}

func (a *Adapter) unsubscribe(event string, id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	subs := a.handlers[event]
	next := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			next = append(next, s)
		}
	}
	if len(next) == 0 {
		delete(a.handlers, event)
		return
	}
	a.handlers[event] = next
}

// Subscribers returns how many handlers are registered for event
func (a *Adapter) Subscribers(event string) int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.handlers[event])
}

// dispatch calls handlers in registration order. Handlers run on the read
// loop, so events are seen in the order the server sent them. A panicking
// handler is logged and the next one still runs.
func (a *Adapter) dispatch(event string, data json.RawMessage) {
	a.mu.Lock()
	subs := a.handlers[event]
	a.mu.Unlock()
	for _, s := range subs {
		call(event, s.fn, data)
	}
}

func call(event string, fn Handler, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			jww.ERROR.Printf("handler for %s panicked: %v", event, r)
		}
	}()
	fn(data)
}

// Emit sends a client-originated event
func (a *Adapter) Emit(event string, payload any) error {
	if a == nil {
		return ErrNotReady
	}
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", event)
	}
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return a.write(conn, env)
}

func (a *Adapter) write(conn *websocket.Conn, env models.Envelope) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout)); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	if err := conn.WriteJSON(env); err != nil {
		return errors.Wrapf(err, "failed to write %s", env.Event)
	}
	return nil
}

// Decode unmarshals an event payload, logging instead of failing so a bad
// frame never takes the read loop down
func Decode[T any](event string, data json.RawMessage) (T, bool) {
	var v T
	if len(data) == 0 {
		jww.WARN.Printf("%s arrived without payload", event)
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		jww.WARN.Printf("malformed %s payload: %v", event, err)
		return v, false
	}
	return v, true
}
