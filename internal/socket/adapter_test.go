package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/shelfstream/internal/models"
)

// gateway is a minimal stand-in for the stream service socket endpoint
type gateway struct {
	t      *testing.T
	srv    *httptest.Server
	frames chan models.Envelope
	auth   chan string

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newGateway(t *testing.T) *gateway {
	g := &gateway{
		t:      t,
		frames: make(chan models.Envelope, 64),
		auth:   make(chan string, 8),
	}
	upgrader := websocket.Upgrader{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.mu.Lock()
		g.conns = append(g.conns, conn)
		g.mu.Unlock()
		select {
		case g.auth <- r.Header.Get("Authorization"):
		default:
		}
		for {
			var env models.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			g.frames <- env
		}
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *gateway) url() string { return "ws" + strings.TrimPrefix(g.srv.URL, "http") }

func (g *gateway) latest() *websocket.Conn {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.conns) == 0 {
		return nil
	}
	return g.conns[len(g.conns)-1]
}

func (g *gateway) connCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

func (g *gateway) send(event string, payload any) {
	env, err := models.NewEnvelope(event, payload)
	require.NoError(g.t, err)
	require.Eventually(g.t, func() bool { return g.latest() != nil }, 2*time.Second, 5*time.Millisecond)
	require.NoError(g.t, g.latest().WriteJSON(env))
}

func (g *gateway) next() models.Envelope {
	select {
	case env := <-g.frames:
		return env
	case <-time.After(2 * time.Second):
		g.t.Fatal("timed out waiting for a frame")
		return models.Envelope{}
	}
}

func fastBackOff() backoff.BackOff { return backoff.NewConstantBackOff(10 * time.Millisecond) }

func startAdapter(t *testing.T, g *gateway, a *Adapter) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, a.Connected, 2*time.Second, 5*time.Millisecond)
}

func TestAdapter_NilIsNotReady(t *testing.T) {
	var a *Adapter
	assert.NotPanics(t, func() {
		a.JoinRoom(models.RoomGlobal)
		a.LeaveRoom(models.RoomGlobal)
		dispose := a.OnEvent(models.EventNewActivity, func(json.RawMessage) {})
		dispose()
	})
	assert.False(t, a.Connected())
	assert.Nil(t, a.Rooms())
	assert.ErrorIs(t, a.Emit(models.EventUserTyping, nil), ErrNotReady)
	assert.ErrorIs(t, a.Run(context.Background()), ErrNotReady)
}

func TestAdapter_JoinBeforeConnectIsReplayed(t *testing.T) {
	g := newGateway(t)
	a := New(Config{URL: g.url(), Token: "tok", NewBackOff: fastBackOff})
	a.JoinRoom(models.RoomGlobal)
	a.JoinRoom(models.RoomLastActions)

	startAdapter(t, g, a)

	assert.Equal(t, "Bearer tok", <-g.auth)
	got := []string{g.next().Event, g.next().Event}
	assert.ElementsMatch(t, []string{"join:stream:global", "join:stream:last-actions"}, got)
}

func TestAdapter_ReconnectRejoinsWantedRooms(t *testing.T) {
	g := newGateway(t)
	a := New(Config{URL: g.url(), NewBackOff: fastBackOff})

	var connects int
	var mu sync.Mutex
	a.OnEvent(models.EventConnect, func(json.RawMessage) {
		mu.Lock()
		connects++
		mu.Unlock()
	})

	startAdapter(t, g, a)
	a.JoinRoom(models.RoomGlobal)
	a.JoinRoom(models.RoomPersonal)
	a.LeaveRoom(models.RoomPersonal)
	assert.Equal(t, "join:stream:global", g.next().Event)
	assert.Equal(t, "join:stream:personal", g.next().Event)
	assert.Equal(t, "leave:stream:personal", g.next().Event)

	require.Eventually(t, func() bool { return g.connCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, g.latest().Close())
	require.Eventually(t, func() bool { return g.connCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "join:stream:global", g.next().Event, "only rooms still wanted are replayed")
	assert.Equal(t, []string{models.RoomGlobal}, a.Rooms())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connects == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAdapter_IndependentSubscribers(t *testing.T) {
	g := newGateway(t)
	a := New(Config{URL: g.url(), NewBackOff: fastBackOff})

	first := make(chan string, 4)
	second := make(chan string, 4)
	disposeFirst := a.OnEvent(models.EventActivityDeleted, func(data json.RawMessage) {
		ev, ok := Decode[models.ActivityDeleted](models.EventActivityDeleted, data)
		if ok {
			first <- ev.EntityID
		}
	})
	a.OnEvent(models.EventActivityDeleted, func(data json.RawMessage) {
		ev, ok := Decode[models.ActivityDeleted](models.EventActivityDeleted, data)
		if ok {
			second <- ev.EntityID
		}
	})
	assert.Equal(t, 2, a.Subscribers(models.EventActivityDeleted))

	startAdapter(t, g, a)
	g.send(models.EventActivityDeleted, models.ActivityDeleted{EntityID: "c1"})
	assert.Equal(t, "c1", <-first)
	assert.Equal(t, "c1", <-second)

	disposeFirst()
	disposeFirst()
	assert.Equal(t, 1, a.Subscribers(models.EventActivityDeleted))

	g.send(models.EventActivityDeleted, models.ActivityDeleted{EntityID: "c2"})
	assert.Equal(t, "c2", <-second)
	select {
	case id := <-first:
		t.Fatalf("disposed handler still received %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAdapter_EventsDeliveredInOrder(t *testing.T) {
	g := newGateway(t)
	a := New(Config{URL: g.url(), NewBackOff: fastBackOff})
	got := make(chan string, 8)
	a.OnEvent(models.EventNewActivity, func(data json.RawMessage) {
		act, ok := Decode[models.Activity](models.EventNewActivity, data)
		if ok {
			got <- act.ID
		}
	})

	startAdapter(t, g, a)
	for _, id := range []string{"a1", "a2", "a3"} {
		g.send(models.EventNewActivity, models.Activity{ID: id})
	}
	assert.Equal(t, "a1", <-got)
	assert.Equal(t, "a2", <-got)
	assert.Equal(t, "a3", <-got)
}

func TestAdapter_PanickingHandlerKeepsReadLoop(t *testing.T) {
	g := newGateway(t)
	a := New(Config{URL: g.url(), NewBackOff: fastBackOff})
	a.OnEvent(models.EventNewActivity, func(json.RawMessage) { panic("bad handler") })
	got := make(chan string, 4)
	a.OnEvent(models.EventNewActivity, func(data json.RawMessage) {
		if act, ok := Decode[models.Activity](models.EventNewActivity, data); ok {
			got <- act.ID
		}
	})

	startAdapter(t, g, a)
	g.send(models.EventNewActivity, models.Activity{ID: "a1"})
	g.send(models.EventNewActivity, models.Activity{ID: "a2"})
	assert.Equal(t, "a1", <-got)
	assert.Equal(t, "a2", <-got)
	assert.True(t, a.Connected())
	assert.Equal(t, 1, g.connCount(), "no reconnect was needed")
}

func TestAdapter_EmitWhileDisconnected(t *testing.T) {
	a := New(Config{URL: "ws://127.0.0.1:1"})
	err := a.Emit(models.EventUserTyping, models.Typing{ConversationID: "c1"})
	assert.ErrorIs(t, err, ErrNotConnected)

	a.JoinRoom(models.RoomGlobal)
	assert.Equal(t, []string{models.RoomGlobal}, a.Rooms(), "wanted rooms are kept for the next connect")
}

func TestAdapter_EmitSendsPayload(t *testing.T) {
	g := newGateway(t)
	a := New(Config{URL: g.url(), NewBackOff: fastBackOff})
	startAdapter(t, g, a)

	require.NoError(t, a.Emit(models.EventUserTyping, models.Typing{ConversationID: "c1", UserID: "u1", IsTyping: true}))
	env := g.next()
	assert.Equal(t, models.EventUserTyping, env.Event)
	var typing models.Typing
	require.NoError(t, json.Unmarshal(env.Data, &typing))
	assert.Equal(t, models.Typing{ConversationID: "c1", UserID: "u1", IsTyping: true}, typing)
}

func TestAdapter_RunStopsOnBackOffExhausted(t *testing.T) {
	a := New(Config{
		URL:        "ws://127.0.0.1:1/ws",
		NewBackOff: func() backoff.BackOff { return &backoff.StopBackOff{} },
	})
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up")
}

func TestDecode_Malformed(t *testing.T) {
	_, ok := Decode[models.ActivityDeleted]("x", json.RawMessage(`{"entityId":`))
	assert.False(t, ok)
	_, ok = Decode[models.ActivityDeleted]("x", nil)
	assert.False(t, ok)
}
