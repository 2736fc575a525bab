package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/shelfstream/internal/models"
)

func newTestHub(t *testing.T, cfg Config) (*Hub, func(user string) *websocket.Conn) {
	t.Helper()
	h := New(cfg, nil)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Serve(r.Context(), conn, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)

	dial := func(user string) *websocket.Conn {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}
	return h, dial
}

// participants maps a conversation to its users
type participants map[string][]string

func (p participants) IsParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	for _, u := range p[conversationID] {
		if u == userID {
			return true, nil
		}
	}
	return false, nil
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	env, err := models.NewEnvelope(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

func read(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env models.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func waitMembers(t *testing.T, h *Hub, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Members(room) == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_JoinAndBroadcast(t *testing.T) {
	h, dial := newTestHub(t, Config{})
	conn := dial("")
	send(t, conn, models.JoinEvent(models.RoomGlobal), nil)
	waitMembers(t, h, models.RoomGlobal, 1)

	n := h.Broadcast(models.EventActivityDeleted, models.ActivityDeleted{EntityID: "e1"}, models.RoomGlobal)
	assert.Equal(t, 1, n)

	env := read(t, conn)
	assert.Equal(t, models.EventActivityDeleted, env.Event)
	var ev models.ActivityDeleted
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, "e1", ev.EntityID)
}

func TestHub_OneFramePerConnectionAcrossRooms(t *testing.T) {
	h, dial := newTestHub(t, Config{})
	conn := dial("u1")
	send(t, conn, models.JoinEvent(models.RoomGlobal), nil)
	send(t, conn, models.JoinEvent(models.RoomPersonal), nil)
	waitMembers(t, h, PersonalRoom("u1"), 1)

	n := h.Broadcast(models.EventLastAction, map[string]string{"id": "a1"}, models.RoomGlobal, PersonalRoom("u1"))
	assert.Equal(t, 1, n)
}

func TestHub_PersonalRoomsArePerUser(t *testing.T) {
	h, dial := newTestHub(t, Config{})
	alice := dial("alice")
	bob := dial("bob")
	send(t, alice, models.JoinEvent(models.RoomPersonal), nil)
	send(t, bob, models.JoinEvent(models.RoomShelves), nil)
	waitMembers(t, h, PersonalRoom("alice"), 1)
	waitMembers(t, h, ShelvesRoom("bob"), 1)

	assert.Zero(t, h.Members(models.RoomPersonal), "the shared name is never a room")
	assert.Equal(t, 0, h.Broadcast(models.EventNewActivity, nil, PersonalRoom("bob")))
}

func TestHub_AnonymousCannotJoinPrivateRooms(t *testing.T) {
	h, dial := newTestHub(t, Config{})
	conn := dial("")
	send(t, conn, models.JoinEvent(models.RoomPersonal), nil)

	env := read(t, conn)
	assert.Equal(t, models.EventError, env.Event)
	assert.Zero(t, h.Members(PersonalRoom("")))
}

func TestHub_Leave(t *testing.T) {
	h, dial := newTestHub(t, Config{})
	conn := dial("u1")
	send(t, conn, models.JoinEvent(models.RoomShelves), nil)
	waitMembers(t, h, ShelvesRoom("u1"), 1)
	send(t, conn, models.LeaveEvent(models.RoomShelves), nil)
	waitMembers(t, h, ShelvesRoom("u1"), 0)
}

func TestHub_TypingRelay(t *testing.T) {
	h, dial := newTestHub(t, Config{Participants: participants{"c1": {"alice", "bob"}}})
	alice := dial("alice")
	bob := dial("bob")
	room := ConversationRoom("c1")
	send(t, alice, models.JoinEvent(room), nil)
	send(t, bob, models.JoinEvent(room), nil)
	waitMembers(t, h, room, 2)

	// the sender id comes from the connection, not the frame
	send(t, alice, models.EventUserTyping, models.Typing{ConversationID: "c1", UserID: "mallory", IsTyping: true})

	env := read(t, bob)
	assert.Equal(t, models.EventUserTyping, env.Event)
	var ev models.Typing
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, models.Typing{ConversationID: "c1", UserID: "alice", IsTyping: true}, ev)

	// the sender does not hear itself
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var echo models.Envelope
	assert.Error(t, alice.ReadJSON(&echo))
}

func TestHub_NonParticipantCannotJoinConversation(t *testing.T) {
	h, dial := newTestHub(t, Config{Participants: participants{"c1": {"alice", "bob"}}})
	alice := dial("alice")
	mallory := dial("mallory")
	room := ConversationRoom("c1")
	send(t, alice, models.JoinEvent(room), nil)
	waitMembers(t, h, room, 1)

	send(t, mallory, models.JoinEvent(room), nil)
	env := read(t, mallory)
	assert.Equal(t, models.EventError, env.Event)
	assert.Equal(t, 1, h.Members(room))

	// typing into a conversation it could not join reaches nobody
	send(t, mallory, models.EventUserTyping, models.Typing{ConversationID: "c1", IsTyping: true})
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var got models.Envelope
	assert.Error(t, alice.ReadJSON(&got))
}

func TestHub_RateLimit(t *testing.T) {
	h, dial := newTestHub(t, Config{RPS: 0.001, Burst: 1})
	conn := dial("u1")
	send(t, conn, models.JoinEvent(models.RoomGlobal), nil)
	send(t, conn, models.JoinEvent(models.RoomLastActions), nil)
	waitMembers(t, h, models.RoomGlobal, 1)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, h.Members(models.RoomLastActions), "second frame is over the burst")
}

func TestHub_DisconnectCleansUp(t *testing.T) {
	h, dial := newTestHub(t, Config{})
	conn := dial("u1")
	send(t, conn, models.JoinEvent(models.RoomGlobal), nil)
	waitMembers(t, h, models.RoomGlobal, 1)
	require.Equal(t, 1, h.Connections())

	require.NoError(t, conn.Close())
	waitMembers(t, h, models.RoomGlobal, 0)
	require.Eventually(t, func() bool { return h.Connections() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestResolve(t *testing.T) {
	h := New(Config{Participants: participants{"c1": {"u1"}}}, nil)
	ctx := context.Background()
	anon := &client{ctx: ctx}
	authed := &client{ctx: ctx, userID: "u1"}

	room, ok := h.resolve(anon, models.RoomLastActions)
	assert.True(t, ok)
	assert.Equal(t, models.RoomLastActions, room)

	_, ok = h.resolve(anon, ConversationRoom("c1"))
	assert.False(t, ok)
	_, ok = h.resolve(authed, "conversation:")
	assert.False(t, ok)
	room, ok = h.resolve(authed, ConversationRoom("c1"))
	assert.True(t, ok)
	assert.Equal(t, "conversation:c1", room)
	_, ok = h.resolve(authed, ConversationRoom("c2"))
	assert.False(t, ok)
	_, ok = New(Config{}, nil).resolve(authed, ConversationRoom("c1"))
	assert.False(t, ok, "no participant source, no conversation rooms")
	_, ok = h.resolve(authed, "stream:unknown")
	assert.False(t, ok)

	room, ok = h.resolve(authed, models.RoomShelves)
	assert.True(t, ok)
	assert.Equal(t, "stream:shelves:u1", room)
}
