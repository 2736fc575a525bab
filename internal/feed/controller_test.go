package feed

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/shelfstream/internal/fetchcache"
	"github.com/anonto42/shelfstream/internal/models"
	"github.com/anonto42/shelfstream/internal/socket"
)

type fakeLoader struct {
	mu    sync.Mutex
	calls map[string]int
	feeds map[string][]models.Activity
	err   error
}

func (f *fakeLoader) Stream(_ context.Context, feed string) ([]models.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[feed]++
	if f.err != nil {
		return nil, f.err
	}
	return f.feeds[feed], nil
}

func (f *fakeLoader) count(feed string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[feed]
}

type fakeChannel struct {
	rooms    map[string]bool
	log      []string
	handlers map[string]map[int]socket.Handler
	next     int
	live     int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{rooms: map[string]bool{}, handlers: map[string]map[int]socket.Handler{}}
}

func (f *fakeChannel) JoinRoom(room string) {
	f.rooms[room] = true
	f.log = append(f.log, "join:"+room)
}

func (f *fakeChannel) LeaveRoom(room string) {
	delete(f.rooms, room)
	f.log = append(f.log, "leave:"+room)
}

func (f *fakeChannel) OnEvent(event string, fn socket.Handler) func() {
	if f.handlers[event] == nil {
		f.handlers[event] = map[int]socket.Handler{}
	}
	id := f.next
	f.next++
	f.handlers[event][id] = fn
	f.live++
	var once sync.Once
	return func() {
		once.Do(func() {
			delete(f.handlers[event], id)
			f.live--
		})
	}
}

// fire delivers payload to the handlers still subscribed to event
func (f *fakeChannel) fire(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	for _, h := range f.handlers[event] {
		h(data)
	}
}

func (f *fakeChannel) joined() []string {
	var out []string
	for r := range f.rooms {
		out = append(out, r)
	}
	return out
}

type viewer struct{ id string }

func (v viewer) ID() string          { return v.id }
func (v viewer) Authenticated() bool { return v.id != "" }

func setup(id string) (*Controller, *fakeLoader, *fakeChannel, *fetchcache.Store[[]models.Activity]) {
	store := fetchcache.NewStore[[]models.Activity]()
	loader := &fakeLoader{feeds: map[string][]models.Activity{
		"global":       {{ID: "g1", UserID: "u9"}},
		"personal":     {{ID: "p1", UserID: "u1"}},
		"shelves":      {{ID: "s1", UserID: "u3"}},
		"last-actions": {{ID: "l1", UserID: "u9"}},
	}}
	ch := newFakeChannel()
	return NewController(fetchcache.NewFetcher(store), loader, ch, viewer{id}), loader, ch, store
}

func TestPlan(t *testing.T) {
	tr := Plan("", TabGlobal, false)
	assert.Equal(t, Transition{Fetch: true}, tr)

	tr = Plan(TabGlobal, TabPersonal, true)
	assert.Equal(t, []string{models.RoomPersonal}, tr.Join)
	assert.Empty(t, tr.Leave, "always-on rooms are never left on a switch")

	tr = Plan(TabPersonal, TabShelves, true)
	assert.Equal(t, []string{models.RoomShelves}, tr.Join)
	assert.Equal(t, []string{models.RoomPersonal}, tr.Leave)

	tr = Plan(TabShelves, TabLastActions, true)
	assert.Empty(t, tr.Join)
	assert.Equal(t, []string{models.RoomShelves}, tr.Leave)

	tr = Plan(TabGlobal, TabShelves, false)
	assert.True(t, tr.AuthRequired)
	assert.False(t, tr.Fetch)
	assert.Empty(t, tr.Join)
}

func TestMount_AnonymousOnAuthTab(t *testing.T) {
	c, loader, ch, _ := setup("")

	_, err := c.Mount(context.Background(), TabPersonal)
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Zero(t, loader.count("personal"))
	assert.NotContains(t, ch.rooms, models.RoomPersonal)
	assert.ElementsMatch(t, AlwaysOnRooms(), ch.joined())
	assert.Equal(t, 6, ch.live, "always-on feeds stay bound")
	assert.Equal(t, TabPersonal, c.Active())
}

func TestActivate_AuthRequiredKeepsAlwaysOnFeedsLive(t *testing.T) {
	c, loader, ch, _ := setup("")
	_, err := c.Mount(context.Background(), TabGlobal)
	require.NoError(t, err)

	_, err = c.Activate(context.Background(), TabPersonal)
	require.ErrorIs(t, err, ErrAuthRequired)

	ch.fire(t, models.EventNewActivity, models.Activity{ID: "g2", UserID: "u9"})
	ch.fire(t, models.EventLastAction, models.Activity{ID: "l2", UserID: "u9"})

	got, err := c.Activate(context.Background(), TabGlobal)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.count("global"), "fresh cache is served")
	require.Len(t, got, 2)
	assert.Equal(t, "g2", got[0].ID)
	assert.Equal(t, 6, ch.live)
}

func TestUnmount_StopsMergingEvents(t *testing.T) {
	c, _, ch, _ := setup("u1")
	_, err := c.Mount(context.Background(), TabGlobal)
	require.NoError(t, err)
	c.Unmount()

	ch.fire(t, models.EventNewActivity, models.Activity{ID: "a2", UserID: "u9"})
	view, _ := c.View(TabGlobal)
	require.Len(t, view, 1)
	assert.Equal(t, "g1", view[0].ID)
}

func TestMount_InvalidatesGlobalOnly(t *testing.T) {
	c, loader, ch, store := setup("u1")
	store.Set(TabGlobal.Feed().Key(), []models.Activity{{ID: "old"}})
	store.Set(TabPersonal.Feed().Key(), []models.Activity{{ID: "old-p"}})

	got, err := c.Mount(context.Background(), TabGlobal)
	require.NoError(t, err)
	assert.Equal(t, "g1", got[0].ID)
	assert.Equal(t, 1, loader.count("global"))
	assert.ElementsMatch(t, AlwaysOnRooms(), ch.joined())
	assert.Equal(t, 6, ch.live)

	// personal was not the initial tab, so its fresh cache is served as is
	got, err = c.Activate(context.Background(), TabPersonal)
	require.NoError(t, err)
	assert.Equal(t, "old-p", got[0].ID)
	assert.Zero(t, loader.count("personal"))
	assert.Equal(t, 6, ch.live, "handlers are rebound, not stacked")
}

func TestMount_InvalidatesInitialAuthTab(t *testing.T) {
	c, loader, _, store := setup("u1")
	store.Set(TabShelves.Feed().Key(), []models.Activity{{ID: "old-s"}})

	got, err := c.Mount(context.Background(), TabShelves)
	require.NoError(t, err)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, 1, loader.count("shelves"))
}

func TestActivate_SwitchKeepsAlwaysOnRooms(t *testing.T) {
	c, _, ch, _ := setup("u1")
	_, err := c.Mount(context.Background(), TabGlobal)
	require.NoError(t, err)

	_, err = c.Activate(context.Background(), TabPersonal)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{models.RoomGlobal, models.RoomLastActions, models.RoomPersonal}, ch.joined())

	_, err = c.Activate(context.Background(), TabShelves)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{models.RoomGlobal, models.RoomLastActions, models.RoomShelves}, ch.joined())

	_, err = c.Activate(context.Background(), TabLastActions)
	require.NoError(t, err)
	assert.ElementsMatch(t, AlwaysOnRooms(), ch.joined())
	assert.NotContains(t, ch.log, "leave:"+models.RoomGlobal)
}

func TestSetVisible_RefetchesActiveFeed(t *testing.T) {
	c, loader, _, _ := setup("u1")
	_, err := c.Mount(context.Background(), TabGlobal)
	require.NoError(t, err)
	require.Equal(t, 1, loader.count("global"))

	_, err = c.SetVisible(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.count("global"), "hiding does not fetch")

	got, err := c.SetVisible(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.count("global"), "fresh cache is bypassed")
	assert.Equal(t, "g1", got[0].ID)

	_, err = c.SetVisible(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.count("global"), "visible to visible is not a transition")
}

func TestUnmount_ReleasesEverything(t *testing.T) {
	c, _, ch, _ := setup("u1")
	_, err := c.Mount(context.Background(), TabPersonal)
	require.NoError(t, err)
	require.Equal(t, 6, ch.live)

	c.Unmount()
	assert.Zero(t, ch.live)
	assert.Empty(t, ch.joined())

	_, err = c.Activate(context.Background(), TabGlobal)
	assert.Error(t, err)
	c.Unmount()
}

func TestEventsReachTheActiveView(t *testing.T) {
	c, _, ch, _ := setup("u1")
	_, err := c.Mount(context.Background(), TabGlobal)
	require.NoError(t, err)

	ch.fire(t, models.EventNewActivity, models.Activity{ID: "a2", UserID: "u1"})

	view, ok := c.View(TabGlobal)
	require.True(t, ok)
	assert.Equal(t, "a2", view[0].ID)
	_, ok = c.View(TabPersonal)
	assert.False(t, ok, "personal was never fetched")
}

func TestFetchErrorIsWrapped(t *testing.T) {
	c, loader, _, _ := setup("u1")
	loader.err = errors.New("boom")
	_, err := c.Mount(context.Background(), TabGlobal)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "global")
	assert.Contains(t, err.Error(), "boom")
}

func TestParseTab(t *testing.T) {
	tab, ok := ParseTab("last-actions")
	assert.True(t, ok)
	assert.Equal(t, TabLastActions, tab)
	_, ok = ParseTab("trending")
	assert.False(t, ok)
}
