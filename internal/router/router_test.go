package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/shelfstream/internal/apiclient"
	"github.com/anonto42/shelfstream/internal/fetchcache"
	"github.com/anonto42/shelfstream/internal/hub"
	"github.com/anonto42/shelfstream/internal/middleware"
	"github.com/anonto42/shelfstream/internal/models"
	"github.com/anonto42/shelfstream/internal/reconcile"
	"github.com/anonto42/shelfstream/internal/repositories"
	"github.com/anonto42/shelfstream/internal/socket"
	"github.com/anonto42/shelfstream/validators"
)

const secret = "router-secret"

// memActivities implements the parts of the activity store this test
// touches; anything else panics on the nil embedded interface.
type memActivities struct {
	repositories.ActivityRepository
	mu    sync.Mutex
	items []models.Activity
}

func (m *memActivities) Create(_ context.Context, a *models.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = "a" + time.Now().Format("150405.000000000")
	a.CreatedAt = time.Now().UTC()
	m.items = append([]models.Activity{*a}, m.items...)
	return nil
}

func (m *memActivities) List(context.Context, repositories.ActivityFilter) ([]models.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Activity(nil), m.items...), nil
}

type memShelves struct {
	repositories.ShelfRepository
}

func (memShelves) UserIDsWithBook(context.Context, string) ([]string, error) { return nil, nil }

func signed(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JwtCustomClaims{UserID: userID}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func newServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	h := hub.New(hub.Config{}, nil)
	e := echo.New()
	e.Validator = validators.NewValidator()
	SetupRoutes(e, Deps{
		Activities: &memActivities{},
		Shelves:    memShelves{},
		Verifier:   middleware.NewJWTVerifier(secret),
		Hub:        h,
	})
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return srv, h
}

func TestSetupRoutes_Health(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestSetupRoutes_SocketRejectsBadToken(t *testing.T) {
	srv, _ := newServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// A published activity reaches a connected client's cached feeds through
// the hub and the reconciler.
func TestSetupRoutes_PublishReachesSubscribedClient(t *testing.T) {
	srv, h := newServer(t)
	tok := signed(t, "u1")

	store := fetchcache.NewStore[[]models.Activity]()
	store.Set(reconcile.FeedGlobal.Key(), []models.Activity{})
	store.Set(reconcile.FeedPersonal.Key(), []models.Activity{})
	rec := reconcile.New(store, func() string { return "u1" })

	adapter := socket.New(socket.Config{URL: wsURL(srv), Token: tok})
	dispose := rec.Bind(adapter)
	defer dispose()
	adapter.JoinRoom(models.RoomGlobal)
	adapter.JoinRoom(models.RoomPersonal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = adapter.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.Members(models.RoomGlobal) == 1 && h.Members(hub.PersonalRoom("u1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	api, err := apiclient.New(srv.URL, apiclient.StaticToken(tok))
	require.NoError(t, err)
	created, err := api.PublishActivity(ctx, models.PublishActivityRequest{
		Type:     models.ActivityNews,
		EntityID: "n1",
		Metadata: models.Metadata{"title": "Launch"},
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", created.UserID)

	for _, f := range []reconcile.Feed{reconcile.FeedGlobal, reconcile.FeedPersonal} {
		require.Eventually(t, func() bool {
			view, _ := store.Get(f.Key())
			return len(view) == 1 && view[0].ID == created.ID
		}, 2*time.Second, 10*time.Millisecond, "feed %s", f)
	}

	feed, err := api.Stream(ctx, "global")
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, created.ID, feed[0].ID)
}
