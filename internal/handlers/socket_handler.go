package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/anonto42/shelfstream/internal/middleware"
)

// SocketServer runs an upgraded connection until it closes
type SocketServer interface {
	Serve(ctx context.Context, conn *websocket.Conn, userID string)
}

// SocketHandler upgrades /ws requests and hands them to the hub
type SocketHandler struct {
	hub      SocketServer
	verifier middleware.Verifier
	upgrader websocket.Upgrader
}

// NewSocketHandler creates a SocketHandler. An empty origins list or "*"
// accepts any origin.
func NewSocketHandler(h SocketServer, verifier middleware.Verifier, origins []string) *SocketHandler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &SocketHandler{
		hub:      h,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
			},
		},
	}
}

// RegisterSocketRoutes registers the socket endpoint
func (h *SocketHandler) RegisterSocketRoutes(e *echo.Echo) {
	e.GET("/ws", h.Connect)
}

// Connect authenticates the handshake from the Authorization header or a
// token query parameter, then upgrades. Anonymous connections are allowed
// and may only join public rooms.
func (h *SocketHandler) Connect(c echo.Context) error {
	token, err := middleware.BearerToken(c.Request())
	if errors.Is(err, middleware.ErrNoToken) {
		token, err = c.QueryParam("token"), nil
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}

	userID := ""
	if token != "" {
		claims, err := h.verifier.Verify(c.Request().Context(), token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}
		userID = claims.UserID
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		jww.WARN.Printf("websocket upgrade failed: %v", err)
		return nil
	}
	h.hub.Serve(c.Request().Context(), conn, userID)
	return nil
}
