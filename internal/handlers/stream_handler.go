package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/anonto42/shelfstream/internal/hub"
	"github.com/anonto42/shelfstream/internal/middleware"
	"github.com/anonto42/shelfstream/internal/models"
	"github.com/anonto42/shelfstream/internal/repositories"
)

// Broadcaster delivers socket events to rooms
type Broadcaster interface {
	Broadcast(event string, payload any, rooms ...string) int
}

// StreamHandler serves the activity feeds and publishes their changes
type StreamHandler struct {
	activityRepository repositories.ActivityRepository
	shelfRepository    repositories.ShelfRepository
	reactionRepository repositories.ReactionRepository
	hub                Broadcaster
}

// NewStreamHandler creates a new StreamHandler
func NewStreamHandler(activityRepo repositories.ActivityRepository, shelfRepo repositories.ShelfRepository, reactionRepo repositories.ReactionRepository, b Broadcaster) *StreamHandler {
	return &StreamHandler{
		activityRepository: activityRepo,
		shelfRepository:    shelfRepo,
		reactionRepository: reactionRepo,
		hub:                b,
	}
}

// RegisterStreamRoutes registers stream routes on g, which must run
// OptionalAuth. requireAuth guards the routes that need a caller.
func (h *StreamHandler) RegisterStreamRoutes(g *echo.Group, requireAuth echo.MiddlewareFunc) {
	g.GET("/stream/global", h.feed(models.RoomGlobal))
	g.GET("/stream/last-actions", h.feed(models.RoomLastActions))
	g.GET("/stream/personal", h.feed(models.RoomPersonal), requireAuth)
	g.GET("/stream/shelves", h.feed(models.RoomShelves), requireAuth)

	g.POST("/stream/activities", h.PublishActivity, requireAuth)
	g.PUT("/stream/activities/:id", h.UpdateActivity, requireAuth)
	g.DELETE("/stream/entities/:entityId", h.DeleteEntity, requireAuth)
	g.POST("/stream/counters", h.UpdateCounters, requireAuth)
}

func (h *StreamHandler) feed(room string) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
		filter := repositories.ActivityFilter{Feed: room, UserID: middleware.UserID(c), Limit: limit}

		if room == models.RoomShelves {
			bookIDs, err := h.shelfRepository.BookIDsForUser(c.Request().Context(), filter.UserID)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
			filter.BookIDs = bookIDs
		}

		activities, err := h.activityRepository.List(c.Request().Context(), filter)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if activities == nil {
			activities = []models.Activity{}
		}
		if err := h.markViewerReactions(c, activities); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, models.FeedResponse{Activities: activities})
	}
}

type reactionKey struct {
	target models.ReactionTarget
	id     string
}

// reactionKeys lists the parents whose aggregate may be stored on a. It
// follows the rule clients use to apply reaction-update events.
func reactionKeys(a models.Activity) []reactionKey {
	keys := []reactionKey{
		{models.TargetComment, a.EntityID},
		{models.TargetComment, a.ID},
		{models.TargetReview, a.EntityID},
	}
	if a.Type == models.ActivityNews {
		keys = append(keys, reactionKey{models.TargetNews, a.EntityID})
	}
	return keys
}

// markViewerReactions sets userReacted on stored aggregates for the caller.
// Anonymous callers see every flag false.
func (h *StreamHandler) markViewerReactions(c echo.Context, activities []models.Activity) error {
	viewerID := middleware.UserID(c)
	if viewerID == "" {
		return nil
	}
	seen := make(map[string]bool)
	var ids []string
	for _, a := range activities {
		if len(a.Metadata.Reactions()) == 0 {
			continue
		}
		for _, k := range reactionKeys(a) {
			if k.id != "" && !seen[k.id] {
				seen[k.id] = true
				ids = append(ids, k.id)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	rows, err := h.reactionRepository.ViewerReactions(c.Request().Context(), viewerID, ids)
	if err != nil {
		return err
	}
	applyViewerFlags(activities, rows)
	return nil
}

func applyViewerFlags(activities []models.Activity, rows []models.ReactionRow) {
	mine := make(map[reactionKey]map[string]bool)
	for _, row := range rows {
		k := reactionKey{row.TargetType, row.TargetID}
		if mine[k] == nil {
			mine[k] = make(map[string]bool)
		}
		mine[k][row.Emoji] = true
	}
	for i, a := range activities {
		reactions := a.Metadata.Reactions()
		if len(reactions) == 0 {
			continue
		}
		flagged := make([]models.Reaction, len(reactions))
		for j, r := range reactions {
			r.UserReacted = false
			for _, k := range reactionKeys(a) {
				if mine[k][r.Emoji] {
					r.UserReacted = r.Count > 0
					break
				}
			}
			flagged[j] = r
		}
		md := a.Metadata.Clone()
		md["reactions"] = flagged
		activities[i].Metadata = md
	}
}

// PublishActivity stores a new activity and fans it out to every room whose
// feed it belongs to
func (h *StreamHandler) PublishActivity(c echo.Context) error {
	var req models.PublishActivityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	activity := &models.Activity{
		Type:         req.Type,
		EntityID:     req.EntityID,
		UserID:       middleware.UserID(c),
		TargetUserID: req.TargetUserID,
		NewsID:       req.NewsID,
		BookID:       req.BookID,
		Metadata:     req.Metadata,
	}
	if err := h.activityRepository.Create(c.Request().Context(), activity); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	rooms, err := h.roomsFor(c, activity)
	if err != nil {
		// the activity is stored; clients pick it up on their next fetch
		jww.ERROR.Printf("failed to resolve shelf rooms for activity %s: %v", activity.ID, err)
	}
	h.hub.Broadcast(models.EventNewActivity, activity, rooms...)
	h.hub.Broadcast(models.EventLastAction, activity, models.RoomLastActions)

	return c.JSON(http.StatusCreated, activity)
}

func (h *StreamHandler) roomsFor(c echo.Context, a *models.Activity) ([]string, error) {
	rooms := []string{models.RoomGlobal, hub.PersonalRoom(a.UserID)}
	if a.TargetUserID != nil && *a.TargetUserID != a.UserID {
		rooms = append(rooms, hub.PersonalRoom(*a.TargetUserID))
	}
	if a.BookID == nil {
		return rooms, nil
	}
	userIDs, err := h.shelfRepository.UserIDsWithBook(c.Request().Context(), *a.BookID)
	if err != nil {
		return rooms, err
	}
	for _, uid := range userIDs {
		rooms = append(rooms, hub.ShelvesRoom(uid))
	}
	return rooms, nil
}

// UpdateActivity replaces metadata keys of one activity
func (h *StreamHandler) UpdateActivity(c echo.Context) error {
	var req models.UpdateActivityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	id := c.Param("id")
	existing, err := h.activityRepository.GetByID(c.Request().Context(), id)
	if err != nil {
		return repositoryError(err, "Activity not found")
	}
	if !canModify(c, existing.UserID) {
		return echo.NewHTTPError(http.StatusForbidden, "You can only update your own activities")
	}

	updated, err := h.activityRepository.UpdateMetadata(c.Request().Context(), id, req.Metadata)
	if err != nil {
		return repositoryError(err, "Activity not found")
	}
	h.hub.Broadcast(models.EventActivityUpdated, updated, streamRooms(updated)...)
	return c.JSON(http.StatusOK, updated)
}

// DeleteEntity removes every activity about an entity
func (h *StreamHandler) DeleteEntity(c echo.Context) error {
	entityID := c.Param("entityId")
	activities, err := h.activityRepository.FindByEntity(c.Request().Context(), entityID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(activities) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "No activities for this entity")
	}
	// clients drop every entry of the entity, so the caller must be allowed
	// to remove all of them
	for _, a := range activities {
		if !canModify(c, a.UserID) {
			return echo.NewHTTPError(http.StatusForbidden, "You can only delete your own activities")
		}
	}

	deleted, err := h.activityRepository.DeleteByEntity(c.Request().Context(), entityID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	rooms := []string{models.RoomGlobal, models.RoomLastActions}
	for _, a := range activities {
		rooms = append(rooms, streamRooms(&a)...)
	}
	h.hub.Broadcast(models.EventActivityDeleted, models.ActivityDeleted{EntityID: entityID}, rooms...)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "deleted": deleted})
}

// UpdateCounters merges the counters of an entity into its activities
func (h *StreamHandler) UpdateCounters(c echo.Context) error {
	var req models.CounterUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	modified, err := h.activityRepository.MergeCounters(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.hub.Broadcast(models.EventCounterUpdate, req, models.RoomGlobal, models.RoomLastActions)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "modified": modified})
}

// streamRooms lists the rooms that may hold an activity without asking the
// shelf store. Every client sits in the global room, so it is always there.
func streamRooms(a *models.Activity) []string {
	rooms := []string{models.RoomGlobal, models.RoomLastActions, hub.PersonalRoom(a.UserID)}
	if a.TargetUserID != nil {
		rooms = append(rooms, hub.PersonalRoom(*a.TargetUserID))
	}
	return rooms
}

func canModify(c echo.Context, ownerID string) bool {
	claims := middleware.Claims(c)
	if claims == nil {
		return false
	}
	return claims.UserID == ownerID || claims.AccessLevel.CanModerate()
}

func repositoryError(err error, notFound string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, notFound)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
