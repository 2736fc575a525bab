package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/anonto42/shelfstream/internal/middleware"
	"github.com/anonto42/shelfstream/internal/models"
	"github.com/anonto42/shelfstream/internal/repositories"
)

// ReactionHandler handles HTTP requests related to reactions
type ReactionHandler struct {
	reactionRepository repositories.ReactionRepository
	activityRepository repositories.ActivityRepository
	hub                Broadcaster
}

// NewReactionHandler creates a new ReactionHandler
func NewReactionHandler(reactionRepo repositories.ReactionRepository, activityRepo repositories.ActivityRepository, b Broadcaster) *ReactionHandler {
	return &ReactionHandler{
		reactionRepository: reactionRepo,
		activityRepository: activityRepo,
		hub:                b,
	}
}

// RegisterReactionRoutes registers reaction routes
func (h *ReactionHandler) RegisterReactionRoutes(g *echo.Group) {
	g.POST("/reactions", h.ToggleReaction)
}

// ToggleReaction adds or removes the caller's emoji and answers with the
// fresh aggregate. Everyone else learns about it through
// stream:reaction-update.
func (h *ReactionHandler) ToggleReaction(c echo.Context) error {
	var req models.ReactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	userID := middleware.UserID(c)
	targetID, target := req.Target()

	added, err := h.reactionRepository.Toggle(ctx, userID, target, targetID, req.Emoji)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	reactions, err := h.reactionRepository.Aggregate(ctx, target, targetID, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	action := "removed"
	if added {
		action = "added"
	}

	if _, err := h.activityRepository.SetReactions(ctx, target, targetID, reactions); err != nil {
		jww.ERROR.Printf("failed to store reactions on activities of %s %s: %v", target, targetID, err)
	}

	update := models.ReactionUpdate{
		EntityID:   targetID,
		EntityType: target,
		Reactions:  reactions,
		Action:     action,
		UserID:     userID,
	}
	switch target {
	case models.TargetComment:
		update.CommentID = targetID
	case models.TargetReview:
		update.ReviewID = targetID
	case models.TargetNews:
		update.NewsID = targetID
	}
	h.hub.Broadcast(models.EventReactionUpdate, update, models.RoomGlobal, models.RoomLastActions)

	return c.JSON(http.StatusOK, models.ReactionResponse{Action: action, Reactions: reactions})
}
