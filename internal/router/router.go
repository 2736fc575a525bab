package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"github.com/anonto42/shelfstream/internal/handlers"
	"github.com/anonto42/shelfstream/internal/hub"
	"github.com/anonto42/shelfstream/internal/middleware"
	"github.com/anonto42/shelfstream/internal/models"
	"github.com/anonto42/shelfstream/internal/repositories"
)

// Deps are the collaborators the routes are built from
type Deps struct {
	Activities repositories.ActivityRepository
	Reactions  repositories.ReactionRepository
	Shelves    repositories.ShelfRepository
	Verifier   middleware.Verifier
	Hub        *hub.Hub
	// Origins accepted on the socket handshake
	Origins []string
}

// Migrate runs the PostgreSQL auto-migrations
func Migrate(pgdb *gorm.DB) error {
	err := pgdb.AutoMigrate(
		&models.ReactionRow{},
		&models.ShelfRow{},
		&models.ShelfBook{},
		&models.ConversationParticipant{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to auto migrate models")
	}
	jww.INFO.Println("PostgreSQL auto-migrations completed for all models.")
	return nil
}

// NewDeps builds the database-backed repositories
func NewDeps(pgdb *gorm.DB, mgDB *mongo.Database, verifier middleware.Verifier, h *hub.Hub, origins []string) Deps {
	return Deps{
		Activities: repositories.NewMongoActivityRepository(mgDB),
		Reactions:  repositories.NewPostgresReactionRepository(pgdb),
		Shelves:    repositories.NewPostgresShelfRepository(pgdb),
		Verifier:   verifier,
		Hub:        h,
		Origins:    origins,
	}
}

// SetupRoutes configures all application routes
func SetupRoutes(e *echo.Echo, d Deps) {
	e.GET("/health", handlers.HealthCheck(d.Hub.Connections))
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "shelfstream"})
	})

	socketHandler := handlers.NewSocketHandler(d.Hub, d.Verifier, d.Origins)
	socketHandler.RegisterSocketRoutes(e)
	jww.INFO.Println("Socket route configured.")

	requireAuth := middleware.Auth(d.Verifier)
	api := e.Group("/api", middleware.OptionalAuth(d.Verifier))

	streamHandler := handlers.NewStreamHandler(d.Activities, d.Shelves, d.Reactions, d.Hub)
	streamHandler.RegisterStreamRoutes(api, requireAuth)
	jww.INFO.Println("Stream routes configured.")

	private := api.Group("", requireAuth)

	reactionHandler := handlers.NewReactionHandler(d.Reactions, d.Activities, d.Hub)
	reactionHandler.RegisterReactionRoutes(private)
	jww.INFO.Println("Reaction routes configured.")

	shelfHandler := handlers.NewShelfHandler(d.Shelves)
	shelfHandler.RegisterShelfRoutes(private)
	jww.INFO.Println("Shelf routes configured.")

	jww.INFO.Println("All routes configured.")
}
