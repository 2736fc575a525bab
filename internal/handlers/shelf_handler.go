package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/shelfstream/internal/middleware"
	"github.com/anonto42/shelfstream/internal/models"
	"github.com/anonto42/shelfstream/internal/repositories"
)

// ShelfHandler handles shelf HTTP requests
type ShelfHandler struct {
	shelfRepository repositories.ShelfRepository
}

// NewShelfHandler creates a new ShelfHandler
func NewShelfHandler(shelfRepo repositories.ShelfRepository) *ShelfHandler {
	return &ShelfHandler{shelfRepository: shelfRepo}
}

// RegisterShelfRoutes registers shelf routes
func (h *ShelfHandler) RegisterShelfRoutes(g *echo.Group) {
	g.GET("/shelves", h.ListShelves)
	g.POST("/shelves", h.CreateShelf)
	g.POST("/shelves/:id/books", h.AddBook)
}

func (h *ShelfHandler) ListShelves(c echo.Context) error {
	shelves, err := h.shelfRepository.ListByUser(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if shelves == nil {
		shelves = []models.Shelf{}
	}
	return c.JSON(http.StatusOK, shelves)
}

func (h *ShelfHandler) CreateShelf(c echo.Context) error {
	var req models.CreateShelfRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	shelf, err := h.shelfRepository.Create(c.Request().Context(), middleware.UserID(c), req.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, shelf)
}

// AddBook puts a book on one of the caller's shelves. Adding a book twice
// is not an error; the shelf comes back unchanged.
func (h *ShelfHandler) AddBook(c echo.Context) error {
	var req models.AddBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	shelf, added, err := h.shelfRepository.AddBook(c.Request().Context(), middleware.UserID(c), c.Param("id"), req.BookID)
	if err != nil {
		return repositoryError(err, "Shelf not found")
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	return c.JSON(status, shelf)
}
