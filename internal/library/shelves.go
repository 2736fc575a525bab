package library

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/anonto42/shelfstream/internal/models"
)

// ErrUnknownShelf is returned for a shelf id that is not among the viewer's
// loaded shelves
var ErrUnknownShelf = errors.New("unknown shelf")

// ShelfAPI is the part of the REST client shelves use
type ShelfAPI interface {
	Shelves(ctx context.Context) ([]models.Shelf, error)
	CreateShelf(ctx context.Context, name string) (models.Shelf, error)
	AddBookToShelf(ctx context.Context, shelfID, bookID string) (models.Shelf, error)
}

// Shelves is the viewer's shelf list
type Shelves struct {
	api ShelfAPI

	mu      sync.Mutex
	shelves []models.Shelf
}

// NewShelves creates an empty shelf list; call Load before use
func NewShelves(api ShelfAPI) *Shelves {
	return &Shelves{api: api}
}

// Load fetches the viewer's shelves
func (s *Shelves) Load(ctx context.Context) ([]models.Shelf, error) {
	shelves, err := s.api.Shelves(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load shelves")
	}
	s.mu.Lock()
	s.shelves = shelves
	s.mu.Unlock()
	return shelves, nil
}

// List returns the loaded shelves
func (s *Shelves) List() []models.Shelf {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shelves
}

// Create adds a new shelf
func (s *Shelves) Create(ctx context.Context, name string) (models.Shelf, error) {
	shelf, err := s.api.CreateShelf(ctx, name)
	if err != nil {
		return models.Shelf{}, errors.Wrap(err, "failed to create shelf")
	}
	s.mu.Lock()
	s.shelves = append(append([]models.Shelf(nil), s.shelves...), shelf)
	s.mu.Unlock()
	return shelf, nil
}

// AddBook puts bookID on shelfID. A book already on the shelf is left alone
// without asking the server and added reports false. The book's shelf count
// is the server's to maintain.
func (s *Shelves) AddBook(ctx context.Context, shelfID, bookID string) (added bool, err error) {
	s.mu.Lock()
	idx := s.indexLocked(shelfID)
	if idx < 0 {
		s.mu.Unlock()
		return false, errors.Wrap(ErrUnknownShelf, shelfID)
	}
	if s.shelves[idx].Contains(bookID) {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	if _, err := s.api.AddBookToShelf(ctx, shelfID, bookID); err != nil {
		return false, errors.Wrapf(err, "failed to add book %s to shelf %s", bookID, shelfID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx = s.indexLocked(shelfID)
	if idx < 0 || s.shelves[idx].Contains(bookID) {
		return true, nil
	}
	shelves := append([]models.Shelf(nil), s.shelves...)
	shelf := shelves[idx]
	shelf.BookIDs = append(append([]string(nil), shelf.BookIDs...), bookID)
	shelves[idx] = shelf
	s.shelves = shelves
	return true, nil
}

func (s *Shelves) indexLocked(shelfID string) int {
	for i := range s.shelves {
		if s.shelves[i].ID == shelfID {
			return i
		}
	}
	return -1
}
