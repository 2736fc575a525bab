package repositories

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/anonto42/shelfstream/internal/models"
)

// ShelfRepository defines the interface for shelf operations
type ShelfRepository interface {
	ListByUser(ctx context.Context, userID string) ([]models.Shelf, error)
	Create(ctx context.Context, userID, name string) (models.Shelf, error)
	// AddBook puts bookID on a shelf the user owns. added is false when the
	// book was already there.
	AddBook(ctx context.Context, userID, shelfID, bookID string) (shelf models.Shelf, added bool, err error)
	// UserIDsWithBook returns the users that shelved bookID
	UserIDsWithBook(ctx context.Context, bookID string) ([]string, error)
	// BookIDsForUser returns every book on any of the user's shelves
	BookIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// PostgresShelfRepository implements ShelfRepository
type PostgresShelfRepository struct {
	db *gorm.DB
}

func NewPostgresShelfRepository(db *gorm.DB) *PostgresShelfRepository {
	return &PostgresShelfRepository{db: db}
}

func (r *PostgresShelfRepository) ListByUser(ctx context.Context, userID string) ([]models.Shelf, error) {
	var rows []models.ShelfRow
	err := r.db.WithContext(ctx).
		Preload("Books", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	shelves := make([]models.Shelf, len(rows))
	for i := range rows {
		shelves[i] = toShelf(rows[i])
	}
	return shelves, nil
}

func (r *PostgresShelfRepository) Create(ctx context.Context, userID, name string) (models.Shelf, error) {
	row := models.ShelfRow{UserID: userID, Name: name}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Shelf{}, errors.Wrap(err, "failed to create shelf")
	}
	return toShelf(row), nil
}

func (r *PostgresShelfRepository) AddBook(ctx context.Context, userID, shelfID, bookID string) (models.Shelf, bool, error) {
	id, err := strconv.ParseUint(shelfID, 10, 64)
	if err != nil {
		return models.Shelf{}, false, errors.Wrapf(ErrNotFound, "shelf %s", shelfID)
	}

	var row models.ShelfRow
	added := false
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(ErrNotFound, "shelf %s", shelfID)
			}
			return err
		}
		var count int64
		if err := tx.Model(&models.ShelfBook{}).Where("shelf_id = ? AND book_id = ?", row.ID, bookID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			if err := tx.Create(&models.ShelfBook{ShelfID: row.ID, BookID: bookID}).Error; err != nil {
				return err
			}
			added = true
		}
		return tx.Where("shelf_id = ?", row.ID).Order("id ASC").Find(&row.Books).Error
	})
	if err != nil {
		return models.Shelf{}, false, err
	}
	return toShelf(row), added, nil
}

func (r *PostgresShelfRepository) UserIDsWithBook(ctx context.Context, bookID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.ShelfRow{}).
		Distinct("shelves.user_id").
		Joins("JOIN shelf_books ON shelf_books.shelf_id = shelves.id").
		Where("shelf_books.book_id = ?", bookID).
		Pluck("shelves.user_id", &ids).Error
	return ids, err
}

func (r *PostgresShelfRepository) BookIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.ShelfBook{}).
		Distinct("shelf_books.book_id").
		Joins("JOIN shelves ON shelves.id = shelf_books.shelf_id").
		Where("shelves.user_id = ?", userID).
		Pluck("shelf_books.book_id", &ids).Error
	return ids, err
}

func toShelf(row models.ShelfRow) models.Shelf {
	bookIDs := make([]string, 0, len(row.Books))
	for _, b := range row.Books {
		bookIDs = append(bookIDs, b.BookID)
	}
	return models.Shelf{
		ID:        strconv.FormatUint(uint64(row.ID), 10),
		UserID:    row.UserID,
		Name:      row.Name,
		BookIDs:   bookIDs,
		CreatedAt: row.CreatedAt,
	}
}
