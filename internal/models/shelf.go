package models

import "time"

// Shelf is a user-owned, insertion-ordered list of books
type Shelf struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	BookIDs   []string  `json:"bookIds"`
	CreatedAt time.Time `json:"createdAt"`
}

// Contains reports whether bookID is already on the shelf
func (s Shelf) Contains(bookID string) bool {
	for _, id := range s.BookIDs {
		if id == bookID {
			return true
		}
	}
	return false
}

// ShelfRow is the PostgreSQL row for a shelf
type ShelfRow struct {
	ID        uint        `json:"id" gorm:"primaryKey"`
	UserID    string      `json:"user_id" gorm:"size:64;index"`
	Name      string      `json:"name" gorm:"size:120"`
	Books     []ShelfBook `json:"books" gorm:"foreignKey:ShelfID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time   `json:"created_at"`
}

// TableName keeps the table name stable across renames of the Go type
func (ShelfRow) TableName() string { return "shelves" }

// ShelfBook links a book to a shelf; ID order is insertion order
type ShelfBook struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ShelfID   uint      `json:"shelf_id" gorm:"index;uniqueIndex:idx_shelf_book"`
	BookID    string    `json:"book_id" gorm:"size:64;index;uniqueIndex:idx_shelf_book"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateShelfRequest defines the request body for creating a shelf
type CreateShelfRequest struct {
	Name string `json:"name" validate:"required,min=1,max=120"`
}

// AddBookRequest defines the request body for adding a book to a shelf
type AddBookRequest struct {
	BookID string `json:"bookId" validate:"required"`
}
