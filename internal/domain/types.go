package domain

import "time"

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Book struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Genre       string `json:"genre"`
	Description string `json:"description"`
	// AuthorID references the user that uploaded the book.
	AuthorID string `json:"author"`
	// CoverImageURL and FileURL are fully-resolved remote URLs once a
	// record exists, never local paths.
	CoverImageURL string `json:"coverImage"`
	FileURL       string `json:"file"`
	// Pages is extracted from the uploaded PDF when it parses, 0 otherwise.
	Pages     int       `json:"pages,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
