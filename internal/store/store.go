// Package store persists user credentials and book records.
package store

import (
	"context"
	"errors"

	"elib/internal/domain"
)

// ErrDuplicateEmail is returned when a user insert violates the unique
// email index. Concurrent registrations race on this index; the store,
// not the application, decides the winner.
var ErrDuplicateEmail = errors.New("email already exists")

// Store defines persistence operations for users and books.
type Store interface {
	// users
	CreateUser(u domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// books
	SaveBook(b domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooks() ([]domain.Book, error)
	DeleteBook(id string) error

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error
}
