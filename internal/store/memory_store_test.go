package store

import (
	"errors"
	"testing"

	"elib/internal/domain"
)

func TestMemoryStoreDuplicateEmail(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CreateUser(domain.User{ID: "u1", Email: "a@x.com"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := s.CreateUser(domain.User{ID: "u2", Email: "a@x.com"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestMemoryStoreBookLifecycle(t *testing.T) {
	s := NewMemoryStore()
	for _, id := range []string{"b1", "b2", "b3"} {
		if err := s.SaveBook(domain.Book{ID: id, Title: "t-" + id}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	// Re-saving keeps insertion order stable.
	if err := s.SaveBook(domain.Book{ID: "b1", Title: "updated"}); err != nil {
		t.Fatalf("resave: %v", err)
	}
	books, err := s.ListBooks()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 3 || books[0].ID != "b1" || books[0].Title != "updated" {
		t.Fatalf("unexpected list result: %+v", books)
	}
	if err := s.DeleteBook("b2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.GetBook("b2"); ok {
		t.Fatalf("expected b2 to be gone")
	}
	books, _ = s.ListBooks()
	if len(books) != 2 {
		t.Fatalf("expected 2 books after delete, got %d", len(books))
	}
}
