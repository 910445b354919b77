package app

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"elib/internal/domain"
	"elib/internal/store"
)

// fakeUploader records remote calls instead of talking to object storage.
type fakeUploader struct {
	mu         sync.Mutex
	uploads    []string
	deletes    []string
	failUpload error
	failDelete error
}

func (f *fakeUploader) Upload(_ context.Context, key string, _ io.Reader, _ int64, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload != nil {
		return "", f.failUpload
	}
	f.uploads = append(f.uploads, key)
	return "https://media.test/elib/" + key, nil
}

func (f *fakeUploader) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		return f.failDelete
	}
	f.deletes = append(f.deletes, key)
	return nil
}

func (f *fakeUploader) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *fakeUploader) {
	t.Helper()
	memStore := store.NewMemoryStore()
	uploader := &fakeUploader{}
	a, err := New(Config{
		Store:         memStore,
		Uploader:      uploader,
		JWTSecret:     "test-secret",
		TokenTTL:      time.Hour,
		UploadTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, memStore, uploader
}

func coverUpload() *Upload {
	content := []byte("fake png bytes")
	return &Upload{
		Name:        "cover.png",
		Size:        int64(len(content)),
		ContentType: "image/png",
		Content:     bytes.NewReader(content),
	}
}

func pdfUpload() *Upload {
	content := []byte("%PDF-1.4 fake pdf body")
	return &Upload{
		Name:        "book.pdf",
		Size:        int64(len(content)),
		ContentType: "application/pdf",
		Content:     bytes.NewReader(content),
	}
}

func mustRegister(t *testing.T, a *App, email string) domain.User {
	t.Helper()
	user, _, err := a.Register("Test User", email, "p4ssword")
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}

func mustCreateBook(t *testing.T, a *App, callerID string) domain.Book {
	t.Helper()
	book, err := a.CreateBook(callerID, BookInput{
		Title:       "The Go Programming Language",
		Genre:       "programming",
		Description: "A tour of Go",
		Cover:       coverUpload(),
		File:        pdfUpload(),
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	return book
}
