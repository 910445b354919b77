// Package media hosts binary assets (book covers and PDFs) on an external
// object store and hands back durable public URLs.
package media

import (
	"context"
	"io"
)

// Folders the service stores assets under. Covers are image resources,
// book files are raw resources.
const (
	CoverFolder = "books-covers"
	FileFolder  = "books-pdfs"
)

// Uploader stores assets under an object key and returns a public URL for
// each. The key doubles as the deletable identifier.
type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}
