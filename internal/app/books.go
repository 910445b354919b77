package app

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"elib/internal/domain"
	"elib/internal/media"
)

// Upload is one file received from a multipart form. Content must support
// random access so the PDF check can rewind without buffering the file;
// multipart form files satisfy this.
type Upload struct {
	Name        string
	Size        int64
	ContentType string
	Content     io.ReaderAt
}

// BookInput carries the fields of a create request. Cover and File are
// required on create and optional on update.
type BookInput struct {
	Title       string
	Genre       string
	Description string
	Cover       *Upload
	File        *Upload
}

// CreateBook uploads the cover image and the book file and persists the
// record with callerID as the author. The two remote uploads run
// concurrently, each under its own timeout. Remote assets from a partially
// failed create are not rolled back.
func (a *App) CreateBook(callerID string, in BookInput) (domain.Book, error) {
	if in.Cover == nil || in.File == nil {
		return domain.Book{}, domain.Validation("cover image and book file are required")
	}
	title := strings.TrimSpace(in.Title)
	genre := strings.TrimSpace(in.Genre)
	description := strings.TrimSpace(in.Description)
	if title == "" || genre == "" || description == "" {
		return domain.Book{}, domain.Validation("all fields are required")
	}
	coverFormat, err := imageFormat(in.Cover.ContentType)
	if err != nil {
		return domain.Book{}, err
	}
	if !isPDF(in.File) {
		return domain.Book{}, domain.Validation("book file must be a PDF")
	}

	id := uuid.NewString()
	coverKey := media.CoverFolder + "/" + id + "." + coverFormat
	fileKey := media.FileFolder + "/" + id + ".pdf"

	var coverURL, fileURL string
	g, groupCtx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		var err error
		coverURL, err = a.upload(groupCtx, coverKey, in.Cover, in.Cover.ContentType)
		return err
	})
	g.Go(func() error {
		var err error
		fileURL, err = a.upload(groupCtx, fileKey, in.File, "application/pdf")
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Book{}, err
	}

	now := time.Now().UTC()
	book := domain.Book{
		ID:            id,
		Title:         title,
		Genre:         genre,
		Description:   description,
		AuthorID:      callerID,
		CoverImageURL: coverURL,
		FileURL:       fileURL,
		Pages:         pageCount(in.File),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, domain.Upstream("error while creating book", err)
	}
	return book, nil
}

// UpdateBook merges the supplied fields into an existing book. Only the
// author may update; files are re-uploaded only when supplied, each one
// replacing the stored URL (the previous remote asset is left behind).
func (a *App) UpdateBook(bookID, callerID string, in BookInput) (domain.Book, error) {
	book, err := a.GetBook(bookID)
	if err != nil {
		return domain.Book{}, err
	}
	if book.AuthorID != callerID {
		return domain.Book{}, domain.Authorization("you cannot update another user's book")
	}

	if title := strings.TrimSpace(in.Title); title != "" {
		book.Title = title
	}
	if genre := strings.TrimSpace(in.Genre); genre != "" {
		book.Genre = genre
	}
	if description := strings.TrimSpace(in.Description); description != "" {
		book.Description = description
	}

	if in.Cover != nil {
		format, err := imageFormat(in.Cover.ContentType)
		if err != nil {
			return domain.Book{}, err
		}
		key := media.CoverFolder + "/" + uuid.NewString() + "." + format
		coverURL, err := a.upload(context.Background(), key, in.Cover, in.Cover.ContentType)
		if err != nil {
			return domain.Book{}, err
		}
		book.CoverImageURL = coverURL
	}
	if in.File != nil {
		if !isPDF(in.File) {
			return domain.Book{}, domain.Validation("book file must be a PDF")
		}
		key := media.FileFolder + "/" + uuid.NewString() + ".pdf"
		fileURL, err := a.upload(context.Background(), key, in.File, "application/pdf")
		if err != nil {
			return domain.Book{}, err
		}
		book.FileURL = fileURL
		book.Pages = pageCount(in.File)
	}

	book.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, domain.Upstream("error while updating book", err)
	}
	return book, nil
}

// ListBooks returns all books. Unauthenticated, no pagination.
func (a *App) ListBooks() ([]domain.Book, error) {
	books, err := a.store.ListBooks()
	if err != nil {
		return nil, domain.Upstream("error while listing books", err)
	}
	return books, nil
}

// GetBook returns one book. A malformed id fails validation before the
// store is touched.
func (a *App) GetBook(id string) (domain.Book, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Book{}, domain.Validation("invalid book id")
	}
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, domain.Upstream("error while getting book", err)
	}
	if !ok {
		return domain.Book{}, domain.NotFound("book not found")
	}
	return book, nil
}

// DeleteBook removes the remote cover and file assets, then the record.
// The object keys are derived from the stored URLs.
func (a *App) DeleteBook(bookID, callerID string) error {
	book, err := a.GetBook(bookID)
	if err != nil {
		return err
	}
	if book.AuthorID != callerID {
		return domain.Authorization("you cannot delete another user's book")
	}

	coverKey, err := objectKeyFromURL(book.CoverImageURL)
	if err != nil {
		return domain.Upstream("error resolving cover asset", err)
	}
	fileKey, err := objectKeyFromURL(book.FileURL)
	if err != nil {
		return domain.Upstream("error resolving book file asset", err)
	}
	if err := a.remove(coverKey); err != nil {
		return err
	}
	if err := a.remove(fileKey); err != nil {
		return err
	}

	if err := a.store.DeleteBook(book.ID); err != nil {
		return domain.Upstream("error while deleting book", err)
	}
	return nil
}

func (a *App) upload(ctx context.Context, key string, u *Upload, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.uploadTimeout)
	defer cancel()
	uploadedURL, err := a.media.Upload(ctx, key, io.NewSectionReader(u.Content, 0, u.Size), u.Size, contentType)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", domain.Timeout("media upload timed out", err)
		}
		return "", domain.Upstream("error uploading files to media storage", err)
	}
	return uploadedURL, nil
}

func (a *App) remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.uploadTimeout)
	defer cancel()
	if err := a.media.Delete(ctx, key); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Timeout("media delete timed out", err)
		}
		return domain.Upstream("error deleting media assets", err)
	}
	return nil
}

// imageFormat derives the storage format from the declared media subtype,
// e.g. "image/png" -> "png".
func imageFormat(contentType string) (string, error) {
	mediaType := strings.TrimSpace(strings.ToLower(contentType))
	if semi := strings.Index(mediaType, ";"); semi >= 0 {
		mediaType = strings.TrimSpace(mediaType[:semi])
	}
	subtype, ok := strings.CutPrefix(mediaType, "image/")
	if !ok || subtype == "" {
		return "", domain.Validation("cover image must be an image file")
	}
	return subtype, nil
}

// isPDF checks the file magic. The asset itself is stored as opaque bytes.
func isPDF(u *Upload) bool {
	var magic [5]byte
	if _, err := u.Content.ReadAt(magic[:], 0); err != nil {
		return false
	}
	return string(magic[:]) == "%PDF-"
}

// pageCount extracts the PDF page count, best-effort. A file that does not
// parse is still accepted as a raw resource.
func pageCount(u *Upload) (pages int) {
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()
	reader, err := pdf.NewReader(u.Content, u.Size)
	if err != nil {
		return 0
	}
	return reader.NumPage()
}

// objectKeyFromURL recovers the deletable identifier (folder + basename)
// from a stored asset URL.
func objectKeyFromURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) < 2 {
		return "", errors.New("asset URL has no folder component: " + rawURL)
	}
	return segments[len(segments)-2] + "/" + segments[len(segments)-1], nil
}
