package server

import (
	"fmt"
	"net/http"
	"strings"

	"elib/internal/app"
	"elib/internal/domain"
)

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListBooks(w, r)
	case http.MethodPost:
		s.requireUser(w, r, s.handleCreateBook)
	default:
		s.methodNotAllowed(w)
	}
}

// /api/books/{bookId}
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	bookID := strings.TrimPrefix(r.URL.Path, "/api/books/")
	if bookID == "" || strings.Contains(bookID, "/") {
		s.writeError(w, r, domain.NotFound("not found"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleGetBook(w, r, bookID)
	case http.MethodPatch:
		s.requireUser(w, r, func(w http.ResponseWriter, r *http.Request, userID string) {
			s.handleUpdateBook(w, r, bookID, userID)
		})
	case http.MethodDelete:
		s.requireUser(w, r, func(w http.ResponseWriter, r *http.Request, userID string) {
			s.handleDeleteBook(w, r, bookID, userID)
		})
	default:
		s.methodNotAllowed(w)
	}
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.app.ListBooks()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request, bookID string) {
	book, err := s.app.GetBook(bookID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, userID string) {
	in, cleanup, err := s.bookForm(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer cleanup()
	book, err := s.app.CreateBook(userID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":      book.ID,
		"message": "book created successfully",
	})
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, bookID, userID string) {
	in, cleanup, err := s.bookForm(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer cleanup()
	book, err := s.app.UpdateBook(bookID, userID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "book updated successfully",
		"updatedBook": book,
	})
}

// handleDeleteBook sends exactly one terminal response: a 200 with a JSON
// body confirming the delete.
func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, bookID, userID string) {
	if err := s.app.DeleteBook(bookID, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "book deleted successfully"})
}

// bookForm reads the multipart body shared by create and update. The caller
// must invoke cleanup to close the files and release the form's temp files;
// releasing happens whether or not persistence succeeded.
func (s *Server) bookForm(w http.ResponseWriter, r *http.Request) (app.BookInput, func(), error) {
	noop := func() {}
	// Two files plus form fields, with headroom for multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, 2*s.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return app.BookInput{}, noop, domain.Validation("invalid multipart form data")
	}

	cover, err := s.formUpload(r, "coverImage")
	if err != nil {
		releaseForm(r)
		return app.BookInput{}, noop, err
	}
	file, err := s.formUpload(r, "file")
	if err != nil {
		if cover != nil {
			_ = cover.close()
		}
		releaseForm(r)
		return app.BookInput{}, noop, err
	}

	in := app.BookInput{
		Title:       r.FormValue("title"),
		Genre:       r.FormValue("genre"),
		Description: r.FormValue("description"),
	}
	if cover != nil {
		in.Cover = &cover.Upload
	}
	if file != nil {
		in.File = &file.Upload
	}
	cleanup := func() {
		if cover != nil {
			_ = cover.close()
		}
		if file != nil {
			_ = file.close()
		}
		releaseForm(r)
	}
	return in, cleanup, nil
}

type formUpload struct {
	app.Upload
	close func() error
}

// formUpload extracts one uploaded file. A missing field is not an error
// here; create and update decide which files they require.
func (s *Server) formUpload(r *http.Request, field string) (*formUpload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, domain.Validation(fmt.Sprintf("could not read uploaded field %q", field))
	}
	if header.Size > s.maxUploadBytes {
		_ = file.Close()
		return nil, domain.Validation(fmt.Sprintf("file %q exceeds the %d byte upload limit", field, s.maxUploadBytes))
	}
	return &formUpload{
		Upload: app.Upload{
			Name:        header.Filename,
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
			Content:     file,
		},
		close: file.Close,
	}, nil
}

func releaseForm(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
