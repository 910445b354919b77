package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"elib/internal/app"
	"elib/internal/ratelimit"
	"elib/internal/store"
)

type fakeUploader struct {
	mu      sync.Mutex
	uploads []string
	deletes []string
}

func (f *fakeUploader) Upload(_ context.Context, key string, _ io.Reader, _ int64, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, key)
	return "https://media.test/elib/" + key, nil
}

func (f *fakeUploader) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	return nil
}

func (f *fakeUploader) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func (f *fakeUploader) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deletes)
}

func newTestServer(t *testing.T, mutate func(*Config)) (*httptest.Server, *fakeUploader) {
	t.Helper()
	uploader := &fakeUploader{}
	appCore, err := app.New(app.Config{
		Store:         store.NewMemoryStore(),
		Uploader:      uploader,
		JWTSecret:     "test-secret",
		TokenTTL:      time.Hour,
		UploadTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg := Config{App: appCore, Development: true}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := httptest.NewServer(New(cfg).Router())
	t.Cleanup(srv.Close)
	return srv, uploader
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func registerUser(t *testing.T, baseURL, email string) (id, token string) {
	t.Helper()
	resp := postJSON(t, baseURL+"/api/users/register", map[string]string{
		"name": "A", "email": email, "password": "p4ssword",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register expected 201, got %d", resp.StatusCode)
	}
	var body struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	}
	decodeBody(t, resp, &body)
	if body.ID == "" || body.Token == "" {
		t.Fatalf("register response missing id or token: %+v", body)
	}
	return body.ID, body.Token
}

type filePart struct {
	filename    string
	contentType string
	content     []byte
}

func bookRequest(t *testing.T, method, url, token string, fields map[string]string, files map[string]filePart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for field, part := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+part.filename+`"`)
		header.Set("Content-Type", part.contentType)
		pw, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := pw.Write(part.content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func defaultBookFiles() map[string]filePart {
	return map[string]filePart{
		"coverImage": {filename: "cover.png", contentType: "image/png", content: []byte("png bytes")},
		"file":       {filename: "book.pdf", contentType: "application/pdf", content: []byte("%PDF-1.4 body")},
	}
}

func defaultBookFields() map[string]string {
	return map[string]string{"title": "T", "genre": "G", "description": "D"}
}

func createBook(t *testing.T, baseURL, token string) string {
	t.Helper()
	req := bookRequest(t, http.MethodPost, baseURL+"/api/books", token, defaultBookFields(), defaultBookFiles())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create book expected 201, got %d", resp.StatusCode)
	}
	var body struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &body)
	if body.ID == "" {
		t.Fatalf("create book response missing id")
	}
	return body.ID
}

func TestWelcomeRoute(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get /: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if !strings.Contains(body["message"], "E-Lib") {
		t.Fatalf("unexpected welcome message %q", body["message"])
	}
}

func TestRegisterThenDuplicate(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	registerUser(t, srv.URL, "a@x.com")

	resp := postJSON(t, srv.URL+"/api/users/register", map[string]string{
		"name": "A", "email": "a@x.com", "password": "p4ssword",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate register expected 400, got %d", resp.StatusCode)
	}
	var body struct {
		Message string `json:"message"`
	}
	decodeBody(t, resp, &body)
	if body.Message == "" {
		t.Fatalf("expected error message in body")
	}
}

func TestLoginStatusCodes(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	registerUser(t, srv.URL, "a@x.com")

	resp := postJSON(t, srv.URL+"/api/users/login", map[string]string{
		"email": "a@x.com", "password": "p4ssword",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login expected 200, got %d", resp.StatusCode)
	}
	var ok struct {
		AccessToken string `json:"accessToken"`
	}
	decodeBody(t, resp, &ok)
	if ok.AccessToken == "" {
		t.Fatalf("expected accessToken in login response")
	}

	resp = postJSON(t, srv.URL+"/api/users/login", map[string]string{
		"email": "a@x.com", "password": "wrong",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password expected 401, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/users/login", map[string]string{
		"email": "nobody@x.com", "password": "p",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown email expected 404, got %d", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv, uploader := newTestServer(t, nil)

	req := bookRequest(t, http.MethodPost, srv.URL+"/api/books", "", defaultBookFields(), defaultBookFiles())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token expected 401, got %d", resp.StatusCode)
	}

	req = bookRequest(t, http.MethodPost, srv.URL+"/api/books", "garbage-token", defaultBookFields(), defaultBookFiles())
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("malformed token expected 401, got %d", resp.StatusCode)
	}

	if uploader.uploadCount() != 0 {
		t.Fatalf("rejected requests must not upload, got %d uploads", uploader.uploadCount())
	}
}

func TestCreateListGetBook(t *testing.T) {
	srv, uploader := newTestServer(t, nil)
	userID, token := registerUser(t, srv.URL, "a@x.com")
	bookID := createBook(t, srv.URL, token)

	if uploader.uploadCount() != 2 {
		t.Fatalf("expected two uploads, got %d", uploader.uploadCount())
	}

	// Listing is public.
	resp, err := http.Get(srv.URL + "/api/books")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var books []map[string]any
	decodeBody(t, resp, &books)
	if len(books) != 1 {
		t.Fatalf("expected one book, got %d", len(books))
	}
	if books[0]["author"] != userID {
		t.Fatalf("expected author %q, got %v", userID, books[0]["author"])
	}

	// So is fetching a single record.
	resp, err = http.Get(srv.URL + "/api/books/" + bookID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var book map[string]any
	decodeBody(t, resp, &book)
	if book["id"] != bookID {
		t.Fatalf("expected id %q, got %v", bookID, book["id"])
	}
	cover, _ := book["coverImage"].(string)
	if !strings.HasPrefix(cover, "https://") {
		t.Fatalf("cover must be a resolved remote URL, got %q", cover)
	}
}

func TestGetBookMalformedID(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/api/books/not-a-uuid")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed id expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateBookMissingFile(t *testing.T) {
	srv, uploader := newTestServer(t, nil)
	_, token := registerUser(t, srv.URL, "a@x.com")

	files := map[string]filePart{
		"coverImage": {filename: "cover.png", contentType: "image/png", content: []byte("png bytes")},
	}
	req := bookRequest(t, http.MethodPost, srv.URL+"/api/books", token, defaultBookFields(), files)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing book file expected 400, got %d", resp.StatusCode)
	}
	if uploader.uploadCount() != 0 {
		t.Fatalf("expected zero uploads, got %d", uploader.uploadCount())
	}
}

func TestCreateBookOverSizeLimit(t *testing.T) {
	srv, uploader := newTestServer(t, func(cfg *Config) {
		cfg.MaxUploadBytes = 64
	})
	_, token := registerUser(t, srv.URL, "a@x.com")

	files := defaultBookFiles()
	files["file"] = filePart{
		filename:    "big.pdf",
		contentType: "application/pdf",
		content:     append([]byte("%PDF-1.4 "), bytes.Repeat([]byte("x"), 128)...),
	}
	req := bookRequest(t, http.MethodPost, srv.URL+"/api/books", token, defaultBookFields(), files)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("oversize file expected 400, got %d", resp.StatusCode)
	}
	if uploader.uploadCount() != 0 {
		t.Fatalf("expected zero uploads, got %d", uploader.uploadCount())
	}
}

func TestUpdateBookByNonAuthor(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	_, authorToken := registerUser(t, srv.URL, "author@x.com")
	_, otherToken := registerUser(t, srv.URL, "other@x.com")
	bookID := createBook(t, srv.URL, authorToken)

	req := bookRequest(t, http.MethodPatch, srv.URL+"/api/books/"+bookID, otherToken,
		map[string]string{"title": "hijacked"}, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-author update expected 403, got %d", resp.StatusCode)
	}

	// Record unchanged.
	resp, err = http.Get(srv.URL + "/api/books/" + bookID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var book map[string]any
	decodeBody(t, resp, &book)
	if book["title"] != "T" {
		t.Fatalf("title must be unchanged, got %v", book["title"])
	}
}

func TestUpdateBookMergesAndReturnsRecord(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	_, token := registerUser(t, srv.URL, "author@x.com")
	bookID := createBook(t, srv.URL, token)

	req := bookRequest(t, http.MethodPatch, srv.URL+"/api/books/"+bookID, token,
		map[string]string{"title": "Renamed"}, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Message     string         `json:"message"`
		UpdatedBook map[string]any `json:"updatedBook"`
	}
	decodeBody(t, resp, &body)
	if body.UpdatedBook["title"] != "Renamed" {
		t.Fatalf("expected updated title, got %v", body.UpdatedBook["title"])
	}
	if body.UpdatedBook["genre"] != "G" {
		t.Fatalf("omitted fields must keep prior values, got %v", body.UpdatedBook["genre"])
	}
}

func TestDeleteBookSingleResponse(t *testing.T) {
	srv, uploader := newTestServer(t, nil)
	_, authorToken := registerUser(t, srv.URL, "author@x.com")
	_, otherToken := registerUser(t, srv.URL, "other@x.com")
	bookID := createBook(t, srv.URL, authorToken)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/books/"+bookID, nil)
	req.Header.Set("Authorization", "Bearer "+otherToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-author delete expected 403, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/api/books/"+bookID, nil)
	req.Header.Set("Authorization", "Bearer "+authorToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Message string `json:"message"`
	}
	decodeBody(t, resp, &body)
	if body.Message == "" {
		t.Fatalf("expected JSON body on delete")
	}
	if uploader.deleteCount() != 2 {
		t.Fatalf("expected two remote deletes, got %d", uploader.deleteCount())
	}

	resp, err = http.Get(srv.URL + "/api/books/" + bookID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted book expected 404, got %d", resp.StatusCode)
	}
}

func TestRegisterRateLimited(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	limiter, err := ratelimit.NewFixedWindowLimiter(redisSrv.Addr(), "", "test:register", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	srv, _ := newTestServer(t, func(cfg *Config) {
		cfg.RegisterLimiter = limiter
	})

	registerUser(t, srv.URL, "a@x.com")
	resp := postJSON(t, srv.URL+"/api/users/register", map[string]string{
		"name": "B", "email": "b@x.com", "password": "p",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after quota, got %d", resp.StatusCode)
	}
}

func TestErrorBodyShape(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/api/books/not-a-uuid")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if _, ok := body["message"]; !ok {
		t.Fatalf("error body must carry a message field, got %v", body)
	}
}
