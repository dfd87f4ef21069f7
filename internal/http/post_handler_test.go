package http

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

type formImage struct {
	name        string
	contentType string
	data        []byte
}

func performMultipart(r http.Handler, method, path, token string, fields map[string]string, image *formImage) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	if image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, image.name))
		h.Set("Content-Type", image.contentType)
		part, _ := w.CreatePart(h)
		_, _ = part.Write(image.data)
	}
	_ = w.Close()

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func createPost(t *testing.T, r http.Handler, token, title string, image *formImage) map[string]any {
	t.Helper()
	rec := performMultipart(r, http.MethodPost, "/api/posts", token, map[string]string{
		"title":   title,
		"content": "body of " + title,
	}, image)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s: expected 201, got %d %s", title, rec.Code, rec.Body.String())
	}
	post, _ := decodeBody(t, rec)["post"].(map[string]any)
	return post
}

func TestPostHandlerCreate(t *testing.T) {
	s := setupTestServer(t)
	token, userID := signupAndLogin(t, s.router, "a@example.com")

	post := createPost(t, s.router, token, "Hello", &formImage{name: "Cat Pic.png", contentType: "image/png", data: pngBytes})
	if post["creator"] != userID || post["title"] != "Hello" {
		t.Fatalf("unexpected post %v", post)
	}
	imagePath, _ := post["imagePath"].(string)
	if !strings.HasPrefix(imagePath, "http://localhost:3000/images/cat-pic-") {
		t.Fatalf("unexpected image path %q", imagePath)
	}
	if _, err := os.Stat(filepath.Join(s.imageDir, filepath.Base(imagePath))); err != nil {
		t.Fatalf("expected stored image: %v", err)
	}

	rec := performRequest(s.router, http.MethodGet, "/images/"+filepath.Base(imagePath), nil)
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), pngBytes) {
		t.Fatalf("expected image served, got %d", rec.Code)
	}
}

func TestPostHandlerCreate_Rejections(t *testing.T) {
	s := setupTestServer(t)
	token, _ := signupAndLogin(t, s.router, "a@example.com")
	fields := map[string]string{"title": "t", "content": "c"}

	if rec := performMultipart(s.router, http.MethodPost, "/api/posts", "", fields, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := performMultipart(s.router, http.MethodPost, "/api/posts", "garbage", fields, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}

	gif := &formImage{name: "a.gif", contentType: "image/gif", data: []byte("GIF89a......")}
	if rec := performMultipart(s.router, http.MethodPost, "/api/posts", token, fields, gif); rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 for gif, got %d", rec.Code)
	}

	missing := map[string]string{"title": "t"}
	if rec := performMultipart(s.router, http.MethodPost, "/api/posts", token, missing, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without content, got %d", rec.Code)
	}

	big := &formImage{name: "big.png", contentType: "image/png", data: append(append([]byte{}, pngBytes...), make([]byte, 2048)...)}
	if rec := performMultipart(s.router, http.MethodPost, "/api/posts", token, fields, big); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized image, got %d", rec.Code)
	}

	if n, _ := s.posts.Count(t.Context()); n != 0 {
		t.Fatalf("expected no posts stored, got %d", n)
	}
}

func TestPostHandlerList_Pagination(t *testing.T) {
	s := setupTestServer(t)
	token, _ := signupAndLogin(t, s.router, "a@example.com")
	for i := 0; i < 5; i++ {
		createPost(t, s.router, token, fmt.Sprintf("p%d", i), nil)
	}

	rec := performRequest(s.router, http.MethodGet, "/api/posts?pageSize=2&page=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	posts, _ := body["posts"].([]any)
	if body["maxPosts"] != float64(5) || len(posts) != 2 {
		t.Fatalf("unexpected page %v", body)
	}
	if posts[0].(map[string]any)["title"] != "p2" || posts[1].(map[string]any)["title"] != "p3" {
		t.Fatalf("unexpected window %v", posts)
	}

	body = decodeBody(t, performRequest(s.router, http.MethodGet, "/items?pageSize=abc", nil))
	if all, _ := body["posts"].([]any); len(all) != 5 {
		t.Fatalf("expected full collection, got %d", len(all))
	}

	rec = performRequest(s.router, http.MethodGet, "/items?pageSize=4611686018427387904&page=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for huge page, got %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if rest, _ := body["posts"].([]any); len(rest) != 0 || body["maxPosts"] != float64(5) {
		t.Fatalf("expected empty window past the end, got %v", body)
	}
}

func TestPostHandlerGet(t *testing.T) {
	s := setupTestServer(t)
	token, _ := signupAndLogin(t, s.router, "a@example.com")
	post := createPost(t, s.router, token, "Hello", nil)

	rec := performRequest(s.router, http.MethodGet, "/items/"+post["id"].(string), nil)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["title"] != "Hello" {
		t.Fatalf("unexpected get %d %s", rec.Code, rec.Body.String())
	}
	if rec := performRequest(s.router, http.MethodGet, "/api/posts/does-not-exist", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPostHandler_OwnershipEnforced(t *testing.T) {
	s := setupTestServer(t)
	aliceToken, _ := signupAndLogin(t, s.router, "alice@example.com")
	bobToken, _ := signupAndLogin(t, s.router, "bob@example.com")
	bobPost := createPost(t, s.router, bobToken, "Bob", nil)
	path := "/api/posts/" + bobPost["id"].(string)

	rec := performAuthRequest(s.router, http.MethodPut, path, aliceToken, map[string]string{"title": "x", "content": "y"})
	if rec.Code != http.StatusUnauthorized || decodeBody(t, rec)["message"] != "not authorized" {
		t.Fatalf("expected 401 not authorized on foreign update, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := performAuthRequest(s.router, http.MethodDelete, path, aliceToken, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on foreign delete, got %d", rec.Code)
	}

	got := decodeBody(t, performRequest(s.router, http.MethodGet, path, nil))
	if got["title"] != "Bob" {
		t.Fatalf("expected bob's post unchanged, got %v", got)
	}

	rec = performAuthRequest(s.router, http.MethodPut, path, bobToken, map[string]string{
		"title": "Bob 2", "content": "edited", "imagePath": "http://evil.example/x.png",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected owner update 200, got %d", rec.Code)
	}
	got = decodeBody(t, performRequest(s.router, http.MethodGet, path, nil))
	if got["title"] != "Bob 2" || got["imagePath"] != "" {
		t.Fatalf("unexpected updated post %v", got)
	}

	if rec := performAuthRequest(s.router, http.MethodDelete, path, bobToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected owner delete 200, got %d", rec.Code)
	}
	if rec := performRequest(s.router, http.MethodGet, path, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestPostHandlerUpdate_MultipartReplacesImage(t *testing.T) {
	s := setupTestServer(t)
	token, _ := signupAndLogin(t, s.router, "a@example.com")
	post := createPost(t, s.router, token, "Hello", &formImage{name: "one.png", contentType: "image/png", data: pngBytes})
	path := "/api/posts/" + post["id"].(string)

	rec := performMultipart(s.router, http.MethodPut, path, token, map[string]string{"title": "Hello", "content": "new"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decodeBody(t, performRequest(s.router, http.MethodGet, path, nil))
	if got["imagePath"] != post["imagePath"] {
		t.Fatalf("expected image kept, got %v", got["imagePath"])
	}

	rec = performMultipart(s.router, http.MethodPut, path, token, map[string]string{"title": "Hello", "content": "new"},
		&formImage{name: "two.png", contentType: "image/png", data: pngBytes})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got = decodeBody(t, performRequest(s.router, http.MethodGet, path, nil))
	if got["imagePath"] == post["imagePath"] || !strings.Contains(got["imagePath"].(string), "/two-") {
		t.Fatalf("expected image replaced, got %v", got["imagePath"])
	}
}
