package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"posts-api/internal/domain"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// APIError es una respuesta no exitosa del servidor.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	}
	return nil
}

// TokenSource entrega el token vigente; SessionManager lo implementa.
type TokenSource interface {
	Token() string
}

// APIClient habla con la API de posts. Adjunta el bearer token en cada llamada
// cuando hay un TokenSource configurado.
type APIClient struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *APIClient) UseTokenSource(tokens TokenSource) {
	c.tokens = tokens
}

// SignupResult es la identidad creada por Signup.
type SignupResult struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// PostPage es una página del listado junto al total de la colección.
type PostPage struct {
	Message  string        `json:"message"`
	Posts    []domain.Post `json:"posts"`
	MaxPosts int           `json:"maxPosts"`
}

// PostDraft son los campos a enviar al crear o editar un post.
type PostDraft struct {
	Title     string
	Content   string
	ImageName string
	ImageType string
	Image     []byte
}

func (c *APIClient) Signup(ctx context.Context, email, password string) (SignupResult, error) {
	var out struct {
		Result SignupResult `json:"result"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/user/signup", credentials(email, password), &out)
	return out.Result, err
}

func (c *APIClient) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out LoginResult
	err := c.doJSON(ctx, http.MethodPost, "/api/user/login", credentials(email, password), &out)
	return out, err
}

func (c *APIClient) ListPosts(ctx context.Context, pageSize, page int) (PostPage, error) {
	q := url.Values{}
	if pageSize > 0 && page > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
		q.Set("page", strconv.Itoa(page))
	}
	path := "/api/posts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out PostPage
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *APIClient) GetPost(ctx context.Context, id string) (domain.Post, error) {
	var out domain.Post
	err := c.doJSON(ctx, http.MethodGet, "/api/posts/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *APIClient) CreatePost(ctx context.Context, draft PostDraft) (domain.Post, error) {
	body, contentType, err := draft.multipart()
	if err != nil {
		return domain.Post{}, err
	}
	var out struct {
		Post domain.Post `json:"post"`
	}
	err = c.do(ctx, http.MethodPost, "/api/posts", body, contentType, &out)
	return out.Post, err
}

// UpdatePost envía multipart si hay imagen nueva y JSON en otro caso.
func (c *APIClient) UpdatePost(ctx context.Context, id string, draft PostDraft) error {
	path := "/api/posts/" + url.PathEscape(id)
	if len(draft.Image) == 0 {
		return c.doJSON(ctx, http.MethodPut, path, map[string]string{
			"title":   draft.Title,
			"content": draft.Content,
		}, nil)
	}
	body, contentType, err := draft.multipart()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, path, body, contentType, nil)
}

func (c *APIClient) DeletePost(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/posts/"+url.PathEscape(id), nil, nil)
}

func credentials(email, password string) map[string]string {
	return map[string]string{"email": email, "password": password}
}

func (d PostDraft) multipart() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("title", d.Title); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("content", d.Content); err != nil {
		return nil, "", err
	}
	if len(d.Image) > 0 {
		contentType := d.ImageType
		if contentType == "" {
			contentType = http.DetectContentType(d.Image)
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, d.ImageName))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(d.Image); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *APIClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func (c *APIClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&msg)
		return &APIError{Status: resp.StatusCode, Message: msg.Message}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
