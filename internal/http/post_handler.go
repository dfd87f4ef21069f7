package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"posts-api/internal/service"
)

// multipartOverhead cubre los campos de texto y cabeceras de un formulario.
const multipartOverhead = 1 << 20

// PostHandler expone el CRUD de posts.
type PostHandler struct {
	logger   *zap.Logger
	postServ *service.PostService
	maxBytes int64
}

func NewPostHandler(logger *zap.Logger, postServ *service.PostService, maxUploadBytes int64) *PostHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 5 << 20
	}
	return &PostHandler{
		logger:   logger,
		postServ: postServ,
		maxBytes: maxUploadBytes,
	}
}

// List maneja GET /posts?pageSize=&page=. Valores ausentes o no numéricos
// devuelven la colección completa.
func (h *PostHandler) List(c *gin.Context) {
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	page, _ := strconv.Atoi(c.Query("page"))

	posts, total, err := h.postServ.List(c.Request.Context(), pageSize, page)
	if err != nil {
		writeError(c, h.logger, "list posts", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "posts fetched successfully",
		"posts":    posts,
		"maxPosts": total,
	})
}

// Get maneja GET /posts/:id.
func (h *PostHandler) Get(c *gin.Context) {
	post, err := h.postServ.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "get post", err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// Create maneja POST /posts (multipart: title, content, image opcional).
func (h *PostHandler) Create(c *gin.Context) {
	identity, ok := GetIdentity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msgAuthFailed})
		return
	}

	input, err := h.bindMultipart(c)
	if err != nil {
		writeError(c, h.logger, "create post", err)
		return
	}

	post, err := h.postServ.Create(c.Request.Context(), identity, input)
	if err != nil {
		writeError(c, h.logger, "create post", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "post added successfully",
		"post":    post,
	})
}

// Update maneja PUT /posts/:id. Acepta multipart con imagen nueva o JSON; un
// imagePath enviado por el cliente se ignora.
func (h *PostHandler) Update(c *gin.Context) {
	identity, ok := GetIdentity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msgAuthFailed})
		return
	}

	var (
		input service.PostInput
		err   error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		input, err = h.bindMultipart(c)
	} else {
		var req struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		}
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			err = fmt.Errorf("%w: %v", service.ErrValidation, bindErr)
		}
		input = service.PostInput{Title: req.Title, Content: req.Content}
	}
	if err != nil {
		writeError(c, h.logger, "update post", err)
		return
	}

	if err := h.postServ.Update(c.Request.Context(), identity, c.Param("id"), input); err != nil {
		writeError(c, h.logger, "update post", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "update successful"})
}

// Delete maneja DELETE /posts/:id.
func (h *PostHandler) Delete(c *gin.Context) {
	identity, ok := GetIdentity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msgAuthFailed})
		return
	}

	if err := h.postServ.Delete(c.Request.Context(), identity, c.Param("id")); err != nil {
		writeError(c, h.logger, "delete post", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "post deleted"})
}

func (h *PostHandler) bindMultipart(c *gin.Context) (service.PostInput, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	if err := c.Request.ParseMultipartForm(h.maxBytes + multipartOverhead); err != nil {
		return service.PostInput{}, fmt.Errorf("%w: %v", service.ErrValidation, err)
	}

	input := service.PostInput{
		Title:   c.PostForm("title"),
		Content: c.PostForm("content"),
	}

	header, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return input, nil
	}
	if err != nil {
		return service.PostInput{}, fmt.Errorf("%w: %v", service.ErrValidation, err)
	}

	upload, err := h.readUpload(header)
	if err != nil {
		return service.PostInput{}, err
	}
	input.Image = upload
	return input, nil
}

func (h *PostHandler) readUpload(header *multipart.FileHeader) (*service.Upload, error) {
	if header.Size > h.maxBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", service.ErrValidation, h.maxBytes)
	}
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return &service.Upload{
		MimeType: header.Header.Get("Content-Type"),
		Name:     header.Filename,
		Data:     data,
	}, nil
}
