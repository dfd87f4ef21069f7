package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"posts-api/internal/service"
)

// UserHandler mantiene dependencias para endpoints de usuarios.
type UserHandler struct {
	logger   *zap.Logger
	userServ *service.UserService
	jwtServ  *service.JWTService
}

// NewUserHandler crea una instancia de UserHandler con dependencias necesarias.
func NewUserHandler(logger *zap.Logger, userServ *service.UserService, jwtServ *service.JWTService) *UserHandler {
	return &UserHandler{
		logger:   logger,
		userServ: userServ,
		jwtServ:  jwtServ,
	}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Signup maneja POST /user/signup.
func (h *UserHandler) Signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request"})
		return
	}

	user, err := h.userServ.CreateUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, "signup", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "user created",
		"result":  gin.H{"id": user.ID, "email": user.Email},
	})
}

// Login maneja POST /user/login. Toda falla de credenciales responde igual.
func (h *UserHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": msgAuthFailed})
		return
	}

	identity, err := h.userServ.VerifyCredentials(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, "login", err)
		return
	}

	issued, err := h.jwtServ.Issue(identity, 0)
	if err != nil {
		writeError(c, h.logger, "issue token", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     issued.Token,
		"expiresIn": issued.ExpiresIn,
		"userId":    identity.UserID,
	})
}
