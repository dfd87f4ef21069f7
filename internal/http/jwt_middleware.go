package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"posts-api/internal/domain"
	"posts-api/internal/service"
)

const authIdentityKey = "auth_identity"

// JWTAuthMiddleware valida el bearer token y guarda la identidad en el contexto.
// Cualquier fallo corta la cadena con 401 y un mensaje único.
func JWTAuthMiddleware(jwtSvc *service.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msgAuthFailed})
			return
		}

		identity, err := jwtSvc.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msgAuthFailed})
			return
		}

		c.Set(authIdentityKey, identity)
		c.Request = c.Request.WithContext(service.WithIdentity(c.Request.Context(), identity))
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetIdentity obtiene la identidad autenticada desde el contexto.
func GetIdentity(c *gin.Context) (domain.Identity, bool) {
	val, ok := c.Get(authIdentityKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := val.(domain.Identity)
	return identity, ok && identity.UserID != ""
}
