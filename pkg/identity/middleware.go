package identity

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"ideahub/pkg/response"
)

const contextKey = "identity"

// ParseToken validates a bearer token and returns the subject user id.
// Tokens are verified only; issuance belongs to the auth service.
func ParseToken(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrIdentityUnavailable
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrIdentityUnavailable
	}
	return sub, nil
}

// RequireIdentity resolves the bearer token into an Identity and stores it on
// the gin context. Requests without a resolvable identity are rejected.
func RequireIdentity(provider Provider) gin.HandlerFunc {
	secret := os.Getenv("JWT_SECRET")

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == "" || tokenString == header {
			response.SendError(c, http.StatusUnauthorized, "missing bearer token")
			c.Abort()
			return
		}

		userID, err := ParseToken(tokenString, secret)
		if err != nil {
			response.SendError(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		id, err := provider.Resolve(c.Request.Context(), userID)
		if err != nil {
			response.SendError(c, http.StatusUnauthorized, "identity not resolved")
			c.Abort()
			return
		}

		c.Set(contextKey, id)
		c.Next()
	}
}

// FromContext returns the identity placed by RequireIdentity.
func FromContext(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
