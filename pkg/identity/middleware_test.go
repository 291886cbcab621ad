package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	identity Identity
	err      error
}

func (s *stubProvider) Resolve(ctx context.Context, userID string) (Identity, error) {
	if s.err != nil {
		return Identity{}, s.err
	}
	id := s.identity
	id.ID = userID
	return id, nil
}

func signToken(t *testing.T, secret, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseToken_ValidSubject(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	signed := signToken(t, "test-secret", "user-1")

	sub, err := ParseToken(signed, "test-secret")
	require.NoError(t, err)
	require.Equal(t, "user-1", sub)
}

func TestParseToken_WrongSecret(t *testing.T) {
	signed := signToken(t, "other-secret", "user-1")

	_, err := ParseToken(signed, "test-secret")
	require.ErrorIs(t, err, ErrIdentityUnavailable)
}

func TestParseToken_Expired(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = ParseToken(signed, "test-secret")
	require.ErrorIs(t, err, ErrIdentityUnavailable)
}

func TestRequireIdentity_SetsIdentity(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	gin.SetMode(gin.TestMode)

	provider := &stubProvider{identity: Identity{EmailVerified: true}}
	router := gin.New()
	router.GET("/whoami", RequireIdentity(provider), func(c *gin.Context) {
		id, ok := FromContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, id)
	})

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", "user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireIdentity_MissingToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/whoami", RequireIdentity(&stubProvider{}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/whoami", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireIdentity_UnresolvedIdentity(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/whoami", RequireIdentity(&stubProvider{err: ErrIdentityUnavailable}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", "ghost"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGate(t *testing.T) {
	tests := []struct {
		name    string
		id      Identity
		wantErr error
	}{
		{"verified", Identity{ID: "u1", EmailVerified: true}, nil},
		{"unresolved", Identity{}, ErrIdentityUnavailable},
		{"unverified", Identity{ID: "u1"}, ErrNotAuthorized},
		{"banned", Identity{ID: "u1", EmailVerified: true, Banned: true}, ErrNotAuthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Gate(tt.id)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
