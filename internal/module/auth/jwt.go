package auth

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/trackmate/server/internal/shared/config"
	apperrors "github.com/trackmate/server/internal/shared/errors"
	"github.com/trackmate/server/internal/shared/response"
)

const userIDKey = "auth.user_id"

// Claims are the token claims carried by an access token.
type Claims struct {
	jwt.RegisteredClaims
}

// Manager signs and validates access tokens.
type Manager struct {
	secret []byte
	expiry time.Duration
	issuer string
}

// NewManager builds a token manager from auth configuration.
func NewManager(cfg config.AuthConfig) *Manager {
	return &Manager{
		secret: []byte(cfg.JWTSecret),
		expiry: cfg.AccessTokenExpiry,
		issuer: cfg.Issuer,
	}
}

// GenerateToken issues a signed access token for a user.
func (m *Manager) GenerateToken(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken parses a token and returns the user id it carries.
func (m *Manager) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller's user id on the context.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, apperrors.Unauthenticated(""))
			c.Abort()
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			response.Error(c, apperrors.Unauthenticated("malformed authorization header"))
			c.Abort()
			return
		}

		userID, err := m.ValidateToken(tokenString)
		if err != nil {
			response.Error(c, apperrors.Unauthenticated("invalid or expired token"))
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID reads the authenticated user id set by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
