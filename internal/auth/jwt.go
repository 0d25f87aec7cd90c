// Package auth issues and verifies the bearer tokens that scope API calls to
// an organisation.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Claims defines the JWT claims structure.
type Claims struct {
	OrgID  int64  `json:"org_id"`
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// ClaimsKey is the echo context key holding the caller's claims.
const ClaimsKey = "claims"

// ErrMissingToken is returned when a request carries no token.
var ErrMissingToken = errors.New("missing auth token")

// Manager signs and validates HS256 tokens with a shared secret.
type Manager struct {
	key []byte
	ttl time.Duration
}

// NewManager creates a token manager. A zero ttl issues day-long tokens.
func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{key: []byte(secret), ttl: ttl}
}

// Generate creates a token for an organisation.
func (m *Manager) Generate(orgID int64, userID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		OrgID:  orgID,
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.key)
}

// Validate parses and validates a token string.
func (m *Manager) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.OrgID <= 0 {
		return nil, fmt.Errorf("token carries no organisation")
	}
	return claims, nil
}

// Middleware rejects requests without a valid token and stores the claims
// under ClaimsKey. The token is read from the Authorization header, then from
// the "token" query parameter, which websocket clients use.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := bearerToken(c.Request())
			if tokenStr == "" {
				tokenStr = c.QueryParam("token")
			}
			if tokenStr == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"detail": ErrMissingToken.Error()})
			}

			claims, err := m.Validate(tokenStr)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"detail": "invalid auth token"})
			}

			c.Set(ClaimsKey, claims)
			return next(c)
		}
	}
}

// OrgID returns the organisation of the authenticated caller, or 0.
func OrgID(c echo.Context) int64 {
	claims, ok := c.Get(ClaimsKey).(*Claims)
	if !ok || claims == nil {
		return 0
	}
	return claims.OrgID
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
