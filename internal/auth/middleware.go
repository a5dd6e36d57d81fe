package auth

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/cyphera/trust-engine/internal/constants"
	"github.com/cyphera/trust-engine/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Context keys set by the middleware for downstream handlers.
const (
	CallerDIDKey = "callerDid"
	AuthTypeKey  = "authType"
	RoleKey      = "role"
)

// AgentClaims is the JWT shape issued to agent operators by the identity
// provider: a standard token plus the agent's DID.
type AgentClaims struct {
	jwt.RegisteredClaims
	DID  string `json:"did"`
	Role string `json:"role"`
}

// APIKeyValidator checks an API key and returns the caller DID and role it
// is bound to. Backed by the store in production.
type APIKeyValidator interface {
	ValidateAPIKey(ctx context.Context, apiKey string) (did string, role string, err error)
}

// AuthClient validates inbound credentials: API keys for service callers and
// JWKS-verified bearer tokens for operator sessions.
type AuthClient struct {
	issuer   string
	audience string
	jwks     *keyfunc.JWKS
	keys     APIKeyValidator
}

// NewAuthClient creates an auth client from environment configuration and
// starts the JWKS refresh loop. A missing JWKS endpoint disables bearer
// auth; API keys still work.
func NewAuthClient(keys APIKeyValidator) *AuthClient {
	client := &AuthClient{
		issuer:   os.Getenv("TRUST_JWT_ISSUER"),
		audience: os.Getenv("TRUST_JWT_AUDIENCE"),
		keys:     keys,
	}

	jwksURL := os.Getenv("TRUST_JWKS_ENDPOINT")
	if jwksURL == "" {
		logger.Log.Warn("JWKS endpoint not configured; bearer token auth disabled")
		return client
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Log.Error("JWKS refresh failed", zap.Error(err))
		},
	})
	if err != nil {
		logger.Log.Error("Failed to initialize JWKS", zap.Error(err))
		return client
	}
	client.jwks = jwks
	return client
}

// EnsureValidAPIKeyOrToken authenticates the request: X-API-Key first, then
// a Bearer token against the JWKS. On success the caller DID, auth type, and
// role are set on the gin context.
func (ac *AuthClient) EnsureValidAPIKeyOrToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
			did, role, err := ac.keys.ValidateAPIKey(c.Request.Context(), apiKey)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
				c.Abort()
				return
			}
			c.Set(CallerDIDKey, did)
			c.Set(RoleKey, role)
			c.Set(AuthTypeKey, constants.AuthTypeAPIKey)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no authentication provided"})
			c.Abort()
			return
		}

		claims, err := ac.validateBearer(authHeader)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set(CallerDIDKey, claims.DID)
		c.Set(RoleKey, claims.Role)
		c.Set(AuthTypeKey, constants.AuthTypeJWT)
		c.Next()
	}
}

func (ac *AuthClient) validateBearer(authHeader string) (*AgentClaims, error) {
	if ac.jwks == nil {
		return nil, ErrInvalidToken
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" || tokenString == authHeader {
		return nil, ErrInvalidToken
	}

	claims := &AgentClaims{}
	parseOptions := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "ES256"})}
	if ac.issuer != "" {
		parseOptions = append(parseOptions, jwt.WithIssuer(ac.issuer))
	}
	if ac.audience != "" {
		parseOptions = append(parseOptions, jwt.WithAudience(ac.audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, claims, ac.jwks.Keyfunc, parseOptions...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.DID == "" {
		return nil, ErrMissingDID
	}
	return claims, nil
}

// RequireRole restricts a route group to callers holding the given role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleKey) != role {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			c.Abort()
			return
		}
		c.Next()
	}
}
