package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/collab-service/pkg/jwt"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/response"
)

const (
	RoomIDKey        = log.FieldRoomID
	ParticipantIDKey = log.FieldParticipantID
	NicknameKey      = log.FieldNickname
	ClaimsKey        = "claims"
	AuthHeaderKey    = "Authorization"
	BearerPrefix     = "Bearer "
)

// TokenVerifier verifies a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*jwt.Claims, error)
}

// AuthMiddleware validates room session tokens locally.
type AuthMiddleware struct {
	verifier TokenVerifier
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// RequireAuth returns a Gin middleware that validates the bearer token in
// the Authorization header and stores the claims in the Gin context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Unauthorized(c, "invalid authorization format")
			c.Abort()
			return
		}

		claims, err := m.verifier.Verify(strings.TrimPrefix(authHeader, BearerPrefix))
		if err != nil {
			l := log.Ctx(c.Request.Context())
			l.Debug().Err(err).Msg("bearer token rejected")
			response.Unauthorized(c, jwt.ErrInvalidToken.Error())
			c.Abort()
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(RoomIDKey, claims.RoomID)
		c.Set(ParticipantIDKey, claims.ParticipantID)
		c.Set(NicknameKey, claims.Nickname)

		c.Next()
	}
}

// GetClaims extracts the verified claims from the Gin context.
func GetClaims(c *gin.Context) *jwt.Claims {
	if v, exists := c.Get(ClaimsKey); exists {
		if claims, ok := v.(*jwt.Claims); ok {
			return claims
		}
	}
	return nil
}
