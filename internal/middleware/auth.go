package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/notistore/internal/auth"
	"github.com/charlesng35/notistore/internal/policy"
	"github.com/charlesng35/notistore/pkg/errors"
	"github.com/charlesng35/notistore/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
	CtxCallerKey    = "caller"
)

// Auth enforces bearer JWT authentication and binds the policy caller to the request.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxCallerKey, claims.Caller())
		if claims.SessionID != "" {
			c.Set(CtxSessionIDKey, claims.SessionID)
		}

		c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// CallerFromContext returns the caller bound by Auth.
func CallerFromContext(c *gin.Context) (policy.Caller, bool) {
	value, ok := c.Get(CtxCallerKey)
	if !ok {
		return policy.Caller{}, false
	}
	caller, ok := value.(policy.Caller)
	if !ok || !caller.Authenticated() {
		return policy.Caller{}, false
	}
	return caller, true
}
