package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"galaxychat/internal/pkg/jwtutil"
	"galaxychat/internal/transport/http/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"

	bearerPrefix = "Bearer "
)

func AuthJWT(secret string) gin.HandlerFunc {
	return jwtAuth(secret, true)
}

// OptionalAuthJWT lets requests without an Authorization header through as
// anonymous. A header that is present must still carry a valid token.
func OptionalAuthJWT(secret string) gin.HandlerFunc {
	return jwtAuth(secret, false)
}

func jwtAuth(secret string, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		switch {
		case header == "" && !required:
			c.Next()
			return
		case header == "":
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			return
		case !strings.HasPrefix(header, bearerPrefix):
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
			return
		}

		claims, err := jwtutil.ParseToken(secret, strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}
