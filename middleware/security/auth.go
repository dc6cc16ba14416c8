package security

import (
	"net/http"
	"strings"

	errs "ChatApp/tools/errs"
	jwtlib "ChatApp/tools/security"

	"github.com/gin-gonic/gin"
)

// CtxUserKey is the gin context key the authenticated user id is stored
// under. Handlers read it via UserID(c).
const CtxUserKey = "authUserId"

// Middleware verifies the Bearer token and stores the subject user id in the
// request context. Requests without a valid token are rejected with 401.
func Middleware(opts jwtlib.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthorized)
			return
		}

		userID, err := jwtlib.Verify(opts, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthorized)
			return
		}
		c.Set(CtxUserKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user id set by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserKey)
}
