package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"geofleet/api/internal/apierr"
)

// Context keys set by the middleware chain.
const (
	ContextAccountID   = "accountid"
	ContextUserID      = "userid"
	ContextCookie      = "cookie"
	ContextPermissions = "permissions"
)

// Auth extracts the session token from the cookie and puts the caller's
// identity on the gin context. The token is issued and validated by the
// upstream account service; here the claims are only decoded, the
// permission middleware re-checks the session against that service on
// every scoped request.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")

		token, err := c.Cookie("token")
		if err != nil || token == "" {
			abortWithCode(c, apierr.CodeTokenRequired, "")
			return
		}

		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			abortWithCode(c, apierr.CodeInvalidToken, "")
			return
		}

		userID, _ := claims["userid"].(string)
		accountID, _ := claims["accountid"].(string)
		if userID == "" || accountID == "" {
			abortWithCode(c, apierr.CodeInvalidToken, "")
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextAccountID, accountID)
		c.Set(ContextCookie, c.GetHeader("Cookie"))
		c.Next()
	}
}

// abortWithCode stops the chain with the catalog status and message for
// code. A non-empty msg overrides the catalog message.
func abortWithCode(c *gin.Context, code, msg string) {
	if msg == "" {
		msg = apierr.Message(code)
	}
	c.AbortWithStatusJSON(apierr.Status(code), gin.H{
		"errcode": code,
		"msg":     msg,
	})
}
