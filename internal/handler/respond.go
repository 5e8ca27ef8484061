package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"geofleet/api/internal/apierr"
	"geofleet/api/internal/middleware"
	"geofleet/api/internal/service"
)

// respondOK wraps the payload in the data envelope shared with the core
// API.
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// respondErr maps err to its catalog status and client body; non-API
// errors are logged and collapse to INTERNAL_SERVER_ERROR.
func respondErr(c *gin.Context, err error) {
	apiErr := apierr.From(err)
	if apiErr.Status() == http.StatusInternalServerError {
		log.Printf("[API] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(apiErr.Status(), gin.H{
		"errcode": apiErr.Code,
		"msg":     apiErr.Message(),
	})
}

// respondDenied rejects with the operation-specific permission code.
func respondDenied(c *gin.Context, code string) {
	c.JSON(apierr.Status(code), gin.H{
		"errcode": code,
		"msg":     apierr.Message(code),
	})
}

// identity returns the caller set by the auth middleware.
func identity(c *gin.Context) (accountID, userID, cookie string) {
	return c.GetString(middleware.ContextAccountID),
		c.GetString(middleware.ContextUserID),
		c.GetString(middleware.ContextCookie)
}

// hasPerms checks the caller's resolved permission set against the
// required ids. Account admins pass every check.
func hasPerms(c *gin.Context, required []string, mode string) bool {
	perms := middleware.ContextPerms(c)
	if perms.Admin {
		return true
	}
	return service.CheckUserPerms(perms.PermIDs, required, mode)
}
