package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"geofleet/api/internal/apierr"
	"geofleet/api/internal/fleetapi"
)

// geofenceModule is the module name the account service reports
// geofence permissions under.
const geofenceModule = "Geofence"

// Permissions is the caller's resolved geofence permission set, stored
// on the gin context by GeofencePermissions.
type Permissions struct {
	Admin   bool
	PermIDs []string
}

// GeofencePermissions resolves the caller's permissions for the fleet
// named in the request and stores them on the context. Type-listing
// routes carry no fleet scope and pass through untouched.
func GeofencePermissions(fleetAPI *fleetapi.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.Contains(path, "/listruletypes") || strings.Contains(path, "/listactiontypes") {
			c.Next()
			return
		}

		fleetID := requestFleetID(c)
		if _, err := uuid.Parse(fleetID); err != nil {
			abortWithCode(c, apierr.CodeInputError, "Invalid fleetid, must be a valid uuid")
			return
		}

		cookie := c.GetString(ContextCookie)
		perms, err := fleetAPI.GetMyPermissions(c.Request.Context(), fleetID, cookie)
		if err != nil {
			log.Printf("[Permissions] Fetch for fleet %s failed: %v", fleetID, err)
			abortWithCode(c, apierr.CodePermissionsDenied, "")
			return
		}

		resolved := Permissions{}
		for _, p := range perms.Permissions {
			if p == fleetapi.PermAdminWildcard {
				resolved.Admin = true
				break
			}
		}
		found := false
		for _, mod := range perms.PermissionsByModule {
			if mod.ModuleName == geofenceModule {
				found = true
				for _, perm := range mod.Perms {
					resolved.PermIDs = append(resolved.PermIDs, perm.PermID)
				}
				break
			}
		}
		if !found {
			abortWithCode(c, apierr.CodePermissionsDenied, "")
			return
		}

		c.Set(ContextPermissions, resolved)
		c.Next()
	}
}

// requestFleetID pulls the fleet id from the route param, the query
// string, or the JSON body, in that order. The body is restored so the
// handler can still bind it.
func requestFleetID(c *gin.Context) string {
	if id := c.Param("fleetid"); id != "" {
		return id
	}
	if id := c.Query("fleetid"); id != "" {
		return id
	}
	if c.Request.Body == nil {
		return ""
	}
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(data))
	var body struct {
		FleetID string `json:"fleetid"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.FleetID
}

// ContextPerms returns the permission set stored by GeofencePermissions.
func ContextPerms(c *gin.Context) Permissions {
	if v, ok := c.Get(ContextPermissions); ok {
		if perms, ok := v.(Permissions); ok {
			return perms
		}
	}
	return Permissions{}
}
