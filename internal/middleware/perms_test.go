package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"geofleet/api/internal/fleetapi"
)

const testFleetID = "8b9f0f3c-93a4-4e0e-9d56-2f8a4f6f9a11"

func permRouter(t *testing.T, upstream http.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextCookie, "token=abc")
	})
	r.Use(GeofencePermissions(fleetapi.NewClient(srv.URL)))
	r.POST("/create", func(c *gin.Context) {
		var body struct {
			FleetID string `json:"fleetid"`
			Name    string `json:"name"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
			return
		}
		perms := ContextPerms(c)
		c.JSON(http.StatusOK, gin.H{"admin": perms.Admin, "permids": perms.PermIDs, "name": body.Name})
	})
	r.GET("/listruletypes", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func grantUpstream(permissions []string, modules string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		perms, _ := json.Marshal(permissions)
		w.Write([]byte(`{"data":{"permissions":` + string(perms) + `,"permissionsbymodule":` + modules + `}}`))
	}
}

func TestGeofencePermissionsFromBody(t *testing.T) {
	r := permRouter(t, grantUpstream(nil,
		`[{"modulename":"Geofence","perms":[{"permid":"geofence.geofence.view"}]}]`))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/create",
		strings.NewReader(`{"fleetid":"`+testFleetID+`","name":"Depot"}`))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Admin   bool     `json:"admin"`
		PermIDs []string `json:"permids"`
		Name    string   `json:"name"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Admin {
		t.Error("expected non-admin")
	}
	if len(resp.PermIDs) != 1 || resp.PermIDs[0] != "geofence.geofence.view" {
		t.Errorf("permids = %v", resp.PermIDs)
	}
	if resp.Name != "Depot" {
		t.Error("body was not restored for the handler")
	}
}

func TestGeofencePermissionsAdminWildcard(t *testing.T) {
	r := permRouter(t, grantUpstream([]string{fleetapi.PermAdminWildcard},
		`[{"modulename":"Geofence","perms":[]}]`))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/create",
		strings.NewReader(`{"fleetid":"`+testFleetID+`"}`))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"admin":true`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestGeofencePermissionsInvalidFleetID(t *testing.T) {
	r := permRouter(t, grantUpstream(nil, `[]`))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/create",
		strings.NewReader(`{"fleetid":"not-a-uuid"}`))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INPUT_ERROR") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestGeofencePermissionsModuleMissing(t *testing.T) {
	r := permRouter(t, grantUpstream(nil,
		`[{"modulename":"Vehicles","perms":[{"permid":"vehicle.view"}]}]`))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/create",
		strings.NewReader(`{"fleetid":"`+testFleetID+`"}`))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "PERMISSIONS_DENIED") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestGeofencePermissionsSkipsTypeRoutes(t *testing.T) {
	r := permRouter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("type-list route should not hit the upstream")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/listruletypes", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
