package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func geofenceTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewGeofenceHandler(nil, nil, nil, nil)
	h.RegisterRoutes(r.Group("/geofence"))
	return r
}

func TestCreateGeofenceUnknownShape(t *testing.T) {
	r := geofenceTestRouter()
	w := postJSON(r, "/geofence/create",
		`{"fleetid":"8b9f0f3c-93a4-4e0e-9d56-2f8a4f6f9a11","geofencename":"depot",`+
			`"geofenceinfo":{"type":"corridor","latlngs":[{"lat":1.3,"lng":103.8}]}}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INPUT_ERROR") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestCreateGeofenceMissingShape(t *testing.T) {
	r := geofenceTestRouter()
	w := postJSON(r, "/geofence/create",
		`{"fleetid":"8b9f0f3c-93a4-4e0e-9d56-2f8a4f6f9a11","geofencename":"depot"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INPUT_ERROR") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestUpdateGeofenceRenameOnlyBinds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	body := `{"fleetid":"8b9f0f3c-93a4-4e0e-9d56-2f8a4f6f9a11",` +
		`"geofenceid":"5a3f1c2e-1111-4a6b-9c3d-0f8e7d6c5b4a","geofencename":"depot east"}`
	c.Request = httptest.NewRequest(http.MethodPut, "/geofence/update", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var req updateGeofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		t.Fatalf("rename-only update rejected: %v", err)
	}
	if req.GeofenceInfo != nil {
		t.Errorf("geofenceinfo = %+v, want nil", req.GeofenceInfo)
	}
	if req.Meta != nil {
		t.Errorf("meta = %+v, want nil", req.Meta)
	}
	if req.GeofenceName != "depot east" {
		t.Errorf("geofencename = %q", req.GeofenceName)
	}
}
