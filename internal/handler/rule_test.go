package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func ruleTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewRuleHandler(nil, nil)
	h.RegisterRoutes(r.Group("/geofence"))
	return r
}

func putJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestCreateRuleUnknownRuleType(t *testing.T) {
	r := ruleTestRouter()
	w := postJSON(r, "/geofence/createrule",
		`{"fleetid":"8b9f0f3c-93a4-4e0e-9d56-2f8a4f6f9a11","rulename":"depot","ruletypeid":"CORRIDOR",`+
			`"rulegeoinfo":[{"geofenceid":"5a3f1c2e-1111-4a6b-9c3d-0f8e7d6c5b4a","seqno":0,"actiontypeid":"ENTRY"}]}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INPUT_ERROR") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestCreateRuleBindingRejectsTripAction(t *testing.T) {
	r := ruleTestRouter()
	w := postJSON(r, "/geofence/createrule",
		`{"fleetid":"8b9f0f3c-93a4-4e0e-9d56-2f8a4f6f9a11","rulename":"depot","ruletypeid":"ENTRY_EXIT",`+
			`"rulegeoinfo":[{"geofenceid":"5a3f1c2e-1111-4a6b-9c3d-0f8e7d6c5b4a","seqno":0,"actiontypeid":"TRIP"}]}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INPUT_ERROR") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestCreateRuleBindingBadSeqNo(t *testing.T) {
	r := ruleTestRouter()
	w := postJSON(r, "/geofence/createrule",
		`{"fleetid":"8b9f0f3c-93a4-4e0e-9d56-2f8a4f6f9a11","rulename":"depot","ruletypeid":"ENTRY_EXIT",`+
			`"rulegeoinfo":[{"geofenceid":"5a3f1c2e-1111-4a6b-9c3d-0f8e7d6c5b4a","seqno":2,"actiontypeid":"ENTRY"}]}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INPUT_ERROR") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestUpdateRuleUnknownRuleType(t *testing.T) {
	r := ruleTestRouter()
	w := putJSON(r, "/geofence/updaterule",
		`{"fleetid":"8b9f0f3c-93a4-4e0e-9d56-2f8a4f6f9a11","ruleid":"0c2d4e6f-2222-4b8c-8d9e-1a2b3c4d5e6f",`+
			`"ruletypeid":"CORRIDOR",`+
			`"rulegeoinfo":[{"geofenceid":"5a3f1c2e-1111-4a6b-9c3d-0f8e7d6c5b4a","seqno":0,"actiontypeid":"ENTRY"}]}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INPUT_ERROR") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestUpdateRuleTripMatrixStillChecked(t *testing.T) {
	r := ruleTestRouter()
	w := putJSON(r, "/geofence/updaterule",
		`{"fleetid":"8b9f0f3c-93a4-4e0e-9d56-2f8a4f6f9a11","ruleid":"0c2d4e6f-2222-4b8c-8d9e-1a2b3c4d5e6f",`+
			`"ruletypeid":"TRIP",`+
			`"rulegeoinfo":[{"geofenceid":"5a3f1c2e-1111-4a6b-9c3d-0f8e7d6c5b4a","seqno":0,"actiontypeid":"ENTRY_EXIT"},`+
			`{"geofenceid":"5a3f1c2e-1111-4a6b-9c3d-0f8e7d6c5b4a","seqno":1,"actiontypeid":"EXIT"}]}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INVALID_RULE_TYPE") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestUpdateRuleBindingsOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	body := `{"fleetid":"8b9f0f3c-93a4-4e0e-9d56-2f8a4f6f9a11","ruleid":"0c2d4e6f-2222-4b8c-8d9e-1a2b3c4d5e6f",` +
		`"rulegeoinfo":[{"geofenceid":"5a3f1c2e-1111-4a6b-9c3d-0f8e7d6c5b4a","seqno":0,"actiontypeid":"ENTRY"}]}`
	c.Request = httptest.NewRequest(http.MethodPut, "/geofence/updaterule", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var req updateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		t.Fatalf("bindings-only update rejected: %v", err)
	}
	if req.RuleName != "" || req.RuleTypeID != "" {
		t.Errorf("rulename = %q, ruletypeid = %q, want both empty", req.RuleName, req.RuleTypeID)
	}
	if len(req.RuleGeoInfo) != 1 {
		t.Errorf("rulegeoinfo len = %d", len(req.RuleGeoInfo))
	}
}
