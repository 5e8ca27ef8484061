package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func reportTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewReportHandler(nil, nil)
	h.RegisterRoutes(r.Group("/report"))
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestAlertReportMalformedBody(t *testing.T) {
	r := reportTestRouter()
	w := postJSON(r, "/report/alert", `{"fleetid":`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INPUT_ERROR") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestAlertReportMissingFleetID(t *testing.T) {
	r := reportTestRouter()
	w := postJSON(r, "/report/alert", `{"vinnos":["WVWZZZ1JZ3W386752"],"starttime":0,"endtime":1000}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INPUT_ERROR") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestTripReportNeitherVinsNorRules(t *testing.T) {
	r := reportTestRouter()
	w := postJSON(r, "/report/trip",
		`{"fleetid":"8b9f0f3c-93a4-4e0e-9d56-2f8a4f6f9a11","starttime":0,"endtime":1000}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INVALID_INPUT") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestTripReportBadRuleID(t *testing.T) {
	r := reportTestRouter()
	w := postJSON(r, "/report/trip",
		`{"fleetid":"8b9f0f3c-93a4-4e0e-9d56-2f8a4f6f9a11","ruleids":["not-a-uuid"],"starttime":0,"endtime":1000}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INPUT_ERROR") {
		t.Errorf("body = %s", w.Body.String())
	}
}
