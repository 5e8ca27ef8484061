package fleetapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetSubFleetsPrependsSelf(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/fms/account/fleet/fleet-1/subfleets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("recursive") != "true" {
			t.Errorf("expected recursive=true, got %s", r.URL.Query().Get("recursive"))
		}
		if r.Header.Get("Cookie") != "token=abc" {
			t.Errorf("cookie not forwarded, got %q", r.Header.Get("Cookie"))
		}
		w.Write([]byte(`{"data":[{"fleetid":"fleet-2"},{"fleetid":"fleet-3"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	fleets, err := client.GetSubFleets(context.Background(), "fleet-1", "token=abc", true)
	if err != nil {
		t.Fatalf("GetSubFleets failed: %v", err)
	}
	want := []string{"fleet-1", "fleet-2", "fleet-3"}
	if len(fleets) != len(want) {
		t.Fatalf("expected %d fleets, got %d", len(want), len(fleets))
	}
	for i := range want {
		if fleets[i] != want[i] {
			t.Errorf("fleet[%d] = %s, want %s", i, fleets[i], want[i])
		}
	}
}

func TestGetMyPermissions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"permissions":["all.all.all"],"permissionsbymodule":[{"modulename":"Geofence","perms":[{"permid":"geofence.geofence.admin"}]}]}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	perms, err := client.GetMyPermissions(context.Background(), "fleet-1", "token=abc")
	if err != nil {
		t.Fatalf("GetMyPermissions failed: %v", err)
	}
	if len(perms.Permissions) != 1 || perms.Permissions[0] != "all.all.all" {
		t.Errorf("unexpected permissions: %v", perms.Permissions)
	}
	if len(perms.PermissionsByModule) != 1 || perms.PermissionsByModule[0].ModuleName != "Geofence" {
		t.Fatalf("unexpected modules: %v", perms.PermissionsByModule)
	}
	if perms.PermissionsByModule[0].Perms[0].PermID != "geofence.geofence.admin" {
		t.Errorf("unexpected permid: %v", perms.PermissionsByModule[0].Perms)
	}
}

func TestGetAccountFleetsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if _, err := client.GetAccountFleets(context.Background(), "token=abc"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
