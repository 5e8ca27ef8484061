package service

import (
	"testing"
	"time"

	"geofleet/api/internal/model"
)

func TestGeofenceUpdatesRenameOnly(t *testing.T) {
	updates := geofenceUpdates("user-1", "Depot South", nil, nil, time.Now())

	if _, ok := updates["geofenceinfo"]; ok {
		t.Error("rename-only update must not touch the stored shape")
	}
	if _, ok := updates["meta"]; ok {
		t.Error("rename-only update must not touch the stored meta")
	}
	if updates["geofencename"] != "Depot South" {
		t.Errorf("geofencename = %v, want Depot South", updates["geofencename"])
	}
	if updates["updatedby"] != "user-1" {
		t.Errorf("updatedby = %v, want user-1", updates["updatedby"])
	}
}

func TestGeofenceUpdatesSuppliedFields(t *testing.T) {
	info := model.GeofenceInfo{Type: model.GeofenceTypeCircle, LatLngs: []model.LatLng{{Lat: 12.9, Lng: 77.5}}, Radius: 300}
	meta := model.GeofenceMeta{Address: "Depot", Area: "1.2 sq km"}
	updates := geofenceUpdates("user-1", "", &info, &meta, time.Now())

	if _, ok := updates["geofencename"]; ok {
		t.Error("an empty name must not be written")
	}
	got, ok := updates["geofenceinfo"].(model.GeofenceInfo)
	if !ok || got.Radius != 300 {
		t.Errorf("geofenceinfo = %v, want the supplied shape", updates["geofenceinfo"])
	}
	if m, ok := updates["meta"].(model.GeofenceMeta); !ok || m.Area != "1.2 sq km" {
		t.Errorf("meta = %v, want the supplied meta", updates["meta"])
	}
}
