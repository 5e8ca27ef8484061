package model

import (
	"testing"
	"time"

	"geofleet/api/internal/apierr"
)

func TestGeofenceInfoValidate(t *testing.T) {
	point := LatLng{Lat: 12.97, Lng: 77.59}
	ring := []LatLng{{12.9, 77.5}, {12.9, 77.6}, {13.0, 77.6}}

	tests := []struct {
		name     string
		info     GeofenceInfo
		wantCode string
	}{
		{"valid circle", GeofenceInfo{Type: GeofenceTypeCircle, LatLngs: []LatLng{point}, Radius: 250}, ""},
		{"circle zero radius", GeofenceInfo{Type: GeofenceTypeCircle, LatLngs: []LatLng{point}, Radius: 0}, apierr.CodeInvalidRadius},
		{"circle negative radius", GeofenceInfo{Type: GeofenceTypeCircle, LatLngs: []LatLng{point}, Radius: -10}, apierr.CodeInvalidRadius},
		{"circle no points", GeofenceInfo{Type: GeofenceTypeCircle, LatLngs: nil, Radius: 100}, apierr.CodeInvalidCircle},
		{"circle two points", GeofenceInfo{Type: GeofenceTypeCircle, LatLngs: []LatLng{point, point}, Radius: 100}, apierr.CodeInvalidCircle},
		{"valid polygon", GeofenceInfo{Type: GeofenceTypePolygon, LatLngs: ring}, ""},
		{"polygon two points", GeofenceInfo{Type: GeofenceTypePolygon, LatLngs: ring[:2]}, apierr.CodeInvalidPolygon},
		{"polygon empty", GeofenceInfo{Type: GeofenceTypePolygon}, apierr.CodeInvalidPolygon},
		{"unknown type rejected", GeofenceInfo{Type: "corridor"}, apierr.CodeInputError},
		{"empty type rejected", GeofenceInfo{}, apierr.CodeInputError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !apierr.IsCode(err, tt.wantCode) {
				t.Fatalf("Validate() = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestGeofenceMetaValidateArea(t *testing.T) {
	tests := []struct {
		name string
		area string
		ok   bool
	}{
		{"absent", "", true},
		{"integer", "2 sq km", true},
		{"decimal", "2.5 sq km", true},
		{"bare number", "2.5", false},
		{"wrong unit", "2.5 sq mi", false},
		{"no number", "sq km", false},
		{"negative", "-2 sq km", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := GeofenceMeta{Area: tt.area}.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if !tt.ok && !apierr.IsCode(err, apierr.CodeInputError) {
				t.Fatalf("Validate() = %v, want INPUT_ERROR", err)
			}
		})
	}
}

func TestDeletedName(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	got := DeletedName("Depot North", now)
	want := "Depot North_1700000000000_deleted"
	if got != want {
		t.Fatalf("DeletedName() = %q, want %q", got, want)
	}
}
