package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is a free-form jsonb column.
type JSONMap map[string]interface{}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value interface{}) error {
	return scanJSON(value, m)
}

// LatLng is a single coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeofenceInfo is the shape payload stored in geofence.geofenceinfo.
// Circles carry exactly one point plus a radius in meters, polygons a
// closed ring of at least three points.
type GeofenceInfo struct {
	Type    string   `json:"type" binding:"required,oneof=circle polygon"`
	LatLngs []LatLng `json:"latlngs" binding:"required,min=1"`
	Radius  float64  `json:"radius,omitempty"`
}

func (g GeofenceInfo) Value() (driver.Value, error) {
	return json.Marshal(g)
}

func (g *GeofenceInfo) Scan(value interface{}) error {
	return scanJSON(value, g)
}

// GeofenceMeta is the presentation payload stored in geofence.meta.
// Area is a display label like "2.5 sq km".
type GeofenceMeta struct {
	Address string   `json:"address"`
	Tag     []string `json:"tag"`
	Center  LatLng   `json:"center"`
	Colour  string   `json:"colour"`
	Area    string   `json:"area,omitempty"`
}

func (m GeofenceMeta) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *GeofenceMeta) Scan(value interface{}) error {
	return scanJSON(value, m)
}

// AlertMeta holds a rule user's notification switches.
type AlertMeta struct {
	EmailNoti bool `json:"emailnoti"`
	PushNoti  bool `json:"pushnoti"`
}

func (m AlertMeta) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *AlertMeta) Scan(value interface{}) error {
	return scanJSON(value, m)
}

func scanJSON(value, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", value)
	}
}
