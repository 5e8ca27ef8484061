package model

import (
	"fmt"
	"regexp"
	"time"

	"geofleet/api/internal/apierr"
)

// Geofence shape types.
const (
	GeofenceTypeCircle  = "circle"
	GeofenceTypePolygon = "polygon"
)

// Geofence is a named area scoped to an account and fleet. Deleting a
// geofence renames it and flags isdeleted so the name slot frees up while
// history stays queryable.
type Geofence struct {
	AccountID    string       `gorm:"column:accountid" json:"-"`
	FleetID      string       `gorm:"column:fleetid" json:"fleetid"`
	GeofenceID   string       `gorm:"column:geofenceid;primaryKey" json:"geofenceid"`
	GeofenceName string       `gorm:"column:geofencename" json:"geofencename"`
	IsActive     bool         `gorm:"column:isactive" json:"isactive"`
	IsDeleted    bool         `gorm:"column:isdeleted" json:"-"`
	GeofenceInfo GeofenceInfo `gorm:"column:geofenceinfo;type:jsonb" json:"geofenceinfo"`
	Meta         GeofenceMeta `gorm:"column:meta;type:jsonb" json:"meta"`
	CreatedAt    time.Time    `gorm:"column:createdat" json:"-"`
	CreatedBy    string       `gorm:"column:createdby" json:"-"`
	UpdatedAt    time.Time    `gorm:"column:updatedat" json:"-"`
	UpdatedBy    string       `gorm:"column:updatedby" json:"-"`
}

// TableName maps to the bare table name.
func (Geofence) TableName() string { return "geofence" }

// Validate checks the shape payload. Circles need a positive radius and
// exactly one center point, polygons at least three vertices. Anything
// other than a circle or polygon is rejected.
func (g GeofenceInfo) Validate() error {
	switch g.Type {
	case GeofenceTypeCircle:
		if g.Radius <= 0 {
			return apierr.New(apierr.CodeInvalidRadius)
		}
		if len(g.LatLngs) != 1 {
			return apierr.New(apierr.CodeInvalidCircle)
		}
	case GeofenceTypePolygon:
		if len(g.LatLngs) < 3 {
			return apierr.New(apierr.CodeInvalidPolygon)
		}
	default:
		return apierr.New(apierr.CodeInputError)
	}
	return nil
}

var areaPattern = regexp.MustCompile(`^\d+(\.\d+)?\s+sq\s+km$`)

// Validate checks the area label against the "<number> sq km" form. An
// empty area is treated as absent.
func (m GeofenceMeta) Validate() error {
	if m.Area != "" && !areaPattern.MatchString(m.Area) {
		return apierr.New(apierr.CodeInputError)
	}
	return nil
}

// DeletedName returns the rename applied on soft delete, freeing the
// original name for reuse.
func DeletedName(name string, now time.Time) string {
	return fmt.Sprintf("%s_%d_deleted", name, now.UnixMilli())
}

// GeofenceRuleSummary is the condensed rule view attached to geofence
// listings.
type GeofenceRuleSummary struct {
	GeofenceID   string `gorm:"column:geofenceid" json:"-"`
	RuleID       string `gorm:"column:ruleid" json:"ruleid"`
	RuleName     string `gorm:"column:rulename" json:"rulename"`
	RuleTypeID   string `gorm:"column:ruletypeid" json:"ruletypeid"`
	IsActive     bool   `gorm:"column:isactive" json:"isactive"`
	SeqNo        int    `gorm:"column:seqno" json:"seqno"`
	ActionTypeID string `gorm:"column:actiontypeid" json:"actiontypeid"`
}

// GeofenceDetail is a geofence plus the rules bound to it.
type GeofenceDetail struct {
	FleetID      string                `json:"fleetid"`
	GeofenceID   string                `json:"geofenceid"`
	GeofenceName string                `json:"geofencename"`
	IsActive     bool                  `json:"isactive"`
	GeofenceInfo GeofenceInfo          `json:"geofenceinfo"`
	Meta         GeofenceMeta          `json:"meta"`
	Rules        []GeofenceRuleSummary `json:"rules"`
}

// GeofenceActionInfo is the composite view of a geofence with its single
// governing rule and that rule's vehicles.
type GeofenceActionInfo struct {
	GeofenceID   string           `json:"geofenceid"`
	RuleID       string           `json:"ruleid"`
	GeofenceName string           `json:"geofencename"`
	GeofenceInfo GeofenceInfo     `json:"geofenceinfo"`
	Meta         GeofenceMeta     `json:"meta"`
	IsActive     bool             `json:"isactive"`
	ActionTypeID string           `json:"actiontypeid"`
	ActionType   string           `json:"actiontype"`
	Vehicles     []RuleVehicleRef `json:"vehicles"`
}

// GeoRuleItem is one row of the rules-for-a-geofence listing. CreatedAt
// is pre-formatted for display.
type GeoRuleItem struct {
	RuleID     string `json:"ruleid"`
	RuleName   string `json:"rulename"`
	RuleTypeID string `json:"ruletypeid"`
	IsActive   bool   `json:"isactive"`
	ActionType string `json:"actiontype"`
	CreatedAt  string `json:"createdat"`
	CreatedBy  string `json:"createdby"`
}

// GeoRuleList groups GeoRuleItem rows under their geofence.
type GeoRuleList struct {
	GeofenceID string        `json:"geofenceid"`
	Rules      []GeoRuleItem `json:"rules"`
}
