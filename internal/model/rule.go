package model

import (
	"time"

	"geofleet/api/internal/apierr"
)

// Rule type identifiers.
const (
	RuleTypeEntryExit = "ENTRY_EXIT"
	RuleTypeTrip      = "TRIP"
)

// Action type identifiers. TRIP is a derived action and never directly
// assignable to a binding.
const (
	ActionTypeEntry     = "ENTRY"
	ActionTypeExit      = "EXIT"
	ActionTypeEntryExit = "ENTRY_EXIT"
	ActionTypeTrip      = "TRIP"
)

// Rule is an alerting rule over one or two geofences.
type Rule struct {
	AccountID  string    `gorm:"column:accountid" json:"-"`
	FleetID    string    `gorm:"column:fleetid" json:"fleetid"`
	RuleID     string    `gorm:"column:ruleid;primaryKey" json:"ruleid"`
	RuleName   string    `gorm:"column:rulename" json:"rulename"`
	RuleTypeID string    `gorm:"column:ruletypeid" json:"ruletypeid"`
	IsActive   bool      `gorm:"column:isactive" json:"isactive"`
	IsDeleted  bool      `gorm:"column:isdeleted" json:"-"`
	RuleMeta   JSONMap   `gorm:"column:rulemeta;type:jsonb" json:"rulemeta"`
	CreatedAt  time.Time `gorm:"column:createdat" json:"-"`
	CreatedBy  string    `gorm:"column:createdby" json:"-"`
	UpdatedAt  time.Time `gorm:"column:updatedat" json:"-"`
	UpdatedBy  string    `gorm:"column:updatedby" json:"-"`
}

func (Rule) TableName() string { return "geofencerule" }

// RuleGeofence binds a geofence to a rule at a sequence position.
type RuleGeofence struct {
	AccountID        string    `gorm:"column:accountid"`
	FleetID          string    `gorm:"column:fleetid"`
	RuleID           string    `gorm:"column:ruleid"`
	GeofenceID       string    `gorm:"column:geofenceid"`
	SeqNo            int       `gorm:"column:seqno"`
	ActionTypeID     string    `gorm:"column:actiontypeid"`
	GeofenceRuleMeta JSONMap   `gorm:"column:geofencerulemeta;type:jsonb"`
	UpdatedAt        time.Time `gorm:"column:updatedat"`
	UpdatedBy        string    `gorm:"column:updatedby"`
}

func (RuleGeofence) TableName() string { return "geofenceruleinfo" }

// RuleVehicle assigns a vehicle to a rule by VIN.
type RuleVehicle struct {
	AccountID string    `gorm:"column:accountid"`
	FleetID   string    `gorm:"column:fleetid"`
	RuleID    string    `gorm:"column:ruleid"`
	VinNo     string    `gorm:"column:vinno"`
	CreatedAt time.Time `gorm:"column:createdat"`
	CreatedBy string    `gorm:"column:createdby"`
}

func (RuleVehicle) TableName() string { return "geofencerulevehicle" }

// RuleFleet assigns a sub-fleet to a rule.
type RuleFleet struct {
	AccountID  string    `gorm:"column:accountid"`
	FleetID    string    `gorm:"column:fleetid"`
	RuleID     string    `gorm:"column:ruleid"`
	SubFleetID string    `gorm:"column:subfleetid"`
	CreatedAt  time.Time `gorm:"column:createdat"`
	CreatedBy  string    `gorm:"column:createdby"`
	UpdatedAt  time.Time `gorm:"column:updatedat"`
	UpdatedBy  string    `gorm:"column:updatedby"`
}

func (RuleFleet) TableName() string { return "geofencerulefleet" }

// RuleUser assigns a user to a rule together with notification switches.
type RuleUser struct {
	AccountID string    `gorm:"column:accountid"`
	FleetID   string    `gorm:"column:fleetid"`
	RuleID    string    `gorm:"column:ruleid"`
	UserID    string    `gorm:"column:userid"`
	AlertMeta AlertMeta `gorm:"column:alertmeta;type:jsonb"`
	CreatedAt time.Time `gorm:"column:createdat"`
	CreatedBy string    `gorm:"column:createdby"`
	UpdatedAt time.Time `gorm:"column:updatedat"`
	UpdatedBy string    `gorm:"column:updatedby"`
}

func (RuleUser) TableName() string { return "geofenceruleuser" }

// RuleType is a reference table row.
type RuleType struct {
	RuleTypeID string `gorm:"column:ruletypeid;primaryKey" json:"ruletypeid"`
	RuleType   string `gorm:"column:ruletype" json:"ruletype"`
}

func (RuleType) TableName() string { return "geofenceruletype" }

// RuleAction is a reference table row.
type RuleAction struct {
	ActionTypeID string `gorm:"column:actiontypeid;primaryKey" json:"actiontypeid"`
	ActionType   string `gorm:"column:actiontype" json:"actiontype"`
}

func (RuleAction) TableName() string { return "rulegeofenceaction" }

// RuleBinding is the request form of a geofence binding. TRIP is a
// derived action, never accepted on a binding.
type RuleBinding struct {
	GeofenceID   string  `json:"geofenceid" binding:"required,uuid"`
	SeqNo        int     `json:"seqno" binding:"oneof=0 1"`
	ActionTypeID string  `json:"actiontypeid" binding:"required,oneof=ENTRY EXIT ENTRY_EXIT"`
	Meta         JSONMap `json:"meta"`
}

// ValidateTripBindings rejects binding combinations that cannot form a
// trip. Only TRIP rules are constrained: ENTRY_EXIT actions are never
// allowed, EXIT->EXIT never pairs, ENTRY->ENTRY needs two distinct
// geofences, and mixed ENTRY/EXIT pairs need the same geofence.
func ValidateTripBindings(ruleTypeID string, bindings []RuleBinding) error {
	if ruleTypeID != RuleTypeTrip {
		return nil
	}
	var first, second RuleBinding
	if len(bindings) > 0 {
		first = bindings[0]
	}
	if len(bindings) > 1 {
		second = bindings[1]
	}
	if first.ActionTypeID == ActionTypeEntryExit || second.ActionTypeID == ActionTypeEntryExit {
		return apierr.New(apierr.CodeInvalidRuleType)
	}
	if first.ActionTypeID == ActionTypeExit && second.ActionTypeID == ActionTypeExit {
		return apierr.New(apierr.CodeInvalidRuleType)
	}
	if first.GeofenceID == second.GeofenceID {
		if first.ActionTypeID == ActionTypeEntry && second.ActionTypeID == ActionTypeEntry {
			return apierr.New(apierr.CodeInvalidRuleType)
		}
	} else {
		if (first.ActionTypeID == ActionTypeExit && second.ActionTypeID == ActionTypeEntry) ||
			(first.ActionTypeID == ActionTypeEntry && second.ActionTypeID == ActionTypeExit) {
			return apierr.New(apierr.CodeInvalidRuleType)
		}
	}
	return nil
}

// RuleGeofenceInfo is a fully hydrated binding inside a RuleDetail.
type RuleGeofenceInfo struct {
	GeofenceID       string       `json:"geofenceid"`
	GeofenceName     string       `json:"geofencename"`
	GeofenceInfo     GeofenceInfo `json:"geofenceinfo"`
	Meta             GeofenceMeta `json:"meta"`
	SeqNo            int          `json:"seqno"`
	ActionTypeID     string       `json:"actiontypeid"`
	ActionType       string       `json:"actiontype"`
	GeofenceRuleMeta JSONMap      `json:"geofencerulemeta"`
}

// RuleVehicleRef is a vehicle assigned to a rule, with its display
// registration number.
type RuleVehicleRef struct {
	VinNo string `json:"vinno"`
	RegNo string `json:"regno"`
}

// RuleFleetRef is a sub-fleet assigned to a rule.
type RuleFleetRef struct {
	SubFleetID string `json:"subfleetid"`
	Name       string `json:"name"`
}

// RuleUserRef is a user assigned to a rule.
type RuleUserRef struct {
	UserID    string    `json:"userid"`
	Name      string    `json:"name"`
	AlertMeta AlertMeta `json:"alertmeta"`
}

// RuleDetail is the hydrated rule view: the rule row plus its bindings,
// vehicles, sub-fleets and users.
type RuleDetail struct {
	FleetID    string             `json:"fleetid"`
	RuleID     string             `json:"ruleid"`
	RuleName   string             `json:"rulename"`
	RuleTypeID string             `json:"ruletypeid"`
	RuleType   string             `json:"ruletype"`
	IsActive   bool               `json:"isactive"`
	RuleMeta   JSONMap            `json:"rulemeta"`
	Geofences  []RuleGeofenceInfo `json:"geofences"`
	Vehicles   []RuleVehicleRef   `json:"vehicles"`
	SubFleets  []RuleFleetRef     `json:"sfleets"`
	Users      []RuleUserRef      `json:"users"`
}

// RuleUpdateResult echoes the rule row after an update.
type RuleUpdateResult struct {
	RuleID     string  `json:"ruleid"`
	RuleName   string  `json:"rulename"`
	RuleTypeID string  `json:"ruletypeid"`
	IsActive   bool    `json:"isactive"`
	RuleMeta   JSONMap `json:"rulemeta"`
}

// RuleListItem is one row of the rules listing.
type RuleListItem struct {
	FleetID  string  `gorm:"column:fleetid" json:"fleetid"`
	RuleID   string  `gorm:"column:ruleid" json:"ruleid"`
	RuleName string  `gorm:"column:rulename" json:"rulename"`
	RuleMeta JSONMap `gorm:"column:rulemeta" json:"rulemeta"`
	RuleType string  `gorm:"column:ruletype" json:"ruletype"`
	IsActive bool    `gorm:"column:isactive" json:"isactive"`
}

// AssignableVehicle is a candidate vehicle for rule assignment.
type AssignableVehicle struct {
	VinNo   string `gorm:"column:vinno" json:"vinno"`
	RegNo   string `gorm:"column:regno" json:"regno"`
	FleetID string `gorm:"column:fleetid" json:"fleetid"`
}

// AssignableFleet is a candidate sub-fleet for rule assignment.
type AssignableFleet struct {
	FleetID string `gorm:"column:fleetid" json:"fleetid"`
	Name    string `gorm:"column:name" json:"name"`
}

// AssignableUser is a candidate user for rule assignment.
type AssignableUser struct {
	UserID      string `gorm:"column:userid" json:"userid"`
	DisplayName string `gorm:"column:displayname" json:"displayname"`
	FleetID     string `gorm:"column:fleetid" json:"fleetid"`
}
