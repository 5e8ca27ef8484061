package model

// GeofenceStateResult reports a geofence activation change.
type GeofenceStateResult struct {
	FleetID    string `json:"fleetid"`
	GeofenceID string `json:"geofenceid"`
	IsActive   bool   `json:"isactive"`
	Message    string `json:"message"`
}

// RuleStateResult reports a rule activation change.
type RuleStateResult struct {
	FleetID  string `json:"fleetid"`
	RuleID   string `json:"ruleid"`
	IsActive bool   `json:"isactive"`
	Message  string `json:"message"`
}

// GeofenceRuleStateResult reports a paired geofence+rule activation
// change.
type GeofenceRuleStateResult struct {
	GeofenceID string `json:"geofenceid"`
	RuleID     string `json:"ruleid"`
	IsActive   bool   `json:"isactive"`
	Message    string `json:"message"`
}

// Assignment results partition the requested ids: the ones acted on and
// the ones that were ineligible.

type VehiclesAddResult struct {
	VehiclesAdded   []string `json:"vehiclesAdded"`
	VehiclesSkipped []string `json:"vehiclesSkipped"`
}

type VehiclesDeleteResult struct {
	VehiclesDeleted   []string `json:"vehiclesDeleted"`
	VehiclesNotExists []string `json:"vehiclesNotExists"`
}

type FleetsAddResult struct {
	FleetsAdded   []string `json:"fleetsAdded"`
	FleetsSkipped []string `json:"fleetsSkipped"`
}

type FleetsDeleteResult struct {
	FleetsDeleted   []string `json:"fleetsDeleted"`
	FleetsNotExists []string `json:"fleetsNotExists"`
}

type UsersAddResult struct {
	UsersAdded   []string `json:"usersAdded"`
	UsersSkipped []string `json:"usersSkipped"`
}

type UsersDeleteResult struct {
	UsersDeleted   []string `json:"usersDeleted"`
	UsersNotExists []string `json:"usersNotExists"`
}

// UserNotiResult echoes the updated notification switches for a rule
// user.
type UserNotiResult struct {
	UserID    string    `json:"userid"`
	AlertMeta AlertMeta `json:"alertmeta"`
}
