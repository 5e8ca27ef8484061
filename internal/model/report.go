package model

import "time"

// TripDurationCapMillis drops trip rows that span longer than a vehicle
// can plausibly stay in one trip; such rows are stitching artifacts.
const TripDurationCapMillis = 43020000

// bucketSpanMillis is 30 days, the column-store table partition width.
const bucketSpanMillis int64 = 30 * 86400000

// TimeBucketRange returns the inclusive bucket indexes covering the
// given epoch-millisecond range, empty when the range is inverted.
func TimeBucketRange(startMillis, endMillis int64) []int64 {
	if endMillis < startMillis {
		return nil
	}
	minBucket := startMillis / bucketSpanMillis
	maxBucket := endMillis / bucketSpanMillis
	count := maxBucket - minBucket + 1
	if count <= 0 {
		return nil
	}
	buckets := make([]int64, 0, count)
	for i := int64(0); i < count; i++ {
		buckets = append(buckets, minBucket+i)
	}
	return buckets
}

// istZone is fixed UTC+5:30; report consumers expect IST regardless of
// server locale or tzdata availability.
var istZone = time.FixedZone("IST", 5*3600+30*60)

// FormatIST renders an epoch-millisecond timestamp for display.
func FormatIST(epochMillis int64) string {
	return time.UnixMilli(epochMillis).In(istZone).Format("02 Jan 2006 | 15:04:05")
}

// GeoAlertFact is a raw geofence alert row from the column store.
type GeoAlertFact struct {
	RuleID    string  `ch:"ruleid" json:"ruleid"`
	VinNo     string  `ch:"vinno" json:"vinno"`
	AlertTime int64   `ch:"alerttime" json:"alerttime"`
	AlertType string  `ch:"alerttype" json:"alerttype"`
	AlertID   string  `ch:"alertid" json:"alertid"`
	Odo       float64 `ch:"odo" json:"odo"`
	Speed     float64 `ch:"speed" json:"speed"`
	Soc       float64 `ch:"soc" json:"soc"`
	Lat       float64 `ch:"lat" json:"lat"`
	Lng       float64 `ch:"lng" json:"lng"`
	AlertData string  `ch:"alertdata" json:"alertdata"`
	ProcTime  int64   `ch:"proctime" json:"proctime"`
}

// GeoTripFact is a raw geofence trip row from the column store.
type GeoTripFact struct {
	VinNo         string  `ch:"vinno" json:"vinno"`
	RuleID        string  `ch:"ruleid" json:"ruleid"`
	TripStartTime int64   `ch:"tripstarttime" json:"tripstarttime"`
	TripEndTime   int64   `ch:"tripendtime" json:"tripendtime"`
	TripID        string  `ch:"tripid" json:"tripid"`
	StartLat      float64 `ch:"startlat" json:"startlat"`
	StartLng      float64 `ch:"startlng" json:"startlng"`
	EndLat        float64 `ch:"endlat" json:"endlat"`
	EndLng        float64 `ch:"endlng" json:"endlng"`
	StartOdo      float64 `ch:"startodo" json:"startodo"`
	EndOdo        float64 `ch:"endodo" json:"endodo"`
	StartSoc      float64 `ch:"startsoc" json:"startsoc"`
	EndSoc        float64 `ch:"endsoc" json:"endsoc"`
	ProcTime      int64   `ch:"proctime" json:"proctime"`
}

// ReportRuleGeofence is one geofence of a rule used to enrich report
// rows, ordered by binding sequence.
type ReportRuleGeofence struct {
	GeofenceID   string `gorm:"column:geofenceid"`
	GeofenceName string `gorm:"column:geofencename"`
	FleetID      string `gorm:"column:fleetid"`
	ActionTypeID string `gorm:"column:actiontypeid"`
	ActionType   string `gorm:"column:actiontype"`
	SeqNo        int    `gorm:"column:seqno"`
}

// ReportRuleDetail carries the rule name and its ordered geofences for
// report enrichment.
type ReportRuleDetail struct {
	RuleID    string
	RuleName  string
	Geofences []ReportRuleGeofence
}

// GeoAlertRow is a formatted alert report row.
type GeoAlertRow struct {
	VinNo              string  `json:"vinno"`
	RegNo              string  `json:"regno"`
	AlertTime          string  `json:"alerttime"`
	AlertTimeEpoch     int64   `json:"alerttimeepoch"`
	AlertType          string  `json:"alerttype"`
	AlertID            string  `json:"alertid"`
	Soc                float64 `json:"soc"`
	Lat                float64 `json:"lat"`
	Lng                float64 `json:"lng"`
	RuleName           string  `json:"rulename"`
	GeofenceName       string  `json:"geofencename"`
	GeofenceID         string  `json:"geofenceid"`
	FleetID            string  `json:"fleetid"`
	GeofenceActionType string  `json:"geofenceactiontype"`
	ProcTime           string  `json:"proctime"`
}

// GeoTripRow is a formatted trip report row.
type GeoTripRow struct {
	VinNo                   string  `json:"vinno"`
	RegNo                   string  `json:"regno"`
	TripStartTime           string  `json:"tripstarttime"`
	TripStartTimeEpoch      int64   `json:"tripstarttimeepoch"`
	TripEndTime             string  `json:"tripendtime"`
	TripEndTimeEpoch        int64   `json:"tripendtimeepoch"`
	TripID                  string  `json:"tripid"`
	StartLat                float64 `json:"startlat"`
	StartLng                float64 `json:"startlng"`
	EndLat                  float64 `json:"endlat"`
	EndLng                  float64 `json:"endlng"`
	RuleName                string  `json:"rulename"`
	StartGeofenceName       string  `json:"startgeofencename"`
	StartGeofenceID         string  `json:"startgeofenceid"`
	StartGeofenceFleetID    string  `json:"startgeofencefleetid"`
	StartGeofenceActionType string  `json:"startgeofenceactiontype"`
	EndGeofenceName         string  `json:"endgeofencename"`
	EndGeofenceID           string  `json:"endgeofenceid"`
	EndGeofenceFleetID      string  `json:"endgeofencefleetid"`
	EndGeofenceActionType   string  `json:"endgeofenceactiontype"`
	StartOdo                float64 `json:"startodo"`
	EndOdo                  float64 `json:"endodo"`
	StartSoc                float64 `json:"startsoc"`
	EndSoc                  float64 `json:"endsoc"`
	ProcTime                string  `json:"proctime"`
}
