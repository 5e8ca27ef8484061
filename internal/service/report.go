package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"geofleet/api/internal/apierr"
	"geofleet/api/internal/clickhouse"
	"geofleet/api/internal/model"
)

// columnStore is the slice of the ClickHouse client the report service
// needs.
type columnStore interface {
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// ReportService builds alert and trip reports from the column store.
// Facts are spread over 30-day bucket tables; each report fans out over
// the buckets covering the requested window, then enriches rows with
// rule and vehicle details from postgres.
type ReportService struct {
	db         *gorm.DB
	ch         columnStore
	chDatabase string
	coreSchema string
}

// NewReportService creates a new report service
func NewReportService(db *gorm.DB, ch columnStore, chDatabase, coreSchema string) *ReportService {
	return &ReportService{
		db:         db,
		ch:         ch,
		chDatabase: chDatabase,
		coreSchema: coreSchema,
	}
}

// AlertReportByVehicles returns the formatted alert report for the given
// VINs over [startTime, endTime] epoch milliseconds.
func (s *ReportService) AlertReportByVehicles(ctx context.Context, accountID string, vinnos []string, startTime, endTime int64) ([]model.GeoAlertRow, error) {
	return s.alertReport(ctx, accountID, "vinno", vinnos, startTime, endTime)
}

// AlertReportByRules returns the formatted alert report for the given
// rules.
func (s *ReportService) AlertReportByRules(ctx context.Context, accountID string, ruleIDs []string, startTime, endTime int64) ([]model.GeoAlertRow, error) {
	return s.alertReport(ctx, accountID, "ruleid", ruleIDs, startTime, endTime)
}

// TripReportByVehicles returns the formatted trip report for the given
// VINs.
func (s *ReportService) TripReportByVehicles(ctx context.Context, accountID string, vinnos []string, startTime, endTime int64) ([]model.GeoTripRow, error) {
	return s.tripReport(ctx, accountID, "vinno", vinnos, startTime, endTime)
}

// TripReportByRules returns the formatted trip report for the given
// rules.
func (s *ReportService) TripReportByRules(ctx context.Context, accountID string, ruleIDs []string, startTime, endTime int64) ([]model.GeoTripRow, error) {
	return s.tripReport(ctx, accountID, "ruleid", ruleIDs, startTime, endTime)
}

func (s *ReportService) alertReport(ctx context.Context, accountID, filterColumn string, ids []string, startTime, endTime int64) ([]model.GeoAlertRow, error) {
	buckets, err := validateWindow(startTime, endTime)
	if err != nil {
		return nil, err
	}

	bucketFacts := make([][]model.GeoAlertFact, len(buckets))
	g, gctx := errgroup.WithContext(ctx)
	for i, bucket := range buckets {
		i, bucket := i, bucket
		g.Go(func() error {
			query := fmt.Sprintf(`SELECT ruleid, vinno, alerttime, alerttype, alertid, odo, speed, soc, lat, lng, alertdata, proctime
				FROM %s.geoalertdata_%d
				WHERE %s IN (?)
					AND alerttime >= ?
					AND alerttime <= ?
					AND lng != 0
					AND lat != 0
					AND accountid = ?`, s.chDatabase, bucket, filterColumn)
			var rows []model.GeoAlertFact
			if err := s.ch.Select(gctx, &rows, query, ids, startTime, endTime, accountID); err != nil {
				// Buckets materialize on first write; a missing one
				// is an empty window, not a failure.
				if clickhouse.IsUnknownTable(err) {
					return nil
				}
				return err
			}
			bucketFacts[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	var facts []model.GeoAlertFact
	for _, rows := range bucketFacts {
		facts = append(facts, rows...)
	}

	ruleDetails, err := s.ruleDetailsMap(ctx, collect(facts, func(f model.GeoAlertFact) string { return f.RuleID }))
	if err != nil {
		return nil, apierr.From(err)
	}
	regNos, err := s.vehRegNoMap(ctx, collect(facts, func(f model.GeoAlertFact) string { return f.VinNo }))
	if err != nil {
		return nil, apierr.From(err)
	}

	rows := make([]model.GeoAlertRow, 0, len(facts))
	for _, fact := range facts {
		detail, ok := ruleDetails[fact.RuleID]
		if !ok || detail.RuleName == "" {
			continue
		}
		row := model.GeoAlertRow{
			VinNo:          fact.VinNo,
			RegNo:          regNos[fact.VinNo],
			AlertTime:      model.FormatIST(fact.AlertTime),
			AlertTimeEpoch: fact.AlertTime,
			AlertType:      fact.AlertType,
			AlertID:        fact.AlertID,
			Soc:            fact.Soc,
			Lat:            fact.Lat,
			Lng:            fact.Lng,
			RuleName:       detail.RuleName,
			ProcTime:       model.FormatIST(fact.ProcTime),
		}
		if len(detail.Geofences) > 0 {
			first := detail.Geofences[0]
			row.GeofenceName = first.GeofenceName
			row.GeofenceID = first.GeofenceID
			row.GeofenceActionType = first.ActionType
			row.FleetID = first.FleetID
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].AlertTimeEpoch < rows[j].AlertTimeEpoch })
	return rows, nil
}

func (s *ReportService) tripReport(ctx context.Context, accountID, filterColumn string, ids []string, startTime, endTime int64) ([]model.GeoTripRow, error) {
	buckets, err := validateWindow(startTime, endTime)
	if err != nil {
		return nil, err
	}

	bucketFacts := make([][]model.GeoTripFact, len(buckets))
	g, gctx := errgroup.WithContext(ctx)
	for i, bucket := range buckets {
		i, bucket := i, bucket
		g.Go(func() error {
			query := fmt.Sprintf(`SELECT vinno, ruleid, tripstarttime, tripendtime, tripid, startlat, startlng, endlat, endlng, startodo, endodo, startsoc, endsoc, proctime
				FROM %s.geotripdata_%d
				WHERE %s IN (?)
					AND tripstarttime >= ?
					AND tripstarttime <= ?
					AND accountid = ?`, s.chDatabase, bucket, filterColumn)
			var rows []model.GeoTripFact
			if err := s.ch.Select(gctx, &rows, query, ids, startTime, endTime, accountID); err != nil {
				if clickhouse.IsUnknownTable(err) {
					return nil
				}
				return err
			}
			bucketFacts[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	var facts []model.GeoTripFact
	for _, rows := range bucketFacts {
		facts = append(facts, rows...)
	}

	// Over-long trips are stitching artifacts; drop them before
	// enrichment.
	capped := facts[:0]
	for _, fact := range facts {
		if fact.TripEndTime-fact.TripStartTime > model.TripDurationCapMillis {
			continue
		}
		capped = append(capped, fact)
	}
	facts = capped

	ruleDetails, err := s.ruleDetailsMap(ctx, collect(facts, func(f model.GeoTripFact) string { return f.RuleID }))
	if err != nil {
		return nil, apierr.From(err)
	}
	regNos, err := s.vehRegNoMap(ctx, collect(facts, func(f model.GeoTripFact) string { return f.VinNo }))
	if err != nil {
		return nil, apierr.From(err)
	}

	rows := make([]model.GeoTripRow, 0, len(facts))
	for _, fact := range facts {
		detail, ok := ruleDetails[fact.RuleID]
		if !ok || detail.RuleName == "" {
			continue
		}
		row := model.GeoTripRow{
			VinNo:              fact.VinNo,
			RegNo:              regNos[fact.VinNo],
			TripStartTime:      model.FormatIST(fact.TripStartTime),
			TripStartTimeEpoch: fact.TripStartTime,
			TripEndTime:        model.FormatIST(fact.TripEndTime),
			TripEndTimeEpoch:   fact.TripEndTime,
			TripID:             fact.TripID,
			StartLat:           fact.StartLat,
			StartLng:           fact.StartLng,
			EndLat:             fact.EndLat,
			EndLng:             fact.EndLng,
			RuleName:           detail.RuleName,
			StartOdo:           fact.StartOdo,
			EndOdo:             fact.EndOdo,
			StartSoc:           fact.StartSoc,
			EndSoc:             fact.EndSoc,
			ProcTime:           model.FormatIST(fact.ProcTime),
		}
		if len(detail.Geofences) > 0 {
			first := detail.Geofences[0]
			row.StartGeofenceName = first.GeofenceName
			row.StartGeofenceID = first.GeofenceID
			row.StartGeofenceActionType = first.ActionType
			row.StartGeofenceFleetID = first.FleetID
			last := detail.Geofences[len(detail.Geofences)-1]
			row.EndGeofenceName = last.GeofenceName
			row.EndGeofenceID = last.GeofenceID
			row.EndGeofenceActionType = last.ActionType
			row.EndGeofenceFleetID = last.FleetID
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TripStartTimeEpoch < rows[j].TripStartTimeEpoch })
	return rows, nil
}

// validateWindow checks the epoch-millisecond range and returns the
// covering bucket indexes.
func validateWindow(startTime, endTime int64) ([]int64, error) {
	now := time.Now().UnixMilli()
	if startTime >= endTime || endTime > now || startTime < 0 {
		return nil, apierr.New(apierr.CodeInvalidTimeRange)
	}
	buckets := model.TimeBucketRange(startTime, endTime)
	if len(buckets) == 0 {
		return nil, apierr.New(apierr.CodeNoValidTimeBuckets)
	}
	return buckets, nil
}

// ruleDetailsMap loads the name and ordered geofences of each rule id.
func (s *ReportService) ruleDetailsMap(ctx context.Context, ruleIDs []string) (map[string]*model.ReportRuleDetail, error) {
	details := map[string]*model.ReportRuleDetail{}
	if len(ruleIDs) == 0 {
		return details, nil
	}

	var rows []struct {
		RuleID       string `gorm:"column:ruleid"`
		RuleName     string `gorm:"column:rulename"`
		GeofenceID   string `gorm:"column:geofenceid"`
		FleetID      string `gorm:"column:fleetid"`
		GeofenceName string `gorm:"column:geofencename"`
		ActionTypeID string `gorm:"column:actiontypeid"`
		ActionType   string `gorm:"column:actiontype"`
		SeqNo        int    `gorm:"column:seqno"`
	}
	query := `SELECT r.ruleid, r.rulename, g.geofenceid, g.fleetid, g.geofencename, gi.actiontypeid, rga.actiontype, gi.seqno
		FROM geofencerule r
		INNER JOIN geofenceruleinfo gi ON r.ruleid = gi.ruleid
		INNER JOIN geofence g ON gi.geofenceid = g.geofenceid
		INNER JOIN rulegeofenceaction rga ON gi.actiontypeid = rga.actiontypeid
		WHERE r.ruleid = ANY(?)
		ORDER BY r.ruleid, gi.seqno`
	if err := s.db.WithContext(ctx).Raw(query, pq.Array(ruleIDs)).Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, row := range rows {
		detail, ok := details[row.RuleID]
		if !ok {
			detail = &model.ReportRuleDetail{RuleID: row.RuleID, RuleName: row.RuleName}
			details[row.RuleID] = detail
		}
		detail.Geofences = append(detail.Geofences, model.ReportRuleGeofence{
			GeofenceID:   row.GeofenceID,
			GeofenceName: row.GeofenceName,
			FleetID:      row.FleetID,
			ActionTypeID: row.ActionTypeID,
			ActionType:   row.ActionType,
			SeqNo:        row.SeqNo,
		})
	}
	return details, nil
}

// vehRegNoMap maps VINs to display registration numbers, falling back
// to the VIN itself.
func (s *ReportService) vehRegNoMap(ctx context.Context, vinnos []string) (map[string]string, error) {
	regNos := map[string]string{}
	if len(vinnos) == 0 {
		return regNos, nil
	}

	var rows []struct {
		VinNo        string `gorm:"column:vinno"`
		LicensePlate string `gorm:"column:license_plate"`
	}
	query := fmt.Sprintf("SELECT vinno, license_plate FROM %s.vehicle WHERE vinno = ANY(?)", s.coreSchema)
	if err := s.db.WithContext(ctx).Raw(query, pq.Array(vinnos)).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.LicensePlate != "" {
			regNos[row.VinNo] = row.LicensePlate
		} else {
			regNos[row.VinNo] = row.VinNo
		}
	}
	return regNos, nil
}

// AlertReportXLSX renders alert rows as a spreadsheet.
func (s *ReportService) AlertReportXLSX(rows []model.GeoAlertRow) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "Geofence Alerts"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"VIN", "Reg No", "Alert Time", "Alert Type", "Alert ID", "SOC", "Lat", "Lng", "Rule", "Geofence", "Fleet ID", "Action Type", "Processed At"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}
	for i, row := range rows {
		values := []interface{}{row.VinNo, row.RegNo, row.AlertTime, row.AlertType, row.AlertID, row.Soc, row.Lat, row.Lng, row.RuleName, row.GeofenceName, row.FleetID, row.GeofenceActionType, row.ProcTime}
		for j, value := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue(sheet, cell, value)
		}
	}
	return f, nil
}

// TripReportXLSX renders trip rows as a spreadsheet.
func (s *ReportService) TripReportXLSX(rows []model.GeoTripRow) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "Geofence Trips"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"VIN", "Reg No", "Trip Start", "Trip End", "Trip ID", "Start Lat", "Start Lng", "End Lat", "End Lng", "Rule", "Start Geofence", "End Geofence", "Start Odo", "End Odo", "Start SOC", "End SOC", "Processed At"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}
	for i, row := range rows {
		values := []interface{}{row.VinNo, row.RegNo, row.TripStartTime, row.TripEndTime, row.TripID, row.StartLat, row.StartLng, row.EndLat, row.EndLng, row.RuleName, row.StartGeofenceName, row.EndGeofenceName, row.StartOdo, row.EndOdo, row.StartSoc, row.EndSoc, row.ProcTime}
		for j, value := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue(sheet, cell, value)
		}
	}
	return f, nil
}

// collect extracts a key from every element, deduplicated.
func collect[T any](items []T, key func(T) string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		k := key(item)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
