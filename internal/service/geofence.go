package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"geofleet/api/internal/apierr"
	"geofleet/api/internal/model"
)

// GeofenceService handles geofence business logic
type GeofenceService struct {
	db     *gorm.DB
	events *EventPublisher
}

// NewGeofenceService creates a new geofence service
func NewGeofenceService(db *gorm.DB, events *EventPublisher) *GeofenceService {
	return &GeofenceService{
		db:     db,
		events: events,
	}
}

// Create creates a new geofence. The name must be unique among the
// fleet's non-deleted geofences.
func (s *GeofenceService) Create(ctx context.Context, accountID, userID, fleetID, name string, info model.GeofenceInfo, meta model.GeofenceMeta) (*model.GeofenceDetail, error) {
	nameExists, err := s.nameExists(ctx, accountID, fleetID, name)
	if err != nil {
		return nil, apierr.From(err)
	}
	if nameExists {
		return nil, apierr.New(apierr.CodeGeofenceExists)
	}

	if err := info.Validate(); err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	geofence := model.Geofence{
		AccountID:    accountID,
		FleetID:      fleetID,
		GeofenceID:   uuid.NewString(),
		GeofenceName: name,
		IsActive:     true,
		GeofenceInfo: info,
		Meta:         meta,
		CreatedAt:    now,
		CreatedBy:    userID,
		UpdatedAt:    now,
		UpdatedBy:    userID,
	}
	if err := s.db.WithContext(ctx).Create(&geofence).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}

	detail := &model.GeofenceDetail{
		FleetID:      geofence.FleetID,
		GeofenceID:   geofence.GeofenceID,
		GeofenceName: geofence.GeofenceName,
		IsActive:     geofence.IsActive,
		GeofenceInfo: geofence.GeofenceInfo,
		Meta:         geofence.Meta,
		Rules:        []model.GeofenceRuleSummary{},
	}
	s.events.Publish(SubjectGeofenceCreated, detail)
	return detail, nil
}

// List returns all non-deleted geofences across the given fleets, newest
// first, each carrying a summary of the rules bound to it.
func (s *GeofenceService) List(ctx context.Context, accountID string, fleetIDs []string) ([]model.GeofenceDetail, error) {
	var geofences []model.Geofence
	if err := s.db.WithContext(ctx).
		Where("fleetid = ANY(?) AND accountid = ? AND isdeleted = false", pq.Array(fleetIDs), accountID).
		Order("createdat DESC").
		Find(&geofences).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}

	geofenceIDs := make([]string, 0, len(geofences))
	for _, g := range geofences {
		geofenceIDs = append(geofenceIDs, g.GeofenceID)
	}

	rulesByGeofence := map[string][]model.GeofenceRuleSummary{}
	if len(geofenceIDs) > 0 {
		var summaries []model.GeofenceRuleSummary
		query := `SELECT DISTINCT ON (gri.geofenceid, gr.ruleid) gri.geofenceid, gr.ruleid, gr.rulename, gr.ruletypeid, gr.isactive, gri.seqno, gri.actiontypeid
			FROM geofenceruleinfo gri
			INNER JOIN geofencerule gr ON gri.ruleid = gr.ruleid
				AND gri.accountid = gr.accountid
				AND gri.fleetid = gr.fleetid
			WHERE gri.accountid = ?
				AND gri.fleetid = ANY(?)
				AND gri.geofenceid = ANY(?)
				AND gr.isdeleted = false
			ORDER BY gri.geofenceid, gr.ruleid, gri.seqno, gri.actiontypeid`
		if err := s.db.WithContext(ctx).Raw(query, accountID, pq.Array(fleetIDs), pq.Array(geofenceIDs)).Scan(&summaries).Error; err != nil {
			return nil, apierr.Wrap(apierr.CodeInternal, err)
		}
		for _, summary := range summaries {
			rulesByGeofence[summary.GeofenceID] = append(rulesByGeofence[summary.GeofenceID], summary)
		}
	}

	details := make([]model.GeofenceDetail, 0, len(geofences))
	for _, g := range geofences {
		rules := rulesByGeofence[g.GeofenceID]
		if rules == nil {
			rules = []model.GeofenceRuleSummary{}
		}
		details = append(details, model.GeofenceDetail{
			FleetID:      g.FleetID,
			GeofenceID:   g.GeofenceID,
			GeofenceName: g.GeofenceName,
			IsActive:     g.IsActive,
			GeofenceInfo: g.GeofenceInfo,
			Meta:         g.Meta,
			Rules:        rules,
		})
	}
	return details, nil
}

// GetByID returns one geofence with its bound rules.
func (s *GeofenceService) GetByID(ctx context.Context, accountID, fleetID, geofenceID string) (*model.GeofenceDetail, error) {
	geofence, err := s.get(ctx, accountID, fleetID, geofenceID)
	if err != nil {
		return nil, err
	}

	var summaries []model.GeofenceRuleSummary
	query := `SELECT gri.geofenceid, gr.ruleid, gr.rulename, gr.ruletypeid, gr.isactive, gri.seqno, gri.actiontypeid
		FROM geofenceruleinfo gri
		INNER JOIN geofencerule gr ON gri.ruleid = gr.ruleid
			AND gri.accountid = gr.accountid
			AND gri.fleetid = gr.fleetid
		WHERE gri.accountid = ?
			AND gri.fleetid = ?
			AND gri.geofenceid = ?
			AND gr.isdeleted = false
		ORDER BY gri.geofenceid, gri.seqno`
	if err := s.db.WithContext(ctx).Raw(query, accountID, fleetID, geofenceID).Scan(&summaries).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	if summaries == nil {
		summaries = []model.GeofenceRuleSummary{}
	}

	return &model.GeofenceDetail{
		FleetID:      geofence.FleetID,
		GeofenceID:   geofence.GeofenceID,
		GeofenceName: geofence.GeofenceName,
		IsActive:     geofence.IsActive,
		GeofenceInfo: geofence.GeofenceInfo,
		Meta:         geofence.Meta,
		Rules:        summaries,
	}, nil
}

// Update changes the name, shape or meta of a geofence. Omitted fields
// keep their stored values. A new name must not collide with another
// non-deleted geofence in the fleet.
func (s *GeofenceService) Update(ctx context.Context, accountID, userID, fleetID, geofenceID, name string, info *model.GeofenceInfo, meta *model.GeofenceMeta) (*model.GeofenceDetail, error) {
	if _, err := s.get(ctx, accountID, fleetID, geofenceID); err != nil {
		return nil, err
	}

	if name != "" {
		taken, err := s.newNameExists(ctx, accountID, fleetID, name, geofenceID)
		if err != nil {
			return nil, apierr.From(err)
		}
		if taken {
			return nil, apierr.New(apierr.CodeGeofenceNameExists)
		}
	}

	if info != nil {
		if err := info.Validate(); err != nil {
			return nil, err
		}
	}
	if meta != nil {
		if err := meta.Validate(); err != nil {
			return nil, err
		}
	}

	updates := geofenceUpdates(userID, name, info, meta, time.Now())
	if err := s.db.WithContext(ctx).Model(&model.Geofence{}).
		Where("accountid = ? AND fleetid = ? AND geofenceid = ?", accountID, fleetID, geofenceID).
		Updates(updates).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}

	detail, err := s.GetByID(ctx, accountID, fleetID, geofenceID)
	if err != nil {
		return nil, err
	}
	s.events.Publish(SubjectGeofenceUpdated, detail)
	return detail, nil
}

// UpdateState activates or deactivates a geofence. Deactivation is
// refused while rules still reference the geofence; activation has no
// such guard.
func (s *GeofenceService) UpdateState(ctx context.Context, accountID, userID, fleetID, geofenceID string, isActive bool) (*model.GeofenceStateResult, error) {
	if _, err := s.get(ctx, accountID, fleetID, geofenceID); err != nil {
		return nil, err
	}

	if !isActive {
		inUse, err := s.inUse(ctx, accountID, fleetID, geofenceID)
		if err != nil {
			return nil, apierr.From(err)
		}
		if inUse {
			return nil, apierr.New(apierr.CodeGeofenceInUse)
		}
	}

	if err := s.db.WithContext(ctx).Model(&model.Geofence{}).
		Where("accountid = ? AND fleetid = ? AND geofenceid = ? AND isdeleted = false", accountID, fleetID, geofenceID).
		Updates(map[string]interface{}{
			"isactive":  isActive,
			"updatedat": time.Now(),
			"updatedby": userID,
		}).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}

	result := &model.GeofenceStateResult{
		FleetID:    fleetID,
		GeofenceID: geofenceID,
		IsActive:   isActive,
		Message:    stateMessage("Geofence", isActive),
	}
	s.events.Publish(SubjectGeofenceState, result)
	return result, nil
}

// Delete soft-deletes a geofence. The geofence must be inactive and not
// referenced by any rule. The row is renamed so the original name can be
// reused.
func (s *GeofenceService) Delete(ctx context.Context, accountID, userID, fleetID, geofenceID string) error {
	geofence, err := s.get(ctx, accountID, fleetID, geofenceID)
	if err != nil {
		return err
	}

	if geofence.IsActive {
		return apierr.New(apierr.CodeGeofenceActive)
	}

	inUse, err := s.inUse(ctx, accountID, fleetID, geofenceID)
	if err != nil {
		return apierr.From(err)
	}
	if inUse {
		return apierr.New(apierr.CodeGeofenceInUse)
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&model.Geofence{}).
		Where("accountid = ? AND fleetid = ? AND geofenceid = ?", accountID, fleetID, geofenceID).
		Updates(map[string]interface{}{
			"geofencename": model.DeletedName(geofence.GeofenceName, now),
			"isdeleted":    true,
			"updatedat":    now,
			"updatedby":    userID,
		}).Error; err != nil {
		return apierr.Wrap(apierr.CodeInternal, err)
	}

	s.events.Publish(SubjectGeofenceDeleted, map[string]string{
		"fleetid":    fleetID,
		"geofenceid": geofenceID,
	})
	return nil
}

// ListGeoRules lists the rules bound to one geofence with display
// timestamps.
func (s *GeofenceService) ListGeoRules(ctx context.Context, accountID, fleetID, geofenceID string) (*model.GeoRuleList, error) {
	if _, err := s.get(ctx, accountID, fleetID, geofenceID); err != nil {
		return nil, err
	}

	var rows []struct {
		RuleID     string    `gorm:"column:ruleid"`
		RuleName   string    `gorm:"column:rulename"`
		RuleTypeID string    `gorm:"column:ruletypeid"`
		IsActive   bool      `gorm:"column:isactive"`
		CreatedAt  time.Time `gorm:"column:createdat"`
		CreatedBy  string    `gorm:"column:createdby"`
		ActionType string    `gorm:"column:actiontype"`
	}
	query := `SELECT r.ruleid, r.rulename, r.ruletypeid, r.isactive, r.createdat, r.createdby, a.actiontype
		FROM geofencerule r, geofenceruleinfo gr, rulegeofenceaction a
		WHERE gr.accountid = ?
			AND gr.fleetid = ?
			AND gr.geofenceid = ?
			AND r.accountid = gr.accountid
			AND r.fleetid = gr.fleetid
			AND r.ruleid = gr.ruleid
			AND a.actiontypeid = gr.actiontypeid
			AND r.isdeleted = false`
	if err := s.db.WithContext(ctx).Raw(query, accountID, fleetID, geofenceID).Scan(&rows).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}

	items := make([]model.GeoRuleItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, model.GeoRuleItem{
			RuleID:     row.RuleID,
			RuleName:   row.RuleName,
			RuleTypeID: row.RuleTypeID,
			IsActive:   row.IsActive,
			ActionType: row.ActionType,
			CreatedAt:  model.FormatIST(row.CreatedAt.UnixMilli()),
			CreatedBy:  row.CreatedBy,
		})
	}
	return &model.GeoRuleList{GeofenceID: geofenceID, Rules: items}, nil
}

// geofenceUpdates builds the column map for Update. Only supplied
// fields make it into the map.
func geofenceUpdates(userID, name string, info *model.GeofenceInfo, meta *model.GeofenceMeta, now time.Time) map[string]interface{} {
	updates := map[string]interface{}{
		"updatedat": now,
		"updatedby": userID,
	}
	if name != "" {
		updates["geofencename"] = name
	}
	if info != nil {
		updates["geofenceinfo"] = *info
	}
	if meta != nil {
		updates["meta"] = *meta
	}
	return updates
}

// get returns the non-deleted geofence row or GEOFENCE_NOT_FOUND.
func (s *GeofenceService) get(ctx context.Context, accountID, fleetID, geofenceID string) (*model.Geofence, error) {
	var geofence model.Geofence
	err := s.db.WithContext(ctx).
		Where("accountid = ? AND fleetid = ? AND geofenceid = ? AND isdeleted = false", accountID, fleetID, geofenceID).
		First(&geofence).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.New(apierr.CodeGeofenceNotFound)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	return &geofence, nil
}

func (s *GeofenceService) nameExists(ctx context.Context, accountID, fleetID, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Geofence{}).
		Where("accountid = ? AND fleetid = ? AND geofencename = ? AND isdeleted = false", accountID, fleetID, name).
		Count(&count).Error
	return count > 0, err
}

func (s *GeofenceService) newNameExists(ctx context.Context, accountID, fleetID, name, excludeGeofenceID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Geofence{}).
		Where("accountid = ? AND fleetid = ? AND geofencename = ? AND geofenceid != ? AND isdeleted = false", accountID, fleetID, name, excludeGeofenceID).
		Count(&count).Error
	return count > 0, err
}

// IsActive reports whether a non-deleted geofence is active. Missing
// geofences surface as GEOFENCE_NOT_FOUND.
func (s *GeofenceService) IsActive(ctx context.Context, accountID, fleetID, geofenceID string) (bool, error) {
	geofence, err := s.get(ctx, accountID, fleetID, geofenceID)
	if err != nil {
		return false, err
	}
	return geofence.IsActive, nil
}

// inUse reports whether any rule binding references the geofence.
func (s *GeofenceService) inUse(ctx context.Context, accountID, fleetID, geofenceID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.RuleGeofence{}).
		Where("accountid = ? AND fleetid = ? AND geofenceid = ?", accountID, fleetID, geofenceID).
		Count(&count).Error
	return count > 0, err
}

func stateMessage(entity string, isActive bool) string {
	if isActive {
		return entity + " activated successfully"
	}
	return entity + " deactivated successfully"
}
