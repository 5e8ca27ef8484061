package service

import (
	"context"
	"time"

	"gorm.io/gorm"

	"geofleet/api/internal/apierr"
	"geofleet/api/internal/model"
)

// CompositeRuleInput carries the rule portion of a combined
// geofence+rule creation.
type CompositeRuleInput struct {
	ActionTypeID string
	Meta         model.JSONMap
}

// CompositeService implements the combined geofence+rule workflows.
// The individual stores stay single-purpose; cross-store consistency is
// handled here with explicit compensation.
type CompositeService struct {
	db          *gorm.DB
	geofences   *GeofenceService
	rules       *RuleService
	assignments *AssignmentService
	events      *EventPublisher
}

// NewCompositeService creates a new composite service
func NewCompositeService(db *gorm.DB, geofences *GeofenceService, rules *RuleService, assignments *AssignmentService, events *EventPublisher) *CompositeService {
	return &CompositeService{
		db:          db,
		geofences:   geofences,
		rules:       rules,
		assignments: assignments,
		events:      events,
	}
}

// CreateGeofenceWithRule creates a circular geofence, an ENTRY_EXIT
// rule named "<geofence> Rule" bound to it, and the vehicle
// assignments, undoing earlier steps when a later one fails.
func (s *CompositeService) CreateGeofenceWithRule(ctx context.Context, accountID, userID, fleetID, geofenceName string, info model.GeofenceInfo, meta model.GeofenceMeta, rule CompositeRuleInput, vehicles []string) (*model.GeofenceActionInfo, error) {
	var geofenceID, ruleID string

	if len(info.LatLngs) > 0 {
		meta.Center = info.LatLngs[0]
	}

	steps := []sagaStep{
		{
			name: "create geofence",
			run: func(ctx context.Context) error {
				created, err := s.geofences.Create(ctx, accountID, userID, fleetID, geofenceName, model.GeofenceInfo{
					Type:    model.GeofenceTypeCircle,
					LatLngs: info.LatLngs,
					Radius:  info.Radius,
				}, meta)
				if err != nil {
					return err
				}
				geofenceID = created.GeofenceID
				return nil
			},
			compensate: func(ctx context.Context) error {
				if _, err := s.geofences.UpdateState(ctx, accountID, userID, fleetID, geofenceID, false); err != nil {
					return err
				}
				return s.geofences.Delete(ctx, accountID, userID, fleetID, geofenceID)
			},
		},
		{
			name: "create rule",
			run: func(ctx context.Context) error {
				created, err := s.rules.Create(ctx, accountID, userID, fleetID, CreateRuleInput{
					RuleName:   geofenceName + " Rule",
					RuleTypeID: model.RuleTypeEntryExit,
					Meta:       rule.Meta,
					RuleGeoInfo: []model.RuleBinding{{
						GeofenceID:   geofenceID,
						SeqNo:        0,
						ActionTypeID: rule.ActionTypeID,
						Meta:         model.JSONMap{},
					}},
				})
				if err != nil {
					return err
				}
				ruleID = created.RuleID
				return nil
			},
			compensate: func(ctx context.Context) error {
				if _, err := s.rules.UpdateState(ctx, accountID, userID, fleetID, ruleID, false); err != nil {
					return err
				}
				return s.rules.Delete(ctx, accountID, userID, fleetID, ruleID)
			},
		},
		{
			name: "assign vehicles",
			run: func(ctx context.Context) error {
				_, err := s.assignments.AddVehicles(ctx, accountID, userID, fleetID, ruleID, vehicles)
				return err
			},
		},
	}

	if err := runSaga(ctx, steps); err != nil {
		return nil, err
	}
	return s.GeofenceAndRuleWithVehicles(ctx, accountID, fleetID, geofenceID)
}

// UpdateGeofenceStateWithRule flips a geofence and its rule together in
// one transaction.
func (s *CompositeService) UpdateGeofenceStateWithRule(ctx context.Context, accountID, userID, fleetID, geofenceID, ruleID string, isActive bool) (*model.GeofenceRuleStateResult, error) {
	if _, err := s.geofences.get(ctx, accountID, fleetID, geofenceID); err != nil {
		return nil, err
	}
	if _, err := s.rules.get(ctx, accountID, fleetID, ruleID); err != nil {
		return nil, err
	}

	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Geofence{}).
			Where("accountid = ? AND fleetid = ? AND geofenceid = ?", accountID, fleetID, geofenceID).
			Updates(map[string]interface{}{"isactive": isActive, "updatedat": now, "updatedby": userID}).Error; err != nil {
			return err
		}
		return tx.Model(&model.Rule{}).
			Where("accountid = ? AND fleetid = ? AND ruleid = ?", accountID, fleetID, ruleID).
			Updates(map[string]interface{}{"isactive": isActive, "updatedat": now, "updatedby": userID}).Error
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}

	result := &model.GeofenceRuleStateResult{
		GeofenceID: geofenceID,
		RuleID:     ruleID,
		IsActive:   isActive,
		Message:    stateMessage("Geofence", isActive),
	}
	s.events.Publish(SubjectGeofenceState, result)
	return result, nil
}

// DeleteGeofenceWithRule deletes a rule and the geofence bound to it.
// Both must be inactive and actually bound to each other.
func (s *CompositeService) DeleteGeofenceWithRule(ctx context.Context, accountID, userID, fleetID, geofenceID, ruleID string) error {
	rule, err := s.rules.get(ctx, accountID, fleetID, ruleID)
	if err != nil {
		return err
	}
	if rule.IsActive {
		return apierr.New(apierr.CodeRuleActive)
	}

	geofence, err := s.geofences.get(ctx, accountID, fleetID, geofenceID)
	if err != nil {
		return err
	}
	if geofence.IsActive {
		return apierr.New(apierr.CodeGeofenceActive)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.RuleGeofence{}).
		Where("accountid = ? AND fleetid = ? AND geofenceid = ? AND ruleid = ?", accountID, fleetID, geofenceID, ruleID).
		Count(&count).Error; err != nil {
		return apierr.Wrap(apierr.CodeInternal, err)
	}
	if count == 0 {
		return apierr.New(apierr.CodeInvalidGeofenceAndRule)
	}

	if err := s.rules.Delete(ctx, accountID, userID, fleetID, ruleID); err != nil {
		return err
	}
	return s.geofences.Delete(ctx, accountID, userID, fleetID, geofenceID)
}

// GeofencesWithActionInfo returns the fleet's geofences joined with
// their governing rule and vehicles. Geofences without a rule are
// skipped, as are polygon geofences and TRIP-actioned ones.
func (s *CompositeService) GeofencesWithActionInfo(ctx context.Context, accountID, fleetID string) ([]model.GeofenceActionInfo, error) {
	var geofenceIDs []string
	if err := s.db.WithContext(ctx).Model(&model.Geofence{}).
		Where("accountid = ? AND fleetid = ? AND isdeleted = false", accountID, fleetID).
		Pluck("geofenceid", &geofenceIDs).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}

	infos := make([]model.GeofenceActionInfo, 0, len(geofenceIDs))
	for _, geofenceID := range geofenceIDs {
		info, err := s.GeofenceAndRuleWithVehicles(ctx, accountID, fleetID, geofenceID)
		if err != nil {
			continue
		}
		if info.ActionTypeID == model.ActionTypeTrip || info.GeofenceInfo.Type == model.GeofenceTypePolygon {
			continue
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

// GeofenceAndRuleWithVehicles joins one geofence with its first bound
// rule and that rule's vehicles.
func (s *CompositeService) GeofenceAndRuleWithVehicles(ctx context.Context, accountID, fleetID, geofenceID string) (*model.GeofenceActionInfo, error) {
	geofence, err := s.geofences.GetByID(ctx, accountID, fleetID, geofenceID)
	if err != nil {
		return nil, err
	}

	var ruleIDs []string
	err = s.db.WithContext(ctx).Model(&model.RuleGeofence{}).
		Where("accountid = ? AND fleetid = ? AND geofenceid = ?", accountID, fleetID, geofenceID).
		Limit(1).
		Pluck("ruleid", &ruleIDs).Error
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	if len(ruleIDs) == 0 {
		return nil, apierr.New(apierr.CodeRuleNotFound)
	}

	rule, err := s.rules.GetByID(ctx, accountID, fleetID, ruleIDs[0])
	if err != nil {
		return nil, err
	}

	info := &model.GeofenceActionInfo{
		GeofenceID:   geofence.GeofenceID,
		RuleID:       rule.RuleID,
		GeofenceName: geofence.GeofenceName,
		GeofenceInfo: geofence.GeofenceInfo,
		Meta:         geofence.Meta,
		IsActive:     rule.IsActive,
		Vehicles:     rule.Vehicles,
	}
	if len(rule.Geofences) > 0 {
		info.ActionTypeID = rule.Geofences[0].ActionTypeID
		info.ActionType = rule.Geofences[0].ActionType
	}
	return info, nil
}
