package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"geofleet/api/internal/apierr"
	"geofleet/api/internal/model"
)

// CreateRuleInput is the service-level input for creating a rule.
type CreateRuleInput struct {
	RuleName    string
	RuleTypeID  string
	Meta        model.JSONMap
	RuleGeoInfo []model.RuleBinding
}

// RuleService handles rule business logic. Rules live in the module's
// own tables; vehicle, fleet and user display data is joined in from the
// core schema.
type RuleService struct {
	db         *gorm.DB
	events     *EventPublisher
	geofences  *GeofenceService
	coreSchema string
}

// NewRuleService creates a new rule service
func NewRuleService(db *gorm.DB, events *EventPublisher, geofences *GeofenceService, coreSchema string) *RuleService {
	return &RuleService{
		db:         db,
		events:     events,
		geofences:  geofences,
		coreSchema: coreSchema,
	}
}

// Create creates a rule and its geofence bindings atomically. Every
// bound geofence must exist and be active.
func (s *RuleService) Create(ctx context.Context, accountID, userID, fleetID string, input CreateRuleInput) (*model.RuleDetail, error) {
	nameExists, err := s.nameExists(ctx, accountID, fleetID, input.RuleName)
	if err != nil {
		return nil, apierr.From(err)
	}
	if nameExists {
		return nil, apierr.New(apierr.CodeRuleNameExists)
	}

	if err := s.requireActiveGeofences(ctx, accountID, fleetID, input.RuleGeoInfo); err != nil {
		return nil, err
	}

	ruleID := uuid.NewString()
	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rule := model.Rule{
			AccountID:  accountID,
			FleetID:    fleetID,
			RuleID:     ruleID,
			RuleName:   input.RuleName,
			RuleTypeID: input.RuleTypeID,
			IsActive:   true,
			RuleMeta:   input.Meta,
			CreatedAt:  now,
			CreatedBy:  userID,
			UpdatedAt:  now,
			UpdatedBy:  userID,
		}
		if err := tx.Create(&rule).Error; err != nil {
			return err
		}
		for _, binding := range input.RuleGeoInfo {
			rg := model.RuleGeofence{
				AccountID:        accountID,
				FleetID:          fleetID,
				RuleID:           ruleID,
				GeofenceID:       binding.GeofenceID,
				SeqNo:            binding.SeqNo,
				ActionTypeID:     binding.ActionTypeID,
				GeofenceRuleMeta: binding.Meta,
				UpdatedAt:        now,
				UpdatedBy:        userID,
			}
			if err := tx.Create(&rg).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}

	detail, err := s.GetByID(ctx, accountID, fleetID, ruleID)
	if err != nil {
		return nil, err
	}
	s.events.Publish(SubjectRuleCreated, detail)
	return detail, nil
}

// List returns the non-deleted rules across the given fleets, newest
// first.
func (s *RuleService) List(ctx context.Context, accountID string, fleetIDs []string) ([]model.RuleListItem, error) {
	var items []model.RuleListItem
	query := `SELECT r.fleetid, r.ruleid, r.rulename, r.rulemeta, rt.ruletype, r.isactive
		FROM geofencerule r, geofenceruletype rt
		WHERE r.accountid = ?
			AND r.fleetid = ANY(?)
			AND rt.ruletypeid = r.ruletypeid
			AND r.isdeleted = false
		ORDER BY r.createdat DESC`
	if err := s.db.WithContext(ctx).Raw(query, accountID, pq.Array(fleetIDs)).Scan(&items).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	if items == nil {
		items = []model.RuleListItem{}
	}
	return items, nil
}

// GetByID returns the hydrated rule: the rule row plus bindings,
// vehicles, sub-fleets and users, fetched concurrently.
func (s *RuleService) GetByID(ctx context.Context, accountID, fleetID, ruleID string) (*model.RuleDetail, error) {
	if _, err := s.get(ctx, accountID, fleetID, ruleID); err != nil {
		return nil, err
	}

	var (
		ruleRow struct {
			FleetID    string        `gorm:"column:fleetid"`
			RuleID     string        `gorm:"column:ruleid"`
			RuleName   string        `gorm:"column:rulename"`
			RuleMeta   model.JSONMap `gorm:"column:rulemeta"`
			RuleType   string        `gorm:"column:ruletype"`
			RuleTypeID string        `gorm:"column:ruletypeid"`
			IsActive   bool          `gorm:"column:isactive"`
		}
		geoRows []struct {
			GeofenceID       string             `gorm:"column:geofenceid"`
			GeofenceName     string             `gorm:"column:geofencename"`
			GeofenceInfo     model.GeofenceInfo `gorm:"column:geofenceinfo"`
			Meta             model.GeofenceMeta `gorm:"column:meta"`
			SeqNo            int                `gorm:"column:seqno"`
			ActionTypeID     string             `gorm:"column:actiontypeid"`
			ActionType       string             `gorm:"column:actiontype"`
			GeofenceRuleMeta model.JSONMap      `gorm:"column:geofencerulemeta"`
		}
		vehicleRows []model.RuleVehicleRef
		fleetRows   []model.RuleFleetRef
		userRows    []struct {
			UserID      string          `gorm:"column:userid"`
			DisplayName string          `gorm:"column:displayname"`
			AlertMeta   model.AlertMeta `gorm:"column:alertmeta"`
		}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		query := `SELECT r.fleetid, r.ruleid, r.rulename, r.rulemeta, rt.ruletype, r.ruletypeid, r.isactive
			FROM geofencerule r, geofenceruletype rt
			WHERE r.accountid = ? AND r.fleetid = ? AND r.ruleid = ? AND rt.ruletypeid = r.ruletypeid`
		return s.db.WithContext(gctx).Raw(query, accountID, fleetID, ruleID).Scan(&ruleRow).Error
	})
	g.Go(func() error {
		query := `SELECT rg.geofenceid, g.geofencename, g.geofenceinfo, g.meta, rg.seqno, rg.actiontypeid, ga.actiontype, rg.geofencerulemeta
			FROM geofenceruleinfo rg, geofence g, rulegeofenceaction ga
			WHERE rg.accountid = ? AND rg.fleetid = ? AND rg.ruleid = ?
				AND g.accountid = rg.accountid AND g.fleetid = rg.fleetid AND g.geofenceid = rg.geofenceid
				AND ga.actiontypeid = rg.actiontypeid`
		return s.db.WithContext(gctx).Raw(query, accountID, fleetID, ruleID).Scan(&geoRows).Error
	})
	g.Go(func() error {
		query := fmt.Sprintf(`SELECT gv.vinno, v.license_plate AS regno
			FROM geofencerulevehicle gv, %[1]s.fleet_vehicle fv, %[1]s.vehicle v
			WHERE gv.accountid = ? AND gv.fleetid = ? AND gv.ruleid = ?
				AND fv.accountid = gv.accountid AND fv.vinno = gv.vinno AND v.vinno = fv.vinno`, s.coreSchema)
		return s.db.WithContext(gctx).Raw(query, accountID, fleetID, ruleID).Scan(&vehicleRows).Error
	})
	g.Go(func() error {
		query := fmt.Sprintf(`SELECT gf.subfleetid, f.name
			FROM geofencerulefleet gf, %s.fleet_tree f
			WHERE gf.accountid = ? AND gf.fleetid = ? AND gf.ruleid = ?
				AND f.accountid = gf.accountid AND f.fleetid = gf.subfleetid`, s.coreSchema)
		return s.db.WithContext(gctx).Raw(query, accountID, fleetID, ruleID).Scan(&fleetRows).Error
	})
	g.Go(func() error {
		query := fmt.Sprintf(`SELECT gu.userid, u.displayname, gu.alertmeta
			FROM geofenceruleuser gu, %s.users u
			WHERE gu.accountid = ? AND gu.fleetid = ? AND gu.ruleid = ? AND u.userid = gu.userid`, s.coreSchema)
		return s.db.WithContext(gctx).Raw(query, accountID, fleetID, ruleID).Scan(&userRows).Error
	})
	if err := g.Wait(); err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}

	detail := &model.RuleDetail{
		FleetID:    ruleRow.FleetID,
		RuleID:     ruleRow.RuleID,
		RuleName:   ruleRow.RuleName,
		RuleTypeID: ruleRow.RuleTypeID,
		RuleType:   ruleRow.RuleType,
		IsActive:   ruleRow.IsActive,
		RuleMeta:   ruleRow.RuleMeta,
		Geofences:  make([]model.RuleGeofenceInfo, 0, len(geoRows)),
		Vehicles:   vehicleRows,
		SubFleets:  fleetRows,
		Users:      make([]model.RuleUserRef, 0, len(userRows)),
	}
	for _, row := range geoRows {
		detail.Geofences = append(detail.Geofences, model.RuleGeofenceInfo{
			GeofenceID:       row.GeofenceID,
			GeofenceName:     row.GeofenceName,
			GeofenceInfo:     row.GeofenceInfo,
			Meta:             row.Meta,
			SeqNo:            row.SeqNo,
			ActionTypeID:     row.ActionTypeID,
			ActionType:       row.ActionType,
			GeofenceRuleMeta: row.GeofenceRuleMeta,
		})
	}
	for _, row := range userRows {
		detail.Users = append(detail.Users, model.RuleUserRef{
			UserID:    row.UserID,
			Name:      row.DisplayName,
			AlertMeta: row.AlertMeta,
		})
	}
	if detail.Vehicles == nil {
		detail.Vehicles = []model.RuleVehicleRef{}
	}
	if detail.SubFleets == nil {
		detail.SubFleets = []model.RuleFleetRef{}
	}
	return detail, nil
}

// Update changes the rule row and replaces all geofence bindings with
// the given set in one transaction.
func (s *RuleService) Update(ctx context.Context, accountID, userID, fleetID, ruleID, ruleName, ruleTypeID string, meta model.JSONMap, bindings []model.RuleBinding) (*model.RuleUpdateResult, error) {
	if _, err := s.get(ctx, accountID, fleetID, ruleID); err != nil {
		return nil, err
	}

	if err := s.requireActiveGeofences(ctx, accountID, fleetID, bindings); err != nil {
		return nil, err
	}

	if ruleName != "" {
		taken, err := s.newNameExists(ctx, accountID, fleetID, ruleName, ruleID)
		if err != nil {
			return nil, apierr.From(err)
		}
		if taken {
			return nil, apierr.New(apierr.CodeRuleNameExists)
		}
	}

	now := time.Now()
	updates := map[string]interface{}{
		"updatedat": now,
		"updatedby": userID,
	}
	if ruleName != "" {
		updates["rulename"] = ruleName
	}
	if ruleTypeID != "" {
		updates["ruletypeid"] = ruleTypeID
	}
	if meta != nil {
		updates["rulemeta"] = meta
	}

	var result model.RuleUpdateResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Rule{}).
			Where("accountid = ? AND fleetid = ? AND ruleid = ?", accountID, fleetID, ruleID).
			Updates(updates).Error; err != nil {
			return err
		}
		var rule model.Rule
		if err := tx.Where("accountid = ? AND fleetid = ? AND ruleid = ?", accountID, fleetID, ruleID).
			First(&rule).Error; err != nil {
			return err
		}
		if err := tx.Where("accountid = ? AND fleetid = ? AND ruleid = ?", accountID, fleetID, ruleID).
			Delete(&model.RuleGeofence{}).Error; err != nil {
			return err
		}
		for _, binding := range bindings {
			rg := model.RuleGeofence{
				AccountID:        accountID,
				FleetID:          fleetID,
				RuleID:           ruleID,
				GeofenceID:       binding.GeofenceID,
				SeqNo:            binding.SeqNo,
				ActionTypeID:     binding.ActionTypeID,
				GeofenceRuleMeta: binding.Meta,
				UpdatedAt:        now,
				UpdatedBy:        userID,
			}
			if err := tx.Create(&rg).Error; err != nil {
				return err
			}
		}
		result = model.RuleUpdateResult{
			RuleID:     rule.RuleID,
			RuleName:   rule.RuleName,
			RuleTypeID: rule.RuleTypeID,
			IsActive:   rule.IsActive,
			RuleMeta:   rule.RuleMeta,
		}
		return nil
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}

	s.events.Publish(SubjectRuleUpdated, &result)
	return &result, nil
}

// UpdateState activates or deactivates a rule.
func (s *RuleService) UpdateState(ctx context.Context, accountID, userID, fleetID, ruleID string, isActive bool) (*model.RuleStateResult, error) {
	if _, err := s.get(ctx, accountID, fleetID, ruleID); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&model.Rule{}).
		Where("accountid = ? AND fleetid = ? AND ruleid = ? AND isdeleted = false", accountID, fleetID, ruleID).
		Updates(map[string]interface{}{
			"isactive":  isActive,
			"updatedat": time.Now(),
			"updatedby": userID,
		}).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}

	result := &model.RuleStateResult{
		FleetID:  fleetID,
		RuleID:   ruleID,
		IsActive: isActive,
		Message:  stateMessage("Rule", isActive),
	}
	s.events.Publish(SubjectRuleState, result)
	return result, nil
}

// Delete soft-deletes a rule. The rule must be inactive. Bindings and
// all assignments are removed in the same transaction, then the rule is
// renamed so its name can be reused.
func (s *RuleService) Delete(ctx context.Context, accountID, userID, fleetID, ruleID string) error {
	rule, err := s.get(ctx, accountID, fleetID, ruleID)
	if err != nil {
		return err
	}

	if rule.IsActive {
		return apierr.New(apierr.CodeRuleActive)
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := "accountid = ? AND fleetid = ? AND ruleid = ?"
		if err := tx.Where(scope, accountID, fleetID, ruleID).Delete(&model.RuleGeofence{}).Error; err != nil {
			return err
		}
		if err := tx.Where(scope, accountID, fleetID, ruleID).Delete(&model.RuleVehicle{}).Error; err != nil {
			return err
		}
		if err := tx.Where(scope, accountID, fleetID, ruleID).Delete(&model.RuleFleet{}).Error; err != nil {
			return err
		}
		if err := tx.Where(scope, accountID, fleetID, ruleID).Delete(&model.RuleUser{}).Error; err != nil {
			return err
		}
		return tx.Model(&model.Rule{}).
			Where(scope, accountID, fleetID, ruleID).
			Updates(map[string]interface{}{
				"rulename":  model.DeletedName(rule.RuleName, now),
				"isdeleted": true,
				"updatedat": now,
				"updatedby": userID,
			}).Error
	})
	if err != nil {
		return apierr.Wrap(apierr.CodeInternal, err)
	}

	s.events.Publish(SubjectRuleDeleted, map[string]string{
		"fleetid": fleetID,
		"ruleid":  ruleID,
	})
	return nil
}

// ListRuleTypes returns the rule type reference table.
func (s *RuleService) ListRuleTypes(ctx context.Context) ([]model.RuleType, error) {
	var types []model.RuleType
	if err := s.db.WithContext(ctx).Find(&types).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	return types, nil
}

// ListActionTypes returns the assignable action types. TRIP is derived
// and filtered out.
func (s *RuleService) ListActionTypes(ctx context.Context) ([]model.RuleAction, error) {
	var actions []model.RuleAction
	if err := s.db.WithContext(ctx).Find(&actions).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	filtered := make([]model.RuleAction, 0, len(actions))
	for _, action := range actions {
		if action.ActionTypeID != model.ActionTypeTrip {
			filtered = append(filtered, action)
		}
	}
	return filtered, nil
}

// get returns the non-deleted rule row or RULE_NOT_FOUND.
func (s *RuleService) get(ctx context.Context, accountID, fleetID, ruleID string) (*model.Rule, error) {
	var rule model.Rule
	err := s.db.WithContext(ctx).
		Where("accountid = ? AND fleetid = ? AND ruleid = ? AND isdeleted = false", accountID, fleetID, ruleID).
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.New(apierr.CodeRuleNotFound)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	return &rule, nil
}

func (s *RuleService) nameExists(ctx context.Context, accountID, fleetID, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Rule{}).
		Where("accountid = ? AND fleetid = ? AND rulename = ? AND isdeleted = false", accountID, fleetID, name).
		Count(&count).Error
	return count > 0, err
}

func (s *RuleService) newNameExists(ctx context.Context, accountID, fleetID, name, excludeRuleID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Rule{}).
		Where("accountid = ? AND fleetid = ? AND rulename = ? AND ruleid != ? AND isdeleted = false", accountID, fleetID, name, excludeRuleID).
		Count(&count).Error
	return count > 0, err
}

// requireActiveGeofences fails with GEOFENCE_NOT_ACTIVE unless every
// bound geofence exists and is active. The per-geofence checks run
// concurrently.
func (s *RuleService) requireActiveGeofences(ctx context.Context, accountID, fleetID string, bindings []model.RuleBinding) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, binding := range bindings {
		binding := binding
		g.Go(func() error {
			active, err := s.geofences.IsActive(gctx, accountID, fleetID, binding.GeofenceID)
			if err != nil || !active {
				return apierr.New(apierr.CodeGeofenceNotActive)
			}
			return nil
		})
	}
	return g.Wait()
}
