package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"geofleet/api/internal/apierr"
	"geofleet/api/internal/fleetapi"
	"geofleet/api/internal/model"
)

// AssignmentService manages which vehicles, sub-fleets and users a rule
// applies to. Requested ids are deduplicated, checked for eligibility
// and partitioned into acted-on and skipped sets; the acted-on set is
// written in one transaction.
type AssignmentService struct {
	db                 *gorm.DB
	rules              *RuleService
	fleetAPI           *fleetapi.Client
	coreSchema         string
	subscribedVinsOnly bool
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(db *gorm.DB, rules *RuleService, fleetAPI *fleetapi.Client, coreSchema string, subscribedVinsOnly bool) *AssignmentService {
	return &AssignmentService{
		db:                 db,
		rules:              rules,
		fleetAPI:           fleetAPI,
		coreSchema:         coreSchema,
		subscribedVinsOnly: subscribedVinsOnly,
	}
}

// AddVehicles assigns vehicles to a rule by VIN. A VIN is skipped when
// it is not in the account's fleet inventory or already assigned.
func (s *AssignmentService) AddVehicles(ctx context.Context, accountID, userID, fleetID, ruleID string, vinnos []string) (*model.VehiclesAddResult, error) {
	if _, err := s.rules.get(ctx, accountID, fleetID, ruleID); err != nil {
		return nil, err
	}

	vinnos = dedupe(vinnos)
	added, skipped, err := partition(ctx, vinnos, func(ctx context.Context, vinno string) (bool, error) {
		return s.isVehicleAssignable(ctx, accountID, fleetID, ruleID, vinno)
	})
	if err != nil {
		return nil, apierr.From(err)
	}

	if len(added) > 0 {
		now := time.Now()
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, vinno := range added {
				rv := model.RuleVehicle{
					AccountID: accountID,
					FleetID:   fleetID,
					RuleID:    ruleID,
					VinNo:     vinno,
					CreatedAt: now,
					CreatedBy: userID,
				}
				if err := tx.Create(&rv).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeInternal, err)
		}
	}
	return &model.VehiclesAddResult{VehiclesAdded: added, VehiclesSkipped: skipped}, nil
}

// RemoveVehicles unassigns vehicles from a rule. VINs that were never
// assigned are reported back separately.
func (s *AssignmentService) RemoveVehicles(ctx context.Context, accountID, userID, fleetID, ruleID string, vinnos []string) (*model.VehiclesDeleteResult, error) {
	if _, err := s.rules.get(ctx, accountID, fleetID, ruleID); err != nil {
		return nil, err
	}

	vinnos = dedupe(vinnos)
	deleted, notExists, err := partition(ctx, vinnos, func(ctx context.Context, vinno string) (bool, error) {
		var count int64
		err := s.db.WithContext(ctx).Model(&model.RuleVehicle{}).
			Where("accountid = ? AND fleetid = ? AND ruleid = ? AND vinno = ?", accountID, fleetID, ruleID, vinno).
			Count(&count).Error
		return count > 0, err
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}

	if err := s.db.WithContext(ctx).
		Where("accountid = ? AND fleetid = ? AND ruleid = ? AND vinno = ANY(?)", accountID, fleetID, ruleID, pq.Array(deleted)).
		Delete(&model.RuleVehicle{}).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	return &model.VehiclesDeleteResult{VehiclesDeleted: deleted, VehiclesNotExists: notExists}, nil
}

// AddFleets assigns sub-fleets to a rule. A fleet is skipped when it is
// outside the recursive sub-fleet closure of the rule's fleet or already
// assigned. The closure comes from the upstream fleet API using the
// caller's cookie.
func (s *AssignmentService) AddFleets(ctx context.Context, accountID, userID, fleetID, ruleID string, fleets []string, cookie string) (*model.FleetsAddResult, error) {
	if _, err := s.rules.get(ctx, accountID, fleetID, ruleID); err != nil {
		return nil, err
	}

	fleets = dedupe(fleets)

	subFleets, err := s.fleetAPI.GetSubFleets(ctx, fleetID, cookie, true)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	inScope := make(map[string]struct{}, len(subFleets))
	for _, id := range subFleets {
		inScope[id] = struct{}{}
	}

	added, skipped, err := partition(ctx, fleets, func(ctx context.Context, fleet string) (bool, error) {
		if _, ok := inScope[fleet]; !ok {
			return false, nil
		}
		var count int64
		err := s.db.WithContext(ctx).Model(&model.RuleFleet{}).
			Where("accountid = ? AND fleetid = ? AND ruleid = ? AND subfleetid = ?", accountID, fleetID, ruleID, fleet).
			Count(&count).Error
		return count == 0, err
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}

	if len(added) > 0 {
		now := time.Now()
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, fleet := range added {
				rf := model.RuleFleet{
					AccountID:  accountID,
					FleetID:    fleetID,
					RuleID:     ruleID,
					SubFleetID: fleet,
					CreatedAt:  now,
					CreatedBy:  userID,
					UpdatedAt:  now,
					UpdatedBy:  userID,
				}
				if err := tx.Create(&rf).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeInternal, err)
		}
	}
	return &model.FleetsAddResult{FleetsAdded: added, FleetsSkipped: skipped}, nil
}

// RemoveFleets unassigns sub-fleets from a rule.
func (s *AssignmentService) RemoveFleets(ctx context.Context, accountID, userID, fleetID, ruleID string, fleets []string) (*model.FleetsDeleteResult, error) {
	if _, err := s.rules.get(ctx, accountID, fleetID, ruleID); err != nil {
		return nil, err
	}

	fleets = dedupe(fleets)
	deleted, notExists, err := partition(ctx, fleets, func(ctx context.Context, fleet string) (bool, error) {
		var count int64
		err := s.db.WithContext(ctx).Model(&model.RuleFleet{}).
			Where("accountid = ? AND fleetid = ? AND ruleid = ? AND subfleetid = ?", accountID, fleetID, ruleID, fleet).
			Count(&count).Error
		return count > 0, err
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}

	if err := s.db.WithContext(ctx).
		Where("accountid = ? AND fleetid = ? AND ruleid = ? AND subfleetid = ANY(?)", accountID, fleetID, ruleID, pq.Array(deleted)).
		Delete(&model.RuleFleet{}).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	return &model.FleetsDeleteResult{FleetsDeleted: deleted, FleetsNotExists: notExists}, nil
}

// AddUsers assigns users to a rule with the given notification switches.
// A user is skipped when not a member of the fleet or already assigned.
func (s *AssignmentService) AddUsers(ctx context.Context, accountID, userID, fleetID, ruleID string, users []string, alertMeta model.AlertMeta) (*model.UsersAddResult, error) {
	if _, err := s.rules.get(ctx, accountID, fleetID, ruleID); err != nil {
		return nil, err
	}

	users = dedupe(users)
	added, skipped, err := partition(ctx, users, func(ctx context.Context, user string) (bool, error) {
		return s.isUserAssignable(ctx, accountID, fleetID, ruleID, user)
	})
	if err != nil {
		return nil, apierr.From(err)
	}

	if len(added) > 0 {
		now := time.Now()
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, user := range added {
				ru := model.RuleUser{
					AccountID: accountID,
					FleetID:   fleetID,
					RuleID:    ruleID,
					UserID:    user,
					AlertMeta: alertMeta,
					CreatedAt: now,
					CreatedBy: userID,
					UpdatedAt: now,
					UpdatedBy: userID,
				}
				if err := tx.Create(&ru).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeInternal, err)
		}
	}
	return &model.UsersAddResult{UsersAdded: added, UsersSkipped: skipped}, nil
}

// UpdateUserNoti changes the notification switches of a user already
// assigned to the rule.
func (s *AssignmentService) UpdateUserNoti(ctx context.Context, accountID, authUserID, fleetID, ruleID, targetUserID string, alertMeta model.AlertMeta) (*model.UserNotiResult, error) {
	if _, err := s.rules.get(ctx, accountID, fleetID, ruleID); err != nil {
		return nil, err
	}

	// A user that is still assignable is by definition not in the rule.
	assignable, err := s.isUserAssignable(ctx, accountID, fleetID, ruleID, targetUserID)
	if err != nil {
		return nil, apierr.From(err)
	}
	if assignable {
		return nil, apierr.New(apierr.CodeUserNotFoundInRule)
	}

	if err := s.db.WithContext(ctx).Model(&model.RuleUser{}).
		Where("accountid = ? AND fleetid = ? AND ruleid = ? AND userid = ?", accountID, fleetID, ruleID, targetUserID).
		Update("alertmeta", alertMeta).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	return &model.UserNotiResult{UserID: targetUserID, AlertMeta: alertMeta}, nil
}

// RemoveUsers unassigns users from a rule.
func (s *AssignmentService) RemoveUsers(ctx context.Context, accountID, userID, fleetID, ruleID string, users []string) (*model.UsersDeleteResult, error) {
	if _, err := s.rules.get(ctx, accountID, fleetID, ruleID); err != nil {
		return nil, err
	}

	users = dedupe(users)
	deleted, notExists, err := partition(ctx, users, func(ctx context.Context, user string) (bool, error) {
		var count int64
		err := s.db.WithContext(ctx).Model(&model.RuleUser{}).
			Where("accountid = ? AND fleetid = ? AND ruleid = ? AND userid = ?", accountID, fleetID, ruleID, user).
			Count(&count).Error
		return count > 0, err
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}

	if err := s.db.WithContext(ctx).
		Where("accountid = ? AND fleetid = ? AND ruleid = ? AND userid = ANY(?)", accountID, fleetID, ruleID, pq.Array(deleted)).
		Delete(&model.RuleUser{}).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	return &model.UsersDeleteResult{UsersDeleted: deleted, UsersNotExists: notExists}, nil
}

// ListAssignableVehicles returns vehicles in the given fleets that are
// not yet assigned to the rule. With the subscription filter on, only
// VINs with an active subscription show up.
func (s *AssignmentService) ListAssignableVehicles(ctx context.Context, accountID string, fleetIDs []string, ruleID string) ([]model.AssignableVehicle, error) {
	if len(fleetIDs) == 0 {
		return nil, apierr.New(apierr.CodeInvalidInput)
	}
	if _, err := s.rules.get(ctx, accountID, fleetIDs[0], ruleID); err != nil {
		return nil, err
	}

	var vehicles []model.AssignableVehicle
	query := fmt.Sprintf(`SELECT fv.vinno, COALESCE(v.license_plate, v.vinno) AS regno, fv.fleetid
		FROM %[1]s.fleet_vehicle fv
		INNER JOIN %[1]s.vehicle v ON v.vinno = fv.vinno
		LEFT JOIN geofencerulevehicle gv
			ON gv.vinno = fv.vinno
			AND gv.accountid = fv.accountid
			AND gv.fleetid = ANY(?)
			AND gv.ruleid = ?
		WHERE fv.accountid = ?
			AND fv.fleetid = ANY(?)
			AND gv.vinno IS NULL
		ORDER BY fv.fleetid`, s.coreSchema)
	if err := s.db.WithContext(ctx).Raw(query, pq.Array(fleetIDs), ruleID, accountID, pq.Array(fleetIDs)).Scan(&vehicles).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	if vehicles == nil {
		vehicles = []model.AssignableVehicle{}
	}
	if !s.subscribedVinsOnly {
		return vehicles, nil
	}

	var subscribed []string
	subQuery := fmt.Sprintf("SELECT vinno FROM %s.account_vehicle_subscription WHERE accountid = ?", s.coreSchema)
	if err := s.db.WithContext(ctx).Raw(subQuery, accountID).Scan(&subscribed).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	subscribedSet := make(map[string]struct{}, len(subscribed))
	for _, vinno := range subscribed {
		subscribedSet[vinno] = struct{}{}
	}
	filtered := make([]model.AssignableVehicle, 0, len(vehicles))
	for _, vehicle := range vehicles {
		if _, ok := subscribedSet[vehicle.VinNo]; ok {
			filtered = append(filtered, vehicle)
		}
	}
	return filtered, nil
}

// ListAssignableFleets returns fleets in scope that are not yet assigned
// to the rule.
func (s *AssignmentService) ListAssignableFleets(ctx context.Context, accountID string, fleetIDs []string, ruleID string) ([]model.AssignableFleet, error) {
	if len(fleetIDs) == 0 {
		return nil, apierr.New(apierr.CodeInvalidInput)
	}
	if _, err := s.rules.get(ctx, accountID, fleetIDs[0], ruleID); err != nil {
		return nil, err
	}

	var fleets []model.AssignableFleet
	query := fmt.Sprintf(`SELECT f.fleetid, f.name
		FROM %s.fleet_tree f
		LEFT JOIN geofencerulefleet gf
			ON f.accountid = gf.accountid
			AND f.fleetid = gf.subfleetid
			AND gf.fleetid = ?
			AND gf.ruleid = ?
		WHERE f.accountid = ?
			AND f.fleetid = ANY(?)
			AND gf.subfleetid IS NULL
		ORDER BY f.fleetid`, s.coreSchema)
	if err := s.db.WithContext(ctx).Raw(query, fleetIDs[0], ruleID, accountID, pq.Array(fleetIDs)).Scan(&fleets).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	if fleets == nil {
		fleets = []model.AssignableFleet{}
	}
	return fleets, nil
}

// ListAssignableUsers returns fleet members not yet assigned to the
// rule.
func (s *AssignmentService) ListAssignableUsers(ctx context.Context, accountID string, fleetIDs []string, ruleID string) ([]model.AssignableUser, error) {
	if len(fleetIDs) == 0 {
		return nil, apierr.New(apierr.CodeInvalidInput)
	}
	if _, err := s.rules.get(ctx, accountID, fleetIDs[0], ruleID); err != nil {
		return nil, err
	}

	var users []model.AssignableUser
	query := fmt.Sprintf(`SELECT fu.userid, u.displayname, fu.fleetid
		FROM %[1]s.users u
		JOIN %[1]s.user_fleet fu ON fu.userid = u.userid
		LEFT JOIN geofenceruleuser gu
			ON gu.userid = fu.userid
			AND gu.accountid = fu.accountid
			AND gu.fleetid = ANY(?)
			AND gu.ruleid = ?
		WHERE fu.accountid = ?
			AND fu.fleetid = ANY(?)
			AND gu.userid IS NULL
		ORDER BY u.displayname`, s.coreSchema)
	if err := s.db.WithContext(ctx).Raw(query, pq.Array(fleetIDs), ruleID, accountID, pq.Array(fleetIDs)).Scan(&users).Error; err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err)
	}
	if users == nil {
		users = []model.AssignableUser{}
	}
	return users, nil
}

// isVehicleAssignable: the VIN must be in the account's fleet inventory
// and not already assigned to this rule.
func (s *AssignmentService) isVehicleAssignable(ctx context.Context, accountID, fleetID, ruleID, vinno string) (bool, error) {
	var matches []string
	query := fmt.Sprintf(`SELECT fv.vinno FROM %s.fleet_vehicle fv
		LEFT JOIN geofencerulevehicle gv
			ON gv.vinno = fv.vinno
			AND gv.accountid = fv.accountid
			AND gv.fleetid = ?
			AND gv.ruleid = ?
		WHERE fv.accountid = ? AND fv.vinno = ? AND gv.vinno IS NULL`, s.coreSchema)
	if err := s.db.WithContext(ctx).Raw(query, fleetID, ruleID, accountID, vinno).Scan(&matches).Error; err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// isUserAssignable: the user must be a member of the fleet and not
// already assigned to this rule.
func (s *AssignmentService) isUserAssignable(ctx context.Context, accountID, fleetID, ruleID, userID string) (bool, error) {
	var matches []string
	query := fmt.Sprintf(`SELECT u.userid FROM %s.user_fleet u
		LEFT JOIN geofenceruleuser gu
			ON gu.userid = u.userid
			AND gu.accountid = u.accountid
			AND gu.fleetid = ?
			AND gu.ruleid = ?
		WHERE u.accountid = ? AND u.fleetid = ? AND u.userid = ? AND gu.userid IS NULL`, s.coreSchema)
	if err := s.db.WithContext(ctx).Raw(query, fleetID, ruleID, accountID, fleetID, userID).Scan(&matches).Error; err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// partition splits ids into hits and misses by check, running the
// checks concurrently. Both sets come back in input order and non-nil.
func partition(ctx context.Context, ids []string, check func(ctx context.Context, id string) (bool, error)) ([]string, []string, error) {
	results := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			ok, err := check(gctx, id)
			if err != nil {
				return err
			}
			results[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	hits := []string{}
	misses := []string{}
	for i, id := range ids {
		if results[i] {
			hits = append(hits, id)
		} else {
			misses = append(misses, id)
		}
	}
	return hits, misses, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
