package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"geofleet/api/internal/fleetapi"
)

// Permission ids understood by this module. fleetapi.PermAdminWildcard
// overrides all of them.
const (
	PermAdminWildcard = fleetapi.PermAdminWildcard
	PermGeofenceAdmin = "geofence.geofence.admin"
	PermGeofenceView  = "geofence.geofence.view"
	PermRuleAdmin     = "geofence.rule.admin"
	PermRuleView      = "geofence.rule.view"
	PermReportsView   = "geofence.reports.view"
)

// Permission check modes.
const (
	PermModeAll = "all"
	PermModeAny = "any"
)

// AccessService resolves which fleets a user may touch. The fleet
// hierarchy lives in the core schema, shared with the account service.
type AccessService struct {
	db         *gorm.DB
	redis      *redis.Client
	coreSchema string
	cacheTTL   time.Duration
}

// NewAccessService creates a new access service
func NewAccessService(db *gorm.DB, redisClient *redis.Client, coreSchema string, cacheTTL time.Duration) *AccessService {
	return &AccessService{
		db:         db,
		redis:      redisClient,
		coreSchema: coreSchema,
		cacheTTL:   cacheTTL,
	}
}

// UserFleets returns the fleets the user can access, ordered by their
// position on the path from the account root. A user with roles on a
// fleet implicitly reaches every non-deleted fleet below it; the result
// is the intersection of that closure with the root-path listing.
// Returns nil when the user has no fleet roles at all.
func (s *AccessService) UserFleets(ctx context.Context, accountID, userID string) ([]string, error) {
	if cached, ok := s.cachedUserFleets(ctx, accountID, userID); ok {
		return cached, nil
	}

	var allFleets []string
	allFleetsQuery := fmt.Sprintf("SELECT fleetid FROM %s.get_all_fleets_path_from_root(?, ?)", s.coreSchema)
	if err := s.db.WithContext(ctx).Raw(allFleetsQuery, accountID, userID).Scan(&allFleets).Error; err != nil {
		return nil, err
	}
	if len(allFleets) == 0 {
		return nil, nil
	}

	var roleFleets []string
	roleFleetsQuery := fmt.Sprintf("SELECT DISTINCT fleetid FROM %s.fleet_user_role WHERE accountid = ? AND userid = ?", s.coreSchema)
	if err := s.db.WithContext(ctx).Raw(roleFleetsQuery, accountID, userID).Scan(&roleFleets).Error; err != nil {
		return nil, err
	}
	if len(roleFleets) == 0 {
		return nil, nil
	}

	closureQuery := fmt.Sprintf(`
		WITH RECURSIVE fleet_children AS (
			SELECT ft.fleetid
			FROM %[1]s.fleet_tree ft
			WHERE ft.accountid = ?
			  AND ft.fleetid = ANY(?)
			  AND ft.isdeleted = false

			UNION ALL

			SELECT ft.fleetid
			FROM %[1]s.fleet_tree ft
			JOIN fleet_children fc ON ft.pfleetid = fc.fleetid
			WHERE ft.accountid = ? AND ft.isdeleted = false
		)
		SELECT DISTINCT fleetid FROM fleet_children`, s.coreSchema)

	var closure []string
	if err := s.db.WithContext(ctx).Raw(closureQuery, accountID, pq.Array(roleFleets), accountID).Scan(&closure).Error; err != nil {
		return nil, err
	}

	allowed := make(map[string]struct{}, len(closure))
	for _, fleetID := range closure {
		allowed[fleetID] = struct{}{}
	}

	fleets := make([]string, 0, len(allFleets))
	for _, fleetID := range allFleets {
		if _, ok := allowed[fleetID]; ok {
			fleets = append(fleets, fleetID)
		}
	}

	s.cacheUserFleets(ctx, accountID, userID, fleets)
	return fleets, nil
}

// ValidateUserFleetAccess reports whether the user may operate on the
// given fleet. No fleet roles means no access to anything.
func (s *AccessService) ValidateUserFleetAccess(ctx context.Context, accountID, userID, fleetID string) (bool, error) {
	fleets, err := s.UserFleets(ctx, accountID, userID)
	if err != nil {
		return false, err
	}
	if fleets == nil {
		return false, nil
	}
	for _, id := range fleets {
		if id == fleetID {
			return true, nil
		}
	}
	return false, nil
}

func (s *AccessService) userFleetsKey(accountID, userID string) string {
	return fmt.Sprintf("geofleet:userfleets:%s:%s", accountID, userID)
}

func (s *AccessService) cachedUserFleets(ctx context.Context, accountID, userID string) ([]string, bool) {
	if s.redis == nil {
		return nil, false
	}
	data, err := s.redis.Get(ctx, s.userFleetsKey(accountID, userID)).Bytes()
	if err != nil {
		return nil, false
	}
	var fleets []string
	if err := json.Unmarshal(data, &fleets); err != nil {
		return nil, false
	}
	return fleets, true
}

func (s *AccessService) cacheUserFleets(ctx context.Context, accountID, userID string, fleets []string) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(fleets)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, s.userFleetsKey(accountID, userID), data, s.cacheTTL).Err(); err != nil {
		log.Printf("[Access] Failed to cache user fleets: %v", err)
	}
}

// CheckUserPerms reports whether userPerms satisfies required under the
// given mode ("all" needs every permission, anything else needs one).
// The admin wildcard satisfies any requirement.
func CheckUserPerms(userPerms, required []string, mode string) bool {
	if userPerms == nil {
		return false
	}
	for _, perm := range userPerms {
		if perm == PermAdminWildcard {
			return true
		}
	}
	if len(required) == 0 {
		return false
	}
	has := func(perm string) bool {
		for _, p := range userPerms {
			if p == perm {
				return true
			}
		}
		return false
	}
	if mode == PermModeAll {
		for _, perm := range required {
			if !has(perm) {
				return false
			}
		}
		return true
	}
	for _, perm := range required {
		if has(perm) {
			return true
		}
	}
	return false
}
