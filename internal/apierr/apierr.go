package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned to API clients. Each code carries a stable message
// and an HTTP status; anything not in the catalog collapses to
// INTERNAL_SERVER_ERROR.
const (
	CodeInvalidUserAccess      = "INVALID_USER_ACCESS"
	CodeInvalidRuleType        = "INVALID_RULE_TYPE"
	CodeGeofenceExists         = "GEOFENCE_EXISTS"
	CodeInvalidRadius          = "INVALID_RADIUS"
	CodeInvalidCircle          = "INVALID_CIRCLE"
	CodeInvalidPolygon         = "INVALID_POLYGON"
	CodeGeofenceNameExists     = "GEOFENCE_NAME_EXISTS"
	CodeGeofenceNotFound       = "GEOFENCE_NOT_FOUND"
	CodeNoGeofencesFound       = "NO_GEOFENCES_FOUND"
	CodeGeofenceInUse          = "GEOFENCE_IN_USE"
	CodeGeofenceActive         = "GEOFENCE_ACTIVE"
	CodeGeofenceNotActive      = "GEOFENCE_NOT_ACTIVE"
	CodeRuleActive             = "RULE_ACTIVE"
	CodeRuleNameExists         = "RULE_NAME_EXISTS"
	CodeRuleNotFound           = "RULE_NOT_FOUND"
	CodeInvalidGeofenceAndRule = "INVALID_GEOFENCE_AND_RULE"
	CodeUserNotFoundInRule     = "USER_NOT_FOUND_IN_RULE"
	CodeInvalidTimeRange       = "INVALID_TIME_RANGE"
	CodeNoValidTimeBuckets     = "NO_VALID_TIME_BUCKETS"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeInputError             = "INPUT_ERROR"
	CodePermissionsDenied      = "PERMISSIONS_DENIED"
	CodeTokenRequired          = "TOKEN_REQUIRED"
	CodeInvalidToken           = "INVALID_TOKEN"
	CodeInternal               = "INTERNAL_SERVER_ERROR"

	// Per-operation permission denials.
	CodeCreateGeofencePermDenied      = "CREATE_GEOFENCE_PERMISSION_DENIED"
	CodeGetGeofencePermDenied         = "GET_GEOFENCE_PERMISSION_DENIED"
	CodeListGeofencesPermDenied       = "LIST_GEOFENCES_PERMISSION_DENIED"
	CodeUpdateGeofencePermDenied      = "UPDATE_GEOFENCE_PERMISSION_DENIED"
	CodeUpdateGeofenceStatePermDenied = "UPDATE_GEOFENCE_STATE_PERMISSION_DENIED"
	CodeDeleteGeofencePermDenied      = "DELETE_GEOFENCE_PERMISSION_DENIED"
	CodeListGeoRulesPermDenied        = "LIST_GEO_RULES_PERMISSION_DENIED"
	CodeListRulesPermDenied           = "LIST_RULES_PERMISSION_DENIED"
	CodeCreateRulePermDenied          = "CREATE_RULE_PERMISSION_DENIED"
	CodeGetRulePermDenied             = "GET_RULE_PERMISSION_DENIED"
	CodeUpdateRulePermDenied          = "UPDATE_RULE_PERMISSION_DENIED"
	CodeUpdateRuleStatePermDenied     = "UPDATE_RULE_STATE_PERMISSION_DENIED"
	CodeDeleteRulePermDenied          = "DELETE_RULE_PERMISSION_DENIED"
	CodeListAssignableVehsPermDenied  = "LIST_ASSIGNABLE_RULE_PERMISSION_DENIED"
	CodeListAssignFleetsPermDenied    = "LIST_ASIGN_RULE_FLEETS_PERM_DENIED"
	CodeListAssignUsersPermDenied     = "LIST_ASIGN_RULE_USERS_PERM_DENIED"
	CodeAddRuleVehsPermDenied         = "ADD_RULE_VEHS_PERMISSION_DENIED"
	CodeDeleteRuleVehsPermDenied      = "DELETE_RULE_VEHS_PERMISSION_DENIED"
	CodeAddRuleFleetsPermDenied       = "ADD_RULE_FLEETS_PERMISSION_DENIED"
	CodeDeleteRuleFleetsPermDenied    = "DELETE_RULE_FLEETS_PERMISSION_DENIED"
	CodeAddRuleUsersPermDenied        = "ADD_RULE_USERS_PERMISSION_DENIED"
	CodeUpdateUserNotiPermDenied      = "UPDATE_USER_NOTI_PERMISSION_DENIED"
	CodeDeleteRuleUsersPermDenied     = "DELETE_RULE_USERS_PERMISSION_DENIED"
	CodeAlertReportPermDenied         = "ALERT_REPORT_PERM_DENIED"
	CodeTripReportPermDenied          = "TRIP_REPORT_PERM_DENIED"

	// Internal sub-kinds, never mapped to their own client message. They
	// mark a mutation that failed part-way so operators can find the
	// affected rows in the logs.
	CodePartialRollback  = "PARTIAL_ROLLBACK"
	CodeTxRollbackFailed = "TX_ROLLBACK_FAILED"
)

type catalogEntry struct {
	message string
	status  int
}

var catalog = map[string]catalogEntry{
	CodeInvalidUserAccess:      {"User does not have access to do this action", http.StatusForbidden},
	CodeInvalidRuleType:        {"Rule type is not valid", http.StatusBadRequest},
	CodeGeofenceExists:         {"Geofence already exists", http.StatusBadRequest},
	CodeInvalidRadius:          {"Radius is not valid", http.StatusBadRequest},
	CodeInvalidCircle:          {"Circle is not valid", http.StatusBadRequest},
	CodeInvalidPolygon:         {"Polygon is not valid", http.StatusBadRequest},
	CodeGeofenceNameExists:     {"Geofence name already exists", http.StatusBadRequest},
	CodeGeofenceNotFound:       {"Geofence not found", http.StatusBadRequest},
	CodeNoGeofencesFound:       {"No geofences found", http.StatusBadRequest},
	CodeGeofenceInUse:          {"Geofence is in use", http.StatusBadRequest},
	CodeGeofenceActive:         {"Geofence is active", http.StatusBadRequest},
	CodeGeofenceNotActive:      {"Geofence is not active", http.StatusBadRequest},
	CodeRuleActive:             {"Rule is active", http.StatusBadRequest},
	CodeRuleNameExists:         {"Rule name already exists", http.StatusBadRequest},
	CodeRuleNotFound:           {"Rule not found", http.StatusBadRequest},
	CodeInvalidGeofenceAndRule: {"Geofence and rule are not valid", http.StatusBadRequest},
	CodeUserNotFoundInRule:     {"User not found in any rule", http.StatusForbidden},
	CodeInvalidTimeRange:       {"Invalid time range", http.StatusBadRequest},
	CodeNoValidTimeBuckets:     {"Invalid time range", http.StatusBadRequest},
	CodeInvalidInput:           {"Invalid vehicles or rules provided", http.StatusBadRequest},
	CodeInputError:             {"Invalid input", http.StatusBadRequest},
	CodePermissionsDenied:      {"User does not have access to geofence module", http.StatusForbidden},
	CodeTokenRequired:          {"Token is required", http.StatusUnauthorized},
	CodeInvalidToken:           {"Invalid token", http.StatusUnauthorized},
	CodeInternal:               {"Something went wrong", http.StatusInternalServerError},

	CodeCreateGeofencePermDenied:      {"User does not have permission to create geofence", http.StatusForbidden},
	CodeGetGeofencePermDenied:         {"User does not have permission to get this geofence", http.StatusForbidden},
	CodeListGeofencesPermDenied:       {"User does not have permission to list geofences", http.StatusForbidden},
	CodeUpdateGeofencePermDenied:      {"User does not have permission to update geofence", http.StatusForbidden},
	CodeUpdateGeofenceStatePermDenied: {"User does not have permission to update geofence state", http.StatusForbidden},
	CodeDeleteGeofencePermDenied:      {"User does not have permission to delete geofence", http.StatusForbidden},
	CodeListGeoRulesPermDenied:        {"User does not have permission to list geofence rules", http.StatusForbidden},
	CodeListRulesPermDenied:           {"User does not have permission to list rules", http.StatusForbidden},
	CodeCreateRulePermDenied:          {"User does not have permission to create rule", http.StatusForbidden},
	CodeGetRulePermDenied:             {"User does not have permission to fetch rule", http.StatusForbidden},
	CodeUpdateRulePermDenied:          {"User does not have permission to update rule", http.StatusForbidden},
	CodeUpdateRuleStatePermDenied:     {"User does not have permission to update rule state", http.StatusForbidden},
	CodeDeleteRulePermDenied:          {"User does not have permission to delete rule", http.StatusForbidden},
	CodeListAssignableVehsPermDenied:  {"User does not have permission to list vehicles, assignable to rules", http.StatusForbidden},
	CodeListAssignFleetsPermDenied:    {"User does not have permission to list fleets, assignable to rules", http.StatusForbidden},
	CodeListAssignUsersPermDenied:     {"User does not have permission to list users, assignable to rules", http.StatusForbidden},
	CodeAddRuleVehsPermDenied:         {"User does not have permission to add vehicles to rule", http.StatusForbidden},
	CodeDeleteRuleVehsPermDenied:      {"User does not have permission to delete vehicle from rule", http.StatusForbidden},
	CodeAddRuleFleetsPermDenied:       {"User does not have permission to add fleets to rule", http.StatusForbidden},
	CodeDeleteRuleFleetsPermDenied:    {"User does not have permission to delete fleets from rule", http.StatusForbidden},
	CodeAddRuleUsersPermDenied:        {"User does not have permission to add users to rule", http.StatusForbidden},
	CodeUpdateUserNotiPermDenied:      {"User does not have permission to update user notification", http.StatusForbidden},
	CodeDeleteRuleUsersPermDenied:     {"User does not have permission to delete users from rule", http.StatusForbidden},
	CodeAlertReportPermDenied:         {"User does not have permission to view alert report", http.StatusForbidden},
	CodeTripReportPermDenied:          {"User does not have permission to view trip report", http.StatusForbidden},
}

// Error is an API error with a stable client-facing code. The wrapped
// cause stays server-side.
type Error struct {
	Code  string
	cause error
}

// New returns an error for the given code.
func New(code string) *Error {
	return &Error{Code: code}
}

// Wrap returns an error for the given code keeping cause for logs and
// errors.Is/As chains.
func Wrap(code string, cause error) *Error {
	return &Error{Code: code, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches two API errors by code, so errors.Is works across wrap layers.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Message returns the client-facing message for the error code.
func (e *Error) Message() string {
	if entry, ok := catalog[e.Code]; ok {
		return entry.message
	}
	return catalog[CodeInternal].message
}

// Status returns the HTTP status for the error code. Unknown codes,
// including the internal sub-kinds, are reported as internal errors.
func (e *Error) Status() int {
	if entry, ok := catalog[e.Code]; ok {
		return entry.status
	}
	return http.StatusInternalServerError
}

// Message returns the client-facing message for code, falling back to
// the internal error message for unknown codes.
func Message(code string) string {
	if entry, ok := catalog[code]; ok {
		return entry.message
	}
	return catalog[CodeInternal].message
}

// Status returns the HTTP status for code.
func Status(code string) int {
	if entry, ok := catalog[code]; ok {
		return entry.status
	}
	return http.StatusInternalServerError
}

// From normalizes any error to an *Error. Non-API errors become
// INTERNAL_SERVER_ERROR with the original kept as cause.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Wrap(CodeInternal, err)
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == code
}
