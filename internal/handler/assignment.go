package handler

import (
	"github.com/gin-gonic/gin"

	"geofleet/api/internal/apierr"
	"geofleet/api/internal/model"
	"geofleet/api/internal/service"
)

// AssignmentHandler handles rule-target assignment: vehicles, sub-fleets
// and users.
type AssignmentHandler struct {
	assignments *service.AssignmentService
	access      *service.AccessService
}

// NewAssignmentHandler creates a new assignment handler.
func NewAssignmentHandler(assignments *service.AssignmentService, access *service.AccessService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments, access: access}
}

// RegisterRoutes registers assignment routes on the group.
func (h *AssignmentHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/listasinablrulevehs", h.ListAssignableVehicles)
	r.GET("/listasinablrulefleets", h.ListAssignableFleets)
	r.GET("/listasinablruleusers", h.ListAssignableUsers)
	r.POST("/addrulevehs", h.AddVehicles)
	r.POST("/rmrulevehs", h.RemoveVehicles)
	r.POST("/addrulefleets", h.AddFleets)
	r.POST("/rmrulefleets", h.RemoveFleets)
	r.POST("/addruleusers", h.AddUsers)
	r.PUT("/updateusernoti", h.UpdateUserNoti)
	r.POST("/rmruleusers", h.RemoveUsers)
}

func (h *AssignmentHandler) checkFleetAccess(c *gin.Context, fleetID string) bool {
	accountID, userID, _ := identity(c)
	ok, err := h.access.ValidateUserFleetAccess(c.Request.Context(), accountID, userID, fleetID)
	if err != nil {
		respondErr(c, err)
		return false
	}
	if !ok {
		respondErr(c, apierr.New(apierr.CodeInvalidUserAccess))
		return false
	}
	return true
}

// ListAssignableVehicles lists vehicles not yet assigned to the rule
// @Summary List assignable vehicles
// @Tags Assignments
// @Produce json
// @Param fleetid query string true "Fleet id"
// @Param ruleid query string true "Rule id"
// @Success 200 {array} model.AssignableVehicle
// @Router /geofence/listasinablrulevehs [get]
func (h *AssignmentHandler) ListAssignableVehicles(c *gin.Context) {
	fleetID := c.Query("fleetid")
	if !h.checkFleetAccess(c, fleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermRuleAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeListAssignableVehsPermDenied)
		return
	}

	accountID, _, _ := identity(c)
	vehicles, err := h.assignments.ListAssignableVehicles(c.Request.Context(), accountID, []string{fleetID}, c.Query("ruleid"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, vehicles)
}

// ListAssignableFleets lists sub-fleets not yet assigned to the rule
// @Summary List assignable fleets
// @Tags Assignments
// @Produce json
// @Param fleetid query string true "Fleet id"
// @Param ruleid query string true "Rule id"
// @Success 200 {array} model.AssignableFleet
// @Router /geofence/listasinablrulefleets [get]
func (h *AssignmentHandler) ListAssignableFleets(c *gin.Context) {
	fleetID := c.Query("fleetid")
	if !h.checkFleetAccess(c, fleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermRuleAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeListAssignFleetsPermDenied)
		return
	}

	accountID, _, _ := identity(c)
	fleets, err := h.assignments.ListAssignableFleets(c.Request.Context(), accountID, []string{fleetID}, c.Query("ruleid"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, fleets)
}

// ListAssignableUsers lists users not yet assigned to the rule
// @Summary List assignable users
// @Tags Assignments
// @Produce json
// @Param fleetid query string true "Fleet id"
// @Param ruleid query string true "Rule id"
// @Success 200 {array} model.AssignableUser
// @Router /geofence/listasinablruleusers [get]
func (h *AssignmentHandler) ListAssignableUsers(c *gin.Context) {
	fleetID := c.Query("fleetid")
	if !h.checkFleetAccess(c, fleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermRuleAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeListAssignUsersPermDenied)
		return
	}

	accountID, _, _ := identity(c)
	users, err := h.assignments.ListAssignableUsers(c.Request.Context(), accountID, []string{fleetID}, c.Query("ruleid"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, users)
}

type ruleVehiclesRequest struct {
	FleetID  string   `json:"fleetid" binding:"required,uuid"`
	RuleID   string   `json:"ruleid" binding:"required,uuid"`
	Vehicles []string `json:"vehicles" binding:"required,min=1,dive,len=17"`
}

// AddVehicles assigns vehicles to a rule
// @Summary Add vehicles to rule
// @Description Assign VINs to a rule; already-assigned or out-of-fleet VINs are skipped
// @Tags Assignments
// @Accept json
// @Produce json
// @Param request body ruleVehiclesRequest true "Vehicles to add"
// @Success 200 {object} model.VehiclesAddResult
// @Failure 400 {object} map[string]string
// @Router /geofence/addrulevehs [post]
func (h *AssignmentHandler) AddVehicles(c *gin.Context) {
	var req ruleVehiclesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermRuleAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeAddRuleVehsPermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	result, err := h.assignments.AddVehicles(c.Request.Context(), accountID, userID, req.FleetID, req.RuleID, req.Vehicles)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, result)
}

// RemoveVehicles unassigns vehicles from a rule
// @Summary Remove vehicles from rule
// @Tags Assignments
// @Accept json
// @Produce json
// @Param request body ruleVehiclesRequest true "Vehicles to remove"
// @Success 200 {object} model.VehiclesDeleteResult
// @Failure 400 {object} map[string]string
// @Router /geofence/rmrulevehs [post]
func (h *AssignmentHandler) RemoveVehicles(c *gin.Context) {
	var req ruleVehiclesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermRuleAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeDeleteRuleVehsPermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	result, err := h.assignments.RemoveVehicles(c.Request.Context(), accountID, userID, req.FleetID, req.RuleID, req.Vehicles)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, result)
}

type ruleFleetsRequest struct {
	FleetID string   `json:"fleetid" binding:"required,uuid"`
	RuleID  string   `json:"ruleid" binding:"required,uuid"`
	Fleets  []string `json:"fleets" binding:"required,min=1,dive,uuid"`
}

// AddFleets assigns sub-fleets to a rule
// @Summary Add fleets to rule
// @Description Assign sub-fleets within the rule fleet's subtree; others are skipped
// @Tags Assignments
// @Accept json
// @Produce json
// @Param request body ruleFleetsRequest true "Fleets to add"
// @Success 200 {object} model.FleetsAddResult
// @Failure 400 {object} map[string]string
// @Router /geofence/addrulefleets [post]
func (h *AssignmentHandler) AddFleets(c *gin.Context) {
	var req ruleFleetsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermRuleAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeAddRuleFleetsPermDenied)
		return
	}

	accountID, userID, cookie := identity(c)
	result, err := h.assignments.AddFleets(c.Request.Context(), accountID, userID, req.FleetID, req.RuleID, req.Fleets, cookie)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, result)
}

// RemoveFleets unassigns sub-fleets from a rule
// @Summary Remove fleets from rule
// @Tags Assignments
// @Accept json
// @Produce json
// @Param request body ruleFleetsRequest true "Fleets to remove"
// @Success 200 {object} model.FleetsDeleteResult
// @Failure 400 {object} map[string]string
// @Router /geofence/rmrulefleets [post]
func (h *AssignmentHandler) RemoveFleets(c *gin.Context) {
	var req ruleFleetsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermRuleAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeDeleteRuleFleetsPermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	result, err := h.assignments.RemoveFleets(c.Request.Context(), accountID, userID, req.FleetID, req.RuleID, req.Fleets)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, result)
}

type addRuleUsersRequest struct {
	FleetID   string          `json:"fleetid" binding:"required,uuid"`
	RuleID    string          `json:"ruleid" binding:"required,uuid"`
	Users     []string        `json:"users" binding:"required,min=1,dive,uuid"`
	AlertMeta model.AlertMeta `json:"alertmeta"`
}

// AddUsers assigns users to a rule with notification settings
// @Summary Add users to rule
// @Tags Assignments
// @Accept json
// @Produce json
// @Param request body addRuleUsersRequest true "Users to add"
// @Success 200 {object} model.UsersAddResult
// @Failure 400 {object} map[string]string
// @Router /geofence/addruleusers [post]
func (h *AssignmentHandler) AddUsers(c *gin.Context) {
	var req addRuleUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermRuleAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeAddRuleUsersPermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	result, err := h.assignments.AddUsers(c.Request.Context(), accountID, userID, req.FleetID, req.RuleID, req.Users, req.AlertMeta)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, result)
}

type updateUserNotiRequest struct {
	FleetID   string          `json:"fleetid" binding:"required,uuid"`
	RuleID    string          `json:"ruleid" binding:"required,uuid"`
	UserID    string          `json:"userid" binding:"required,uuid"`
	AlertMeta model.AlertMeta `json:"alertmeta"`
}

// UpdateUserNoti updates a rule user's notification settings
// @Summary Update user notification settings
// @Tags Assignments
// @Accept json
// @Produce json
// @Param request body updateUserNotiRequest true "Notification change"
// @Success 200 {object} model.UserNotiResult
// @Failure 403 {object} map[string]string
// @Router /geofence/updateusernoti [put]
func (h *AssignmentHandler) UpdateUserNoti(c *gin.Context) {
	var req updateUserNotiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermGeofenceAdmin, service.PermRuleAdmin}, service.PermModeAny) {
		respondDenied(c, apierr.CodeUpdateUserNotiPermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	result, err := h.assignments.UpdateUserNoti(c.Request.Context(), accountID, userID, req.FleetID, req.RuleID, req.UserID, req.AlertMeta)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, result)
}

type removeRuleUsersRequest struct {
	FleetID string   `json:"fleetid" binding:"required,uuid"`
	RuleID  string   `json:"ruleid" binding:"required,uuid"`
	Users   []string `json:"users" binding:"required,min=1,dive,uuid"`
}

// RemoveUsers unassigns users from a rule
// @Summary Remove users from rule
// @Tags Assignments
// @Accept json
// @Produce json
// @Param request body removeRuleUsersRequest true "Users to remove"
// @Success 200 {object} model.UsersDeleteResult
// @Failure 400 {object} map[string]string
// @Router /geofence/rmruleusers [post]
func (h *AssignmentHandler) RemoveUsers(c *gin.Context) {
	var req removeRuleUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermGeofenceAdmin, service.PermRuleAdmin}, service.PermModeAny) {
		respondDenied(c, apierr.CodeDeleteRuleUsersPermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	result, err := h.assignments.RemoveUsers(c.Request.Context(), accountID, userID, req.FleetID, req.RuleID, req.Users)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, result)
}
