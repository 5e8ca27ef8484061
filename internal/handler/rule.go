package handler

import (
	"github.com/gin-gonic/gin"

	"geofleet/api/internal/apierr"
	"geofleet/api/internal/model"
	"geofleet/api/internal/service"
)

// RuleHandler handles rule CRUD and the type catalogs.
type RuleHandler struct {
	rules  *service.RuleService
	access *service.AccessService
}

// NewRuleHandler creates a new rule handler.
func NewRuleHandler(rules *service.RuleService, access *service.AccessService) *RuleHandler {
	return &RuleHandler{rules: rules, access: access}
}

// RegisterRoutes registers rule routes on the group.
func (h *RuleHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/listruletypes", h.ListRuleTypes)
	r.GET("/listactiontypes", h.ListActionTypes)
	r.POST("/createrule", h.Create)
	r.GET("/listrules", h.List)
	r.GET("/rule/:ruleid", h.Get)
	r.PUT("/updaterule", h.Update)
	r.PUT("/updateruleactive", h.UpdateActive)
	r.DELETE("/deleterule", h.Delete)
}

func (h *RuleHandler) checkFleetAccess(c *gin.Context, fleetID string) bool {
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

// ListRuleTypes returns the rule type catalog
// @Summary List rule types
// @Tags Rules
// @Produce json
// @Success 200 {array} model.RuleType
// @Router /geofence/listruletypes [get]
func (h *RuleHandler) ListRuleTypes(c *gin.Context) {
	types, err := h.rules.ListRuleTypes(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, types)
}

// ListActionTypes returns the geofence action catalog
// @Summary List action types
// @Tags Rules
// @Produce json
// @Success 200 {array} model.RuleAction
// @Router /geofence/listactiontypes [get]
func (h *RuleHandler) ListActionTypes(c *gin.Context) {
	actions, err := h.rules.ListActionTypes(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, actions)
}

type createRuleRequest struct {
	FleetID     string              `json:"fleetid" binding:"required,uuid"`
	RuleName    string              `json:"rulename" binding:"required"`
	RuleTypeID  string              `json:"ruletypeid" binding:"required,oneof=ENTRY_EXIT TRIP"`
	RuleMeta    model.JSONMap       `json:"rulemeta"`
	RuleGeoInfo []model.RuleBinding `json:"rulegeoinfo" binding:"required,min=1,dive"`
}

// Create creates a rule with its geofence bindings
// @Summary Create rule
// @Description Create a rule bound to one or more active geofences
// @Tags Rules
// @Accept json
// @Produce json
// @Param request body createRuleRequest true "Rule data"
// @Success 200 {object} model.RuleDetail
// @Failure 400 {object} map[string]string
// @Router /geofence/createrule [post]
func (h *RuleHandler) Create(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if err := model.ValidateTripBindings(req.RuleTypeID, req.RuleGeoInfo); err != nil {
		respondErr(c, err)
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermRuleAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeCreateRulePermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	detail, err := h.rules.Create(c.Request.Context(), accountID, userID, req.FleetID, service.CreateRuleInput{
		RuleName:    req.RuleName,
		RuleTypeID:  req.RuleTypeID,
		Meta:        req.RuleMeta,
		RuleGeoInfo: req.RuleGeoInfo,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, detail)
}

// List lists rules in fleet scope
// @Summary List rules
// @Tags Rules
// @Produce json
// @Param fleetid query string true "Fleet id"
// @Success 200 {array} model.RuleListItem
// @Router /geofence/listrules [get]
func (h *RuleHandler) List(c *gin.Context) {
	fleetID := c.Query("fleetid")
	if !h.checkFleetAccess(c, fleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermRuleAdmin, service.PermRuleView}, service.PermModeAny) {
		respondDenied(c, apierr.CodeListRulesPermDenied)
		return
	}

	accountID, _, _ := identity(c)
	rules, err := h.rules.List(c.Request.Context(), accountID, []string{fleetID})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, rules)
}

// Get returns a single rule with bindings, vehicles, fleets and users
// @Summary Get rule
// @Tags Rules
// @Produce json
// @Param ruleid path string true "Rule id"
// @Param fleetid query string true "Fleet id"
// @Success 200 {object} model.RuleDetail
// @Failure 400 {object} map[string]string
// @Router /geofence/rule/{ruleid} [get]
func (h *RuleHandler) Get(c *gin.Context) {
	fleetID := c.Query("fleetid")
	if !h.checkFleetAccess(c, fleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermRuleAdmin, service.PermRuleView}, service.PermModeAny) {
		respondDenied(c, apierr.CodeGetRulePermDenied)
		return
	}

	accountID, _, _ := identity(c)
	detail, err := h.rules.GetByID(c.Request.Context(), accountID, fleetID, c.Param("ruleid"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, detail)
}

// Name and type are optional: a binding-only update keeps the stored
// rule row as is.
type updateRuleRequest struct {
	FleetID     string              `json:"fleetid" binding:"required,uuid"`
	RuleID      string              `json:"ruleid" binding:"required,uuid"`
	RuleName    string              `json:"rulename"`
	RuleTypeID  string              `json:"ruletypeid" binding:"omitempty,oneof=ENTRY_EXIT TRIP"`
	RuleMeta    model.JSONMap       `json:"rulemeta"`
	RuleGeoInfo []model.RuleBinding `json:"rulegeoinfo" binding:"required,min=1,dive"`
}

// Update replaces a rule's fields and geofence bindings
// @Summary Update rule
// @Tags Rules
// @Accept json
// @Produce json
// @Param request body updateRuleRequest true "Rule update"
// @Success 200 {object} model.RuleUpdateResult
// @Failure 400 {object} map[string]string
// @Router /geofence/updaterule [put]
func (h *RuleHandler) Update(c *gin.Context) {
	var req updateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if err := model.ValidateTripBindings(req.RuleTypeID, req.RuleGeoInfo); err != nil {
		respondErr(c, err)
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermRuleAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeUpdateRulePermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	result, err := h.rules.Update(c.Request.Context(), accountID, userID, req.FleetID, req.RuleID, req.RuleName, req.RuleTypeID, req.RuleMeta, req.RuleGeoInfo)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, result)
}

type updateRuleStateRequest struct {
	FleetID  string `json:"fleetid" binding:"required,uuid"`
	RuleID   string `json:"ruleid" binding:"required,uuid"`
	IsActive *bool  `json:"isactive" binding:"required"`
}

// UpdateActive toggles a rule's active state
// @Summary Update rule state
// @Tags Rules
// @Accept json
// @Produce json
// @Param request body updateRuleStateRequest true "State change"
// @Success 200 {object} model.RuleStateResult
// @Failure 400 {object} map[string]string
// @Router /geofence/updateruleactive [put]
func (h *RuleHandler) UpdateActive(c *gin.Context) {
	var req updateRuleStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermRuleAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeUpdateRuleStatePermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	result, err := h.rules.UpdateState(c.Request.Context(), accountID, userID, req.FleetID, req.RuleID, *req.IsActive)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, result)
}

type deleteRuleRequest struct {
	FleetID string `json:"fleetid" binding:"required,uuid"`
	RuleID  string `json:"ruleid" binding:"required,uuid"`
}

// Delete soft-deletes a rule and clears its assignments
// @Summary Delete rule
// @Tags Rules
// @Accept json
// @Produce json
// @Param request body deleteRuleRequest true "Rule to delete"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /geofence/deleterule [delete]
func (h *RuleHandler) Delete(c *gin.Context) {
	var req deleteRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermRuleAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeDeleteRulePermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	if err := h.rules.Delete(c.Request.Context(), accountID, userID, req.FleetID, req.RuleID); err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"ruleid": req.RuleID, "message": "Rule deleted"})
}
