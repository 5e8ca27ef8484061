package handler

import (
	"github.com/gin-gonic/gin"

	"geofleet/api/internal/apierr"
	"geofleet/api/internal/fleetapi"
	"geofleet/api/internal/model"
	"geofleet/api/internal/service"
)

// GeofenceHandler handles geofence CRUD and the composite
// geofence-with-rule flows.
type GeofenceHandler struct {
	geofences *service.GeofenceService
	composite *service.CompositeService
	access    *service.AccessService
	fleetAPI  *fleetapi.Client
}

// NewGeofenceHandler creates a new geofence handler.
func NewGeofenceHandler(geofences *service.GeofenceService, composite *service.CompositeService, access *service.AccessService, fleetAPI *fleetapi.Client) *GeofenceHandler {
	return &GeofenceHandler{geofences: geofences, composite: composite, access: access, fleetAPI: fleetAPI}
}

// RegisterRoutes registers geofence routes on the group.
func (h *GeofenceHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/create", h.Create)
	r.POST("/create/withrule", h.CreateWithRule)
	r.GET("/list/withrule", h.ListWithRule)
	r.GET("/list", h.List)
	r.GET("/list/:geofenceid", h.Get)
	r.PUT("/update", h.Update)
	r.PUT("/updateactive/withrule", h.UpdateActiveWithRule)
	r.PUT("/updateactive", h.UpdateActive)
	r.DELETE("/delete/withrule", h.DeleteWithRule)
	r.DELETE("/delete", h.Delete)
	r.GET("/listgeorules", h.ListGeoRules)
}

// checkFleetAccess rejects callers outside the fleet's user scope.
func (h *GeofenceHandler) checkFleetAccess(c *gin.Context, fleetID string) bool {
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

type createGeofenceRequest struct {
	FleetID      string             `json:"fleetid" binding:"required,uuid"`
	GeofenceName string             `json:"geofencename" binding:"required"`
	GeofenceInfo model.GeofenceInfo `json:"geofenceinfo" binding:"required"`
	Meta         model.GeofenceMeta `json:"meta"`
}

// Create creates a geofence
// @Summary Create geofence
// @Description Create a circle or polygon geofence scoped to a fleet
// @Tags Geofences
// @Accept json
// @Produce json
// @Param request body createGeofenceRequest true "Geofence data"
// @Success 200 {object} model.GeofenceDetail
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /geofence/create [post]
func (h *GeofenceHandler) Create(c *gin.Context) {
	var req createGeofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermGeofenceAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeCreateGeofencePermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	detail, err := h.geofences.Create(c.Request.Context(), accountID, userID, req.FleetID, req.GeofenceName, req.GeofenceInfo, req.Meta)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, detail)
}

type createWithRuleRequest struct {
	FleetID      string             `json:"fleetid" binding:"required,uuid"`
	GeofenceName string             `json:"geofencename" binding:"required"`
	GeofenceInfo model.GeofenceInfo `json:"geofenceinfo" binding:"required"`
	Meta         model.GeofenceMeta `json:"meta"`
	ActionTypeID string             `json:"actiontypeid" binding:"required"`
	RuleMeta     model.JSONMap      `json:"rulemeta"`
	Vehicles     []string           `json:"vehicles"`
}

// CreateWithRule creates a geofence with its governing rule
// @Summary Create geofence with rule
// @Description Create a geofence, an ENTRY_EXIT rule bound to it and assign vehicles in one workflow
// @Tags Geofences
// @Accept json
// @Produce json
// @Param request body createWithRuleRequest true "Geofence and rule data"
// @Success 200 {object} model.GeofenceActionInfo
// @Failure 400 {object} map[string]string
// @Router /geofence/create/withrule [post]
func (h *GeofenceHandler) CreateWithRule(c *gin.Context) {
	var req createWithRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermGeofenceAdmin, service.PermRuleAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeCreateGeofencePermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	info, err := h.composite.CreateGeofenceWithRule(c.Request.Context(), accountID, userID, req.FleetID,
		req.GeofenceName, req.GeofenceInfo, req.Meta,
		service.CompositeRuleInput{ActionTypeID: req.ActionTypeID, Meta: req.RuleMeta}, req.Vehicles)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, info)
}

// List lists geofences in fleet scope
// @Summary List geofences
// @Description List geofences for a fleet; recursive=true includes sub-fleets
// @Tags Geofences
// @Produce json
// @Param fleetid query string true "Fleet id"
// @Param recursive query bool false "Include sub-fleets"
// @Success 200 {array} model.GeofenceDetail
// @Failure 403 {object} map[string]string
// @Router /geofence/list [get]
func (h *GeofenceHandler) List(c *gin.Context) {
	fleetID := c.Query("fleetid")
	if !h.checkFleetAccess(c, fleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermGeofenceAdmin, service.PermGeofenceView}, service.PermModeAny) {
		respondDenied(c, apierr.CodeListGeofencesPermDenied)
		return
	}

	accountID, _, cookie := identity(c)
	fleetIDs := []string{fleetID}
	if c.Query("recursive") == "true" {
		expanded, err := h.fleetAPI.GetSubFleets(c.Request.Context(), fleetID, cookie, true)
		if err != nil {
			respondErr(c, err)
			return
		}
		fleetIDs = expanded
	}

	detail, err := h.geofences.List(c.Request.Context(), accountID, fleetIDs)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, detail)
}

// ListWithRule lists geofences with their governing rule and vehicles
// @Summary List geofences with rule info
// @Tags Geofences
// @Produce json
// @Param fleetid query string true "Fleet id"
// @Success 200 {array} model.GeofenceActionInfo
// @Router /geofence/list/withrule [get]
func (h *GeofenceHandler) ListWithRule(c *gin.Context) {
	fleetID := c.Query("fleetid")
	if !h.checkFleetAccess(c, fleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermGeofenceAdmin, service.PermGeofenceView}, service.PermModeAny) {
		respondDenied(c, apierr.CodeListGeofencesPermDenied)
		return
	}

	accountID, _, _ := identity(c)
	infos, err := h.composite.GeofencesWithActionInfo(c.Request.Context(), accountID, fleetID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, infos)
}

// Get returns a single geofence
// @Summary Get geofence
// @Tags Geofences
// @Produce json
// @Param geofenceid path string true "Geofence id"
// @Param fleetid query string true "Fleet id"
// @Success 200 {object} model.GeofenceDetail
// @Failure 400 {object} map[string]string
// @Router /geofence/list/{geofenceid} [get]
func (h *GeofenceHandler) Get(c *gin.Context) {
	fleetID := c.Query("fleetid")
	if !h.checkFleetAccess(c, fleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermGeofenceAdmin, service.PermGeofenceView}, service.PermModeAny) {
		respondDenied(c, apierr.CodeGetGeofencePermDenied)
		return
	}

	accountID, _, _ := identity(c)
	detail, err := h.geofences.GetByID(c.Request.Context(), accountID, fleetID, c.Param("geofenceid"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, detail)
}

// Shape and meta are pointers so a rename-only request leaves the
// stored values alone.
type updateGeofenceRequest struct {
	FleetID      string              `json:"fleetid" binding:"required,uuid"`
	GeofenceID   string              `json:"geofenceid" binding:"required,uuid"`
	GeofenceName string              `json:"geofencename"`
	GeofenceInfo *model.GeofenceInfo `json:"geofenceinfo"`
	Meta         *model.GeofenceMeta `json:"meta"`
}

// Update updates a geofence
// @Summary Update geofence
// @Tags Geofences
// @Accept json
// @Produce json
// @Param request body updateGeofenceRequest true "Geofence update"
// @Success 200 {object} model.GeofenceDetail
// @Failure 400 {object} map[string]string
// @Router /geofence/update [put]
func (h *GeofenceHandler) Update(c *gin.Context) {
	var req updateGeofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermGeofenceAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeUpdateGeofencePermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	detail, err := h.geofences.Update(c.Request.Context(), accountID, userID, req.FleetID, req.GeofenceID, req.GeofenceName, req.GeofenceInfo, req.Meta)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, detail)
}

type updateStateRequest struct {
	FleetID    string `json:"fleetid" binding:"required,uuid"`
	GeofenceID string `json:"geofenceid" binding:"required,uuid"`
	IsActive   *bool  `json:"isactive" binding:"required"`
}

// UpdateActive toggles a geofence's active state
// @Summary Update geofence state
// @Tags Geofences
// @Accept json
// @Produce json
// @Param request body updateStateRequest true "State change"
// @Success 200 {object} model.GeofenceStateResult
// @Failure 400 {object} map[string]string
// @Router /geofence/updateactive [put]
func (h *GeofenceHandler) UpdateActive(c *gin.Context) {
	var req updateStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermGeofenceAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeUpdateGeofenceStatePermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	result, err := h.geofences.UpdateState(c.Request.Context(), accountID, userID, req.FleetID, req.GeofenceID, *req.IsActive)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, result)
}

type updateStateWithRuleRequest struct {
	FleetID    string `json:"fleetid" binding:"required,uuid"`
	GeofenceID string `json:"geofenceid" binding:"required,uuid"`
	RuleID     string `json:"ruleid" binding:"required,uuid"`
	IsActive   *bool  `json:"isactive" binding:"required"`
}

// UpdateActiveWithRule toggles a geofence and its rule together
// @Summary Update geofence and rule state
// @Tags Geofences
// @Accept json
// @Produce json
// @Param request body updateStateWithRuleRequest true "State change"
// @Success 200 {object} model.GeofenceRuleStateResult
// @Failure 400 {object} map[string]string
// @Router /geofence/updateactive/withrule [put]
func (h *GeofenceHandler) UpdateActiveWithRule(c *gin.Context) {
	var req updateStateWithRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermGeofenceAdmin, service.PermRuleAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeUpdateGeofenceStatePermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	result, err := h.composite.UpdateGeofenceStateWithRule(c.Request.Context(), accountID, userID, req.FleetID, req.GeofenceID, req.RuleID, *req.IsActive)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, result)
}

type deleteGeofenceRequest struct {
	FleetID    string `json:"fleetid" binding:"required,uuid"`
	GeofenceID string `json:"geofenceid" binding:"required,uuid"`
}

// Delete soft-deletes a geofence
// @Summary Delete geofence
// @Description Rename and flag the geofence deleted; active or in-use geofences are rejected
// @Tags Geofences
// @Accept json
// @Produce json
// @Param request body deleteGeofenceRequest true "Geofence to delete"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /geofence/delete [delete]
func (h *GeofenceHandler) Delete(c *gin.Context) {
	var req deleteGeofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermGeofenceAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeDeleteGeofencePermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	if err := h.geofences.Delete(c.Request.Context(), accountID, userID, req.FleetID, req.GeofenceID); err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"geofenceid": req.GeofenceID, "message": "Geofence deleted"})
}

type deleteWithRuleRequest struct {
	FleetID    string `json:"fleetid" binding:"required,uuid"`
	GeofenceID string `json:"geofenceid" binding:"required,uuid"`
	RuleID     string `json:"ruleid" binding:"required,uuid"`
}

// DeleteWithRule deletes a geofence together with its rule
// @Summary Delete geofence with rule
// @Tags Geofences
// @Accept json
// @Produce json
// @Param request body deleteWithRuleRequest true "Geofence and rule to delete"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /geofence/delete/withrule [delete]
func (h *GeofenceHandler) DeleteWithRule(c *gin.Context) {
	var req deleteWithRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return
	}
	if !h.checkFleetAccess(c, req.FleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermGeofenceAdmin, service.PermRuleAdmin}, service.PermModeAll) {
		respondDenied(c, apierr.CodeDeleteGeofencePermDenied)
		return
	}

	accountID, userID, _ := identity(c)
	if err := h.composite.DeleteGeofenceWithRule(c.Request.Context(), accountID, userID, req.FleetID, req.GeofenceID, req.RuleID); err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"geofenceid": req.GeofenceID, "ruleid": req.RuleID, "message": "Geofence and rule deleted"})
}

// ListGeoRules lists the rules bound to a geofence
// @Summary List rules of a geofence
// @Tags Geofences
// @Produce json
// @Param fleetid query string true "Fleet id"
// @Param geofenceid query string true "Geofence id"
// @Success 200 {object} model.GeoRuleList
// @Failure 400 {object} map[string]string
// @Router /geofence/listgeorules [get]
func (h *GeofenceHandler) ListGeoRules(c *gin.Context) {
	fleetID := c.Query("fleetid")
	if !h.checkFleetAccess(c, fleetID) {
		return
	}
	if !hasPerms(c, []string{service.PermGeofenceAdmin, service.PermGeofenceView}, service.PermModeAny) {
		respondDenied(c, apierr.CodeListGeoRulesPermDenied)
		return
	}

	accountID, _, _ := identity(c)
	list, err := h.geofences.ListGeoRules(c.Request.Context(), accountID, fleetID, c.Query("geofenceid"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, list)
}
