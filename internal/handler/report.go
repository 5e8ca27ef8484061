package handler

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"geofleet/api/internal/apierr"
	"geofleet/api/internal/model"
	"geofleet/api/internal/service"
)

// ReportHandler serves the geofence alert and trip reports plus their
// xlsx exports.
type ReportHandler struct {
	reports *service.ReportService
	access  *service.AccessService
}

// NewReportHandler creates a new report handler.
func NewReportHandler(reports *service.ReportService, access *service.AccessService) *ReportHandler {
	return &ReportHandler{reports: reports, access: access}
}

// RegisterRoutes registers report routes on the group.
func (h *ReportHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/alert", h.Alert)
	r.POST("/trip", h.Trip)
	r.POST("/alert/export", h.AlertExport)
	r.POST("/trip/export", h.TripExport)
}

var reportPerms = []string{service.PermGeofenceAdmin, service.PermRuleAdmin, service.PermReportsView}

type reportRequest struct {
	FleetID   string   `json:"fleetid" binding:"required,uuid"`
	VinNos    []string `json:"vinnos"`
	RuleIDs   []string `json:"ruleids" binding:"omitempty,dive,uuid"`
	StartTime int64    `json:"starttime"`
	EndTime   int64    `json:"endtime" binding:"required"`
}

// bindReport validates the shared report request and the caller's fleet
// access and permissions.
func (h *ReportHandler) bindReport(c *gin.Context, deniedCode string) (*reportRequest, bool) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Wrap(apierr.CodeInputError, err))
		return nil, false
	}
	if len(req.VinNos) == 0 && len(req.RuleIDs) == 0 {
		respondErr(c, apierr.New(apierr.CodeInvalidInput))
		return nil, false
	}

	accountID, userID, _ := identity(c)
	ok, err := h.access.ValidateUserFleetAccess(c.Request.Context(), accountID, userID, req.FleetID)
	if err != nil {
		respondErr(c, err)
		return nil, false
	}
	if !ok {
		respondErr(c, apierr.New(apierr.CodeInvalidUserAccess))
		return nil, false
	}
	if !hasPerms(c, reportPerms, service.PermModeAny) {
		respondDenied(c, deniedCode)
		return nil, false
	}
	return &req, true
}

func (h *ReportHandler) alertRows(c *gin.Context, req *reportRequest) ([]model.GeoAlertRow, error) {
	accountID, _, _ := identity(c)
	if len(req.VinNos) > 0 {
		return h.reports.AlertReportByVehicles(c.Request.Context(), accountID, req.VinNos, req.StartTime, req.EndTime)
	}
	return h.reports.AlertReportByRules(c.Request.Context(), accountID, req.RuleIDs, req.StartTime, req.EndTime)
}

func (h *ReportHandler) tripRows(c *gin.Context, req *reportRequest) ([]model.GeoTripRow, error) {
	accountID, _, _ := identity(c)
	if len(req.VinNos) > 0 {
		return h.reports.TripReportByVehicles(c.Request.Context(), accountID, req.VinNos, req.StartTime, req.EndTime)
	}
	return h.reports.TripReportByRules(c.Request.Context(), accountID, req.RuleIDs, req.StartTime, req.EndTime)
}

// Alert returns geofence alert report rows
// @Summary Alert report
// @Description Report geofence alerts by VINs or rule ids over a time window
// @Tags Reports
// @Accept json
// @Produce json
// @Param request body reportRequest true "Report filter"
// @Success 200 {array} model.GeoAlertRow
// @Failure 400 {object} map[string]string
// @Router /geofence/report/alert [post]
func (h *ReportHandler) Alert(c *gin.Context) {
	req, ok := h.bindReport(c, apierr.CodeAlertReportPermDenied)
	if !ok {
		return
	}
	rows, err := h.alertRows(c, req)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, rows)
}

// Trip returns geofence trip report rows
// @Summary Trip report
// @Description Report geofence trips by VINs or rule ids over a time window
// @Tags Reports
// @Accept json
// @Produce json
// @Param request body reportRequest true "Report filter"
// @Success 200 {array} model.GeoTripRow
// @Failure 400 {object} map[string]string
// @Router /geofence/report/trip [post]
func (h *ReportHandler) Trip(c *gin.Context) {
	req, ok := h.bindReport(c, apierr.CodeTripReportPermDenied)
	if !ok {
		return
	}
	rows, err := h.tripRows(c, req)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, rows)
}

// AlertExport streams the alert report as an xlsx download
// @Summary Export alert report
// @Tags Reports
// @Accept json
// @Produce application/octet-stream
// @Param request body reportRequest true "Report filter"
// @Success 200 {file} file
// @Failure 400 {object} map[string]string
// @Router /geofence/report/alert/export [post]
func (h *ReportHandler) AlertExport(c *gin.Context) {
	req, ok := h.bindReport(c, apierr.CodeAlertReportPermDenied)
	if !ok {
		return
	}
	rows, err := h.alertRows(c, req)
	if err != nil {
		respondErr(c, err)
		return
	}
	file, err := h.reports.AlertReportXLSX(rows)
	if err != nil {
		respondErr(c, err)
		return
	}
	writeXLSX(c, file, "geofence_alerts")
}

// TripExport streams the trip report as an xlsx download
// @Summary Export trip report
// @Tags Reports
// @Accept json
// @Produce application/octet-stream
// @Param request body reportRequest true "Report filter"
// @Success 200 {file} file
// @Failure 400 {object} map[string]string
// @Router /geofence/report/trip/export [post]
func (h *ReportHandler) TripExport(c *gin.Context) {
	req, ok := h.bindReport(c, apierr.CodeTripReportPermDenied)
	if !ok {
		return
	}
	rows, err := h.tripRows(c, req)
	if err != nil {
		respondErr(c, err)
		return
	}
	file, err := h.reports.TripReportXLSX(rows)
	if err != nil {
		respondErr(c, err)
		return
	}
	writeXLSX(c, file, "geofence_trips")
}

func writeXLSX(c *gin.Context, file *excelize.File, prefix string) {
	filename := fmt.Sprintf("%s_%s.xlsx", prefix, time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Status(http.StatusOK)
	if _, err := file.WriteTo(c.Writer); err != nil {
		// Headers are already sent; the client sees a truncated file.
		log.Printf("[Report] Streaming %s failed: %v", filename, err)
	}
}
