package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	tenantsettingsdomain "github.com/smallbiznis/payrollengine/internal/tenantsettings/domain"
)

func (s *Server) GetTenantSettings(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	settings, err := s.settingsSvc.Get(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settingsResponse(settings)})
}

func (s *Server) UpdateTenantSettings(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req tenantsettingsdomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	settings, err := s.settingsSvc.Upsert(c.Request.Context(), tenantID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settingsResponse(settings)})
}

func settingsResponse(settings tenantsettingsdomain.Settings) gin.H {
	return gin.H{
		"tenant_id":               settings.TenantID.String(),
		"currency_precision":      settings.CurrencyPrecision,
		"fiscal_year_start_month": settings.FiscalYearStartMonth,
		"assume_full_attendance":  settings.AssumeFullAttendance,
	}
}
