package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	salarystructuredomain "github.com/smallbiznis/payrollengine/internal/salarystructure/domain"
)

type createStructureVersionRequest struct {
	Code          string                            `json:"code"`
	Name          string                            `json:"name"`
	Components    []salarystructuredomain.Component `json:"components"`
	EffectiveFrom string                            `json:"effective_from"`
	MakeDefault   bool                              `json:"make_default"`
}

// CreateStructureVersion saves a new immutable version of a salary structure.
func (s *Server) CreateStructureVersion(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createStructureVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	effectiveFrom, err := parseOptionalTime(req.EffectiveFrom, false)
	if err != nil || effectiveFrom == nil {
		AbortWithError(c, newValidationError("effective_from", "invalid_effective_from", "effective_from is required"))
		return
	}

	resp, err := s.structureSvc.CreateVersion(c.Request.Context(), salarystructuredomain.CreateVersionRequest{
		TenantID:      tenantID,
		Code:          strings.TrimSpace(req.Code),
		Name:          strings.TrimSpace(req.Name),
		Components:    req.Components,
		EffectiveFrom: *effectiveFrom,
		MakeDefault:   req.MakeDefault,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListStructureVersions(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.structureSvc.ListVersions(c.Request.Context(), tenantID, strings.TrimSpace(c.Param("code")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetDefaultStructure(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	code := strings.TrimSpace(c.Param("code"))
	if err := s.structureSvc.SetDefault(c.Request.Context(), tenantID, code); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"structure_code": code}})
}
