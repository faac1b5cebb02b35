package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	statutorydomain "github.com/smallbiznis/payrollengine/internal/statutory/domain"
)

type createStatutoryConfigRequest struct {
	RuleType            string                 `json:"rule_type"`
	WageCeiling         decimal.Decimal        `json:"wage_ceiling"`
	EmployeeRatePercent decimal.Decimal        `json:"employee_rate_percent"`
	EmployerRatePercent decimal.Decimal        `json:"employer_rate_percent"`
	StandardDeduction   decimal.Decimal        `json:"standard_deduction"`
	CessRatePercent     decimal.Decimal        `json:"cess_rate_percent"`
	Bands               []statutorydomain.Band `json:"bands"`
	BaseComponents      []string               `json:"base_components"`
	EffectiveFrom       string                 `json:"effective_from"`
	EffectiveTo         string                 `json:"effective_to"`
}

func (s *Server) CreateStatutoryConfig(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createStatutoryConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	effectiveFrom, err := parseOptionalTime(req.EffectiveFrom, false)
	if err != nil || effectiveFrom == nil {
		AbortWithError(c, newValidationError("effective_from", "invalid_effective_from", "effective_from is required"))
		return
	}
	effectiveTo, err := parseOptionalTime(req.EffectiveTo, true)
	if err != nil {
		AbortWithError(c, newValidationError("effective_to", "invalid_effective_to", "invalid effective_to"))
		return
	}

	resp, err := s.statutorySvc.Create(c.Request.Context(), statutorydomain.CreateRequest{
		TenantID:            tenantID,
		RuleType:            statutorydomain.RuleType(strings.ToUpper(strings.TrimSpace(req.RuleType))),
		WageCeiling:         req.WageCeiling,
		EmployeeRatePercent: req.EmployeeRatePercent,
		EmployerRatePercent: req.EmployerRatePercent,
		StandardDeduction:   req.StandardDeduction,
		CessRatePercent:     req.CessRatePercent,
		Bands:               req.Bands,
		BaseComponents:      req.BaseComponents,
		EffectiveFrom:       *effectiveFrom,
		EffectiveTo:         effectiveTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListStatutoryConfigs(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.statutorySvc.List(c.Request.Context(), statutorydomain.ListRequest{
		TenantID: tenantID,
		RuleType: statutorydomain.RuleType(strings.ToUpper(strings.TrimSpace(c.Query("rule_type")))),
		SortBy:   strings.TrimSpace(c.Query("sort_by")),
		OrderBy:  strings.TrimSpace(c.Query("order_by")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
