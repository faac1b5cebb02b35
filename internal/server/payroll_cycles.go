package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	extractdomain "github.com/smallbiznis/payrollengine/internal/extract/domain"
	payrolldomain "github.com/smallbiznis/payrollengine/internal/payroll/domain"
	payrollcycledomain "github.com/smallbiznis/payrollengine/internal/payrollcycle/domain"
)

type cycleKeyRequest struct {
	Month       int      `json:"month"`
	Year        int      `json:"year"`
	RunType     string   `json:"run_type"`
	EmployeeIDs []string `json:"employee_ids"`
	// VariablePayments replaces the stored payments of the listed employees,
	// keyed by employee ID.
	VariablePayments map[string][]payrolldomain.VariablePayment `json:"variable_payments"`
}

type runEmployeeRequest struct {
	// VariablePayments replaces the employee's stored payments; omit it to
	// keep them.
	VariablePayments *[]payrolldomain.VariablePayment `json:"variable_payments"`
}

func (r cycleKeyRequest) runType() payrollcycledomain.RunType {
	return payrollcycledomain.RunType(strings.ToUpper(strings.TrimSpace(r.RunType)))
}

func (s *Server) CreateCycle(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req cycleKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cycle, err := s.cycleSvc.CreateCycle(c.Request.Context(), payrollcycledomain.CreateCycleRequest{
		TenantID: tenantID,
		Month:    req.Month,
		Year:     req.Year,
		RunType:  req.runType(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": cycle})
}

// RunCycle creates the cycle when needed and computes every in-scope employee.
func (s *Server) RunCycle(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req cycleKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.cycleSvc.RunCycle(c.Request.Context(), payrollcycledomain.RunCycleRequest{
		TenantID:         tenantID,
		Month:            req.Month,
		Year:             req.Year,
		RunType:          req.runType(),
		EmployeeIDs:      req.EmployeeIDs,
		VariablePayments: req.VariablePayments,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCycles(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	year, err := parseOptionalInt(c.Query("year"))
	if err != nil {
		AbortWithError(c, newValidationError("year", "invalid_year", "invalid year"))
		return
	}

	cycles, err := s.cycleSvc.ListCycles(c.Request.Context(), payrollcycledomain.ListCyclesRequest{
		TenantID: tenantID,
		Status:   payrollcycledomain.CycleStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Year:     year,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cycles})
}

func (s *Server) GetCycle(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	cycleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	cycle, err := s.cycleSvc.GetCycle(c.Request.Context(), tenantID, cycleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cycle})
}

func (s *Server) DeleteCycle(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	cycleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.cycleSvc.DeleteCycle(c.Request.Context(), tenantID, cycleID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListRuns(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	cycleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	runs, err := s.cycleSvc.ListRuns(c.Request.Context(), tenantID, cycleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}

// RunEmployee recomputes a single employee inside an IN_PROGRESS cycle.
func (s *Server) RunEmployee(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	cycleID, ok := pathID(c, "id")
	if !ok {
		return
	}
	employeeID, ok := pathID(c, "employeeId")
	if !ok {
		return
	}

	var req runEmployeeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	run, err := s.cycleSvc.RunEmployee(c.Request.Context(), payrollcycledomain.RunEmployeeRequest{
		TenantID:         tenantID,
		CycleID:          cycleID,
		EmployeeID:       employeeID,
		VariablePayments: req.VariablePayments,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": run})
}

func (s *Server) LockCycle(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	cycleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	cycle, err := s.cycleSvc.LockCycle(c.Request.Context(), tenantID, cycleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cycle})
}

func (s *Server) MarkPaid(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	cycleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	cycle, err := s.cycleSvc.MarkPaid(c.Request.Context(), tenantID, cycleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cycle})
}

// GenerateExtract downloads the statutory extract of a LOCKED or PAID cycle.
func (s *Server) GenerateExtract(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	cycleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	format, err := extractdomain.ParseFormat(c.Query("format"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rendered, err := s.extractSvc.Render(c.Request.Context(), extractdomain.GenerateRequest{
		TenantID: tenantID,
		CycleID:  cycleID,
		Format:   format,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rendered.Filename))
	c.Header("X-Extract-ID", rendered.Extract.ID)
	c.Data(http.StatusOK, rendered.ContentType, rendered.Body)
}
