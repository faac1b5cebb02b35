package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	employeedomain "github.com/smallbiznis/payrollengine/internal/employee/domain"
	payrolldomain "github.com/smallbiznis/payrollengine/internal/payroll/domain"
)

// Preview computes one employee's payroll without persisting anything.
func (s *Server) Preview(c *gin.Context) {
	tenantID, err := tenantIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req payrolldomain.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.TenantID = tenantID
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)

	resp, err := s.payrollSvc.Preview(c.Request.Context(), req)
	if err != nil {
		if payrolldomain.IsEmployeeFailure(err) && !errors.Is(err, employeedomain.ErrNotFound) {
			err = &CalculationError{Code: payrolldomain.FailureCodeFor(err), Err: err}
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
