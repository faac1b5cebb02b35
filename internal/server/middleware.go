package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/payrollengine/internal/observability/context"
	"github.com/smallbiznis/payrollengine/internal/tenantcontext"
)

// Identity headers are set by the upstream gateway after authentication.
const (
	HeaderTenant     = "X-Tenant-ID"
	HeaderActorType  = "X-Actor-Type"
	HeaderActorID    = "X-Actor-ID"
	HeaderActorRole  = "X-Actor-Role"
	defaultActorType = "user"
)

// TenantContext resolves the tenant and acting operator from request headers
// and stores them on the request context.
func (s *Server) TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderTenant))
		if raw == "" {
			AbortWithError(c, ErrTenantRequired)
			return
		}
		tenantID, err := snowflake.ParseString(raw)
		if err != nil || tenantID == 0 {
			AbortWithError(c, newValidationError("tenant", "invalid_tenant", "invalid X-Tenant-ID header"))
			return
		}

		ctx := tenantcontext.WithTenantID(c.Request.Context(), tenantID)
		ctx = obscontext.WithTenantID(ctx, tenantID.String())

		if actorID := strings.TrimSpace(c.GetHeader(HeaderActorID)); actorID != "" {
			actorType := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorType)))
			if actorType == "" {
				actorType = defaultActorType
			}
			ctx = tenantcontext.WithActor(ctx, tenantcontext.Actor{
				Type: actorType,
				ID:   actorID,
				Role: strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole))),
			})
			ctx = obscontext.WithActor(ctx, actorType, actorID)
		} else if s.cfg.AuthzEnabled {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func tenantIDFromRequest(c *gin.Context) (snowflake.ID, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context())
	if !ok {
		return 0, ErrTenantRequired
	}
	return tenantID, nil
}
