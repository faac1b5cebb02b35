package cache

import (
	"time"

	"github.com/bwmarrin/snowflake"
	salarystructuredomain "github.com/smallbiznis/payrollengine/internal/salarystructure/domain"
)

const defaultPlanTTL = 30 * time.Minute

// PlanKey identifies one compiled revision of a structure version.
type PlanKey struct {
	VersionID snowflake.ID
	Revision  int
}

// StructurePlanCache holds compiled structure plans. An in-place edit bumps
// the revision, so a cached plan is never served for newer components.
type StructurePlanCache interface {
	Get(key PlanKey) (*salarystructuredomain.Plan, bool)
	Set(key PlanKey, plan *salarystructuredomain.Plan)
	Invalidate(key PlanKey)
}

type structurePlanCache struct {
	plans Cache[PlanKey, *salarystructuredomain.Plan]
	ttl   time.Duration
}

func NewStructurePlanCache() StructurePlanCache {
	return &structurePlanCache{
		plans: NewTTLCache[PlanKey, *salarystructuredomain.Plan](),
		ttl:   defaultPlanTTL,
	}
}

func (c *structurePlanCache) Get(key PlanKey) (*salarystructuredomain.Plan, bool) {
	return c.plans.Get(key)
}

func (c *structurePlanCache) Set(key PlanKey, plan *salarystructuredomain.Plan) {
	if plan == nil {
		return
	}
	c.plans.Set(key, plan, c.ttl)
}

func (c *structurePlanCache) Invalidate(key PlanKey) {
	c.plans.Delete(key)
}
