package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrollengine/internal/clock"
	"github.com/smallbiznis/payrollengine/internal/config"
	"github.com/smallbiznis/payrollengine/internal/statutory/domain"
	"github.com/smallbiznis/payrollengine/internal/statutory/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	svc      domain.Service
	resolver domain.Resolver
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Config{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := repository.Provide()
	holder := config.NewStaticPayrollConfigHolder(config.DefaultPayrollConfig())
	return fixture{
		db:   db,
		node: node,
		svc: NewService(ServiceParam{
			DB:    db,
			Log:   zap.NewNop(),
			GenID: node,
			Clock: clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
			Repo:  repo,
		}),
		resolver: NewResolver(ResolverParam{DB: db, Log: zap.NewNop(), Payroll: holder, Repo: repo}),
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func pfRequest(tenantID snowflake.ID, ceiling int64, from time.Time, to *time.Time) domain.CreateRequest {
	return domain.CreateRequest{
		TenantID:            tenantID,
		RuleType:            domain.RuleTypePF,
		WageCeiling:         decimal.NewFromInt(ceiling),
		EmployeeRatePercent: decimal.NewFromInt(12),
		EmployerRatePercent: decimal.NewFromInt(12),
		EffectiveFrom:       from,
		EffectiveTo:         to,
	}
}

func TestResolvePicksConfigEffectiveOnPeriodEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID := f.node.Generate()

	end := date(2024, time.December, 31)
	_, err := f.svc.Create(ctx, pfRequest(tenantID, 15000, date(2024, time.April, 1), &end))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, pfRequest(tenantID, 18000, date(2025, time.January, 1), nil))
	require.NoError(t, err)

	rule, err := f.resolver.Resolve(ctx, tenantID, domain.RuleTypePF, date(2024, time.December, 31))
	require.NoError(t, err)
	assert.True(t, rule.WageCeiling.Equal(decimal.NewFromInt(15000)))
	assert.False(t, rule.SystemDefault)

	rule, err = f.resolver.Resolve(ctx, tenantID, domain.RuleTypePF, date(2025, time.January, 31))
	require.NoError(t, err)
	assert.True(t, rule.WageCeiling.Equal(decimal.NewFromInt(18000)))
	assert.NotZero(t, rule.ConfigID)
}

func TestResolveConfiguredTenantWithGapFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID := f.node.Generate()

	_, err := f.svc.Create(ctx, pfRequest(tenantID, 15000, date(2025, time.April, 1), nil))
	require.NoError(t, err)

	_, err = f.resolver.Resolve(ctx, tenantID, domain.RuleTypePF, date(2025, time.March, 31))
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)

	// ESI has no row but the tenant is configured, so no silent default applies.
	_, err = f.resolver.Resolve(ctx, tenantID, domain.RuleTypeESI, date(2025, time.April, 30))
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestResolveUnconfiguredTenantUsesFlaggedSystemDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rules, err := f.resolver.ResolveAll(ctx, f.node.Generate(), date(2025, time.May, 31))
	require.NoError(t, err)
	assert.True(t, rules.UsedSystemDefault())
	assert.True(t, rules.PF.SystemDefault)
	assert.True(t, rules.PF.WageCeiling.Equal(decimal.NewFromInt(15000)))
	assert.NotEmpty(t, rules.TDS.Bands)
	assert.Zero(t, rules.PF.ConfigID)
}

func TestCreateRejectsOverlappingWindows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID := f.node.Generate()

	_, err := f.svc.Create(ctx, pfRequest(tenantID, 15000, date(2025, time.April, 1), nil))
	require.NoError(t, err)

	end := date(2025, time.June, 30)
	_, err = f.svc.Create(ctx, pfRequest(tenantID, 18000, date(2025, time.May, 1), &end))
	assert.ErrorIs(t, err, domain.ErrOverlappingConfig)

	// A different rule type never overlaps.
	_, err = f.svc.Create(ctx, domain.CreateRequest{
		TenantID:            tenantID,
		RuleType:            domain.RuleTypeESI,
		WageCeiling:         decimal.NewFromInt(21000),
		EmployeeRatePercent: decimal.RequireFromString("0.75"),
		EmployerRatePercent: decimal.RequireFromString("3.25"),
		EffectiveFrom:       date(2025, time.May, 1),
	})
	assert.NoError(t, err)

	items, err := f.svc.List(ctx, domain.ListRequest{TenantID: tenantID, RuleType: "pf"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCreateValidatesBandsAndRates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID := f.node.Generate()

	req := pfRequest(tenantID, 15000, date(2025, time.April, 1), nil)
	req.EmployeeRatePercent = decimal.NewFromInt(-1)
	_, err := f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidRate)

	_, err = f.svc.Create(ctx, domain.CreateRequest{
		TenantID:      tenantID,
		RuleType:      domain.RuleTypePT,
		EffectiveFrom: date(2025, time.April, 1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBands)

	_, err = f.svc.Create(ctx, domain.CreateRequest{TenantID: tenantID, RuleType: "GST", EffectiveFrom: date(2025, time.April, 1)})
	assert.ErrorIs(t, err, domain.ErrInvalidRuleType)
}

func TestResolveAllOnlyResolvesRequestedTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID := f.node.Generate()

	// A configured tenant without TDS still resolves the types it has.
	_, err := f.svc.Create(ctx, pfRequest(tenantID, 15000, date(2025, time.April, 1), nil))
	require.NoError(t, err)

	rules, err := f.resolver.ResolveAll(ctx, tenantID, date(2025, time.April, 30), domain.RuleTypePF)
	require.NoError(t, err)
	require.NotNil(t, rules.PF)
	assert.Nil(t, rules.TDS)
	assert.False(t, rules.UsedSystemDefault())

	_, err = f.resolver.ResolveAll(ctx, tenantID, date(2025, time.April, 30), domain.RuleTypePF, domain.RuleTypeTDS)
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestCreateNormalizesProfessionalTaxBaseComponents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID := f.node.Generate()
	bands := []domain.Band{{LowerBound: decimal.Zero, Amount: decimal.NewFromInt(200)}}

	created, err := f.svc.Create(ctx, domain.CreateRequest{
		TenantID:       tenantID,
		RuleType:       domain.RuleTypePT,
		Bands:          bands,
		BaseComponents: []string{"basic", " House Rent "},
		EffectiveFrom:  date(2025, time.April, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"BASIC", "HOUSE_RENT"}, created.BaseComponents)

	rules, err := f.resolver.ResolveAll(ctx, tenantID, date(2025, time.April, 30), domain.RuleTypePT)
	require.NoError(t, err)
	require.NotNil(t, rules.PT)
	assert.Equal(t, []string{"BASIC", "HOUSE_RENT"}, []string(rules.PT.BaseComponents))

	// Spellings of one code collide once normalized.
	_, err = f.svc.Create(ctx, domain.CreateRequest{
		TenantID:       f.node.Generate(),
		RuleType:       domain.RuleTypePT,
		Bands:          bands,
		BaseComponents: []string{"House Rent", "HOUSE_RENT"},
		EffectiveFrom:  date(2025, time.April, 1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBaseComponents)

	// Only PT takes a component base.
	req := pfRequest(f.node.Generate(), 15000, date(2025, time.April, 1), nil)
	req.BaseComponents = []string{"BASIC"}
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidBaseComponents)
}
