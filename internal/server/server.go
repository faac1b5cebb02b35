package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/payrollengine/internal/audit/domain"
	"github.com/smallbiznis/payrollengine/internal/authorization"
	"github.com/smallbiznis/payrollengine/internal/config"
	extractdomain "github.com/smallbiznis/payrollengine/internal/extract/domain"
	"github.com/smallbiznis/payrollengine/internal/observability"
	obslogger "github.com/smallbiznis/payrollengine/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payrollengine/internal/observability/metrics"
	obstracing "github.com/smallbiznis/payrollengine/internal/observability/tracing"
	payrolldomain "github.com/smallbiznis/payrollengine/internal/payroll/domain"
	payrollcycledomain "github.com/smallbiznis/payrollengine/internal/payrollcycle/domain"
	"github.com/smallbiznis/payrollengine/internal/ratelimit"
	salarystructuredomain "github.com/smallbiznis/payrollengine/internal/salarystructure/domain"
	statutorydomain "github.com/smallbiznis/payrollengine/internal/statutory/domain"
	tenantsettingsdomain "github.com/smallbiznis/payrollengine/internal/tenantsettings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

// RunHTTP serves the engine for the lifetime of the fx app.
func RunHTTP(lc fx.Lifecycle, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	payrollSvc     payrolldomain.Service
	cycleSvc       payrollcycledomain.Service
	extractSvc     extractdomain.Service
	statutorySvc   statutorydomain.Service
	structureSvc   salarystructuredomain.Service
	settingsSvc    tenantsettingsdomain.Service
	auditSvc       auditdomain.Service
	authzSvc       authorization.Service
	previewLimiter *ratelimit.PreviewLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	PayrollSvc     payrolldomain.Service
	CycleSvc       payrollcycledomain.Service
	ExtractSvc     extractdomain.Service
	StatutorySvc   statutorydomain.Service
	StructureSvc   salarystructuredomain.Service
	SettingsSvc    tenantsettingsdomain.Service
	AuditSvc       auditdomain.Service
	AuthzSvc       authorization.Service     `optional:"true"`
	PreviewLimiter *ratelimit.PreviewLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		payrollSvc:     p.PayrollSvc,
		cycleSvc:       p.CycleSvc,
		extractSvc:     p.ExtractSvc,
		statutorySvc:   p.StatutorySvc,
		structureSvc:   p.StructureSvc,
		settingsSvc:    p.SettingsSvc,
		auditSvc:       p.AuditSvc,
		authzSvc:       p.AuthzSvc,
		previewLimiter: p.PreviewLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/payroll", s.TenantContext())

	// -------- Calculation --------
	api.POST("/preview", s.authorize(authorization.ObjectPayrollPreview, authorization.ActionPreview), s.PreviewRateLimit(), s.Preview)

	// -------- Cycles --------
	cycles := api.Group("/cycles")
	{
		cycles.GET("", s.authorize(authorization.ObjectPayrollCycle, authorization.ActionCycleView), s.ListCycles)
		cycles.POST("", s.authorize(authorization.ObjectPayrollCycle, authorization.ActionCycleCreate), s.CreateCycle)
		cycles.POST("/run", s.authorize(authorization.ObjectPayrollCycle, authorization.ActionCycleRun), s.RunCycle)
		cycles.GET("/:id", s.authorize(authorization.ObjectPayrollCycle, authorization.ActionCycleView), s.GetCycle)
		cycles.DELETE("/:id", s.authorize(authorization.ObjectPayrollCycle, authorization.ActionCycleDelete), s.DeleteCycle)
		cycles.GET("/:id/runs", s.authorize(authorization.ObjectPayrollCycle, authorization.ActionCycleView), s.ListRuns)
		cycles.POST("/:id/employees/:employeeId/run", s.authorize(authorization.ObjectPayrollCycle, authorization.ActionCycleRun), s.RunEmployee)
		cycles.POST("/:id/lock", s.authorize(authorization.ObjectPayrollCycle, authorization.ActionCycleLock), s.LockCycle)
		cycles.POST("/:id/paid", s.authorize(authorization.ObjectPayrollCycle, authorization.ActionCyclePay), s.MarkPaid)
		cycles.GET("/:id/extract", s.authorize(authorization.ObjectPayrollExtract, authorization.ActionExtractGenerate), s.GenerateExtract)
	}

	// -------- Statutory configuration --------
	api.GET("/statutory-configs", s.authorize(authorization.ObjectStatutoryConfig, authorization.ActionStatutoryView), s.ListStatutoryConfigs)
	api.POST("/statutory-configs", s.authorize(authorization.ObjectStatutoryConfig, authorization.ActionStatutoryCreate), s.CreateStatutoryConfig)

	// -------- Salary structures --------
	api.POST("/salary-structures", s.authorize(authorization.ObjectSalaryStructure, authorization.ActionStructureCreate), s.CreateStructureVersion)
	api.GET("/salary-structures/:code/versions", s.authorize(authorization.ObjectSalaryStructure, authorization.ActionStructureView), s.ListStructureVersions)
	api.PUT("/salary-structures/:code/default", s.authorize(authorization.ObjectSalaryStructure, authorization.ActionStructureSetDefault), s.SetDefaultStructure)

	// -------- Tenant settings --------
	api.GET("/settings", s.authorize(authorization.ObjectTenantSettings, authorization.ActionSettingsView), s.GetTenantSettings)
	api.PUT("/settings", s.authorize(authorization.ObjectTenantSettings, authorization.ActionSettingsUpdate), s.UpdateTenantSettings)

	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
