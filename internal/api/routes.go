package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/tscv-go/internal/api/handlers"
	"github.com/irfndi/tscv-go/internal/config"
	"github.com/irfndi/tscv-go/internal/metrics"
	"github.com/irfndi/tscv-go/internal/middleware"
	"github.com/irfndi/tscv-go/internal/services"
	"github.com/irfndi/tscv-go/internal/telemetry"
)

// Dependencies are the collaborators of the HTTP API. The optional
// backends (Cache, Runs, DB, Redis) must be left as nil interfaces when
// disabled. A nil Breakers gets a manager with default thresholds; a nil
// Timeouts leaves runs bounded only by the request context.
type Dependencies struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Recorder *metrics.Recorder
	Cache    handlers.ResultStore
	Runs     handlers.RunStore
	DB       handlers.HealthChecker
	Redis    handlers.HealthChecker
	Breakers *services.CircuitBreakerManager
	Timeouts *services.TimeoutManager
}

// NewRouter builds the gin engine with the standard middleware chain and
// every route registered.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(deps.Config.Telemetry.ServiceName))
	router.Use(middleware.TraceHeader())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORS(deps.Config.Server.AllowedOrigins))

	if err := SetupRoutes(router, deps); err != nil {
		return nil, err
	}
	return router, nil
}

// SetupRoutes registers the health, metrics, evaluation, run and admin
// routes on router.
func SetupRoutes(router *gin.Engine, deps Dependencies) error {
	health := handlers.NewHealthHandler(deps.DB, deps.Redis, telemetry.ServiceVersion)
	router.GET("/health", health.HealthCheck)
	if deps.Recorder != nil {
		router.GET("/metrics", gin.WrapH(deps.Recorder.Handler()))
	}

	breakers := deps.Breakers
	if breakers == nil {
		breakers = services.NewCircuitBreakerManager(services.CircuitBreakerConfig{}, deps.Logger)
	}
	evaluation, err := handlers.NewEvaluationHandler(deps.Config, deps.Logger, deps.Recorder, deps.Cache, deps.Runs)
	if err != nil {
		return err
	}
	evaluation.WithBreakers(breakers).WithTimeouts(deps.Timeouts)
	runs := handlers.NewRunsHandler(deps.Runs, deps.Logger)
	admin := handlers.NewAdminHandler(deps.Cache, deps.Runs, deps.Logger).
		WithBreakers(breakers).
		WithTimeouts(deps.Timeouts)

	auth := middleware.NewAuthMiddleware(deps.Config.Security.JWTSecret, deps.Config.Security.AuthEnabled)
	adminAuth := middleware.NewAdminMiddleware(deps.Config.Security.AdminKeyHash)

	v1 := router.Group("/api/v1")
	v1.Use(auth.RequireAuth())
	{
		v1.POST("/train", evaluation.Train)
		v1.POST("/cross-validate", evaluation.CrossValidate)
		v1.POST("/backtest", evaluation.Backtest)
		v1.POST("/samples", evaluation.Samples)

		runsGroup := v1.Group("/runs")
		{
			runsGroup.GET("", runs.ListRuns)
			runsGroup.GET("/:id", runs.GetRun)
		}
	}

	adminGroup := router.Group("/api/v1/admin")
	adminGroup.Use(adminAuth.RequireAdminAuth())
	{
		adminGroup.DELETE("/cache", admin.ClearCache)
		adminGroup.GET("/cache/stats", admin.CacheStats)
		adminGroup.DELETE("/runs/:id", admin.DeleteRun)
		adminGroup.GET("/breakers", admin.BreakerStats)
		adminGroup.DELETE("/breakers", admin.ResetBreakers)
		adminGroup.GET("/active", admin.ActiveRuns)
		adminGroup.DELETE("/active/:id", admin.CancelRun)
	}
	return nil
}
