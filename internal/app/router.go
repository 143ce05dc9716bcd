package app

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/pmb-api/api/swagger"
	"github.com/noah-isme/pmb-api/internal/handler"
	"github.com/noah-isme/pmb-api/internal/middleware"
	"github.com/noah-isme/pmb-api/internal/models"
	"github.com/noah-isme/pmb-api/pkg/config"
	"github.com/noah-isme/pmb-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/pmb-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/pmb-api/pkg/middleware/requestid"
)

// Router builds the HTTP engine.
func (a *App) Router() *gin.Engine {
	cfg := a.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(a.Metrics,
		handler.HealthCheck{Name: "postgres", Ping: a.DB.PingContext},
		handler.HealthCheck{Name: "redis", Ping: a.Cache.Ping},
	)
	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		r.Static("/static", cfg.StaticDir)
		r.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusFound, "/static/index.html")
		})
	}

	authHandler := handler.NewAuthHandler(a.Auth)
	admissionHandler := handler.NewAdmissionHandler(a.Admissions)
	catalogHandler := handler.NewCatalogHandler(a.Programs, a.Counters)
	letterHandler := handler.NewLetterHandler(a.Letters)
	rosterHandler := handler.NewRosterHandler(a.Roster)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/programs", catalogHandler.Programs)
	api.POST("/candidates", admissionHandler.Register)
	api.GET("/candidates/:id", admissionHandler.Status)
	api.GET("/letters/download", letterHandler.Download)
	// legacy paths kept for clients of the first registration portal
	api.POST("/register", admissionHandler.Register)
	api.GET("/status/:id", admissionHandler.Status)

	admin := api.Group("")
	admin.Use(middleware.JWT(a.Auth), middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))
	admin.GET("/auth/me", authHandler.Me)
	admin.GET("/candidates", admissionHandler.List)
	admin.POST("/candidates/:id/approve", admissionHandler.Approve)
	admin.PUT("/approve/:id", admissionHandler.Approve)
	admin.GET("/candidates/:id/letter", letterHandler.Link)
	admin.GET("/nim-counters", catalogHandler.Counters)
	admin.GET("/admissions/export", middleware.Audit(a.Users, a.Logger, models.AuditActionRosterExport, models.AuditResourceRoster), rosterHandler.Export)
	admin.GET("/metrics/summary", metricsHandler.Summary)

	return r
}
