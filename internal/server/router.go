package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/mute-meter-api/internal/handler"
	"github.com/noah-isme/mute-meter-api/internal/middleware"
	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/service"
	"github.com/noah-isme/mute-meter-api/pkg/config"
	"github.com/noah-isme/mute-meter-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/mute-meter-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/mute-meter-api/pkg/middleware/requestid"
)

type sessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*models.SessionState, error)
}

type pageEnterer interface {
	Enter(ctx context.Context, sessionID string, page models.Page) (*models.SessionState, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Routes bundles every handler mounted on the engine plus the guards in front of them.
type Routes struct {
	Auth      *handler.AuthHandler
	Search    *handler.SearchHandler
	Analytics *handler.AnalyticsHandler
	Transfer  *handler.TransferHandler
	Meters    *handler.MeterHandler
	Users     *handler.UserHandler
	Ops       *handler.MetricsHandler

	Sessions sessionResolver
	Pages    pageEnterer
	Audit    auditRecorder
}

// NewEngine builds the gin engine with the shared middleware chain.
func NewEngine(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	if logr == nil {
		logr = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if metrics != nil {
		r.Use(middleware.Metrics(metrics))
	}
	r.Use(middleware.WithResponseMeta())
	return r
}

// RegisterRoutes mounts the dashboard views under the configured API prefix.
func RegisterRoutes(r *gin.Engine, cfg *config.Config, routes Routes, logr *zap.Logger) {
	r.GET("/health", routes.Ops.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", routes.Ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", routes.Auth.Login)

	secured := api.Group("")
	secured.Use(middleware.Session(routes.Sessions))
	secured.POST("/auth/logout", routes.Auth.Logout)
	secured.GET("/session", routes.Auth.Session)
	secured.POST("/session/page", routes.Auth.Navigate)
	secured.GET("/analytics/filters", routes.Analytics.FilterOptions)

	secured.GET("/welcome", middleware.Page(routes.Pages, models.PageWelcome), routes.Analytics.Welcome)

	search := secured.Group("/search")
	search.Use(middleware.Page(routes.Pages, models.PageCustomerSearch))
	search.GET("", routes.Search.Current)
	search.POST("", routes.Search.Search)
	search.GET("/reasons", routes.Search.Reasons)
	search.POST("/reason", routes.Search.SelectReason)
	search.POST("/submit", routes.Search.SubmitReason)

	secured.GET("/analytics/mute", middleware.Page(routes.Pages, models.PageMuteAnalytics), routes.Analytics.MuteAnalytics)
	secured.GET("/analytics/traffic", middleware.Page(routes.Pages, models.PageTrafficInsights), routes.Analytics.TrafficInsights)

	exports := secured.Group("/export")
	exports.Use(middleware.Page(routes.Pages, models.PageDataExport))
	exports.GET("/preview", routes.Transfer.Preview)
	exports.GET("/download",
		middleware.Audit(routes.Audit, logr, models.AuditActionMeterExport, models.AuditResourceMeter),
		routes.Transfer.Download,
	)

	admin := secured.Group("/admin")
	admin.Use(middleware.Page(routes.Pages, models.PageAdminDashboard))

	users := admin.Group("/users")
	users.GET("", routes.Users.List)
	users.POST("", routes.Users.Create)
	users.GET("/:id", routes.Users.Get)
	users.PUT("/:id", routes.Users.Update)
	users.DELETE("/:id", routes.Users.Delete)

	meters := admin.Group("/meters")
	meters.POST("/import", routes.Transfer.Import)
	meters.POST("/delete/review", routes.Transfer.ReviewDelete)
	meters.POST("/delete/confirm", routes.Transfer.ConfirmDelete)
	meters.DELETE("/delete/review", routes.Transfer.CancelDelete)
	meters.GET("/:reference_no", routes.Meters.Get)
	meters.PUT("/:reference_no/mute-reason", routes.Meters.SetMuteReason)
}
