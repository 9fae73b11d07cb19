// Package web gin server
package web

import (
	"net/http"
	"net/url"
	"strings"

	alertCtl "github.com/Laisky/disaster-alert/internal/web/alert/controller"
	analyticsCtl "github.com/Laisky/disaster-alert/internal/web/analytics/controller"
	emergencyCtl "github.com/Laisky/disaster-alert/internal/web/emergency/controller"
	"github.com/Laisky/disaster-alert/internal/web/middleware"
	userCtl "github.com/Laisky/disaster-alert/internal/web/user/controller"
	"github.com/Laisky/disaster-alert/internal/web/user/model"
	weatherCtl "github.com/Laisky/disaster-alert/internal/web/weather/controller"
	"github.com/Laisky/disaster-alert/library/log"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
)

// Handlers are the controllers mounted under /api.
type Handlers struct {
	Auth        middleware.Authenticator
	UploadLimit *middleware.RateLimiter

	Users     *userCtl.Controller
	Alerts    *alertCtl.Controller
	Analytics *analyticsCtl.Controller
	Emergency *emergencyCtl.Controller
	Weather   *weatherCtl.Controller
}

// EngineConfig configures NewEngine.
type EngineConfig struct {
	// CORSOrigins are the allowed browser origins, "*" allows any.
	CORSOrigins []string
	// Metrics exposes /metrics and request metrics.
	Metrics bool
}

// NewEngine builds the gin engine.
func NewEngine(h *Handlers, cfg EngineConfig) (*gin.Engine, error) {
	server := gin.New()
	server.Use(
		gin.Recovery(),
		gmw.NewLoggerMiddleware(
			gmw.WithLoggerMwColored(),
			gmw.WithLevel(log.Logger.Level().String()),
			gmw.WithLogger(log.Logger.Named("gin")),
		),
		allowCORS(cfg.CORSOrigins),
	)

	if cfg.Metrics {
		if err := gmw.EnableMetric(server); err != nil {
			return nil, errors.Wrap(err, "enable metric server")
		}
	}

	server.Any("/health", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "hello, world")
	})

	api := server.Group("/api")
	api.Any("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := api.Group("/auth")
	auth.POST("/register", h.Users.Register)
	auth.POST("/login", h.Users.Login)

	authed := api.Group("", middleware.Auth(h.Auth))

	alerts := authed.Group("/alerts")
	alerts.POST("",
		middleware.RequireRoles(model.RoleAdmin, model.RoleOperator, model.RoleUser),
		h.UploadLimit.Handler(),
		h.Alerts.Create)
	alerts.GET("", h.Alerts.ListActive)
	alerts.GET("/map", h.Alerts.ListForMap)
	alerts.GET("/history", h.Alerts.History)
	alerts.DELETE("/:id", middleware.RequireRoles(model.RoleAdmin, model.RoleDMA), h.Alerts.Delete)

	h.Analytics.Register(authed.Group("/analytics",
		middleware.RequireRoles(model.RoleAdmin, model.RoleDMA, model.RoleUser)))

	emergency := authed.Group("/emergency")
	emergency.GET("", h.Emergency.List)
	emergency.GET("/:category", h.Emergency.Get)
	emergency.POST("", middleware.RequireRoles(model.RoleAdmin), h.Emergency.Create)

	users := authed.Group("/users")
	users.GET("/profile", h.Users.Profile)
	users.PUT("/profile", h.Users.UpdateProfile)

	authed.PUT("/admin/users/:id/role", middleware.RequireRoles(model.RoleAdmin), h.Users.SetRole)

	authed.GET("/weather", h.Weather.Current)

	return server, nil
}

// RunServer serves h on addr until the listener fails.
func RunServer(addr string, h *Handlers) {
	if !gconfig.Shared.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	server, err := NewEngine(h, EngineConfig{
		CORSOrigins: gconfig.Shared.GetStringSlice("settings.web.cors_origins"),
		Metrics:     true,
	})
	if err != nil {
		log.Logger.Panic("build http server", zap.Error(err))
	}

	log.Logger.Info("listening on http", zap.String("addr", addr))
	log.Logger.Panic("httpServer exit", zap.Error(server.Run(addr)))
}

func originAllowed(origin string, allowed []string) bool {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}

	for _, a := range allowed {
		a = strings.TrimRight(strings.TrimSpace(a), "/")
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}

	return false
}

func allowCORS(allowed []string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")

		if origin != "" && originAllowed(origin, allowed) {
			ctx.Header("Access-Control-Allow-Origin", origin)
			ctx.Header("Access-Control-Allow-Credentials", "true")
			ctx.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			ctx.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, X-Requested-With")
			ctx.Header("Access-Control-Max-Age", "86400") // 24 hours
			ctx.Header("Vary", "Origin")

			if ctx.Request.Method == http.MethodOptions {
				ctx.AbortWithStatus(http.StatusNoContent)
				return
			}
		} else if origin != "" && ctx.Request.Method == http.MethodOptions {
			// preflight from a disallowed origin
			ctx.AbortWithStatus(http.StatusForbidden)
			return
		}

		ctx.Next()
	}
}
