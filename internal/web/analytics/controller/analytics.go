// Package controller exposes the analytics HTTP handlers.
package controller

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Laisky/disaster-alert/internal/web/analytics/service"
	"github.com/Laisky/disaster-alert/internal/web/middleware"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
)

const defaultDeadline = 30 * time.Second

// Controller serves /analytics.
type Controller struct {
	svc     *service.Service
	timeout time.Duration
}

// New returns a Controller. A non-positive timeout uses 30s.
func New(svc *service.Service, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = defaultDeadline
	}

	return &Controller{svc: svc, timeout: timeout}
}

// Register mounts the analytics routes on g.
func (ctl *Controller) Register(g gin.IRoutes) {
	g.GET("/summary", ctl.Summary)
	g.GET("/alerts-over-time", ctl.AlertsOverTime)
	g.GET("/type-distribution", ctl.TypeDistribution)
	g.GET("/severity-distribution", ctl.SeverityDistribution)
	g.GET("/severity-by-type", ctl.SeverityByType)
	g.GET("/top-locations", ctl.TopLocations)
	g.GET("/confidence-buckets", ctl.ConfidenceBuckets)
	g.GET("/dashboard", ctl.Dashboard)
}

// serve runs query with the request range and writes its result.
func (ctl *Controller) serve(c *gin.Context, defaultRange, failure string,
	query func(ctx context.Context, r service.Range) (any, error)) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.timeout)
	defer cancel()

	ret, err := query(ctx, ctl.svc.ParseRange(c.Query("range"), defaultRange))
	if err != nil {
		gmw.GetLogger(c).Error(failure, zap.Error(err))
		middleware.Abort(c, http.StatusInternalServerError, failure)
		return
	}

	c.JSON(http.StatusOK, ret)
}

// Summary handles GET /analytics/summary.
func (ctl *Controller) Summary(c *gin.Context) {
	ctl.serve(c, service.Range7d, "Failed to load analytics summary",
		func(ctx context.Context, r service.Range) (any, error) {
			return ctl.svc.Summary(ctx, r)
		})
}

// AlertsOverTime handles GET /analytics/alerts-over-time.
func (ctl *Controller) AlertsOverTime(c *gin.Context) {
	ctl.serve(c, service.Range7d, "Failed to fetch alerts over time",
		func(ctx context.Context, r service.Range) (any, error) {
			return ctl.svc.AlertsOverTime(ctx, r)
		})
}

// TypeDistribution handles GET /analytics/type-distribution.
func (ctl *Controller) TypeDistribution(c *gin.Context) {
	ctl.serve(c, service.Range30d, "Failed to fetch type distribution",
		func(ctx context.Context, r service.Range) (any, error) {
			return ctl.svc.TypeDistribution(ctx, r)
		})
}

// SeverityDistribution handles GET /analytics/severity-distribution.
func (ctl *Controller) SeverityDistribution(c *gin.Context) {
	ctl.serve(c, service.Range30d, "Failed to fetch severity distribution",
		func(ctx context.Context, r service.Range) (any, error) {
			return ctl.svc.SeverityDistribution(ctx, r)
		})
}

// SeverityByType handles GET /analytics/severity-by-type.
func (ctl *Controller) SeverityByType(c *gin.Context) {
	ctl.serve(c, service.Range30d, "Failed to fetch severity by type",
		func(ctx context.Context, r service.Range) (any, error) {
			return ctl.svc.SeverityByType(ctx, r)
		})
}

// TopLocations handles GET /analytics/top-locations.
func (ctl *Controller) TopLocations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	ctl.serve(c, service.Range30d, "Failed to fetch top locations",
		func(ctx context.Context, r service.Range) (any, error) {
			return ctl.svc.TopLocations(ctx, r, limit)
		})
}

// ConfidenceBuckets handles GET /analytics/confidence-buckets.
func (ctl *Controller) ConfidenceBuckets(c *gin.Context) {
	ctl.serve(c, service.Range30d, "Failed to fetch confidence buckets",
		func(ctx context.Context, r service.Range) (any, error) {
			return ctl.svc.ConfidenceBuckets(ctx, r)
		})
}

// Dashboard handles GET /analytics/dashboard.
func (ctl *Controller) Dashboard(c *gin.Context) {
	ctl.serve(c, service.Range30d, "Failed to load analytics dashboard",
		func(ctx context.Context, r service.Range) (any, error) {
			return ctl.svc.Dashboard(ctx, r)
		})
}
