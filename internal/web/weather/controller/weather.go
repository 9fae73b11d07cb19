// Package controller exposes the current weather lookup.
package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/Laisky/disaster-alert/internal/library/weather"
	"github.com/Laisky/disaster-alert/internal/web/middleware"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
)

// Fetcher looks up current conditions.
type Fetcher interface {
	Current(ctx context.Context, location string) (*weather.Current, error)
}

// Controller serves /weather.
type Controller struct {
	fetcher Fetcher
	timeout time.Duration
}

// New returns a Controller.
func New(fetcher Fetcher, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Controller{fetcher: fetcher, timeout: timeout}
}

// Current handles GET /weather?location=.
func (ctl *Controller) Current(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.timeout)
	defer cancel()

	cur, err := ctl.fetcher.Current(ctx, c.Query("location"))
	if err == nil {
		c.JSON(http.StatusOK, cur)
		return
	}

	var notFound *weather.NotFoundError
	switch {
	case errors.Is(err, weather.ErrLocationRequired):
		middleware.Abort(c, http.StatusBadRequest, "Location is required")
	case errors.Is(err, weather.ErrMissingAPIKey):
		gmw.GetLogger(c).Error("weather api key is not configured")
		middleware.Abort(c, http.StatusInternalServerError, "Weather API key missing")
	case errors.As(err, &notFound) && notFound.Message != "":
		middleware.Abort(c, http.StatusNotFound, notFound.Message)
	case errors.Is(err, weather.ErrNotFound):
		middleware.Abort(c, http.StatusNotFound, "Weather not found")
	default:
		gmw.GetLogger(c).Error("fetch weather", zap.Error(err))
		middleware.Abort(c, http.StatusInternalServerError, "Failed to fetch weather")
	}
}
