// Package controller exposes the emergency contact handlers.
package controller

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/disaster-alert/internal/web/emergency/model"
	"github.com/Laisky/disaster-alert/internal/web/middleware"
	"github.com/Laisky/disaster-alert/library/db/mongo"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

// Store persists emergency categories.
type Store interface {
	List(ctx context.Context) ([]*model.Category, error)
	Get(ctx context.Context, category string) (*model.Category, error)
	Append(ctx context.Context, category string, number model.Number, now time.Time) (*model.Category, error)
}

// Controller serves /emergency.
type Controller struct {
	store   Store
	clock   clockwork.Clock
	timeout time.Duration
}

// New returns a Controller.
func New(store Store, clock clockwork.Clock, timeout time.Duration) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Controller{store: store, clock: clock, timeout: timeout}
}

// List handles GET /emergency.
func (ctl *Controller) List(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.timeout)
	defer cancel()

	cats, err := ctl.store.List(ctx)
	if err != nil {
		gmw.GetLogger(c).Error("list emergency numbers", zap.Error(err))
		middleware.Abort(c, http.StatusInternalServerError, "Error fetching emergency numbers")
		return
	}

	c.JSON(http.StatusOK, cats)
}

// Get handles GET /emergency/:category. An unknown category is an empty
// list, not an error.
func (ctl *Controller) Get(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.timeout)
	defer cancel()
	category := c.Param("category")

	cat, err := ctl.store.Get(ctx, category)
	if err != nil {
		if mongo.NotFound(err) {
			c.JSON(http.StatusOK, gin.H{
				"category": category,
				"numbers":  []model.Number{},
				"message":  "No emergency numbers added yet for this category",
			})
			return
		}

		gmw.GetLogger(c).Error("get emergency numbers", zap.Error(err), zap.String("category", category))
		middleware.Abort(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, cat)
}

type numberReq struct {
	Name        string `json:"name"`
	Number      string `json:"number"`
	Description string `json:"description"`
	IsNational  *bool  `json:"isNational"`
}

type createReq struct {
	Category string      `json:"category"`
	Numbers  []numberReq `json:"numbers"`
}

// Create handles POST /emergency. Only the first number of the request
// is appended.
func (ctl *Controller) Create(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.timeout)
	defer cancel()

	req := new(createReq)
	if err := c.ShouldBindJSON(req); err != nil ||
		strings.TrimSpace(req.Category) == "" ||
		len(req.Numbers) == 0 {
		middleware.Abort(c, http.StatusBadRequest, "Category and at least one emergency number are required")
		return
	}

	first := req.Numbers[0]
	if strings.TrimSpace(first.Name) == "" || strings.TrimSpace(first.Number) == "" {
		middleware.Abort(c, http.StatusBadRequest, "Emergency number must include name and number")
		return
	}

	number := model.Number{
		Name:        first.Name,
		Number:      first.Number,
		Description: first.Description,
		IsNational:  true,
	}
	if first.IsNational != nil {
		number.IsNational = *first.IsNational
	}

	cat, err := ctl.store.Append(ctx, req.Category, number, ctl.clock.Now().UTC())
	if err != nil {
		gmw.GetLogger(c).Error("create emergency number", zap.Error(err))
		middleware.Abort(c, http.StatusInternalServerError, "Error creating emergency number")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Emergency number added successfully",
		"data":    cat,
	})
}
