// Package controller exposes the alert HTTP handlers.
package controller

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/Laisky/disaster-alert/internal/web/alert/model"
	"github.com/Laisky/disaster-alert/internal/web/alert/service"
	"github.com/Laisky/disaster-alert/internal/web/middleware"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
)

const (
	// MaxImageBytes bounds one uploaded image.
	MaxImageBytes = 10 << 20

	imageField      = "image"
	msgNoDisaster   = "No clear disaster detected. Alert not created."
	msgQuota        = "Image classification quota exceeded. Please try again later."
	msgInternal     = "Internal server error"
	defaultDeadline = 30 * time.Second
)

// AlertService is what the handlers need from the alert service.
type AlertService interface {
	Create(ctx context.Context, in service.CreateInput) (*model.Alert, error)
	ListActive(ctx context.Context) ([]*model.Alert, error)
	ListForMap(ctx context.Context) ([]*model.MapAlert, error)
	History(ctx context.Context, page, limit int) (*service.HistoryPage, error)
	Delete(ctx context.Context, id string) (*model.Alert, error)
}

// Controller serves /alerts.
type Controller struct {
	svc     AlertService
	timeout time.Duration
}

// New returns a Controller. A non-positive timeout uses 30s.
func New(svc AlertService, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = defaultDeadline
	}

	return &Controller{svc: svc, timeout: timeout}
}

// Create handles POST /alerts.
func (ctl *Controller) Create(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.timeout)
	defer cancel()
	logger := gmw.GetLogger(c).Named("create_alert")

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxImageBytes+(1<<20))
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.Abort(c, http.StatusBadRequest, "Image must be 10MB or smaller")
			return
		}
		middleware.Abort(c, http.StatusBadRequest, "Exactly one image file is required")
		return
	}

	fh, err := singleImage(form)
	if err != nil {
		middleware.Abort(c, http.StatusBadRequest, err.Error())
		return
	}

	mimeType, err := service.NormalizeImageType(fh.Header.Get("Content-Type"))
	if err != nil {
		middleware.Abort(c, http.StatusBadRequest, err.Error())
		return
	}

	lat, lng, err := service.ParseCoordinates(formValue(form, "lat"), formValue(form, "lng"))
	if err != nil {
		middleware.Abort(c, http.StatusBadRequest, err.Error())
		return
	}

	image, err := readImage(fh)
	if err != nil {
		middleware.Abort(c, http.StatusBadRequest, err.Error())
		return
	}

	alert, err := ctl.svc.Create(ctx, service.CreateInput{
		Image:    image,
		MimeType: mimeType,
		Location: formValue(form, "location"),
		Lat:      lat,
		Lng:      lng,
	})
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidInput):
		middleware.Abort(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, service.ErrQuotaExceeded):
		middleware.Abort(c, http.StatusTooManyRequests, msgQuota)
		return
	case errors.Is(err, service.ErrNoDisaster):
		middleware.Abort(c, http.StatusUnprocessableEntity, msgNoDisaster)
		return
	default:
		logger.Error("create alert", zap.Error(err))
		middleware.Abort(c, http.StatusInternalServerError, msgInternal)
		return
	}

	logger.Info("alert created",
		zap.String("id", alert.ID.Hex()),
		zap.String("type", alert.Type),
		zap.String("location_key", alert.LocationKey))
	c.JSON(http.StatusCreated, alert)
}

// singleImage returns the only file in form, which must be sent as image.
func singleImage(form *multipart.Form) (*multipart.FileHeader, error) {
	var (
		n  int
		fh *multipart.FileHeader
	)
	for field, files := range form.File {
		n += len(files)
		if field == imageField && len(files) > 0 {
			fh = files[0]
		}
	}
	if n != 1 || fh == nil {
		return nil, &service.InputError{Message: "Exactly one image file is required"}
	}
	if fh.Size > MaxImageBytes {
		return nil, &service.InputError{Message: "Image must be 10MB or smaller"}
	}

	return fh, nil
}

func readImage(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, &service.InputError{Message: "Could not read uploaded image"}
	}
	defer f.Close() //nolint:errcheck

	cnt, err := io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
	if err != nil {
		return nil, &service.InputError{Message: "Could not read uploaded image"}
	}
	if len(cnt) > MaxImageBytes {
		return nil, &service.InputError{Message: "Image must be 10MB or smaller"}
	}

	return cnt, nil
}

func formValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return vs[0]
	}

	return ""
}

// ListActive handles GET /alerts.
func (ctl *Controller) ListActive(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.timeout)
	defer cancel()

	alerts, err := ctl.svc.ListActive(ctx)
	if err != nil {
		gmw.GetLogger(c).Error("list active alerts", zap.Error(err))
		middleware.Abort(c, http.StatusInternalServerError, msgInternal)
		return
	}

	c.JSON(http.StatusOK, alerts)
}

// ListForMap handles GET /alerts/map.
func (ctl *Controller) ListForMap(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.timeout)
	defer cancel()

	alerts, err := ctl.svc.ListForMap(ctx)
	if err != nil {
		gmw.GetLogger(c).Error("list map alerts", zap.Error(err))
		middleware.Abort(c, http.StatusInternalServerError, msgInternal)
		return
	}

	c.JSON(http.StatusOK, alerts)
}

// History handles GET /alerts/history.
func (ctl *Controller) History(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.timeout)
	defer cancel()

	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	ret, err := ctl.svc.History(ctx, page, limit)
	if err != nil {
		gmw.GetLogger(c).Error("alert history", zap.Error(err))
		middleware.Abort(c, http.StatusInternalServerError, msgInternal)
		return
	}

	c.JSON(http.StatusOK, ret)
}

// Delete handles DELETE /alerts/:id.
func (ctl *Controller) Delete(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.timeout)
	defer cancel()
	logger := gmw.GetLogger(c)

	alert, err := ctl.svc.Delete(ctx, c.Param("id"))
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidInput):
		middleware.Abort(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, service.ErrAlertNotFound):
		middleware.Abort(c, http.StatusNotFound, "Alert not found")
		return
	default:
		logger.Error("delete alert", zap.Error(err))
		middleware.Abort(c, http.StatusInternalServerError, msgInternal)
		return
	}

	logger.Info("alert deleted", zap.String("id", alert.ID.Hex()))
	c.JSON(http.StatusOK, gin.H{
		"message":      "Alert deleted successfully",
		"deletedAlert": alert,
	})
}
