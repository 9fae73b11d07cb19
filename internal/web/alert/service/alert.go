// Package service runs the alert workflows.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/Laisky/disaster-alert/internal/library/classifier"
	"github.com/Laisky/disaster-alert/internal/location"
	"github.com/Laisky/disaster-alert/internal/metrics"
	"github.com/Laisky/disaster-alert/internal/web/alert/model"
	"github.com/Laisky/disaster-alert/library/db/mongo"
	"github.com/Laisky/disaster-alert/library/log"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	activeWindow     = 24 * time.Hour
	DefaultPageLimit = 8
	maxPageLimit     = 100
)

// Store persists alerts.
type Store interface {
	Insert(ctx context.Context, alert *model.Alert) error
	ListActive(ctx context.Context, since time.Time) ([]*model.Alert, error)
	ListActiveForMap(ctx context.Context, since time.Time) ([]*model.MapAlert, error)
	Count(ctx context.Context) (int64, error)
	ListPage(ctx context.Context, skip, limit int64) ([]*model.Alert, error)
	Delete(ctx context.Context, id primitive.ObjectID) (*model.Alert, error)
}

// Classifier labels an image.
type Classifier interface {
	Classify(ctx context.Context, image []byte, mimeType string) (*classifier.Result, error)
}

// Uploader stores an image and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, cnt []byte, contentType string) (string, error)
}

// Notifier hands a new alert to the notification pipeline.
type Notifier interface {
	Enqueue(ctx context.Context, alert *model.Alert) error
}

// CreateInput is one alert submission.
type CreateInput struct {
	Image    []byte
	MimeType string
	Location string
	Lat      float64
	Lng      float64
}

// HistoryPage is one page of the alert history.
type HistoryPage struct {
	Alerts      []*model.Alert `json:"alerts"`
	Page        int            `json:"page"`
	TotalPages  int            `json:"totalPages"`
	TotalAlerts int64          `json:"totalAlerts"`
	Limit       int            `json:"limit"`
}

// Service implements alert creation, listing and deletion.
type Service struct {
	store      Store
	classifier Classifier
	uploader   Uploader
	notifier   Notifier
	clock      clockwork.Clock
	metrics    *metrics.Metrics
	logger     logSDK.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock sets the time source.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithMetrics records outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New returns a Service.
func New(store Store, cls Classifier, uploader Uploader, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		store:      store,
		classifier: cls,
		uploader:   uploader,
		notifier:   notifier,
		clock:      clockwork.NewRealClock(),
		metrics:    metrics.NewForTesting(),
		logger:     log.Logger.Named("alert_service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Create classifies, uploads and stores one alert, then schedules its
// notifications. Nothing is stored unless the classifier returned both a
// type and a severity.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Alert, error) {
	if len(in.Image) == 0 {
		s.reject("invalid_input")
		return nil, inputErr("Exactly one image file is required")
	}
	mimeType, err := NormalizeImageType(in.MimeType)
	if err != nil {
		s.reject("invalid_input")
		return nil, err
	}
	if err = ValidateCoordinates(in.Lat, in.Lng); err != nil {
		s.reject("invalid_input")
		return nil, err
	}

	verdict, err := s.classify(ctx, in.Image, mimeType)
	if err != nil {
		return nil, err
	}

	imageURL, err := s.uploader.Upload(ctx, in.Image, mimeType)
	if err != nil {
		s.reject("upload")
		return nil, errors.Wrap(err, "upload image")
	}

	loc := location.Normalize(in.Location)
	now := s.clock.Now().UTC()
	reason := strings.TrimSpace(verdict.Reason)
	if reason == "" {
		reason = model.DefaultReason
	}

	alert := &model.Alert{
		Type:        verdict.Type,
		ImageURL:    imageURL,
		Confidence:  verdict.Confidence,
		Severity:    verdict.Severity,
		Reason:      reason,
		Location:    loc.Display,
		LocationKey: loc.Key,
		Lat:         in.Lat,
		Lng:         in.Lng,
		Timestamp:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err = s.store.Insert(ctx, alert); err != nil {
		s.reject("store")
		return nil, errors.Wrap(err, "save alert")
	}
	s.metrics.AlertsCreated.WithLabelValues(alert.Type).Inc()

	if err = s.notifier.Enqueue(ctx, alert); err != nil {
		s.logger.Error("schedule alert notification",
			zap.Error(err),
			zap.String("alert", alert.ID.Hex()))
	}

	return alert, nil
}

// classify returns a verdict with both type and severity, or an error
// matching ErrQuotaExceeded or ErrNoDisaster.
func (s *Service) classify(ctx context.Context, image []byte, mimeType string) (*classifier.Result, error) {
	start := s.clock.Now()
	verdict, err := s.classifier.Classify(ctx, image, mimeType)
	s.metrics.ClassifierDuration.Observe(s.clock.Since(start).Seconds())

	switch {
	case errors.Is(err, ErrQuotaExceeded):
		s.reject("quota")
		return nil, err
	case err != nil:
		s.logger.Warn("classify image", zap.Error(err))
		s.reject("no_disaster")
		return nil, errors.Wrap(ErrNoDisaster, err.Error())
	case verdict == nil || verdict.Type == "" || verdict.Severity == "":
		s.reject("no_disaster")
		return nil, ErrNoDisaster
	case !model.ValidSeverity(verdict.Severity):
		s.logger.Warn("classifier returned unknown severity", zap.String("severity", verdict.Severity))
		s.reject("no_disaster")
		return nil, ErrNoDisaster
	}

	return verdict, nil
}

func (s *Service) reject(reason string) {
	s.metrics.AlertsRejected.WithLabelValues(reason).Inc()
}

// ListActive returns geolocated alerts from the last 24 hours.
func (s *Service) ListActive(ctx context.Context) ([]*model.Alert, error) {
	alerts, err := s.store.ListActive(ctx, s.clock.Now().Add(-activeWindow))
	if err != nil {
		return nil, errors.Wrap(err, "list active alerts")
	}

	return alerts, nil
}

// ListForMap is ListActive reduced to map fields.
func (s *Service) ListForMap(ctx context.Context) ([]*model.MapAlert, error) {
	alerts, err := s.store.ListActiveForMap(ctx, s.clock.Now().Add(-activeWindow))
	if err != nil {
		return nil, errors.Wrap(err, "list map alerts")
	}

	return alerts, nil
}

// History returns one page of all alerts, newest first. Non-positive
// page or limit fall back to 1 and DefaultPageLimit.
func (s *Service) History(ctx context.Context, page, limit int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count alerts")
	}

	alerts, err := s.store.ListPage(ctx, int64(page-1)*int64(limit), int64(limit))
	if err != nil {
		return nil, errors.Wrap(err, "list alerts")
	}

	return &HistoryPage{
		Alerts:      alerts,
		Page:        page,
		TotalPages:  int((total + int64(limit) - 1) / int64(limit)),
		TotalAlerts: total,
		Limit:       limit,
	}, nil
}

// Delete removes the alert with hex id.
func (s *Service) Delete(ctx context.Context, id string) (*model.Alert, error) {
	oid, err := mongo.ParseID(id)
	if err != nil {
		return nil, inputErr("Invalid alert id")
	}

	alert, err := s.store.Delete(ctx, oid)
	if err != nil {
		if mongo.NotFound(err) {
			return nil, ErrAlertNotFound
		}
		return nil, errors.Wrap(err, "delete alert")
	}

	return alert, nil
}
