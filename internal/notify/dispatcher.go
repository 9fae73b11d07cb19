// Package notify e-mails users about new alerts in their location.
//
// Request handlers push a Job onto a Queue and return. Worker goroutines
// started by Dispatcher.Run pop jobs and deliver them; every delivery
// failure is published on the dispatcher's error channel.
package notify

import (
	"bytes"
	"context"
	"html/template"
	"strings"
	"time"

	"github.com/Laisky/disaster-alert/internal/library/classifier"
	"github.com/Laisky/disaster-alert/internal/location"
	"github.com/Laisky/disaster-alert/internal/metrics"
	"github.com/Laisky/disaster-alert/internal/web/alert/model"
	"github.com/Laisky/disaster-alert/library/log"
	"github.com/Laisky/disaster-alert/library/mail"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers     = 4
	defaultPushTimeout = 3 * time.Second
	errChanSize        = 256
)

// Job is one alert waiting to be announced.
type Job struct {
	AlertID     string    `json:"alertId"`
	Type        string    `json:"type"`
	Severity    string    `json:"severity"`
	Location    string    `json:"location"`
	LocationKey string    `json:"locationKey"`
	ImageURL    string    `json:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

// JobFromAlert copies the fields a notification needs.
func JobFromAlert(alert *model.Alert) *Job {
	return &Job{
		AlertID:     alert.ID.Hex(),
		Type:        alert.Type,
		Severity:    alert.Severity,
		Location:    alert.Location,
		LocationKey: alert.LocationKey,
		ImageURL:    alert.ImageURL,
		CreatedAt:   alert.CreatedAt,
	}
}

// Recipient is a user subscribed to a location.
type Recipient struct {
	Username string
	Email    string
}

// RecipientFinder returns users whose locationKey equals key and whose
// e-mail is set.
type RecipientFinder interface {
	FindRecipients(ctx context.Context, locationKey string) ([]Recipient, error)
}

// Sender delivers one e-mail.
type Sender interface {
	Send(ctx context.Context, msg mail.Message) error
}

// DeliveryError describes one failed delivery.
type DeliveryError struct {
	AlertID   string
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	if e.Recipient == "" {
		return "alert " + e.AlertID + ": " + e.Err.Error()
	}
	return "alert " + e.AlertID + " to " + e.Recipient + ": " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Dispatcher moves jobs from a Queue to recipients' inboxes.
type Dispatcher struct {
	queue       Queue
	finder      RecipientFinder
	sender      Sender
	appURL      string
	workers     int
	pushTimeout time.Duration
	logger      logSDK.Logger
	metrics     *metrics.Metrics
	errs        chan error
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets how many jobs are delivered in parallel.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithAppURL sets the frontend base URL used for links.
func WithAppURL(u string) Option {
	return func(d *Dispatcher) {
		d.appURL = strings.TrimRight(u, "/")
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger logSDK.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics records outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher returns a Dispatcher. Call Run to start the workers.
func NewDispatcher(queue Queue, finder RecipientFinder, sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:       queue,
		finder:      finder,
		sender:      sender,
		workers:     defaultWorkers,
		pushTimeout: defaultPushTimeout,
		logger:      log.Logger.Named("notify"),
		metrics:     metrics.NewForTesting(),
		errs:        make(chan error, errChanSize),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Errors exposes delivery failures. Use LogErrors to drain it into the log.
func (d *Dispatcher) Errors() <-chan error {
	return d.errs
}

// Enqueue schedules notifications for alert. It ignores non-disasters
// and never waits for delivery. The push is bounded by its own timeout
// and survives cancellation of ctx.
func (d *Dispatcher) Enqueue(ctx context.Context, alert *model.Alert) error {
	if alert == nil || alert.Type == classifier.NotADisaster {
		return nil
	}

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.pushTimeout)
	defer cancel()

	if err := d.queue.Push(pushCtx, JobFromAlert(alert)); err != nil {
		d.metrics.NotifyQueueErrors.Inc()
		return errors.Wrapf(err, "enqueue alert %s", alert.ID.Hex())
	}

	return nil
}

// Run starts the workers and blocks until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("start notification workers", zap.Int("workers", d.workers))

	var pool errgroup.Group
	for i := 0; i < d.workers; i++ {
		pool.Go(func() error {
			d.work(ctx)
			return nil
		})
	}

	return pool.Wait()
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		job, err := d.queue.Pop(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			d.metrics.NotifyQueueErrors.Inc()
			d.report(errors.Wrap(err, "pop notify job"))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		d.Deliver(ctx, job)
	}
}

// Deliver mails job to every matching recipient and returns how many
// messages were accepted by the relay. Failures go to Errors.
func (d *Dispatcher) Deliver(ctx context.Context, job *Job) (sent int) {
	if job.Type == classifier.NotADisaster {
		return 0
	}
	if job.LocationKey == "" || job.LocationKey == location.UnknownKey {
		return 0
	}

	recipients, err := d.finder.FindRecipients(ctx, job.LocationKey)
	if err != nil {
		d.report(&DeliveryError{AlertID: job.AlertID, Err: errors.Wrap(err, "find recipients")})
		return 0
	}
	if len(recipients) == 0 {
		return 0
	}

	body, err := d.render(job)
	if err != nil {
		d.report(&DeliveryError{AlertID: job.AlertID, Err: err})
		return 0
	}
	subject := "Disaster alert: " + job.Type + " in " + job.Location

	for _, r := range recipients {
		if strings.TrimSpace(r.Email) == "" {
			continue
		}

		if err := d.sender.Send(ctx, mail.Message{To: r.Email, Subject: subject, HTML: body}); err != nil {
			d.metrics.NotificationsSent.WithLabelValues("failed").Inc()
			d.report(&DeliveryError{AlertID: job.AlertID, Recipient: r.Email, Err: err})
			continue
		}

		d.metrics.NotificationsSent.WithLabelValues("sent").Inc()
		sent++
	}

	d.logger.Debug("alert notified",
		zap.String("alert", job.AlertID),
		zap.String("location_key", job.LocationKey),
		zap.Int("sent", sent),
		zap.Int("recipients", len(recipients)))
	return sent
}

// report publishes err without ever blocking a worker.
func (d *Dispatcher) report(err error) {
	select {
	case d.errs <- err:
	default:
		d.logger.Warn("notification error dropped, channel full", zap.Error(err))
	}
}

// LogErrors writes every reported failure to the log until ctx is done.
func (d *Dispatcher) LogErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-d.errs:
			d.logger.Error("notification failed", zap.Error(err))
		}
	}
}

var mailTemplate = template.Must(template.New("alert").Parse(`<h2>{{.Job.Type}} reported in {{.Job.Location}}</h2>
<p>Severity: <strong>{{.Job.Severity}}</strong></p>
<p>Reported at {{.Job.CreatedAt.Format "02 Jan 2006 15:04 MST"}}.</p>
{{if .Job.ImageURL}}<p><img src="{{.Job.ImageURL}}" alt="{{.Job.Type}}" style="max-width:480px"></p>{{end}}
{{if .Link}}<p><a href="{{.Link}}">View active alerts</a></p>{{end}}
<p>You receive this because your profile location is {{.Job.Location}}.</p>`))

func (d *Dispatcher) render(job *Job) (string, error) {
	link := ""
	if d.appURL != "" {
		link = d.appURL + "/alerts/view"
	}

	var buf bytes.Buffer
	if err := mailTemplate.Execute(&buf, struct {
		Job  *Job
		Link string
	}{Job: job, Link: link}); err != nil {
		return "", errors.Wrap(err, "render mail")
	}

	return buf.String(), nil
}
