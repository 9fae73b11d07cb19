package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Laisky/disaster-alert/internal/library/classifier"
	"github.com/Laisky/disaster-alert/internal/web/alert/model"
	"github.com/Laisky/disaster-alert/library/mail"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeFinder struct {
	byKey map[string][]Recipient
	err   error
}

func (f *fakeFinder) FindRecipients(_ context.Context, key string) ([]Recipient, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byKey[key], nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []mail.Message
	fail map[string]bool
}

func (s *fakeSender) Send(_ context.Context, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[msg.To] {
		return errors.New("mailbox unavailable")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.To)
	}
	return out
}

func mumbaiAlert(typ string) *model.Alert {
	return &model.Alert{
		ID:          primitive.NewObjectID(),
		Type:        typ,
		Severity:    model.SeverityHigh,
		Location:    "Mumbai",
		LocationKey: "mumbai",
		ImageURL:    "https://cdn.example.com/a.jpg",
		CreatedAt:   time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestDeliverSkipsFailedRecipients(t *testing.T) {
	finder := &fakeFinder{byKey: map[string][]Recipient{
		"mumbai": {
			{Username: "asha", Email: "asha@example.com"},
			{Username: "ravi", Email: "ravi@example.com"},
			{Username: "ghost", Email: ""},
			{Username: "meera", Email: "meera@example.com"},
		},
	}}
	sender := &fakeSender{fail: map[string]bool{"ravi@example.com": true}}
	d := NewDispatcher(NewMemoryQueue(1), finder, sender, WithAppURL("https://alerts.example.com/"))

	sent := d.Deliver(context.Background(), JobFromAlert(mumbaiAlert("Residential Fire")))
	require.Equal(t, 2, sent)
	require.Equal(t, []string{"asha@example.com", "meera@example.com"}, sender.recipients())

	msg := sender.sent[0]
	require.Equal(t, "Disaster alert: Residential Fire in Mumbai", msg.Subject)
	require.Contains(t, msg.HTML, `href="https://alerts.example.com/alerts/view"`)
	require.Contains(t, msg.HTML, `src="https://cdn.example.com/a.jpg"`)

	select {
	case err := <-d.Errors():
		var de *DeliveryError
		require.True(t, errors.As(err, &de))
		require.Equal(t, "ravi@example.com", de.Recipient)
	default:
		t.Fatal("expected a delivery error")
	}
}

func TestDeliverFinderFailure(t *testing.T) {
	d := NewDispatcher(NewMemoryQueue(1), &fakeFinder{err: errors.New("db down")}, new(fakeSender))

	require.Zero(t, d.Deliver(context.Background(), JobFromAlert(mumbaiAlert("Flooding"))))
	require.ErrorContains(t, <-d.Errors(), "db down")
}

func TestDeliverSkipsAlertsWithoutLocation(t *testing.T) {
	finder := &fakeFinder{byKey: map[string][]Recipient{
		"":        {{Username: "blank", Email: "blank@example.com"}},
		"unknown": {{Username: "nowhere", Email: "nowhere@example.com"}},
	}}
	sender := new(fakeSender)
	d := NewDispatcher(NewMemoryQueue(1), finder, sender)

	for _, key := range []string{"", "unknown"} {
		alert := mumbaiAlert("Flooding")
		alert.Location = "Unknown"
		alert.LocationKey = key

		require.Zero(t, d.Deliver(context.Background(), JobFromAlert(alert)), key)
	}
	require.Empty(t, sender.recipients())
}

func TestEnqueueIgnoresNonDisaster(t *testing.T) {
	queue := NewMemoryQueue(4)
	d := NewDispatcher(queue, new(fakeFinder), new(fakeSender))

	require.NoError(t, d.Enqueue(context.Background(), mumbaiAlert(classifier.NotADisaster)))
	require.Len(t, queue.jobs, 0)

	require.NoError(t, d.Enqueue(context.Background(), mumbaiAlert("Gas Leak")))
	require.Len(t, queue.jobs, 1)
}

func TestEnqueueSurvivesCanceledRequest(t *testing.T) {
	queue := NewMemoryQueue(4)
	d := NewDispatcher(queue, new(fakeFinder), new(fakeSender))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Enqueue(ctx, mumbaiAlert("Storm")))
	require.Len(t, queue.jobs, 1)
}

func TestEnqueueQueueFull(t *testing.T) {
	d := NewDispatcher(NewMemoryQueue(1), new(fakeFinder), new(fakeSender))

	require.NoError(t, d.Enqueue(context.Background(), mumbaiAlert("Storm")))
	require.Error(t, d.Enqueue(context.Background(), mumbaiAlert("Storm")))
}

func TestRunDeliversQueuedJobs(t *testing.T) {
	finder := &fakeFinder{byKey: map[string][]Recipient{
		"mumbai": {{Username: "asha", Email: "asha@example.com"}},
	}}
	sender := new(fakeSender)
	d := NewDispatcher(NewMemoryQueue(8), finder, sender, WithWorkers(2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.NoError(t, d.Enqueue(ctx, mumbaiAlert("Landslide")))
	require.NoError(t, d.Enqueue(ctx, mumbaiAlert("Riot")))

	require.Eventually(t, func() bool {
		return len(sender.recipients()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRenderWithoutImageOrLink(t *testing.T) {
	d := NewDispatcher(NewMemoryQueue(1), new(fakeFinder), new(fakeSender))
	job := JobFromAlert(mumbaiAlert("Heatwave"))
	job.ImageURL = ""

	body, err := d.render(job)
	require.NoError(t, err)
	require.False(t, strings.Contains(body, "<img"))
	require.False(t, strings.Contains(body, "href="))
	require.Contains(t, body, "Heatwave reported in Mumbai")
}
