package service

import (
	"context"
	"testing"
	"time"

	"github.com/Laisky/disaster-alert/internal/library/classifier"
	"github.com/Laisky/disaster-alert/internal/web/alert/model"

	"github.com/Laisky/errors/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoLib "go.mongodb.org/mongo-driver/mongo"
)

type fakeStore struct {
	inserted  []*model.Alert
	since     time.Time
	total     int64
	skip      int64
	limit     int64
	deleteErr error
}

func (f *fakeStore) Insert(_ context.Context, alert *model.Alert) error {
	alert.ID = primitive.NewObjectID()
	f.inserted = append(f.inserted, alert)
	return nil
}

func (f *fakeStore) ListActive(_ context.Context, since time.Time) ([]*model.Alert, error) {
	f.since = since
	return f.inserted, nil
}

func (f *fakeStore) ListActiveForMap(_ context.Context, since time.Time) ([]*model.MapAlert, error) {
	f.since = since
	return []*model.MapAlert{}, nil
}

func (f *fakeStore) Count(context.Context) (int64, error) {
	return f.total, nil
}

func (f *fakeStore) ListPage(_ context.Context, skip, limit int64) ([]*model.Alert, error) {
	f.skip, f.limit = skip, limit
	return []*model.Alert{}, nil
}

func (f *fakeStore) Delete(_ context.Context, id primitive.ObjectID) (*model.Alert, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &model.Alert{ID: id}, nil
}

type fakeClassifier struct {
	result *classifier.Result
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(context.Context, []byte, string) (*classifier.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeUploader struct {
	calls int
}

func (f *fakeUploader) Upload(context.Context, []byte, string) (string, error) {
	f.calls++
	return "https://cdn.example.com/alerts/a.jpg", nil
}

type fakeNotifier struct {
	alerts []*model.Alert
}

func (f *fakeNotifier) Enqueue(_ context.Context, alert *model.Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

type fixture struct {
	store    *fakeStore
	cls      *fakeClassifier
	uploader *fakeUploader
	notifier *fakeNotifier
	clock    *clockwork.FakeClock
	svc      *Service
}

func newFixture(result *classifier.Result, err error) *fixture {
	f := &fixture{
		store:    &fakeStore{},
		cls:      &fakeClassifier{result: result, err: err},
		uploader: &fakeUploader{},
		notifier: &fakeNotifier{},
		clock:    clockwork.NewFakeClockAt(time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.svc = New(f.store, f.cls, f.uploader, f.notifier, WithClock(f.clock))
	return f
}

func validInput() CreateInput {
	return CreateInput{
		Image:    []byte("jpeg bytes"),
		MimeType: "image/jpeg",
		Location: "  mumbai ",
		Lat:      19.07,
		Lng:      72.87,
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(&classifier.Result{
		Type:       "Flooding",
		Confidence: 0.92,
		Severity:   "high",
		Reason:     "Water covering streets",
	}, nil)

	alert, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.False(t, alert.ID.IsZero())
	require.Equal(t, "Flooding", alert.Type)
	require.Equal(t, "high", alert.Severity)
	require.Equal(t, "Mumbai", alert.Location)
	require.Equal(t, "mumbai", alert.LocationKey)
	require.Equal(t, "https://cdn.example.com/alerts/a.jpg", alert.ImageURL)
	require.Equal(t, f.clock.Now().UTC(), alert.CreatedAt)
	require.Equal(t, alert.CreatedAt, alert.Timestamp)
	require.Len(t, f.store.inserted, 1)
	require.Len(t, f.notifier.alerts, 1)
}

func TestCreateDefaultsReason(t *testing.T) {
	f := newFixture(&classifier.Result{Type: "Storm", Severity: "low"}, nil)

	alert, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, model.DefaultReason, alert.Reason)
}

func TestCreateRejectsInputBeforeClassifying(t *testing.T) {
	cases := map[string]struct {
		mutate func(in *CreateInput)
		msg    string
	}{
		"latitude out of range": {
			mutate: func(in *CreateInput) { in.Lat = 200 },
			msg:    "Latitude must be between -90 and 90",
		},
		"longitude out of range": {
			mutate: func(in *CreateInput) { in.Lng = -181 },
			msg:    "Longitude must be between -180 and 180",
		},
		"unsupported type": {
			mutate: func(in *CreateInput) { in.MimeType = "image/gif" },
			msg:    "Unsupported image type. Allowed types: image/jpeg, image/png, image/webp",
		},
		"empty image": {
			mutate: func(in *CreateInput) { in.Image = nil },
			msg:    "Exactly one image file is required",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(&classifier.Result{Type: "Storm", Severity: "low"}, nil)
			in := validInput()
			tc.mutate(&in)

			_, err := f.svc.Create(context.Background(), in)
			require.ErrorIs(t, err, ErrInvalidInput)
			require.EqualError(t, err, tc.msg)
			require.Zero(t, f.cls.calls)
			require.Empty(t, f.store.inserted)
		})
	}
}

func TestCreateClassifierOutcomes(t *testing.T) {
	cases := map[string]struct {
		result  *classifier.Result
		err     error
		wantErr error
	}{
		"quota": {
			err:     errors.Wrap(classifier.ErrQuotaExceeded, "429"),
			wantErr: ErrQuotaExceeded,
		},
		"upstream failure": {
			err:     errors.New("connection reset"),
			wantErr: ErrNoDisaster,
		},
		"missing severity": {
			result:  &classifier.Result{Type: "Storm"},
			wantErr: ErrNoDisaster,
		},
		"missing type": {
			result:  &classifier.Result{Severity: "high"},
			wantErr: ErrNoDisaster,
		},
		"unknown severity": {
			result:  &classifier.Result{Type: "Storm", Severity: "extreme"},
			wantErr: ErrNoDisaster,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(tc.result, tc.err)

			_, err := f.svc.Create(context.Background(), validInput())
			require.ErrorIs(t, err, tc.wantErr)
			require.Equal(t, 1, f.cls.calls)
			require.Zero(t, f.uploader.calls)
			require.Empty(t, f.store.inserted)
			require.Empty(t, f.notifier.alerts)
		})
	}
}

func TestCreateNotADisasterIsStored(t *testing.T) {
	f := newFixture(&classifier.Result{
		Type:     classifier.NotADisaster,
		Severity: "low",
	}, nil)

	alert, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, classifier.NotADisaster, alert.Type)
	require.Len(t, f.store.inserted, 1)
	require.Len(t, f.notifier.alerts, 1)
}

func TestListActiveWindow(t *testing.T) {
	f := newFixture(nil, nil)

	_, err := f.svc.ListActive(context.Background())
	require.NoError(t, err)
	require.Equal(t, f.clock.Now().Add(-24*time.Hour), f.store.since)

	_, err = f.svc.ListForMap(context.Background())
	require.NoError(t, err)
	require.Equal(t, f.clock.Now().Add(-24*time.Hour), f.store.since)
}

func TestHistory(t *testing.T) {
	cases := map[string]struct {
		page, limit    int
		total          int64
		wantPage       int
		wantLimit      int
		wantSkip       int64
		wantTotalPages int
	}{
		"defaults": {
			page: 0, limit: 0, total: 20,
			wantPage: 1, wantLimit: 8, wantSkip: 0, wantTotalPages: 3,
		},
		"second page": {
			page: 2, limit: 8, total: 17,
			wantPage: 2, wantLimit: 8, wantSkip: 8, wantTotalPages: 3,
		},
		"capped limit": {
			page: 1, limit: 1000, total: 5,
			wantPage: 1, wantLimit: 100, wantSkip: 0, wantTotalPages: 1,
		},
		"empty": {
			page: 1, limit: 8, total: 0,
			wantPage: 1, wantLimit: 8, wantSkip: 0, wantTotalPages: 0,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(nil, nil)
			f.store.total = tc.total

			got, err := f.svc.History(context.Background(), tc.page, tc.limit)
			require.NoError(t, err)
			require.Equal(t, tc.wantPage, got.Page)
			require.Equal(t, tc.wantLimit, got.Limit)
			require.Equal(t, tc.wantTotalPages, got.TotalPages)
			require.Equal(t, tc.total, got.TotalAlerts)
			require.Equal(t, tc.wantSkip, f.store.skip)
			require.Equal(t, int64(tc.wantLimit), f.store.limit)
		})
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(nil, nil)
	id := primitive.NewObjectID()

	alert, err := f.svc.Delete(context.Background(), id.Hex())
	require.NoError(t, err)
	require.Equal(t, id, alert.ID)

	_, err = f.svc.Delete(context.Background(), "not-an-id")
	require.ErrorIs(t, err, ErrInvalidInput)

	f.store.deleteErr = mongoLib.ErrNoDocuments
	_, err = f.svc.Delete(context.Background(), id.Hex())
	require.ErrorIs(t, err, ErrAlertNotFound)
}
