package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Laisky/disaster-alert/internal/web/analytics/dao"
	"github.com/Laisky/disaster-alert/internal/web/analytics/model"

	"github.com/Laisky/errors/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type fakeAgg struct {
	mu      sync.Mutex
	matches []bson.M
	limits  []int

	total, high int64
	groups      map[any][]model.GroupCount
	avg         *float64
	err         error
}

func (f *fakeAgg) record(match bson.M) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches = append(f.matches, match)
}

func (f *fakeAgg) Count(_ context.Context, match bson.M) (int64, error) {
	f.record(match)
	return f.total, f.err
}

func (f *fakeAgg) CountHighSeverity(_ context.Context, match bson.M) (int64, error) {
	f.record(match)
	return f.high, nil
}

func (f *fakeAgg) CountBy(_ context.Context, match bson.M, field any, limit int) ([]model.GroupCount, error) {
	f.record(match)
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()

	var rows []model.GroupCount
	switch field {
	case dao.ByType:
		rows = f.groups["type"]
	case dao.ByLocation:
		rows = f.groups["location"]
	default:
		rows = f.groups["severity"]
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeAgg) AvgConfidence(_ context.Context, match bson.M) (*float64, error) {
	f.record(match)
	return f.avg, nil
}

func (f *fakeAgg) OverTime(_ context.Context, match bson.M) ([]model.DayCount, error) {
	f.record(match)
	return []model.DayCount{{Date: time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), Count: 3}}, nil
}

func (f *fakeAgg) SeverityByType(_ context.Context, match bson.M) ([]model.SeverityByType, error) {
	f.record(match)
	return []model.SeverityByType{}, nil
}

func (f *fakeAgg) ConfidenceBuckets(_ context.Context, match bson.M) ([]model.ConfidenceBucket, error) {
	f.record(match)
	return []model.ConfidenceBucket{{ID: int32(80), Count: 3}}, nil
}

var testNow = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func TestParseRange(t *testing.T) {
	svc := New(&fakeAgg{}, clockwork.NewFakeClockAt(testNow))

	cases := map[string]struct {
		token, def string
		wantToken  string
		wantSince  time.Duration
		wantAll    bool
	}{
		"24h":           {token: "24h", def: Range7d, wantToken: "24h", wantSince: 24 * time.Hour},
		"90d":           {token: "90d", def: Range7d, wantToken: "90d", wantSince: 90 * 24 * time.Hour},
		"all":           {token: "all", def: Range7d, wantToken: "all", wantAll: true},
		"empty uses 7d": {token: "", def: Range7d, wantToken: "7d", wantSince: 7 * 24 * time.Hour},
		"junk uses 30d": {token: "1y", def: Range30d, wantToken: "30d", wantSince: 30 * 24 * time.Hour},
		"junk uses all": {token: "x", def: RangeAll, wantToken: "all", wantAll: true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := svc.ParseRange(tc.token, tc.def)
			require.Equal(t, tc.wantToken, r.Token)
			if tc.wantAll {
				require.Nil(t, r.Since)
				return
			}
			require.NotNil(t, r.Since)
			require.Equal(t, testNow.Add(-tc.wantSince), *r.Since)
		})
	}
}

func TestSummaryEmptyRange(t *testing.T) {
	svc := New(&fakeAgg{}, clockwork.NewFakeClockAt(testNow))

	sum, err := svc.Summary(context.Background(), svc.ParseRange("7d", Range7d))
	require.NoError(t, err)
	require.Equal(t, "7d", sum.Range)
	require.Zero(t, sum.TotalAlerts)
	require.Equal(t, model.Placeholder, sum.MostCommonType)
	require.Equal(t, model.Placeholder, sum.MostAffectedLocation)
	require.Zero(t, sum.MostCommonTypeCount)
	require.Nil(t, sum.AvgConfidence)
}

func TestSummary(t *testing.T) {
	avg := 0.8367
	agg := &fakeAgg{
		total: 12,
		high:  5,
		avg:   &avg,
		groups: map[any][]model.GroupCount{
			"type":     {{ID: "Flooding", Count: 7}, {ID: "Storm", Count: 5}},
			"location": {{ID: "Mumbai", Count: 9}},
		},
	}
	svc := New(agg, clockwork.NewFakeClockAt(testNow))
	r := svc.ParseRange("30d", Range7d)

	sum, err := svc.Summary(context.Background(), r)
	require.NoError(t, err)
	require.EqualValues(t, 12, sum.TotalAlerts)
	require.EqualValues(t, 5, sum.HighSeverity)
	require.Equal(t, "Flooding", sum.MostCommonType)
	require.EqualValues(t, 7, sum.MostCommonTypeCount)
	require.Equal(t, "Mumbai", sum.MostAffectedLocation)
	require.InDelta(t, 0.84, *sum.AvgConfidence, 1e-9)

	for _, m := range agg.matches {
		require.Equal(t, dao.Match(r.Since), m)
	}
}

func TestSummaryError(t *testing.T) {
	svc := New(&fakeAgg{err: errors.New("mongo down")}, clockwork.NewFakeClockAt(testNow))

	_, err := svc.Summary(context.Background(), svc.ParseRange("all", Range7d))
	require.ErrorContains(t, err, "mongo down")
}

func TestTopLocationsLimit(t *testing.T) {
	agg := &fakeAgg{}
	svc := New(agg, clockwork.NewFakeClockAt(testNow))

	_, err := svc.TopLocations(context.Background(), svc.ParseRange("", Range30d), 0)
	require.NoError(t, err)
	_, err = svc.TopLocations(context.Background(), svc.ParseRange("", Range30d), 3)
	require.NoError(t, err)
	require.Equal(t, []int{DefaultTopLocations, 3}, agg.limits)
}

func TestDashboard(t *testing.T) {
	avg := 0.5
	agg := &fakeAgg{
		total: 3,
		avg:   &avg,
		groups: map[any][]model.GroupCount{
			"type":     {{ID: "Storm", Count: 3}},
			"location": {{ID: "Pune", Count: 3}},
			"severity": {{ID: "medium", Count: 3}},
		},
	}
	svc := New(agg, clockwork.NewFakeClockAt(testNow))

	d, err := svc.Dashboard(context.Background(), svc.ParseRange("", Range30d))
	require.NoError(t, err)
	require.Equal(t, "30d", d.Range)
	require.EqualValues(t, 3, d.Summary.TotalAlerts)
	require.Equal(t, "Storm", d.Summary.MostCommonType)
	require.Equal(t, "Pune", d.Summary.MostAffectedLocation)
	require.Len(t, d.AlertsOverTime, 1)
	require.Equal(t, "medium", d.SeverityDistribution[0].ID)
	require.Len(t, d.ConfidenceBuckets, 1)
	require.NotNil(t, d.SeverityByType)
}
