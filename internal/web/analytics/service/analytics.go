// Package service computes analytics over a time range.
package service

import (
	"context"
	"math"
	"time"

	"github.com/Laisky/disaster-alert/internal/web/analytics/dao"
	"github.com/Laisky/disaster-alert/internal/web/analytics/model"

	"github.com/Laisky/errors/v2"
	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"
)

// Range tokens.
const (
	Range24h = "24h"
	Range7d  = "7d"
	Range30d = "30d"
	Range90d = "90d"
	RangeAll = "all"

	// DefaultTopLocations is the top-locations size when none is asked.
	DefaultTopLocations = 8
)

var rangeSpans = map[string]time.Duration{
	Range24h: 24 * time.Hour,
	Range7d:  7 * 24 * time.Hour,
	Range30d: 30 * 24 * time.Hour,
	Range90d: 90 * 24 * time.Hour,
}

// Range is a resolved range token.
type Range struct {
	Token string
	Since *time.Time
}

// Aggregator is the read side of the analytics DAO.
type Aggregator interface {
	Count(ctx context.Context, match bson.M) (int64, error)
	CountHighSeverity(ctx context.Context, match bson.M) (int64, error)
	CountBy(ctx context.Context, match bson.M, field any, limit int) ([]model.GroupCount, error)
	AvgConfidence(ctx context.Context, match bson.M) (*float64, error)
	OverTime(ctx context.Context, match bson.M) ([]model.DayCount, error)
	SeverityByType(ctx context.Context, match bson.M) ([]model.SeverityByType, error)
	ConfidenceBuckets(ctx context.Context, match bson.M) ([]model.ConfidenceBucket, error)
}

// Service answers analytics queries.
type Service struct {
	agg   Aggregator
	clock clockwork.Clock
}

// New returns a Service. A nil clock uses the wall clock.
func New(agg Aggregator, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Service{agg: agg, clock: clock}
}

// ParseRange resolves token, falling back to def for unknown tokens.
func (s *Service) ParseRange(token, def string) Range {
	if token == RangeAll {
		return Range{Token: RangeAll}
	}

	span, ok := rangeSpans[token]
	if !ok {
		if def == RangeAll {
			return Range{Token: RangeAll}
		}
		token, span = def, rangeSpans[def]
	}

	since := s.clock.Now().Add(-span)
	return Range{Token: token, Since: &since}
}

// Summary returns the headline numbers for r.
func (s *Service) Summary(ctx context.Context, r Range) (*model.Summary, error) {
	match := dao.Match(r.Since)
	sum := &model.Summary{
		Range:                r.Token,
		MostCommonType:       model.Placeholder,
		MostAffectedLocation: model.Placeholder,
	}

	var g errgroup.Group
	g.Go(func() error {
		n, err := s.agg.Count(ctx, match)
		if err != nil {
			return errors.Wrap(err, "total")
		}
		sum.TotalAlerts = n
		return nil
	})
	g.Go(func() error {
		n, err := s.agg.CountHighSeverity(ctx, match)
		if err != nil {
			return errors.Wrap(err, "high severity")
		}
		sum.HighSeverity = n
		return nil
	})
	g.Go(func() error {
		top, err := s.agg.CountBy(ctx, match, dao.ByType, 1)
		if err != nil {
			return errors.Wrap(err, "most common type")
		}
		if len(top) > 0 && top[0].ID != "" {
			sum.MostCommonType, sum.MostCommonTypeCount = top[0].ID, top[0].Count
		}
		return nil
	})
	g.Go(func() error {
		top, err := s.agg.CountBy(ctx, match, dao.ByLocation, 1)
		if err != nil {
			return errors.Wrap(err, "most affected location")
		}
		if len(top) > 0 && top[0].ID != "" {
			sum.MostAffectedLocation, sum.MostAffectedLocationCount = top[0].ID, top[0].Count
		}
		return nil
	})
	g.Go(func() error {
		avg, err := s.agg.AvgConfidence(ctx, match)
		if err != nil {
			return errors.Wrap(err, "average confidence")
		}
		if avg != nil {
			rounded := math.Round(*avg*100) / 100
			sum.AvgConfidence = &rounded
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "analytics summary")
	}

	return sum, nil
}

// AlertsOverTime returns per-day counts for r.
func (s *Service) AlertsOverTime(ctx context.Context, r Range) (*model.Points, error) {
	points, err := s.agg.OverTime(ctx, dao.Match(r.Since))
	if err != nil {
		return nil, errors.Wrap(err, "alerts over time")
	}

	return &model.Points{Range: r.Token, Points: points}, nil
}

// TypeDistribution counts alerts per type.
func (s *Service) TypeDistribution(ctx context.Context, r Range) (*model.Series[model.GroupCount], error) {
	return s.countBy(ctx, r, dao.ByType, 0)
}

// SeverityDistribution counts alerts per lowercased severity.
func (s *Service) SeverityDistribution(ctx context.Context, r Range) (*model.Series[model.GroupCount], error) {
	return s.countBy(ctx, r, dao.BySeverity, 0)
}

// TopLocations returns the limit most affected locations.
func (s *Service) TopLocations(ctx context.Context, r Range, limit int) (*model.Series[model.GroupCount], error) {
	if limit < 1 {
		limit = DefaultTopLocations
	}

	return s.countBy(ctx, r, dao.ByLocation, limit)
}

func (s *Service) countBy(ctx context.Context, r Range, field any, limit int) (*model.Series[model.GroupCount], error) {
	data, err := s.agg.CountBy(ctx, dao.Match(r.Since), field, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "count by %v", field)
	}

	return &model.Series[model.GroupCount]{Range: r.Token, Data: data}, nil
}

// SeverityByType returns the severity breakdown of every type.
func (s *Service) SeverityByType(ctx context.Context, r Range) (*model.Series[model.SeverityByType], error) {
	data, err := s.agg.SeverityByType(ctx, dao.Match(r.Since))
	if err != nil {
		return nil, errors.Wrap(err, "severity by type")
	}

	return &model.Series[model.SeverityByType]{Range: r.Token, Data: data}, nil
}

// ConfidenceBuckets returns the confidence histogram.
func (s *Service) ConfidenceBuckets(ctx context.Context, r Range) (*model.Series[model.ConfidenceBucket], error) {
	data, err := s.agg.ConfidenceBuckets(ctx, dao.Match(r.Since))
	if err != nil {
		return nil, errors.Wrap(err, "confidence buckets")
	}

	return &model.Series[model.ConfidenceBucket]{Range: r.Token, Data: data}, nil
}

// Dashboard computes every view of r concurrently.
func (s *Service) Dashboard(ctx context.Context, r Range) (*model.Dashboard, error) {
	out := &model.Dashboard{Range: r.Token}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sum, err := s.Summary(gctx, r)
		if err != nil {
			return err
		}
		out.Summary = model.DashboardSummary{
			TotalAlerts:          sum.TotalAlerts,
			HighSeverity:         sum.HighSeverity,
			MostCommonType:       sum.MostCommonType,
			MostAffectedLocation: sum.MostAffectedLocation,
			AvgConfidence:        sum.AvgConfidence,
		}
		return nil
	})
	g.Go(func() error {
		ret, err := s.AlertsOverTime(gctx, r)
		if err != nil {
			return err
		}
		out.AlertsOverTime = ret.Points
		return nil
	})
	g.Go(func() error {
		ret, err := s.TypeDistribution(gctx, r)
		if err != nil {
			return err
		}
		out.TypeDistribution = ret.Data
		return nil
	})
	g.Go(func() error {
		ret, err := s.SeverityDistribution(gctx, r)
		if err != nil {
			return err
		}
		out.SeverityDistribution = ret.Data
		return nil
	})
	g.Go(func() error {
		ret, err := s.SeverityByType(gctx, r)
		if err != nil {
			return err
		}
		out.SeverityByType = ret.Data
		return nil
	})
	g.Go(func() error {
		ret, err := s.TopLocations(gctx, r, DefaultTopLocations)
		if err != nil {
			return err
		}
		out.TopLocations = ret.Data
		return nil
	})
	g.Go(func() error {
		ret, err := s.ConfidenceBuckets(gctx, r)
		if err != nil {
			return err
		}
		out.ConfidenceBuckets = ret.Data
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "analytics dashboard")
	}

	return out, nil
}
