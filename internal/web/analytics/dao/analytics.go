// Package dao runs the analytics aggregations over the alert collection.
package dao

import (
	"context"
	"time"

	alertDao "github.com/Laisky/disaster-alert/internal/web/alert/dao"
	"github.com/Laisky/disaster-alert/internal/web/analytics/model"
	"github.com/Laisky/disaster-alert/library/db/mongo"

	"github.com/Laisky/errors/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoLib "go.mongodb.org/mongo-driver/mongo"
)

// Group keys for CountBy.
var (
	ByType     any = "$type"
	ByLocation any = "$location"
	BySeverity any = bson.D{{Key: "$toLower", Value: "$severity"}}
)

// ConfidenceBoundaries are the lower edges of the confidence buckets, in percent.
var ConfidenceBoundaries = bson.A{0, 20, 40, 60, 80, 101}

// Analytics reads aggregates from the alerts collection.
type Analytics struct {
	mongo.DB
}

// NewAnalytics returns an Analytics DAO.
func NewAnalytics(db mongo.DB) *Analytics {
	return &Analytics{DB: db}
}

func (d *Analytics) col() *mongoLib.Collection {
	return d.GetCol(alertDao.ColAlerts)
}

// Match selects alerts created at or after since. A nil since matches all.
func Match(since *time.Time) bson.M {
	if since == nil {
		return bson.M{}
	}

	return bson.M{"createdAt": bson.M{"$gte": *since}}
}

// highSeverity matches severity "high" in any case.
func highSeverity(match bson.M) bson.M {
	filter := bson.M{"severity": primitive.Regex{Pattern: "^high$", Options: "i"}}
	for k, v := range match {
		filter[k] = v
	}

	return filter
}

// CountByPipeline counts documents per field value, most frequent first,
// ties broken by value ascending. A non-positive limit returns all groups.
func CountByPipeline(match bson.M, field any, limit int) mongoLib.Pipeline {
	pipeline := mongoLib.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "count", Value: -1},
			{Key: "_id", Value: 1},
		}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}

	return pipeline
}

// AvgConfidencePipeline averages confidence over the match.
func AvgConfidencePipeline(match bson.M) mongoLib.Pipeline {
	return mongoLib.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "avgConfidence", Value: bson.D{{Key: "$avg", Value: "$confidence"}}},
		}}},
	}
}

// OverTimePipeline counts alerts per UTC day of createdAt, oldest first.
func OverTimePipeline(match bson.M) mongoLib.Pipeline {
	return mongoLib.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "year", Value: bson.D{{Key: "$year", Value: "$createdAt"}}},
				{Key: "month", Value: bson.D{{Key: "$month", Value: "$createdAt"}}},
				{Key: "day", Value: bson.D{{Key: "$dayOfMonth", Value: "$createdAt"}}},
			}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "date", Value: bson.D{{Key: "$dateFromParts", Value: bson.D{
				{Key: "year", Value: "$_id.year"},
				{Key: "month", Value: "$_id.month"},
				{Key: "day", Value: "$_id.day"},
			}}}},
			{Key: "count", Value: 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "date", Value: 1}}}},
	}
}

// SeverityByTypePipeline nests severity counts under each type, types ascending.
func SeverityByTypePipeline(match bson.M) mongoLib.Pipeline {
	return mongoLib.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$project", Value: bson.D{
			{Key: "type", Value: 1},
			{Key: "severity", Value: bson.D{{Key: "$toLower", Value: "$severity"}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "type", Value: "$type"},
				{Key: "severity", Value: "$severity"},
			}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id.severity", Value: 1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$_id.type"},
			{Key: "severities", Value: bson.D{{Key: "$push", Value: bson.D{
				{Key: "severity", Value: "$_id.severity"},
				{Key: "count", Value: "$count"},
			}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

// ConfidenceBucketsPipeline buckets confidence as a percent. Values above 1
// are already percents, the rest are fractions.
func ConfidenceBucketsPipeline(match bson.M) mongoLib.Pipeline {
	return mongoLib.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$project", Value: bson.D{
			{Key: "confidencePercent", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$gt", Value: bson.A{"$confidence", 1}}},
				"$confidence",
				bson.D{{Key: "$multiply", Value: bson.A{"$confidence", 100}}},
			}}}},
		}}},
		{{Key: "$bucket", Value: bson.D{
			{Key: "groupBy", Value: "$confidencePercent"},
			{Key: "boundaries", Value: ConfidenceBoundaries},
			{Key: "default", Value: "Unknown"},
			{Key: "output", Value: bson.D{{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}},
		}}},
	}
}

func aggregate[T any](ctx context.Context, col *mongoLib.Collection, pipeline mongoLib.Pipeline) ([]T, error) {
	cur, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "aggregate")
	}

	out := []T{}
	if err = cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode aggregate")
	}

	return out, nil
}

// Count returns the number of alerts matching match.
func (d *Analytics) Count(ctx context.Context, match bson.M) (int64, error) {
	n, err := d.col().CountDocuments(ctx, match)
	if err != nil {
		return 0, errors.Wrap(err, "count alerts")
	}

	return n, nil
}

// CountHighSeverity returns the number of high severity alerts in match.
func (d *Analytics) CountHighSeverity(ctx context.Context, match bson.M) (int64, error) {
	n, err := d.col().CountDocuments(ctx, highSeverity(match))
	if err != nil {
		return 0, errors.Wrap(err, "count high severity alerts")
	}

	return n, nil
}

// CountBy groups matching alerts by one of the By* keys.
func (d *Analytics) CountBy(ctx context.Context, match bson.M, field any, limit int) ([]model.GroupCount, error) {
	return aggregate[model.GroupCount](ctx, d.col(), CountByPipeline(match, field, limit))
}

// AvgConfidence returns the mean confidence, or nil when nothing matches.
func (d *Analytics) AvgConfidence(ctx context.Context, match bson.M) (*float64, error) {
	rows, err := aggregate[struct {
		AvgConfidence *float64 `bson:"avgConfidence"`
	}](ctx, d.col(), AvgConfidencePipeline(match))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	return rows[0].AvgConfidence, nil
}

// OverTime returns per-day counts.
func (d *Analytics) OverTime(ctx context.Context, match bson.M) ([]model.DayCount, error) {
	return aggregate[model.DayCount](ctx, d.col(), OverTimePipeline(match))
}

// SeverityByType returns the severity breakdown per type.
func (d *Analytics) SeverityByType(ctx context.Context, match bson.M) ([]model.SeverityByType, error) {
	return aggregate[model.SeverityByType](ctx, d.col(), SeverityByTypePipeline(match))
}

// ConfidenceBuckets returns the confidence histogram.
func (d *Analytics) ConfidenceBuckets(ctx context.Context, match bson.M) ([]model.ConfidenceBucket, error) {
	return aggregate[model.ConfidenceBucket](ctx, d.col(), ConfidenceBucketsPipeline(match))
}
