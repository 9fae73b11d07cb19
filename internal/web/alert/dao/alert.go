// Package dao stores alerts in MongoDB.
package dao

import (
	"context"
	"time"

	"github.com/Laisky/disaster-alert/internal/web/alert/model"
	"github.com/Laisky/disaster-alert/library/db/mongo"

	"github.com/Laisky/errors/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoLib "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ColAlerts is the alert collection name.
const ColAlerts = "alerts"

// Alerts is the alert DAO.
type Alerts struct {
	mongo.DB
}

// NewAlerts returns an Alerts DAO.
func NewAlerts(db mongo.DB) *Alerts {
	return &Alerts{DB: db}
}

// GetAlertCol returns the alert collection.
func (d *Alerts) GetAlertCol() *mongoLib.Collection {
	return d.GetCol(ColAlerts)
}

// Insert stores alert and sets its ID.
func (d *Alerts) Insert(ctx context.Context, alert *model.Alert) error {
	ret, err := d.GetAlertCol().InsertOne(ctx, alert)
	if err != nil {
		return errors.Wrap(err, "insert alert")
	}

	if oid, ok := ret.InsertedID.(primitive.ObjectID); ok {
		alert.ID = oid
	}

	return nil
}

// activeFilter matches alerts created since and placed on the map.
func activeFilter(since time.Time) bson.M {
	return bson.M{
		"createdAt": bson.M{"$gte": since},
		"lat":       bson.M{"$exists": true, "$ne": nil},
		"lng":       bson.M{"$exists": true, "$ne": nil},
	}
}

var newestFirst = bson.D{{Key: "createdAt", Value: -1}}

// ListActive returns geolocated alerts created since, newest first.
func (d *Alerts) ListActive(ctx context.Context, since time.Time) ([]*model.Alert, error) {
	cur, err := d.GetAlertCol().Find(ctx, activeFilter(since),
		options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, errors.Wrap(err, "find active alerts")
	}

	alerts := []*model.Alert{}
	if err = cur.All(ctx, &alerts); err != nil {
		return nil, errors.Wrap(err, "load active alerts")
	}

	return alerts, nil
}

// ListActiveForMap is ListActive projected to map fields.
func (d *Alerts) ListActiveForMap(ctx context.Context, since time.Time) ([]*model.MapAlert, error) {
	cur, err := d.GetAlertCol().Find(ctx, activeFilter(since),
		options.Find().
			SetSort(newestFirst).
			SetProjection(model.MapProjection))
	if err != nil {
		return nil, errors.Wrap(err, "find map alerts")
	}

	alerts := []*model.MapAlert{}
	if err = cur.All(ctx, &alerts); err != nil {
		return nil, errors.Wrap(err, "load map alerts")
	}

	return alerts, nil
}

// Count returns the number of stored alerts.
func (d *Alerts) Count(ctx context.Context) (int64, error) {
	n, err := d.GetAlertCol().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, errors.Wrap(err, "count alerts")
	}

	return n, nil
}

// ListPage returns one page of all alerts, newest first.
func (d *Alerts) ListPage(ctx context.Context, skip, limit int64) ([]*model.Alert, error) {
	cur, err := d.GetAlertCol().Find(ctx, bson.M{},
		options.Find().
			SetSort(newestFirst).
			SetSkip(skip).
			SetLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "find alert page")
	}

	alerts := []*model.Alert{}
	if err = cur.All(ctx, &alerts); err != nil {
		return nil, errors.Wrap(err, "load alert page")
	}

	return alerts, nil
}

// Delete removes one alert and returns it.
// A missing id yields an error matching mongo.NotFound.
func (d *Alerts) Delete(ctx context.Context, id primitive.ObjectID) (*model.Alert, error) {
	alert := new(model.Alert)
	if err := d.GetAlertCol().FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(alert); err != nil {
		return nil, errors.Wrapf(err, "delete alert %s", id.Hex())
	}

	return alert, nil
}

// Indexes lists the indexes the alert collection needs.
func Indexes() []mongoLib.IndexModel {
	return []mongoLib.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "locationKey", Value: 1}}},
	}
}
