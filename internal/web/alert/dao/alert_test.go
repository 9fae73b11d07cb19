package dao

import (
	"context"
	"testing"
	"time"

	"github.com/Laisky/disaster-alert/internal/web/alert/model"
	"github.com/Laisky/disaster-alert/library/db/mongo"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestAlertsDAO(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	created := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)

	mt.Run("insert sets id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		d := NewAlerts(mongo.Wrap(mt.DB))

		alert := &model.Alert{Type: "Flooding", Severity: model.SeverityHigh, CreatedAt: created}
		require.NoError(mt, d.Insert(ctx, alert))
		require.False(mt, alert.ID.IsZero())
	})

	mt.Run("list active decodes documents", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "disaster.alerts", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "type", Value: "Storm"},
			{Key: "severity", Value: "medium"},
			{Key: "locationKey", Value: "pune"},
			{Key: "lat", Value: 18.52},
			{Key: "lng", Value: 73.85},
			{Key: "createdAt", Value: created},
		}))
		d := NewAlerts(mongo.Wrap(mt.DB))

		alerts, err := d.ListActive(ctx, created.Add(-24*time.Hour))
		require.NoError(mt, err)
		require.Len(mt, alerts, 1)
		require.Equal(mt, id, alerts[0].ID)
		require.Equal(mt, "pune", alerts[0].LocationKey)
		require.InDelta(mt, 73.85, alerts[0].Lng, 1e-9)
	})

	mt.Run("count", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "disaster.alerts", mtest.FirstBatch,
			bson.D{{Key: "n", Value: int32(17)}}))
		d := NewAlerts(mongo.Wrap(mt.DB))

		n, err := d.Count(ctx)
		require.NoError(mt, err)
		require.EqualValues(mt, 17, n)
	})

	mt.Run("delete returns removed alert", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: bson.D{{Key: "_id", Value: id}, {Key: "type", Value: "Riot"}}},
		})
		d := NewAlerts(mongo.Wrap(mt.DB))

		alert, err := d.Delete(ctx, id)
		require.NoError(mt, err)
		require.Equal(mt, "Riot", alert.Type)
	})

	mt.Run("delete missing id", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: nil}})
		d := NewAlerts(mongo.Wrap(mt.DB))

		_, err := d.Delete(ctx, primitive.NewObjectID())
		require.True(mt, mongo.NotFound(err))
	})
}
