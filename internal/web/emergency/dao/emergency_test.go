package dao

import (
	"context"
	"testing"
	"time"

	"github.com/Laisky/disaster-alert/internal/web/emergency/model"
	"github.com/Laisky/disaster-alert/library/db/mongo"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestEmergencyDAO(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	mt.Run("append upserts", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: bson.D{
				{Key: "_id", Value: primitive.NewObjectID()},
				{Key: "category", Value: "fire"},
				{Key: "numbers", Value: bson.A{
					bson.D{{Key: "name", Value: "Fire Brigade"}, {Key: "number", Value: "101"}, {Key: "isNational", Value: true}},
				}},
				{Key: "createdAt", Value: now},
			}},
		})
		d := NewEmergency(mongo.Wrap(mt.DB))

		cat, err := d.Append(ctx, "fire", model.Number{Name: "Fire Brigade", Number: "101", IsNational: true}, now)
		require.NoError(mt, err)
		require.Equal(mt, "fire", cat.Category)
		require.Len(mt, cat.Numbers, 1)
		require.True(mt, cat.Numbers[0].IsNational)
	})

	mt.Run("get missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "disaster.emergency_numbers", mtest.FirstBatch))
		d := NewEmergency(mongo.Wrap(mt.DB))

		_, err := d.Get(ctx, "flood")
		require.True(mt, mongo.NotFound(err))
	})

	mt.Run("list", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "disaster.emergency_numbers", mtest.FirstBatch,
			bson.D{{Key: "category", Value: "police"}},
			bson.D{{Key: "category", Value: "fire"}},
		))
		d := NewEmergency(mongo.Wrap(mt.DB))

		cats, err := d.List(ctx)
		require.NoError(mt, err)
		require.Len(mt, cats, 2)
		require.Equal(mt, "police", cats[0].Category)
	})
}
