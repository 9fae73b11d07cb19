// Package dao stores emergency contacts in MongoDB.
package dao

import (
	"context"
	"time"

	"github.com/Laisky/disaster-alert/internal/web/emergency/model"
	"github.com/Laisky/disaster-alert/library/db/mongo"

	"github.com/Laisky/errors/v2"
	"go.mongodb.org/mongo-driver/bson"
	mongoLib "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ColEmergencyNumbers is the emergency contact collection name.
const ColEmergencyNumbers = "emergency_numbers"

// Emergency is the emergency contact DAO.
type Emergency struct {
	mongo.DB
}

// NewEmergency returns an Emergency DAO.
func NewEmergency(db mongo.DB) *Emergency {
	return &Emergency{DB: db}
}

// GetEmergencyCol returns the emergency contact collection.
func (d *Emergency) GetEmergencyCol() *mongoLib.Collection {
	return d.GetCol(ColEmergencyNumbers)
}

// List returns every category, newest first.
func (d *Emergency) List(ctx context.Context) ([]*model.Category, error) {
	cur, err := d.GetEmergencyCol().Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "find emergency categories")
	}

	cats := []*model.Category{}
	if err = cur.All(ctx, &cats); err != nil {
		return nil, errors.Wrap(err, "load emergency categories")
	}

	return cats, nil
}

// Get returns the named category.
func (d *Emergency) Get(ctx context.Context, category string) (*model.Category, error) {
	cat := new(model.Category)
	if err := d.GetEmergencyCol().FindOne(ctx, bson.M{"category": category}).Decode(cat); err != nil {
		return nil, errors.Wrapf(err, "find emergency category %q", category)
	}

	return cat, nil
}

// Append adds number to category, creating the category when absent.
func (d *Emergency) Append(ctx context.Context, category string, number model.Number, now time.Time) (*model.Category, error) {
	cat := new(model.Category)
	err := d.GetEmergencyCol().FindOneAndUpdate(ctx,
		bson.M{"category": category},
		bson.M{
			"$push":        bson.M{"numbers": number},
			"$set":         bson.M{"updatedAt": now},
			"$setOnInsert": bson.M{"createdAt": now},
		},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	).Decode(cat)
	if err != nil {
		return nil, errors.Wrapf(err, "append to emergency category %q", category)
	}

	return cat, nil
}

// Indexes lists the indexes the emergency contact collection needs.
func Indexes() []mongoLib.IndexModel {
	return []mongoLib.IndexModel{
		{
			Keys:    bson.D{{Key: "category", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
}
