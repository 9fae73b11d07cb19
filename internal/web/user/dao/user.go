// Package dao stores users in MongoDB.
package dao

import (
	"context"

	"github.com/Laisky/disaster-alert/internal/notify"
	"github.com/Laisky/disaster-alert/internal/web/user/model"
	"github.com/Laisky/disaster-alert/library/db/mongo"

	"github.com/Laisky/errors/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoLib "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ColUsers is the user collection name.
const ColUsers = "users"

// Users is the user DAO.
type Users struct {
	mongo.DB
}

// NewUsers returns a Users DAO.
func NewUsers(db mongo.DB) *Users {
	return &Users{DB: db}
}

// GetUserCol returns the user collection.
func (d *Users) GetUserCol() *mongoLib.Collection {
	return d.GetCol(ColUsers)
}

func (d *Users) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	user := new(model.User)
	if err := d.GetUserCol().FindOne(ctx, filter).Decode(user); err != nil {
		return nil, errors.Wrapf(err, "find user %v", filter)
	}

	return user, nil
}

// FindByID loads a user by id.
func (d *Users) FindByID(ctx context.Context, id primitive.ObjectID) (*model.User, error) {
	return d.findOne(ctx, bson.M{"_id": id})
}

// FindByEmail loads a user by email.
func (d *Users) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return d.findOne(ctx, bson.M{"email": email})
}

// FindByUsername loads a user by username.
func (d *Users) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return d.findOne(ctx, bson.M{"username": username})
}

// Insert stores user and sets its ID.
func (d *Users) Insert(ctx context.Context, user *model.User) error {
	ret, err := d.GetUserCol().InsertOne(ctx, user)
	if err != nil {
		return errors.Wrap(err, "insert user")
	}

	if oid, ok := ret.InsertedID.(primitive.ObjectID); ok {
		user.ID = oid
	}

	return nil
}

// Update applies set to the user and returns the new document.
func (d *Users) Update(ctx context.Context, id primitive.ObjectID, set bson.M) (*model.User, error) {
	user := new(model.User)
	err := d.GetUserCol().FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(user)
	if err != nil {
		return nil, errors.Wrapf(err, "update user %s", id.Hex())
	}

	return user, nil
}

// FindRecipients returns users in locationKey that have an e-mail address.
func (d *Users) FindRecipients(ctx context.Context, locationKey string) ([]notify.Recipient, error) {
	cur, err := d.GetUserCol().Find(ctx,
		bson.M{
			"locationKey": locationKey,
			"email":       bson.M{"$exists": true, "$ne": ""},
		},
		options.Find().SetProjection(bson.M{"username": 1, "email": 1}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "find recipients")
	}

	var users []*model.User
	if err = cur.All(ctx, &users); err != nil {
		return nil, errors.Wrap(err, "load recipients")
	}

	recipients := make([]notify.Recipient, 0, len(users))
	for _, u := range users {
		recipients = append(recipients, notify.Recipient{
			Username: u.Username,
			Email:    u.Email,
		})
	}

	return recipients, nil
}

// Indexes lists the indexes the user collection needs.
func Indexes() []mongoLib.IndexModel {
	return []mongoLib.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "locationKey", Value: 1}}},
	}
}
