package mongo

import (
	"context"

	"github.com/Laisky/errors/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoLib "go.mongodb.org/mongo-driver/mongo"
)

// ErrInvalidID is returned for strings that are not 24-hex ObjectIDs.
var ErrInvalidID = errors.New("invalid object id")

// NotFound reports whether err means no document matched.
func NotFound(err error) bool {
	return errors.Is(err, mongoLib.ErrNoDocuments)
}

// DuplicateKey reports whether err is a unique index violation.
func DuplicateKey(err error) bool {
	return mongoLib.IsDuplicateKeyError(err)
}

// ParseID parses a hex ObjectID, wrapping failures with ErrInvalidID.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, errors.Wrapf(ErrInvalidID, "%q", id)
	}

	return oid, nil
}

type wrapped struct {
	db *mongoLib.Database
}

// Wrap adapts an existing database handle to DB. Close is a no-op, the
// caller keeps ownership of the client.
func Wrap(database *mongoLib.Database) DB {
	return &wrapped{db: database}
}

func (w *wrapped) Close(context.Context) error             { return nil }
func (w *wrapped) GetCol(name string) *mongoLib.Collection { return w.db.Collection(name) }
func (w *wrapped) DB(name string) *mongoLib.Database       { return w.db.Client().Database(name) }
func (w *wrapped) CurrentDB() *mongoLib.Database           { return w.db }
