// Package model defines emergency contact documents.
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Number is one emergency contact.
type Number struct {
	Name        string `bson:"name" json:"name"`
	Number      string `bson:"number" json:"number"`
	Description string `bson:"description" json:"description"`
	IsNational  bool   `bson:"isNational" json:"isNational"`
}

// Category groups the contacts of one kind of emergency.
type Category struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Category  string             `bson:"category" json:"category"`
	Numbers   []Number           `bson:"numbers" json:"numbers"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}
