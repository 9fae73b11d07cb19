// Package model defines alert documents.
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Severity levels accepted on an alert.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// DefaultReason fills alerts whose classifier gave no explanation.
const DefaultReason = "No reason provided"

// ValidSeverity reports whether s is one of the accepted levels.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// Alert is one detected incident. It is never updated after insert.
type Alert struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Type        string             `bson:"type" json:"type"`
	ImageURL    string             `bson:"imageUrl" json:"imageUrl"`
	Confidence  float64            `bson:"confidence" json:"confidence"`
	Severity    string             `bson:"severity" json:"severity"`
	Reason      string             `bson:"reason" json:"reason"`
	Location    string             `bson:"location" json:"location"`
	LocationKey string             `bson:"locationKey" json:"locationKey"`
	Lat         float64            `bson:"lat" json:"lat"`
	Lng         float64            `bson:"lng" json:"lng"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// MapAlert is the subset of an alert the map view needs.
type MapAlert struct {
	ID        primitive.ObjectID `bson:"_id" json:"_id"`
	Type      string             `bson:"type" json:"type"`
	Severity  string             `bson:"severity" json:"severity"`
	Location  string             `bson:"location" json:"location"`
	Reason    string             `bson:"reason" json:"reason"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
	ImageURL  string             `bson:"imageUrl" json:"imageUrl"`
	Lat       float64            `bson:"lat" json:"lat"`
	Lng       float64            `bson:"lng" json:"lng"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

// MapProjection selects the MapAlert fields.
var MapProjection = map[string]int{
	"type":      1,
	"severity":  1,
	"location":  1,
	"reason":    1,
	"timestamp": 1,
	"imageUrl":  1,
	"lat":       1,
	"lng":       1,
	"createdAt": 1,
}
