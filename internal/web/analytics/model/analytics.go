// Package model defines analytics results.
package model

import "time"

// Placeholder stands in for a most-frequent value over an empty range.
const Placeholder = "—"

// Summary is the headline numbers of a range.
type Summary struct {
	Range                     string   `json:"range"`
	TotalAlerts               int64    `json:"totalAlerts"`
	HighSeverity              int64    `json:"highSeverity"`
	MostCommonType            string   `json:"mostCommonType"`
	MostCommonTypeCount       int64    `json:"mostCommonTypeCount"`
	MostAffectedLocation      string   `json:"mostAffectedLocation"`
	MostAffectedLocationCount int64    `json:"mostAffectedLocationCount"`
	AvgConfidence             *float64 `json:"avgConfidence"`
}

// DashboardSummary is Summary without the per-pick counts.
type DashboardSummary struct {
	TotalAlerts          int64    `json:"totalAlerts"`
	HighSeverity         int64    `json:"highSeverity"`
	MostCommonType       string   `json:"mostCommonType"`
	MostAffectedLocation string   `json:"mostAffectedLocation"`
	AvgConfidence        *float64 `json:"avgConfidence"`
}

// GroupCount is one group of a count-by aggregation.
type GroupCount struct {
	ID    string `bson:"_id" json:"_id"`
	Count int64  `bson:"count" json:"count"`
}

// DayCount is the number of alerts created on one UTC day.
type DayCount struct {
	Date  time.Time `bson:"date" json:"date"`
	Count int64     `bson:"count" json:"count"`
}

// SeverityCount is one severity inside a type.
type SeverityCount struct {
	Severity string `bson:"severity" json:"severity"`
	Count    int64  `bson:"count" json:"count"`
}

// SeverityByType is the severity breakdown of one type.
type SeverityByType struct {
	Type       string          `bson:"_id" json:"_id"`
	Severities []SeverityCount `bson:"severities" json:"severities"`
}

// ConfidenceBucket counts alerts whose confidence percent falls in
// [ID, next boundary). ID is the lower boundary or "Unknown".
type ConfidenceBucket struct {
	ID    any   `bson:"_id" json:"_id"`
	Count int64 `bson:"count" json:"count"`
}

// Series wraps one list result with the range it covers.
type Series[T any] struct {
	Range string `json:"range"`
	Data  []T    `json:"data"`
}

// Points is the alerts-over-time response.
type Points struct {
	Range  string     `json:"range"`
	Points []DayCount `json:"points"`
}

// Dashboard bundles every analytics view of one range.
type Dashboard struct {
	Range                string             `json:"range"`
	Summary              DashboardSummary   `json:"summary"`
	AlertsOverTime       []DayCount         `json:"alertsOverTime"`
	TypeDistribution     []GroupCount       `json:"typeDistribution"`
	SeverityDistribution []GroupCount       `json:"severityDistribution"`
	SeverityByType       []SeverityByType   `json:"severityByType"`
	TopLocations         []GroupCount       `json:"topLocations"`
	ConfidenceBuckets    []ConfidenceBucket `json:"confidenceBuckets"`
}
