package domain

import (
	"strconv"
	"time"
)

// Observation is a single weather reading produced by a fetch worker,
// carried through the stream, and written to the time-series store.
//
// RecordedAt is the upstream-reported observation time, never the ingestion
// time.
type Observation struct {
	City        string
	Latitude    float64
	Longitude   float64
	Temperature float64
	Condition   string
	RecordedAt  time.Time
}

// StreamFields returns the entry field map used when appending to the
// broker's stream. All values are encoded as strings per the broker
// contract.
func (o Observation) StreamFields() map[string]interface{} {
	return map[string]interface{}{
		"city_name":         o.City,
		"latitude":          strconv.FormatFloat(o.Latitude, 'f', -1, 64),
		"longitude":         strconv.FormatFloat(o.Longitude, 'f', -1, 64),
		"temperature":       strconv.FormatFloat(o.Temperature, 'f', -1, 64),
		"weather_condition": o.Condition,
		"recorded_at":       o.RecordedAt.UTC().Format(time.RFC3339),
	}
}
