// Package locations holds the static catalog of cities the scheduler
// enqueues every cycle. The catalog is generated programmatically rather
// than hand-typed so its size reliably lands on a round number of entries.
package locations

import (
	"fmt"

	"github.com/weathersync/weathersync/internal/domain"
)

// Count is the number of entries in the catalog.
const Count = 500

// seedCities anchors the generated grid to recognizable places so log lines
// and dashboards stay readable; the grid fills out the remaining slots with
// evenly spaced coordinates to reach Count.
var seedCities = []domain.Location{
	{City: "London", Latitude: 51.5074, Longitude: -0.1278},
	{City: "New York", Latitude: 40.7128, Longitude: -74.0060},
	{City: "Tokyo", Latitude: 35.6762, Longitude: 139.6503},
	{City: "Sydney", Latitude: -33.8688, Longitude: 151.2093},
	{City: "Cairo", Latitude: 30.0444, Longitude: 31.2357},
	{City: "Sao Paulo", Latitude: -23.5505, Longitude: -46.6333},
	{City: "Moscow", Latitude: 55.7558, Longitude: 37.6173},
	{City: "Mumbai", Latitude: 19.0760, Longitude: 72.8777},
	{City: "Lagos", Latitude: 6.5244, Longitude: 3.3792},
	{City: "Reykjavik", Latitude: 64.1466, Longitude: -21.9426},
	{City: "Wellington", Latitude: -41.2865, Longitude: 174.7762},
	{City: "Vancouver", Latitude: 49.2827, Longitude: -123.1207},
	{City: "Nairobi", Latitude: -1.2921, Longitude: 36.8219},
	{City: "Singapore", Latitude: 1.3521, Longitude: 103.8198},
	{City: "Anchorage", Latitude: 61.2181, Longitude: -149.9003},
	{City: "Cape Town", Latitude: -33.9249, Longitude: 18.4241},
	{City: "Mexico City", Latitude: 19.4326, Longitude: -99.1332},
	{City: "Dubai", Latitude: 25.2048, Longitude: 55.2708},
	{City: "Oslo", Latitude: 59.9139, Longitude: 10.7522},
	{City: "Santiago", Latitude: -33.4489, Longitude: -70.6693},
}

// Catalog is built once at package init and never mutated afterward.
var Catalog = build()

func build() []domain.Location {
	out := make([]domain.Location, 0, Count)
	out = append(out, seedCities...)

	// Fill the remainder with a deterministic lat/lon grid so every cycle
	// sees the same 500 locations in the same order. The grid stays within
	// +/-78 degrees of latitude, so no point sits on a pole, and it holds
	// more points than the slots left after the seed cities, so no grid
	// point repeats.
	const step = 10.0 // degrees
	lat := -78.0
	lon := -174.0
	for len(out) < Count {
		name := gridName(lat, lon)
		out = append(out, domain.Location{City: name, Latitude: lat, Longitude: lon})

		lon += step
		if lon > 174.0 {
			lon = -174.0
			lat += step
			if lat > 78.0 {
				lat = -78.0 // wrap; seed cities plus grid density comfortably exceed Count before this matters
			}
		}
	}

	return out[:Count]
}

func gridName(lat, lon float64) string {
	latHemi := "N"
	if lat < 0 {
		latHemi = "S"
		lat = -lat
	}
	lonHemi := "E"
	if lon < 0 {
		lonHemi = "W"
		lon = -lon
	}
	return fmt.Sprintf("grid-%.1f%s-%.1f%s", lat, latHemi, lon, lonHemi)
}
