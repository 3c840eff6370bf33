package weatherclient

import "fmt"

// wmoConditions maps Open-Meteo's WMO weather codes to a human-readable
// condition label. Unknown codes produce the literal "WMO-<n>" rather than
// an "unknown" bucket, so the store never silently collapses distinct
// unmapped codes into one tag value.
var wmoConditions = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Light freezing drizzle",
	57: "Dense freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Light freezing rain",
	67: "Heavy freezing rain",
	71: "Slight snow fall",
	73: "Moderate snow fall",
	75: "Heavy snow fall",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// conditionForCode returns the fixed-table label for code, or "WMO-<n>" for
// any code the table doesn't carry.
func conditionForCode(code int) string {
	if label, ok := wmoConditions[code]; ok {
		return label
	}
	return fmt.Sprintf("WMO-%d", code)
}
