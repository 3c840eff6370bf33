// Package weatherclient implements the upstream fetch contract: given a
// location, return an Observation or a classified error. Two
// implementations share the Client interface: the real Open-Meteo-backed
// HTTPClient and a MockClient synthetic producer, selected at startup by
// configuration so downstream components observe identical semantics
// either way.
package weatherclient

import (
	"context"

	"github.com/weathersync/weathersync/internal/domain"
)

// Client fetches current weather for a single location.
type Client interface {
	Fetch(ctx context.Context, loc domain.Location) (domain.Observation, error)
}
