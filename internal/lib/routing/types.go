package routing

import (
	"context"
	"errors"

	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/hazard"
)

// ErrRouteUnavailable is returned for every routing provider failure:
// network errors, non-2xx responses, timeouts and empty results
var ErrRouteUnavailable = errors.New("route unavailable")

// Route is an ordered driving path from source to destination
type Route struct {
	Points         []geo.Point `json:"points"`
	DistanceMeters float64     `json:"distance_meters,omitempty"`
	DurationSecs   float64     `json:"duration_seconds,omitempty"`
	Provider       string      `json:"provider,omitempty"`
}

// Provider fetches a driving route between two coordinates
type Provider interface {
	GetRoute(ctx context.Context, source, destination geo.Point) (Route, error)
}

// SegmentMode controls how proximate route points are grouped
type SegmentMode string

const (
	// Grouped emits a single segment holding every proximate point in route order
	Grouped SegmentMode = "grouped"

	// Contiguous emits one segment per maximal run of consecutive proximate points
	Contiguous SegmentMode = "contiguous"
)

// AffectedSegment is a run of route points within the route threshold of a hazard
type AffectedSegment struct {
	Points []geo.Point `json:"points"`
}

// HazardSegments is the correlation output for one relevant hazard
type HazardSegments struct {
	Hazard          hazard.Hazard     `json:"hazard"`
	Severity        hazard.Severity   `json:"severity"`
	Color           string            `json:"color"`
	DistanceToRoute float64           `json:"distance_to_route"`
	Segments        []AffectedSegment `json:"segments"`
}

// Correlation holds relevant hazards in the order the store returned them
type Correlation []HazardSegments

// Segments flattens every affected segment across all hazards
func (c Correlation) Segments() []AffectedSegment {
	var out []AffectedSegment
	for _, hs := range c {
		out = append(out, hs.Segments...)
	}
	return out
}
