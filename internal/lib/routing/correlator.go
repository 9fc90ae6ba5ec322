package routing

import (
	"context"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/hazard"
)

// DefaultRouteThreshold is the distance in meters within which a hazard affects a route point
const DefaultRouteThreshold = 500.0

// minSegmentPoints is the smallest run of points that can be drawn as a line
const minSegmentPoints = 2

// Correlator decides which hazards matter to a route and which stretches of
// the route they affect. It holds no mutable state and is safe for
// concurrent use.
type Correlator struct {
	geoUtils  geo.GeoUtils
	threshold float64
	mode      SegmentMode
}

// NewCorrelator creates a Correlator. Non-positive thresholds fall back to
// DefaultRouteThreshold and unknown modes to Grouped.
func NewCorrelator(thresholdMeters float64, mode SegmentMode) *Correlator {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultRouteThreshold
	}
	if mode != Contiguous {
		mode = Grouped
	}
	return &Correlator{
		geoUtils:  geo.NewGeoUtils(),
		threshold: thresholdMeters,
		mode:      mode,
	}
}

// Threshold returns the route proximity threshold in meters
func (c *Correlator) Threshold() float64 {
	return c.threshold
}

// IsRelevant reports whether any route point lies within the route threshold of h
func (c *Correlator) IsRelevant(h hazard.Hazard, route Route) bool {
	for _, p := range route.Points {
		if h.IsNear(p, c.threshold) {
			return true
		}
	}
	return false
}

// AffectedSegments returns the segments of route affected by h. Hazards
// with fewer than two proximate points yield no segments.
func (c *Correlator) AffectedSegments(h hazard.Hazard, route Route) []AffectedSegment {
	if c.mode == Contiguous {
		return c.contiguousSegments(h, route)
	}

	hp, ok := h.Point()
	if !ok {
		return nil
	}
	points, err := c.geoUtils.FilterPointsByDistance(route.Points, hp, c.threshold)
	if err != nil || len(points) < minSegmentPoints {
		return nil
	}
	return []AffectedSegment{{Points: points}}
}

func (c *Correlator) contiguousSegments(h hazard.Hazard, route Route) []AffectedSegment {
	var segments []AffectedSegment
	var run []geo.Point

	flush := func() {
		if len(run) >= minSegmentPoints {
			segments = append(segments, AffectedSegment{Points: run})
		}
		run = nil
	}

	for _, p := range route.Points {
		if h.IsNear(p, c.threshold) {
			run = append(run, p)
			continue
		}
		flush()
	}
	flush()

	return segments
}

// Correlate evaluates hazards against route in the given order. Hazards
// missing coordinates are logged and skipped. Neither input is modified.
func (c *Correlator) Correlate(ctx context.Context, route Route, hazards []hazard.Hazard) Correlation {
	result := Correlation{}
	if len(route.Points) == 0 || len(hazards) == 0 {
		return result
	}

	line := geo.Polyline{Points: route.Points}
	for _, h := range hazards {
		hp, ok := h.Point()
		if !ok {
			logging.Warnw(ctx, "Skipping hazard with missing coordinates", "hazard_id", h.ID, "type", h.Type)
			continue
		}

		if !c.IsRelevant(h, route) {
			continue
		}

		distance, _, err := c.geoUtils.PointToNearestVertex(hp, line)
		if err != nil {
			logging.Warnw(ctx, "Skipping hazard with invalid coordinates", "hazard_id", h.ID, "error", err)
			continue
		}

		segments := c.AffectedSegments(h, route)
		if segments == nil {
			segments = []AffectedSegment{}
		}

		severity := hazard.Classify(h.Type)
		result = append(result, HazardSegments{
			Hazard:          h,
			Severity:        severity,
			Color:           severity.Color(),
			DistanceToRoute: distance,
			Segments:        segments,
		})
	}

	return result
}
