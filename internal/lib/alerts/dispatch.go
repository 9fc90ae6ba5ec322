package alerts

import "github.com/dpup/hazards.ersn.net/server/internal/lib/geo"

// DefaultAlertThreshold is the personal notification radius in meters
const DefaultAlertThreshold = 2000.0

// Dispatcher decides whether a recipient should be notified of an event.
// Its threshold is independent of the route correlation threshold.
type Dispatcher struct {
	threshold float64
}

// NewDispatcher creates a Dispatcher; non-positive thresholds fall back to DefaultAlertThreshold
func NewDispatcher(thresholdMeters float64) *Dispatcher {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultAlertThreshold
	}
	return &Dispatcher{threshold: thresholdMeters}
}

// Threshold returns the personal notification radius in meters
func (d *Dispatcher) Threshold() float64 {
	return d.threshold
}

// ShouldNotify reports whether recipient lies strictly within the alert threshold of the event
func (d *Dispatcher) ShouldNotify(event AlertEvent, recipient geo.Point) bool {
	return geo.IsNear(event.Point(), recipient, d.threshold)
}
