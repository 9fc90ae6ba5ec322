package hazard

import "strings"

// Severity is the presentation class of a hazard type
type Severity string

const (
	SeverityHigh    Severity = "high"
	SeverityMedium  Severity = "medium"
	SeverityDefault Severity = "default"
)

// Classify maps a free-form hazard type to a severity, ignoring case
func Classify(hazardType string) Severity {
	switch strings.ToLower(strings.TrimSpace(hazardType)) {
	case "accident":
		return SeverityHigh
	case "roadblock":
		return SeverityMedium
	default:
		return SeverityDefault
	}
}

// Color is the display colour used for the severity on maps and exports
func (s Severity) Color() string {
	switch s {
	case SeverityHigh:
		return "red"
	case SeverityMedium:
		return "orange"
	default:
		return "blue"
	}
}
