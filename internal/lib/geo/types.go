package geo

// Point represents a geographic coordinate in WGS84 degrees
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Polyline represents an encoded polyline with optional decoded points
type Polyline struct {
	EncodedPolyline string  `json:"encoded_polyline,omitempty"`
	Points          []Point `json:"points"`
}

// GeoUtils interface defines geographic calculation utilities
type GeoUtils interface {
	// Calculate great-circle distance between two points in meters
	PointToPoint(p1, p2 Point) (float64, error)

	// Calculate the distance from point to the nearest vertex of a polyline
	PointToNearestVertex(point Point, polyline Polyline) (float64, int, error)

	// Decode an encoded polyline string to a point sequence
	DecodePolyline(encoded string) ([]Point, error)

	// Encode a point sequence as a polyline string
	EncodePolyline(points []Point) string

	// Filter points to those strictly within the specified distance of center point
	FilterPointsByDistance(points []Point, center Point, maxDistanceMeters float64) ([]Point, error)

	// Calculate distance between coordinate pairs (convenience method)
	DistanceFromCoords(lat1, lon1, lat2, lon2 float64) (float64, error)
}

// NewGeoUtils is implemented in geo.go
