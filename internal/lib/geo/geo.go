package geo

import (
	"errors"
	"math"

	"github.com/twpayne/go-polyline"
)

// EarthRadiusMeters is the mean Earth radius used by all distance calculations
const EarthRadiusMeters = 6371000

var ErrInvalidCoordinates = errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")

// Distance returns the great-circle distance in meters between a and b using
// the haversine formula. Inputs are not range checked; NaN propagates.
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lon1 := a.Longitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	lon2 := b.Longitude * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// IsNear reports whether b lies strictly within thresholdMeters of a.
// A point exactly at the threshold is not near.
func IsNear(a, b Point, thresholdMeters float64) bool {
	return Distance(a, b) < thresholdMeters
}

// geoUtils implements the GeoUtils interface
type geoUtils struct{}

// NewGeoUtils creates a new GeoUtils implementation
func NewGeoUtils() GeoUtils {
	return &geoUtils{}
}

// PointToPoint calculates great-circle distance between two validated points
func (g *geoUtils) PointToPoint(p1, p2 Point) (float64, error) {
	if !IsValidCoordinate(p1) || !IsValidCoordinate(p2) {
		return 0, ErrInvalidCoordinates
	}

	if p1 == p2 {
		return 0, nil
	}

	return Distance(p1, p2), nil
}

// PointToNearestVertex returns the distance to, and index of, the closest
// polyline vertex. Segments between vertices are not interpolated.
func (g *geoUtils) PointToNearestVertex(point Point, line Polyline) (float64, int, error) {
	if !IsValidCoordinate(point) {
		return 0, -1, errors.New("invalid point coordinates")
	}

	if len(line.Points) == 0 {
		return 0, -1, errors.New("polyline has no points")
	}

	minDistance := math.Inf(1)
	index := -1
	for i, vertex := range line.Points {
		distance := Distance(point, vertex)
		if distance < minDistance {
			minDistance = distance
			index = i
		}
	}

	return minDistance, index, nil
}

// DecodePolyline decodes a precision 5 polyline string to a point sequence
func (g *geoUtils) DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{
			Latitude:  coord[0],
			Longitude: coord[1],
		}

		if !IsValidCoordinate(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// EncodePolyline encodes a point sequence as a precision 5 polyline string
func (g *geoUtils) EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !IsValidCoordinate(point) {
		return Point{}, ErrInvalidCoordinates
	}
	return point, nil
}

// FilterPointsByDistance returns, in input order, the points strictly within
// maxDistanceMeters of center. The input slice is not modified.
func (g *geoUtils) FilterPointsByDistance(points []Point, center Point, maxDistanceMeters float64) ([]Point, error) {
	if !IsValidCoordinate(center) {
		return nil, errors.New("invalid center point coordinates")
	}

	var filteredPoints []Point
	for _, point := range points {
		if !IsValidCoordinate(point) {
			continue
		}

		if IsNear(center, point, maxDistanceMeters) {
			filteredPoints = append(filteredPoints, point)
		}
	}

	return filteredPoints, nil
}

// DistanceFromCoords calculates distance between two coordinate pairs
func (g *geoUtils) DistanceFromCoords(lat1, lon1, lat2, lon2 float64) (float64, error) {
	return g.PointToPoint(Point{Latitude: lat1, Longitude: lon1}, Point{Latitude: lat2, Longitude: lon2})
}

// IsValidCoordinate validates latitude and longitude ranges. NaN is invalid.
func IsValidCoordinate(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}
