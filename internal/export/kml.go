// Package export renders routes and their correlated hazards for map clients.
package export

import (
	"fmt"
	"image/color"
	"io"
	"time"

	"github.com/twpayne/go-kml"

	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/hazard"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/routing"
)

// ContentType is the MIME type of KML documents
const ContentType = "application/vnd.google-earth.kml+xml"

var severityColors = map[hazard.Severity]color.RGBA{
	hazard.SeverityHigh:    {R: 0xd3, G: 0x2f, B: 0x2f, A: 0xff},
	hazard.SeverityMedium:  {R: 0xf5, G: 0x7c, B: 0x00, A: 0xff},
	hazard.SeverityDefault: {R: 0x19, G: 0x76, B: 0xd2, A: 0xff},
}

var routeColor = color.RGBA{R: 0x43, G: 0xa0, B: 0x47, A: 0xc0}

// WriteRouteKML writes route and its hazard overlay as a KML document. Each
// hazard becomes a point placemark plus one line placemark per affected
// segment, styled by severity.
func WriteRouteKML(w io.Writer, route routing.Route, correlation routing.Correlation, generatedAt time.Time) error {
	routeStyle := kml.SharedStyle("route",
		kml.LineStyle(kml.Color(routeColor), kml.Width(4)),
	)

	doc := []kml.Element{
		kml.Name("Route hazards"),
		kml.Description(fmt.Sprintf("Generated %s", generatedAt.UTC().Format(time.RFC3339))),
		routeStyle,
	}
	styles := make(map[hazard.Severity]*kml.SharedElement)
	for _, sev := range []hazard.Severity{hazard.SeverityHigh, hazard.SeverityMedium, hazard.SeverityDefault} {
		style := kml.SharedStyle(string(sev),
			kml.LineStyle(kml.Color(severityColors[sev]), kml.Width(6)),
			kml.IconStyle(kml.Color(severityColors[sev]), kml.Scale(1.2)),
		)
		styles[sev] = style
		doc = append(doc, style)
	}

	doc = append(doc, kml.Placemark(
		kml.Name(routeName(route)),
		kml.StyleURL(routeStyle.URL()),
		kml.LineString(kml.Coordinates(coordinates(route.Points)...)),
	))

	hazards := []kml.Element{kml.Name("Hazards")}
	for _, hs := range correlation {
		style, ok := styles[hs.Severity]
		if !ok {
			style = styles[hazard.SeverityDefault]
		}

		if p, ok := hs.Hazard.Point(); ok {
			hazards = append(hazards, kml.Placemark(
				kml.Name(hs.Hazard.Type),
				kml.Description(describe(hs)),
				kml.StyleURL(style.URL()),
				kml.TimeStamp(kml.When(hs.Hazard.Timestamp)),
				kml.Point(kml.Coordinates(coordinate(p))),
			))
		}

		for i, seg := range hs.Segments {
			hazards = append(hazards, kml.Placemark(
				kml.Name(fmt.Sprintf("%s segment %d", hs.Hazard.Type, i+1)),
				kml.StyleURL(style.URL()),
				kml.LineString(kml.Coordinates(coordinates(seg.Points)...)),
			))
		}
	}
	doc = append(doc, kml.Folder(hazards...))

	return kml.KML(kml.Document(doc...)).WriteIndent(w, "", "  ")
}

func routeName(route routing.Route) string {
	if route.DistanceMeters > 0 {
		return fmt.Sprintf("Route (%.1f km)", route.DistanceMeters/1000)
	}
	return "Route"
}

func describe(hs routing.HazardSegments) string {
	desc := fmt.Sprintf("Severity: %s", hs.Severity)
	if hs.Hazard.Location != "" {
		desc += "\nLocation: " + hs.Hazard.Location
	}
	return desc + fmt.Sprintf("\nDistance to route: %.0f m", hs.DistanceToRoute)
}

func coordinate(p geo.Point) kml.Coordinate {
	return kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
}

func coordinates(points []geo.Point) []kml.Coordinate {
	coords := make([]kml.Coordinate, len(points))
	for i, p := range points {
		coords[i] = coordinate(p)
	}
	return coords
}
