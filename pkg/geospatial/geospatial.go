package geospatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

var (
	ErrLatitudeOutOfRange  = errors.New("latitude must be between -90 and 90")
	ErrLongitudeOutOfRange = errors.New("longitude must be between -180 and 180")
)

// ValidateCoordinates checks that a WGS84 coordinate pair is physically valid
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: %v", ErrLatitudeOutOfRange, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: %v", ErrLongitudeOutOfRange, lon)
	}
	return nil
}

// NewPoint builds an orb point from latitude/longitude (orb stores lon first)
func NewPoint(lat, lon float64) orb.Point {
	return orb.Point{lon, lat}
}

// ValidateGeoJSON parses a GeoJSON feature or bare geometry
func ValidateGeoJSON(geojsonStr string) (orb.Geometry, error) {
	if feature, err := geojson.UnmarshalFeature([]byte(geojsonStr)); err == nil && feature.Geometry != nil {
		return feature.Geometry, nil
	}

	geometry, err := geojson.UnmarshalGeometry([]byte(geojsonStr))
	if err != nil {
		return nil, err
	}
	if geometry.Geometry() == nil {
		return nil, errors.New("invalid GeoJSON: no geometry")
	}

	return geometry.Geometry(), nil
}

// CalculateArea calculates the geodesic area in square meters for a geometry
func CalculateArea(geometry orb.Geometry) float64 {
	return geo.Area(geometry)
}

// Contains reports whether a point lies inside a polygonal geometry
func Contains(geometry orb.Geometry, point orb.Point) bool {
	switch g := geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, point)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, point)
	case orb.Bound:
		return g.Contains(point)
	default:
		return false
	}
}

// ConvertToHectares converts square meters to hectares
func ConvertToHectares(sqMeters float64) float64 {
	return sqMeters / 10000
}
