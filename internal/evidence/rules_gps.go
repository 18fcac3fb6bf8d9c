package evidence

import (
	"context"
	"encoding/json"
	"fmt"

	"carbon-scribe/verification-engine/pkg/geospatial"
)

const RuleGPSCoordinates = "gps_coordinates"

const maxGPSAccuracyMeters = 100.0

// GPSCoordinatesRule checks that coordinates exist and are physically valid,
// and optionally that they fall inside the declared site boundary.
func GPSCoordinatesRule() Rule {
	return Rule{Name: RuleGPSCoordinates, Apply: applyGPSCoordinates}
}

// Coordinates returns lat/lon from metadata, falling back to the capture location
func (f *File) Coordinates() (lat, lon float64, ok bool) {
	rawLat, hasLat := f.MetadataValue("latitude", "lat")
	rawLon, hasLon := f.MetadataValue("longitude", "lon", "lng")
	if hasLat && hasLon {
		lat, latOK := ToFloat(rawLat)
		lon, lonOK := ToFloat(rawLon)
		if latOK && lonOK {
			return lat, lon, true
		}
		return 0, 0, false
	}
	if f.CaptureLatitude != nil && f.CaptureLongitude != nil {
		return *f.CaptureLatitude, *f.CaptureLongitude, true
	}
	return 0, 0, false
}

// SiteBoundary returns the raw GeoJSON boundary attached to the evidence, if any
func (f *File) SiteBoundary() (string, bool) {
	raw, ok := f.MetadataValue("site_boundary")
	if !ok {
		return "", false
	}
	if s, isString := raw.(string); isString {
		return s, true
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func applyGPSCoordinates(ctx context.Context, in RuleInput) (ValidationResult, error) {
	c := newCheck()
	f := in.File

	lat, lon, ok := f.Coordinates()
	if !ok {
		c.fail(0.5, "latitude", "latitude and longitude are required and must be numeric",
			"attach decimal-degree coordinates")
		return c.result(), nil
	}

	if err := geospatial.ValidateCoordinates(lat, lon); err != nil {
		c.fail(0.5, "coordinates", err.Error(), "use WGS84 decimal degrees")
		return c.result(), nil
	}

	if lat == 0 && lon == 0 {
		c.warn(0.3, "coordinates", "coordinates are (0, 0), likely a missing GPS fix", "")
	}

	if raw, ok := f.MetadataValue("accuracy_meters", "accuracy"); ok {
		if accuracy, ok := ToFloat(raw); ok && accuracy > maxGPSAccuracyMeters {
			c.warn(0.1, "accuracy", fmt.Sprintf("GPS accuracy %.0fm exceeds %.0fm", accuracy, maxGPSAccuracyMeters), "")
		}
	}

	if boundary, ok := f.SiteBoundary(); ok {
		geometry, err := geospatial.ValidateGeoJSON(boundary)
		if err != nil {
			c.warn(0.1, "site_boundary", fmt.Sprintf("site boundary is not valid GeoJSON: %v", err), "")
		} else {
			c.set("area_hectares", geospatial.ConvertToHectares(geospatial.CalculateArea(geometry)))
			if !geospatial.Contains(geometry, geospatial.NewPoint(lat, lon)) {
				c.warn(0.3, "coordinates", "coordinates fall outside the declared site boundary", "")
			}
		}
	}

	return c.result(), nil
}
