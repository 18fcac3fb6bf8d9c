package methodology

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"carbon-scribe/verification-engine/internal/evidence"
	"carbon-scribe/verification-engine/pkg/geospatial"
)

// FieldStatus describes how an input field was obtained
type FieldStatus int

const (
	FieldPresent FieldStatus = iota
	FieldDefaulted
	FieldMissing
)

func (s FieldStatus) String() string {
	switch s {
	case FieldPresent:
		return "present"
	case FieldDefaulted:
		return "defaulted"
	default:
		return "missing"
	}
}

// Field is an extracted calculation input together with its provenance
type Field[T any] struct {
	Name   string
	Value  T
	Status FieldStatus
	Source uuid.UUID
	Reason string
}

// Err returns an ExtractionError when the field could not be obtained
func (f Field[T]) Err() error {
	if f.Status != FieldMissing {
		return nil
	}
	return &ExtractionError{Field: f.Name, Reason: f.Reason}
}

// FieldSource is the audit record of a field persisted with the payload
type FieldSource struct {
	Status     string     `json:"status"`
	EvidenceID *uuid.UUID `json:"evidence_id,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

func (f Field[T]) source() FieldSource {
	src := FieldSource{Status: f.Status.String(), Reason: f.Reason}
	if f.Status == FieldPresent {
		id := f.Source
		src.EvidenceID = &id
	}
	return src
}

// ExtractionError means a required input had no value and no default
type ExtractionError struct {
	Field  string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("cannot extract %s: %s", e.Field, e.Reason)
}

// Location is a WGS84 point
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// fieldSpec describes where a field is looked up
type fieldSpec struct {
	name      string
	keys      []string
	preferred []evidence.EvidenceType
}

// ordered returns files of the preferred types first, keeping input order otherwise
func ordered(files []evidence.File, preferred []evidence.EvidenceType) []*evidence.File {
	out := make([]*evidence.File, 0, len(files))
	for _, t := range preferred {
		for i := range files {
			if files[i].EvidenceType == t {
				out = append(out, &files[i])
			}
		}
	}
	for i := range files {
		isPreferred := false
		for _, t := range preferred {
			if files[i].EvidenceType == t {
				isPreferred = true
				break
			}
		}
		if !isPreferred {
			out = append(out, &files[i])
		}
	}
	return out
}

func present[T any](name string, value T, source uuid.UUID) Field[T] {
	return Field[T]{Name: name, Value: value, Status: FieldPresent, Source: source}
}

// fallback returns the default if there is one, otherwise a missing field.
// A malformed value never falls back: defaults stand in for absent evidence only.
func fallback(name string, def *float64, reason string, malformed bool) Field[float64] {
	if def != nil && !malformed {
		return Field[float64]{Name: name, Value: *def, Status: FieldDefaulted, Reason: reason}
	}
	return Field[float64]{Name: name, Status: FieldMissing, Reason: reason}
}

// extractNumber takes the first numeric value found under fs.keys.
// malformed reports that a key was present but none of its values parsed.
func extractNumber(files []evidence.File, fs fieldSpec) (field Field[float64], reason string, malformed bool) {
	reason = fmt.Sprintf("no evidence carries %v", fs.keys)
	for _, f := range ordered(files, fs.preferred) {
		raw, ok := f.MetadataValue(fs.keys...)
		if !ok {
			continue
		}
		if v, ok := evidence.ToFloat(raw); ok {
			return present(fs.name, v, f.ID), "", false
		}
		reason = fmt.Sprintf("value %v in evidence %s is not numeric", raw, f.ID)
		malformed = true
	}
	return Field[float64]{Name: fs.name, Status: FieldMissing}, reason, malformed
}

func extractFloat(files []evidence.File, fs fieldSpec, def *float64) Field[float64] {
	field, reason, malformed := extractNumber(files, fs)
	if field.Status == FieldPresent {
		return field
	}
	return fallback(fs.name, def, reason, malformed)
}

var dateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseDate(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// extractPeriod reads the period in days, or derives it from measurement_start/end
func extractPeriod(files []evidence.File, fs fieldSpec, def *float64) Field[float64] {
	field, reason, malformed := extractNumber(files, fs)
	if field.Status == FieldPresent {
		return field
	}
	if malformed {
		return fallback(fs.name, def, reason, true)
	}

	for _, f := range ordered(files, fs.preferred) {
		rawStart, hasStart := f.MetadataValue("measurement_start")
		rawEnd, hasEnd := f.MetadataValue("measurement_end")
		if !hasStart || !hasEnd {
			continue
		}
		start, okStart := parseDate(rawStart)
		end, okEnd := parseDate(rawEnd)
		if !okStart || !okEnd {
			reason = fmt.Sprintf("measurement dates in evidence %s are not RFC 3339 or YYYY-MM-DD", f.ID)
			malformed = true
			continue
		}
		if days := end.Sub(start).Hours() / 24; days > 0 {
			return present(fs.name, days, f.ID)
		}
		reason = fmt.Sprintf("measurement_end precedes measurement_start in evidence %s", f.ID)
		malformed = true
	}
	return fallback(fs.name, def, reason, malformed)
}

// extractArea reads the area in hectares, or derives it from a GeoJSON site boundary
func extractArea(files []evidence.File, fs fieldSpec) Field[float64] {
	field, reason, malformed := extractNumber(files, fs)
	if field.Status == FieldPresent {
		return field
	}

	for _, f := range ordered(files, fs.preferred) {
		boundary, ok := f.SiteBoundary()
		if !ok {
			continue
		}
		geometry, err := geospatial.ValidateGeoJSON(boundary)
		if err != nil {
			reason = fmt.Sprintf("site boundary in evidence %s is invalid: %v", f.ID, err)
			continue
		}
		return present(fs.name, geospatial.ConvertToHectares(geospatial.CalculateArea(geometry)), f.ID)
	}
	return fallback(fs.name, nil, reason, malformed)
}

func extractLocation(files []evidence.File, fs fieldSpec) Field[Location] {
	for _, f := range ordered(files, fs.preferred) {
		if lat, lon, ok := f.Coordinates(); ok {
			return present(fs.name, Location{Latitude: lat, Longitude: lon}, f.ID)
		}
	}
	return Field[Location]{Name: fs.name, Status: FieldMissing, Reason: "no evidence carries numeric latitude and longitude"}
}
