package methodology

import (
	"context"
	"fmt"
	"math"
	"strings"

	"carbon-scribe/verification-engine/internal/evidence"
	"carbon-scribe/verification-engine/pkg/geospatial"
)

// TypeVWBA is the methodology type served by VWBAHandler
const TypeVWBA = "vwba"

const vwbaLabel = "VWBA v2"

// VWBAPolicy holds the thresholds and confidence penalties of the VWBA handler
type VWBAPolicy struct {
	MinimumConfidence  float64 `json:"minimum_confidence"`
	MinPeriodDays      float64 `json:"min_period_days"`
	MaxAreaHectares    float64 `json:"max_area_hectares"`
	MaxUncertainty     float64 `json:"max_uncertainty"`
	DefaultPeriodDays  float64 `json:"default_period_days"`
	DefaultUncertainty float64 `json:"default_uncertainty"`

	ShortPeriodPenalty     float64 `json:"short_period_penalty"`
	BaselineVolumePenalty  float64 `json:"baseline_volume_penalty"`
	ProjectVolumePenalty   float64 `json:"project_volume_penalty"`
	AreaPenalty            float64 `json:"area_penalty"`
	LocationPenalty        float64 `json:"location_penalty"`
	UncertaintyPenalty     float64 `json:"uncertainty_penalty"`
	NonPositiveBenefitRate float64 `json:"non_positive_benefit_rate"`
}

// DefaultVWBAPolicy returns the standard VWBA v2 policy
func DefaultVWBAPolicy() VWBAPolicy {
	return VWBAPolicy{
		MinimumConfidence:  0.80,
		MinPeriodDays:      30,
		MaxAreaHectares:    1_000_000,
		MaxUncertainty:     0.20,
		DefaultPeriodDays:  365,
		DefaultUncertainty: 0.10,

		ShortPeriodPenalty:     0.7,
		BaselineVolumePenalty:  0.5,
		ProjectVolumePenalty:   0.5,
		AreaPenalty:            0.6,
		LocationPenalty:        0.3,
		UncertaintyPenalty:     0.8,
		NonPositiveBenefitRate: 0.5,
	}
}

// VWBAInputs are the extracted calculation inputs
type VWBAInputs struct {
	BaselineVolume        float64  `json:"baseline_volume_liters"`
	ProjectVolume         float64  `json:"project_volume_liters"`
	MeasurementPeriodDays float64  `json:"measurement_period_days"`
	ProjectAreaHectares   float64  `json:"project_area_hectares"`
	Location              Location `json:"location"`
	UncertaintyFactor     float64  `json:"uncertainty_factor"`
}

// VWBAResults are the computed benefit figures
type VWBAResults struct {
	NetBenefit            float64 `json:"net_benefit_liters"`
	ReportedBenefitVolume float64 `json:"reported_benefit_volume_liters"`
	BenefitPerHectare     float64 `json:"benefit_per_hectare_liters"`
	AnnualizedBenefit     float64 `json:"annualized_benefit_liters"`
	ConfidenceScore       float64 `json:"confidence_score"`
}

// UncertaintyRange is the band around the net benefit
type UncertaintyRange struct {
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
	Factor float64 `json:"factor"`
}

// VWBAPayload is persisted on the verification result so it can be audited without recomputation
type VWBAPayload struct {
	Methodology           string                  `json:"methodology"`
	Inputs                *VWBAInputs             `json:"inputs,omitempty"`
	FieldSources          map[string]FieldSource  `json:"field_sources,omitempty"`
	Results               *VWBAResults            `json:"results,omitempty"`
	UncertaintyRange      *UncertaintyRange       `json:"uncertainty_range,omitempty"`
	EvidenceSetHash       string                  `json:"evidence_set_hash"`
	ValidationErrors      []string                `json:"validation_errors,omitempty"`
	MissingEvidenceTypes  []evidence.EvidenceType `json:"missing_evidence_types,omitempty"`
	ProvidedEvidenceTypes []evidence.EvidenceType `json:"provided_evidence_types,omitempty"`
}

var vwbaRequired = []evidence.EvidenceType{
	evidence.TypeWaterMeasurementData,
	evidence.TypeBaselineAssessment,
	evidence.TypeGPSCoordinates,
	evidence.TypeSiteVerification,
}

var (
	baselineField = fieldSpec{
		name:      "baseline_volume",
		keys:      []string{"baseline_volume", "baseline_volume_liters"},
		preferred: []evidence.EvidenceType{evidence.TypeBaselineAssessment},
	}
	projectField = fieldSpec{
		name:      "project_volume",
		keys:      []string{"project_volume", "project_volume_liters", "measured_volume"},
		preferred: []evidence.EvidenceType{evidence.TypeWaterMeasurementData, evidence.TypeSensorData},
	}
	periodField = fieldSpec{
		name:      "measurement_period_days",
		keys:      []string{"measurement_period_days", "measurement_period"},
		preferred: []evidence.EvidenceType{evidence.TypeWaterMeasurementData},
	}
	areaField = fieldSpec{
		name:      "project_area_hectares",
		keys:      []string{"project_area_hectares", "project_area"},
		preferred: []evidence.EvidenceType{evidence.TypeSiteVerification, evidence.TypeBaselineAssessment},
	}
	locationField = fieldSpec{
		name:      "location",
		preferred: []evidence.EvidenceType{evidence.TypeGPSCoordinates},
	}
	uncertaintyField = fieldSpec{
		name:      "uncertainty_factor",
		keys:      []string{"uncertainty_factor"},
		preferred: []evidence.EvidenceType{evidence.TypeWaterMeasurementData, evidence.TypeMethodologyDocument},
	}
)

// VWBAHandler implements Volumetric Water Benefit Accounting v2
type VWBAHandler struct {
	policy VWBAPolicy
}

// NewVWBAHandler creates a VWBA handler with the given policy
func NewVWBAHandler(policy VWBAPolicy) *VWBAHandler {
	return &VWBAHandler{policy: policy}
}

func (h *VWBAHandler) RequiredEvidenceTypes() []evidence.EvidenceType {
	out := make([]evidence.EvidenceType, len(vwbaRequired))
	copy(out, vwbaRequired)
	return out
}

func (h *VWBAHandler) MinimumConfidence() float64 {
	return h.policy.MinimumConfidence
}

// Validate runs the VWBA calculation over the evidence set
func (h *VWBAHandler) Validate(ctx context.Context, req Request, files []evidence.File) (*Outcome, error) {
	setHash := EvidenceSetHash(files)
	payload := &VWBAPayload{Methodology: vwbaLabel, EvidenceSetHash: setHash}

	missing, provided := MissingEvidenceTypes(vwbaRequired, files)
	if len(missing) > 0 {
		payload.MissingEvidenceTypes = missing
		payload.ProvidedEvidenceTypes = provided
		return &Outcome{
			Verified:        false,
			ConfidenceScore: 0,
			Payload:         payload,
			EvidenceSetHash: setHash,
			Notes:           []string{fmt.Sprintf("missing required evidence types: %s", joinTypes(missing))},
		}, nil
	}

	inputs, sources, err := h.extract(files)
	if err != nil {
		return nil, err
	}
	payload.Inputs = inputs
	payload.FieldSources = sources

	multiplier, violations := h.check(inputs)
	if len(violations) > 0 {
		payload.ValidationErrors = violations
		confidence := 0.0
		if partial := round4(multiplier); partial >= h.policy.MinimumConfidence {
			confidence = partial
		}
		return &Outcome{
			Verified:        false,
			ConfidenceScore: confidence,
			Payload:         payload,
			EvidenceSetHash: setHash,
			Notes:           violations,
		}, nil
	}

	results, band := h.calculate(inputs)
	payload.Results = results
	payload.UncertaintyRange = band

	verified := results.ConfidenceScore >= h.policy.MinimumConfidence
	notes := []string{fmt.Sprintf("net water benefit of %.2f liters over %.0f days", results.NetBenefit, inputs.MeasurementPeriodDays)}
	if results.NetBenefit <= 0 {
		notes = append(notes, "net benefit is not positive; reported benefit volume is 0")
	}
	if !verified {
		notes = append(notes, fmt.Sprintf("confidence %.4f is below the minimum %.2f", results.ConfidenceScore, h.policy.MinimumConfidence))
	}

	return &Outcome{
		Verified:        verified,
		ConfidenceScore: results.ConfidenceScore,
		Payload:         payload,
		EvidenceSetHash: setHash,
		Notes:           notes,
	}, nil
}

func (h *VWBAHandler) extract(files []evidence.File) (*VWBAInputs, map[string]FieldSource, error) {
	period := h.policy.DefaultPeriodDays
	uncertainty := h.policy.DefaultUncertainty

	baseline := extractFloat(files, baselineField, nil)
	project := extractFloat(files, projectField, nil)
	days := extractPeriod(files, periodField, &period)
	area := extractArea(files, areaField)
	location := extractLocation(files, locationField)
	u := extractFloat(files, uncertaintyField, &uncertainty)

	for _, err := range []error{baseline.Err(), project.Err(), days.Err(), area.Err(), location.Err(), u.Err()} {
		if err != nil {
			return nil, nil, err
		}
	}

	sources := map[string]FieldSource{
		baseline.Name: baseline.source(),
		project.Name:  project.source(),
		days.Name:     days.source(),
		area.Name:     area.source(),
		location.Name: location.source(),
		u.Name:        u.source(),
	}
	return &VWBAInputs{
		BaselineVolume:        baseline.Value,
		ProjectVolume:         project.Value,
		MeasurementPeriodDays: days.Value,
		ProjectAreaHectares:   area.Value,
		Location:              location.Value,
		UncertaintyFactor:     u.Value,
	}, sources, nil
}

// check applies the policy; each violation compounds the confidence multiplier
func (h *VWBAHandler) check(in *VWBAInputs) (float64, []string) {
	p := h.policy
	multiplier := 1.0
	var violations []string
	violate := func(penalty float64, format string, args ...interface{}) {
		multiplier *= penalty
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	if in.MeasurementPeriodDays < p.MinPeriodDays {
		violate(p.ShortPeriodPenalty, "measurement period of %.0f days is shorter than the minimum %.0f days",
			in.MeasurementPeriodDays, p.MinPeriodDays)
	}
	if in.BaselineVolume <= 0 {
		violate(p.BaselineVolumePenalty, "baseline volume must be positive, got %.2f", in.BaselineVolume)
	}
	if in.ProjectVolume <= 0 {
		violate(p.ProjectVolumePenalty, "project volume must be positive, got %.2f", in.ProjectVolume)
	}
	if in.ProjectAreaHectares <= 0 || in.ProjectAreaHectares > p.MaxAreaHectares {
		violate(p.AreaPenalty, "project area of %.2f ha is outside (0, %.0f]", in.ProjectAreaHectares, p.MaxAreaHectares)
	}
	if err := geospatial.ValidateCoordinates(in.Location.Latitude, in.Location.Longitude); err != nil {
		violate(p.LocationPenalty, "invalid project location: %v", err)
	}
	if in.UncertaintyFactor < 0 || in.UncertaintyFactor > p.MaxUncertainty {
		violate(p.UncertaintyPenalty, "uncertainty factor %.2f is outside [0, %.2f]", in.UncertaintyFactor, p.MaxUncertainty)
	}
	return multiplier, violations
}

func (h *VWBAHandler) calculate(in *VWBAInputs) (*VWBAResults, *UncertaintyRange) {
	u := in.UncertaintyFactor
	net := in.ProjectVolume - in.BaselineVolume

	completeness := math.Min(in.MeasurementPeriodDays/365, 1)
	confidence := (0.8 + 0.2*completeness) * (1 - u)
	if net <= 0 {
		confidence *= h.policy.NonPositiveBenefitRate
	}

	lower, upper := net*(1-u), net*(1+u)
	return &VWBAResults{
			NetBenefit:            round4(net),
			ReportedBenefitVolume: round4(math.Max(net, 0)),
			BenefitPerHectare:     round4(net / in.ProjectAreaHectares),
			AnnualizedBenefit:     round4(net * 365 / in.MeasurementPeriodDays),
			ConfidenceScore:       round4(confidence),
		}, &UncertaintyRange{
			Lower:  round4(math.Min(lower, upper)),
			Upper:  round4(math.Max(lower, upper)),
			Factor: u,
		}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func joinTypes(types []evidence.EvidenceType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
