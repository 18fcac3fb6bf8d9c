package evidence

import (
	"context"
	"fmt"
)

const RuleWaterMeasurement = "water_measurement"

// measuredParameters are the water-quality and quantity fields we recognise
var measuredParameters = []string{
	"flow_rate",
	"volume",
	"ph",
	"turbidity",
	"temperature",
	"dissolved_oxygen",
	"conductivity",
}

// WaterMeasurementRule checks measured parameters for presence and plausibility,
// and reports which ones were detected.
func WaterMeasurementRule() Rule {
	return Rule{Name: RuleWaterMeasurement, Apply: applyWaterMeasurement}
}

func applyWaterMeasurement(ctx context.Context, in RuleInput) (ValidationResult, error) {
	c := newCheck()
	f := in.File

	detected := make([]string, 0, len(measuredParameters))
	values := make(map[string]float64)
	for _, param := range measuredParameters {
		raw, ok := f.MetadataValue(param)
		if !ok {
			continue
		}
		detected = append(detected, param)
		v, ok := ToFloat(raw)
		if !ok {
			c.fail(0.3, param, fmt.Sprintf("%s must be numeric, got %v", param, raw), "")
			continue
		}
		values[param] = v
	}
	c.set("detected_parameters", detected)

	if len(detected) == 0 {
		c.warn(0.4, "metadata", "no measured water parameters detected",
			"include at least one of flow_rate, volume, ph, turbidity, temperature")
		return c.result(), nil
	}

	if ph, ok := values["ph"]; ok && (ph < 0 || ph > 14) {
		c.warn(0.2, "ph", fmt.Sprintf("pH %.2f outside the 0-14 range", ph), "check probe calibration")
	}
	for _, param := range []string{"flow_rate", "volume", "turbidity"} {
		if v, ok := values[param]; ok && v < 0 {
			c.warn(0.2, param, fmt.Sprintf("%s cannot be negative (%.2f)", param, v), "")
		}
	}
	if temp, ok := values["temperature"]; ok && (temp < -5 || temp > 50) {
		c.warn(0.1, "temperature", fmt.Sprintf("water temperature %.1f°C is implausible", temp), "")
	}

	return c.result(), nil
}
