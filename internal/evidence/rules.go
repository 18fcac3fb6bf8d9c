package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RuleInput is what a rule sees for one evidence file. Rules must not mutate File.
type RuleInput struct {
	File    *File
	Content []byte // nil when no bytes could be obtained

	// StoreVerified is the evidence store's own hash verdict, nil when the
	// bytes did not come from the store
	StoreVerified *bool

	Now time.Time
}

// RuleFunc evaluates one file. Returned errors become error-severity results.
type RuleFunc func(ctx context.Context, in RuleInput) (ValidationResult, error)

// Rule is a named, independently testable check
type Rule struct {
	Name  string
	Apply RuleFunc
}

// RuleSet maps evidence types to their rules plus a wildcard bucket.
// It is built once and never mutated.
type RuleSet struct {
	wildcard []Rule
	byType   map[EvidenceType][]Rule
}

// NewRuleSet copies the given tables into an immutable rule set
func NewRuleSet(wildcard []Rule, byType map[EvidenceType][]Rule) RuleSet {
	rs := RuleSet{
		wildcard: append([]Rule(nil), wildcard...),
		byType:   make(map[EvidenceType][]Rule, len(byType)),
	}
	for t, rules := range byType {
		rs.byType[t] = append([]Rule(nil), rules...)
	}
	return rs
}

// DefaultRuleSet returns the built-in rule table
func DefaultRuleSet() RuleSet {
	document := DocumentRule()
	return NewRuleSet(
		[]Rule{IntegrityRule(), MetadataCompletenessRule()},
		map[EvidenceType][]Rule{
			TypeWaterMeasurementData: {WaterMeasurementRule()},
			TypeSensorData:           {WaterMeasurementRule()},
			TypeGPSCoordinates:       {GPSCoordinatesRule()},
			TypeMethodologyDocument:  {document},
			TypeFieldReport:          {document},
			TypeSiteVerification:     {document},
			TypeBaselineAssessment:   {document},
		},
	)
}

// RulesFor returns wildcard rules followed by the type-specific ones
func (rs RuleSet) RulesFor(t EvidenceType) []Rule {
	rules := make([]Rule, 0, len(rs.wildcard)+len(rs.byType[t]))
	rules = append(rules, rs.wildcard...)
	return append(rules, rs.byType[t]...)
}

func runRule(ctx context.Context, rule Rule, in RuleInput) (result ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ruleFailure(rule.Name, in.File.ID, fmt.Errorf("rule panicked: %v", r))
		}
	}()

	res, err := rule.Apply(ctx, in)
	if err != nil {
		return ruleFailure(rule.Name, in.File.ID, err)
	}

	return stamp(res, rule.Name, in.File)
}

func ruleFailure(name string, evidenceID uuid.UUID, err error) ValidationResult {
	return ValidationResult{
		EvidenceID: evidenceID,
		Rule:       name,
		Valid:      false,
		Score:      0,
		Issues: []ValidationIssue{{
			EvidenceID: evidenceID,
			Rule:       name,
			Severity:   SeverityError,
			Message:    fmt.Sprintf("validation rule failed: %v", err),
		}},
	}
}

// check accumulates the issues and penalties of one rule evaluation
type check struct {
	score   float64
	invalid bool
	issues  []ValidationIssue
	meta    map[string]interface{}
}

func newCheck() *check {
	return &check{score: 1.0}
}

func (c *check) add(severity Severity, penalty float64, field, message, suggestion string) {
	c.score -= penalty
	c.issues = append(c.issues, ValidationIssue{
		Severity:   severity,
		Message:    message,
		Field:      field,
		Suggestion: suggestion,
	})
}

func (c *check) fail(penalty float64, field, message, suggestion string) {
	c.add(SeverityError, penalty, field, message, suggestion)
}

func (c *check) warn(penalty float64, field, message, suggestion string) {
	c.add(SeverityWarning, penalty, field, message, suggestion)
}

func (c *check) info(penalty float64, field, message, suggestion string) {
	c.add(SeverityInfo, penalty, field, message, suggestion)
}

func (c *check) set(key string, value interface{}) {
	if c.meta == nil {
		c.meta = make(map[string]interface{})
	}
	c.meta[key] = value
}

func (c *check) result() ValidationResult {
	valid := !c.invalid
	for _, issue := range c.issues {
		if issue.Severity == SeverityError {
			valid = false
		}
	}
	return ValidationResult{
		Valid:    valid,
		Score:    clampScore(c.score),
		Issues:   c.issues,
		Metadata: c.meta,
	}
}

func clampScore(score float64) float64 {
	return math.Max(0, math.Min(1, score))
}

// MetadataValue returns the first present metadata value among keys
func (f *File) MetadataValue(keys ...string) (interface{}, bool) {
	for _, key := range keys {
		if v, ok := f.Metadata[key]; ok && v != nil {
			if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ToFloat converts JSON-decoded numbers and numeric strings to float64
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, isFinite(n)
	case float32:
		return float64(n), isFinite(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil && isFinite(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && isFinite(f)
	default:
		return 0, false
	}
}
