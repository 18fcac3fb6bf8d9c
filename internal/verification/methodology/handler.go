package methodology

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/google/uuid"

	"carbon-scribe/verification-engine/internal/evidence"
	"carbon-scribe/verification-engine/pkg/storage"
)

// Request identifies the verification a handler is computing for
type Request struct {
	VerificationID uuid.UUID `json:"verification_id"`
	CreditID       uuid.UUID `json:"credit_id"`
	MethodologyID  uuid.UUID `json:"methodology_id"`
	Validator      string    `json:"validator"`
}

// Outcome is the result of a methodology calculation
type Outcome struct {
	Verified        bool        `json:"verified"`
	ConfidenceScore float64     `json:"confidence_score"`
	Payload         interface{} `json:"calculation_payload"`
	EvidenceSetHash string      `json:"evidence_set_hash"`
	Notes           []string    `json:"notes"`
}

// Handler defines the contract every accounting methodology implements
type Handler interface {
	// RequiredEvidenceTypes declares the minimum evidence coverage needed to calculate
	RequiredEvidenceTypes() []evidence.EvidenceType

	// MinimumConfidence is the threshold below which a result is not verified
	MinimumConfidence() float64

	// Validate extracts inputs from the evidence and computes the outcome.
	// Missing evidence is a non-verified outcome; a returned error means the
	// calculation could not be attempted at all.
	Validate(ctx context.Context, req Request, files []evidence.File) (*Outcome, error)
}

// Registry maps methodology types to handlers. It is built once and never mutated.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates a registry from a type to handler table
func NewRegistry(handlers map[string]Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for methodType, h := range handlers {
		r.handlers[methodType] = h
	}
	return r
}

// Get returns the handler registered for a methodology type
func (r *Registry) Get(methodType string) (Handler, bool) {
	h, ok := r.handlers[methodType]
	return h, ok
}

// Types returns the registered methodology types, sorted
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// EvidenceSetHash binds a calculation to the exact evidence set it used.
// Files are ordered by ID so the hash does not depend on input order.
func EvidenceSetHash(files []evidence.File) string {
	sorted := make([]evidence.File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	h := sha256.New()
	for _, f := range sorted {
		h.Write([]byte(storage.NormalizeHash(f.ContentHash)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MissingEvidenceTypes returns the required types not present in files, and the types that are
func MissingEvidenceTypes(required []evidence.EvidenceType, files []evidence.File) (missing, provided []evidence.EvidenceType) {
	present := make(map[evidence.EvidenceType]bool)
	for _, f := range files {
		if !present[f.EvidenceType] {
			present[f.EvidenceType] = true
			provided = append(provided, f.EvidenceType)
		}
	}
	for _, t := range required {
		if !present[t] {
			missing = append(missing, t)
		}
	}
	sort.Slice(provided, func(i, j int) bool { return provided[i] < provided[j] })
	return missing, provided
}
