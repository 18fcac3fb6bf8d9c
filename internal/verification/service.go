package verification

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"carbon-scribe/verification-engine/internal/evidence"
	"carbon-scribe/verification-engine/internal/verification/methodology"
	"carbon-scribe/verification-engine/pkg/storage"
	"carbon-scribe/verification-engine/pkg/workflows"
)

// EvidenceProcessor scores the evidence of a verification result
type EvidenceProcessor interface {
	ProcessEvidence(ctx context.Context, verificationResultID uuid.UUID, contents map[uuid.UUID][]byte) (*evidence.ProcessingResult, error)
}

// ServiceConfig configures the verification service
type ServiceConfig struct {
	// Validity is how long an approved verification stays valid; zero means no expiry
	Validity time.Duration
}

// Service orchestrates verification submissions, runs and reviews
type Service struct {
	repo      Repository
	registry  *methodology.Registry
	evidence  EvidenceProcessor
	lifecycle *workflows.StateMachine
	logger    *zap.Logger
	config    ServiceConfig
	now       func() time.Time
}

// NewService creates a new verification service
func NewService(
	repo Repository,
	registry *methodology.Registry,
	processor EvidenceProcessor,
	logger *zap.Logger,
	config ServiceConfig,
) *Service {
	return &Service{
		repo:      repo,
		registry:  registry,
		evidence:  processor,
		lifecycle: workflows.NewStateMachine(lifecycle),
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// =====================================================
// Submission and Status
// =====================================================

// SubmitVerification creates a pending verification for a credit under a methodology
func (s *Service) SubmitVerification(ctx context.Context, req *SubmitRequest) (*VerificationResult, error) {
	if strings.TrimSpace(req.Validator) == "" {
		return nil, fmt.Errorf("%w: validator is required", ErrInvalidRequest)
	}

	exists, err := s.repo.CreditExists(ctx, req.CreditID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrCreditNotFound
	}

	method, err := s.repo.GetMethod(ctx, req.MethodologyID)
	if err != nil {
		return nil, err
	}
	if !method.IsActive {
		return nil, ErrMethodologyInactive
	}

	now := s.now()
	result := &VerificationResult{
		ID:              uuid.New(),
		CreditID:        req.CreditID,
		MethodologyID:   req.MethodologyID,
		Status:          StatusPending,
		Notes:           []string{},
		Validator:       req.Validator,
		SubmissionNotes: req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.CreateResult(ctx, result); err != nil {
		if errors.Is(err, ErrDuplicateVerification) {
			return nil, fmt.Errorf("%w for credit %s under methodology %s", ErrDuplicateVerification, req.CreditID, req.MethodologyID)
		}
		return nil, err
	}

	s.logger.Info("Verification submitted",
		zap.String("verification_id", result.ID.String()),
		zap.String("credit_id", req.CreditID.String()),
		zap.String("methodology", method.Name),
		zap.String("validator", req.Validator))

	return result, nil
}

// GetVerificationStatus returns the resolved and still pending results of a credit
func (s *Service) GetVerificationStatus(ctx context.Context, creditID uuid.UUID) (*StatusResponse, error) {
	exists, err := s.repo.CreditExists(ctx, creditID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrCreditNotFound
	}

	results, err := s.repo.ListResultsByCredit(ctx, creditID)
	if err != nil {
		return nil, err
	}

	status := &StatusResponse{
		CreditID: creditID,
		Resolved: []VerificationResult{},
		Pending:  []VerificationResult{},
	}
	for _, r := range results {
		if r.Status.IsOpen() {
			status.Pending = append(status.Pending, r)
		} else {
			status.Resolved = append(status.Resolved, r)
		}
	}
	return status, nil
}

// GetVerification retrieves a verification result by ID
func (s *Service) GetVerification(ctx context.Context, id uuid.UUID) (*VerificationResult, error) {
	return s.repo.GetResult(ctx, id)
}

// =====================================================
// Methodologies
// =====================================================

// RegisterMethodology validates and persists a new methodology
func (s *Service) RegisterMethodology(ctx context.Context, req *RegisterMethodologyRequest) (*VerificationMethod, error) {
	name := strings.TrimSpace(req.Name)
	methodType := strings.TrimSpace(req.Type)
	if name == "" || methodType == "" {
		return nil, fmt.Errorf("%w: name and methodology_type are required", ErrInvalidMethodology)
	}

	handler, ok := s.registry.Get(methodType)
	if !ok {
		return nil, fmt.Errorf("%w: no handler registered for type %q (known: %s)",
			ErrInvalidMethodology, methodType, strings.Join(s.registry.Types(), ", "))
	}

	version, err := semver.NewVersion(req.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: version %q is not a semantic version", ErrInvalidMethodology, req.Version)
	}

	minConfidence := handler.MinimumConfidence()
	if req.MinimumConfidence != nil {
		minConfidence = *req.MinimumConfidence
	}
	if minConfidence < 0 || minConfidence > 1 {
		return nil, fmt.Errorf("%w: minimum_confidence must be within [0, 1]", ErrInvalidMethodology)
	}

	required := req.RequiredEvidenceTypes
	if len(required) == 0 {
		for _, t := range handler.RequiredEvidenceTypes() {
			required = append(required, string(t))
		}
	}
	for _, t := range required {
		if !evidence.EvidenceType(t).IsValid() {
			return nil, fmt.Errorf("%w: unknown evidence type %q", ErrInvalidMethodology, t)
		}
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.now()
	method := &VerificationMethod{
		ID:                    uuid.New(),
		Name:                  name,
		Type:                  methodType,
		Version:               version.String(),
		Description:           req.Description,
		RequiredEvidenceTypes: required,
		MinimumConfidence:     minConfidence,
		IsActive:              active,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.repo.CreateMethod(ctx, method); err != nil {
		return nil, err
	}

	s.logger.Info("Methodology registered",
		zap.String("methodology_id", method.ID.String()),
		zap.String("name", method.Name),
		zap.String("type", method.Type),
		zap.String("version", method.Version))

	return method, nil
}

// SetMethodologyActive de- or re-activates a methodology
func (s *Service) SetMethodologyActive(ctx context.Context, id uuid.UUID, active bool) (*VerificationMethod, error) {
	if err := s.repo.SetMethodActive(ctx, id, active); err != nil {
		return nil, err
	}
	s.logger.Info("Methodology activation changed",
		zap.String("methodology_id", id.String()),
		zap.Bool("active", active))
	return s.repo.GetMethod(ctx, id)
}

// ListMethodologies lists registered methodologies
func (s *Service) ListMethodologies(ctx context.Context) ([]VerificationMethod, error) {
	return s.repo.ListMethods(ctx)
}

// =====================================================
// Evidence
// =====================================================

// AttachEvidence records an uploaded evidence file against an open verification
func (s *Service) AttachEvidence(ctx context.Context, resultID uuid.UUID, req *AttachEvidenceRequest) (*evidence.File, error) {
	result, err := s.repo.GetResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if !result.Status.IsOpen() {
		return nil, fmt.Errorf("%w: evidence cannot be attached to a %s verification", ErrInvalidTransition, result.Status)
	}

	if !req.EvidenceType.IsValid() {
		return nil, fmt.Errorf("%w: unknown evidence type %q", ErrInvalidEvidence, req.EvidenceType)
	}
	if strings.TrimSpace(req.FileName) == "" {
		return nil, fmt.Errorf("%w: file_name is required", ErrInvalidEvidence)
	}
	hash := storage.NormalizeHash(req.ContentHash)
	if _, err := hex.DecodeString(hash); err != nil || len(hash) != 64 {
		return nil, fmt.Errorf("%w: content_hash must be a hex SHA-256 digest", ErrInvalidEvidence)
	}
	if req.FileSize < 0 {
		return nil, fmt.Errorf("%w: file_size cannot be negative", ErrInvalidEvidence)
	}

	metadata := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	file := &evidence.File{
		ID:                   uuid.New(),
		VerificationResultID: resultID,
		EvidenceType:         req.EvidenceType,
		FileName:             req.FileName,
		ContentHash:          hash,
		FileSize:             req.FileSize,
		MimeType:             req.MimeType,
		CaptureDate:          req.CaptureDate,
		CaptureDevice:        req.CaptureDevice,
		CaptureLatitude:      req.CaptureLatitude,
		CaptureLongitude:     req.CaptureLongitude,
		Metadata:             metadata,
		StorageLocator:       req.StorageLocator,
		UploadedAt:           s.now(),
	}

	if err := s.repo.CreateEvidenceFile(ctx, file); err != nil {
		return nil, err
	}

	// a stored run outcome no longer describes the evidence set
	if result.Verified || result.EvidenceSetHash != nil {
		from := result.Status
		result.Verified = false
		result.EvidenceSetHash = nil
		result.UpdatedAt = s.now()
		if err := s.repo.UpdateResult(ctx, result, from); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Evidence attached",
		zap.String("verification_id", resultID.String()),
		zap.String("evidence_id", file.ID.String()),
		zap.String("evidence_type", string(file.EvidenceType)))

	return file, nil
}

// ProcessEvidence runs the evidence pipeline for a verification
func (s *Service) ProcessEvidence(ctx context.Context, resultID uuid.UUID, contents map[uuid.UUID][]byte) (*evidence.ProcessingResult, error) {
	if _, err := s.repo.GetResult(ctx, resultID); err != nil {
		return nil, err
	}
	return s.evidence.ProcessEvidence(ctx, resultID, contents)
}

// =====================================================
// Verification Runs
// =====================================================

// RunVerification computes the methodology outcome and scores the evidence,
// then stores the merged outcome on the verification result.
func (s *Service) RunVerification(ctx context.Context, resultID uuid.UUID, contents map[uuid.UUID][]byte) (*RunResult, error) {
	result, err := s.repo.GetResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if !result.Status.IsOpen() {
		return nil, fmt.Errorf("%w: a %s verification cannot be re-run", ErrInvalidTransition, result.Status)
	}

	method, err := s.repo.GetMethod(ctx, result.MethodologyID)
	if err != nil {
		return nil, err
	}
	handler, ok := s.registry.Get(method.Type)
	if !ok {
		return nil, fmt.Errorf("%w: no handler for methodology type %q", ErrMethodologyNotFound, method.Type)
	}

	files, err := s.repo.ListEvidenceFiles(ctx, resultID)
	if err != nil {
		return nil, err
	}
	required := requiredEvidenceTypes(method, handler)

	req := methodology.Request{
		VerificationID: result.ID,
		CreditID:       result.CreditID,
		MethodologyID:  result.MethodologyID,
		Validator:      result.Validator,
	}

	// the handler only reads declared hashes, so it does not wait for the pipeline
	var outcome *methodology.Outcome
	var processing *evidence.ProcessingResult
	var g errgroup.Group
	g.Go(func() error {
		var err error
		outcome, err = s.calculate(ctx, handler, req, required, files)
		return err
	})
	g.Go(func() error {
		var err error
		processing, err = s.evidence.ProcessEvidence(ctx, resultID, contents)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("verification run failed: %w", err)
	}

	payload, err := json.Marshal(outcome.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode calculation payload: %w", err)
	}

	notes := append([]string{}, outcome.Notes...)
	verified := outcome.Verified
	if outcome.ConfidenceScore < method.MinimumConfidence {
		if verified {
			notes = append(notes, fmt.Sprintf("confidence %.4f is below the methodology minimum %.2f",
				outcome.ConfidenceScore, method.MinimumConfidence))
		}
		verified = false
	}
	if processing.QualityGrade == evidence.GradeF {
		notes = append(notes, "evidence quality grade is F")
		verified = false
	}

	confidence := outcome.ConfidenceScore
	quality := processing.OverallScore
	grade := string(processing.QualityGrade)
	setHash := outcome.EvidenceSetHash

	from := result.Status
	result.Verified = verified
	result.ConfidenceScore = &confidence
	result.QualityScore = &quality
	result.QualityGrade = &grade
	result.CalculationPayload = datatypes.JSON(payload)
	result.EvidenceSetHash = &setHash
	result.Notes = notes
	result.UpdatedAt = s.now()

	if err := s.repo.UpdateResult(ctx, result, from); err != nil {
		return nil, err
	}

	s.logger.Info("Verification run completed",
		zap.String("verification_id", result.ID.String()),
		zap.Bool("verified", verified),
		zap.Float64("confidence", confidence),
		zap.String("grade", grade))

	return &RunResult{Result: result, Outcome: outcome, Processing: processing}, nil
}

// requiredEvidenceTypes merges the types the methodology record demands with the handler's own
func requiredEvidenceTypes(method *VerificationMethod, handler methodology.Handler) []evidence.EvidenceType {
	seen := make(map[evidence.EvidenceType]bool)
	var required []evidence.EvidenceType
	add := func(t evidence.EvidenceType) {
		if !seen[t] {
			seen[t] = true
			required = append(required, t)
		}
	}
	for _, t := range handler.RequiredEvidenceTypes() {
		add(t)
	}
	for _, t := range method.RequiredEvidenceTypes {
		add(evidence.EvidenceType(t))
	}
	return required
}

// calculate runs the handler, converting missing evidence and extraction failures into a non-verified outcome
func (s *Service) calculate(ctx context.Context, handler methodology.Handler, req methodology.Request, required []evidence.EvidenceType, files []evidence.File) (*methodology.Outcome, error) {
	if missing, provided := methodology.MissingEvidenceTypes(required, files); len(missing) > 0 {
		setHash := methodology.EvidenceSetHash(files)
		names := make([]string, len(missing))
		for i, t := range missing {
			names[i] = string(t)
		}
		return &methodology.Outcome{
			Verified:        false,
			ConfidenceScore: 0,
			Payload: map[string]interface{}{
				"missing_evidence_types":  missing,
				"provided_evidence_types": provided,
				"evidence_set_hash":       setHash,
			},
			EvidenceSetHash: setHash,
			Notes:           []string{"missing required evidence types: " + strings.Join(names, ", ")},
		}, nil
	}

	outcome, err := handler.Validate(ctx, req, files)
	if err == nil {
		return outcome, nil
	}

	var extractionErr *methodology.ExtractionError
	if !errors.As(err, &extractionErr) {
		return nil, err
	}

	s.logger.Warn("Methodology inputs could not be extracted",
		zap.String("verification_id", req.VerificationID.String()),
		zap.String("field", extractionErr.Field),
		zap.Error(err))

	setHash := methodology.EvidenceSetHash(files)
	return &methodology.Outcome{
		Verified:        false,
		ConfidenceScore: 0,
		Payload: map[string]interface{}{
			"extraction_error":  err.Error(),
			"field":             extractionErr.Field,
			"evidence_set_hash": setHash,
		},
		EvidenceSetHash: setHash,
		Notes:           []string{err.Error()},
	}, nil
}

// =====================================================
// Review Lifecycle
// =====================================================

// StartReview moves a pending verification into review
func (s *Service) StartReview(ctx context.Context, id uuid.UUID, req *ReviewRequest) (*VerificationResult, error) {
	return s.transition(ctx, id, StatusInReview, func(r *VerificationResult) error {
		r.Reviewer = &req.Reviewer
		r.ReviewNotes = req.Notes
		return nil
	})
}

// Approve signs off a verification whose last run verified the current evidence set
func (s *Service) Approve(ctx context.Context, id uuid.UUID, req *ReviewRequest) (*VerificationResult, error) {
	return s.transition(ctx, id, StatusVerified, func(r *VerificationResult) error {
		if !r.Verified || r.EvidenceSetHash == nil {
			return fmt.Errorf("%w: verification %s has no verified outcome", ErrNotVerifiable, r.ID)
		}
		files, err := s.repo.ListEvidenceFiles(ctx, r.ID)
		if err != nil {
			return err
		}
		if methodology.EvidenceSetHash(files) != *r.EvidenceSetHash {
			return fmt.Errorf("%w: evidence of verification %s changed since the last run", ErrNotVerifiable, r.ID)
		}
		now := s.now()
		r.Reviewer = &req.Reviewer
		r.ReviewNotes = req.Notes
		r.ReviewedAt = &now
		r.VerifiedAt = &now
		if s.config.Validity > 0 {
			expires := now.Add(s.config.Validity)
			r.ExpiresAt = &expires
		}
		return nil
	})
}

// Reject closes a verification under review as rejected
func (s *Service) Reject(ctx context.Context, id uuid.UUID, req *ReviewRequest) (*VerificationResult, error) {
	return s.transition(ctx, id, StatusRejected, func(r *VerificationResult) error {
		now := s.now()
		r.Verified = false
		r.Reviewer = &req.Reviewer
		r.ReviewNotes = req.Notes
		r.ReviewedAt = &now
		return nil
	})
}

// Revoke withdraws a verified result
func (s *Service) Revoke(ctx context.Context, id uuid.UUID, req *ReviewRequest) (*VerificationResult, error) {
	return s.transition(ctx, id, StatusRevoked, func(r *VerificationResult) error {
		now := s.now()
		r.Verified = false
		r.Reviewer = &req.Reviewer
		r.ReviewNotes = req.Notes
		r.ReviewedAt = &now
		return nil
	})
}

// Cancel abandons an open verification
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, req *ReviewRequest) (*VerificationResult, error) {
	return s.transition(ctx, id, StatusCancelled, func(r *VerificationResult) error {
		r.Reviewer = &req.Reviewer
		r.ReviewNotes = req.Notes
		return nil
	})
}

// ExpireDue moves verified results past their expiry to expired
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListExpiring(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range due {
		r := &due[i]
		r.Status = StatusExpired
		r.Verified = false
		r.UpdatedAt = now
		if err := s.repo.UpdateResult(ctx, r, StatusVerified); err != nil {
			s.logger.Error("Failed to expire verification",
				zap.String("verification_id", r.ID.String()),
				zap.Error(err))
			continue
		}
		expired++
	}

	if expired > 0 {
		s.logger.Info("Expired verifications", zap.Int("count", expired))
	}
	return expired, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, apply func(*VerificationResult) error) (*VerificationResult, error) {
	result, err := s.repo.GetResult(ctx, id)
	if err != nil {
		return nil, err
	}

	from := result.Status
	if !s.lifecycle.CanTransition(string(from), string(to)) {
		if s.lifecycle.IsTerminal(string(from)) {
			return nil, fmt.Errorf("%w: %s is final", ErrInvalidTransition, from)
		}
		return nil, fmt.Errorf("%w: %s -> %s (allowed: %s)", ErrInvalidTransition, from, to,
			strings.Join(s.lifecycle.GetAllowedTransitions(string(from)), ", "))
	}
	if err := apply(result); err != nil {
		return nil, err
	}

	result.Status = to
	result.UpdatedAt = s.now()
	if err := s.repo.UpdateResult(ctx, result, from); err != nil {
		return nil, err
	}

	s.logger.Info("Verification status changed",
		zap.String("verification_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	return result, nil
}
