package evidence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"carbon-scribe/verification-engine/internal/evidence/parser"
	"carbon-scribe/verification-engine/pkg/storage"
)

// Repository is the persistence the pipeline needs for evidence files
type Repository interface {
	ListEvidenceFiles(ctx context.Context, verificationResultID uuid.UUID) ([]File, error)
	UpdateEvidenceFile(ctx context.Context, file *File) error
}

// PipelineConfig configures the evidence pipeline
type PipelineConfig struct {
	MaxConcurrentFiles int
	ArchiveAttempts    int
	ArchiveRetryDelay  time.Duration
	ParseOptions       parser.Options
}

// DefaultPipelineConfig returns default configuration
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxConcurrentFiles: 8,
		ArchiveAttempts:    3,
		ArchiveRetryDelay:  200 * time.Millisecond,
		ParseOptions:       parser.DefaultOptions(),
	}
}

// Pipeline runs the validation rules over every evidence file of a verification
type Pipeline struct {
	repo   Repository
	store  storage.ContentStore
	parser parser.Parser
	rules  RuleSet
	logger *zap.Logger
	config PipelineConfig
	now    func() time.Time
}

// NewPipeline creates a pipeline. store may be nil, which disables retrieval
// by locator and archival.
func NewPipeline(
	repo Repository,
	store storage.ContentStore,
	fileParser parser.Parser,
	rules RuleSet,
	logger *zap.Logger,
	config PipelineConfig,
) *Pipeline {
	if config.MaxConcurrentFiles <= 0 {
		config.MaxConcurrentFiles = 1
	}
	if config.ArchiveAttempts <= 0 {
		config.ArchiveAttempts = 1
	}
	return &Pipeline{
		repo:   repo,
		store:  store,
		parser: fileParser,
		rules:  rules,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// ProcessEvidence validates all evidence files of a verification result.
// contents optionally supplies file bytes keyed by evidence ID; files without
// supplied bytes are fetched from the evidence store by locator.
func (p *Pipeline) ProcessEvidence(ctx context.Context, verificationResultID uuid.UUID, contents map[uuid.UUID][]byte) (*ProcessingResult, error) {
	start := time.Now()

	files, err := p.repo.ListEvidenceFiles(ctx, verificationResultID)
	if err != nil {
		return nil, fmt.Errorf("failed to load evidence files: %w", err)
	}

	if len(files) == 0 {
		p.logger.Warn("No evidence to process", zap.String("verification_id", verificationResultID.String()))
		return &ProcessingResult{
			VerificationResultID: verificationResultID,
			Processed:            false,
			ValidationResults:    []ValidationResult{},
			FileResults:          []FileResult{},
			OverallScore:         0,
			QualityGrade:         GradeF,
			Issues: []ValidationIssue{{
				Severity: SeverityError,
				Message:  "no evidence files found for verification",
			}},
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	fileResults := make([]FileResult, len(files))
	var g errgroup.Group
	g.SetLimit(p.config.MaxConcurrentFiles)
	for i := range files {
		g.Go(func() error {
			fileResults[i] = p.processFile(ctx, &files[i], contents[files[i].ID])
			return nil
		})
	}
	_ = g.Wait()

	result := aggregate(verificationResultID, fileResults)
	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	p.logger.Info("Evidence processed",
		zap.String("verification_id", verificationResultID.String()),
		zap.Int("files", len(files)),
		zap.Float64("overall_score", result.OverallScore),
		zap.String("grade", string(result.QualityGrade)),
		zap.Int64("processing_time_ms", result.ProcessingTimeMs))

	return result, nil
}

func aggregate(verificationResultID uuid.UUID, fileResults []FileResult) *ProcessingResult {
	result := &ProcessingResult{
		VerificationResultID: verificationResultID,
		Processed:            true,
		ValidationResults:    []ValidationResult{},
		FileResults:          fileResults,
		Issues:               []ValidationIssue{},
	}

	var scores []float64
	for _, fr := range fileResults {
		for _, vr := range fr.Results {
			result.ValidationResults = append(result.ValidationResults, vr)
			result.Issues = append(result.Issues, vr.Issues...)
			scores = append(scores, vr.Score)
		}
	}

	if mean, err := stats.Mean(scores); err == nil {
		result.OverallScore = math.Round(mean*10000) / 10000
	}

	errs, warnings := CountIssues(result.Issues)
	result.QualityGrade = ComputeGrade(result.OverallScore, errs, warnings)
	return result
}

// processFile always produces a result; nothing here may fail sibling files
func (p *Pipeline) processFile(ctx context.Context, f *File, provided []byte) FileResult {
	log := p.logger.With(
		zap.String("evidence_id", f.ID.String()),
		zap.String("evidence_type", string(f.EvidenceType)))

	content, storeVerified := p.resolveContent(ctx, f, provided, log)

	var parsed *parser.Result
	var parseCrash error
	if content != nil && IsDataFile(f.EvidenceType) {
		res, err := p.parse(ctx, f, content)
		switch {
		case errors.Is(err, errParserPanic):
			log.Error("Parser crashed on evidence content, continuing with metadata checks", zap.Error(err))
			parseCrash = err
		case err != nil:
			log.Warn("Failed to parse evidence content, continuing with metadata checks", zap.Error(err))
		case res.Structured():
			parsed = res
		}
	}

	in := RuleInput{File: f, Content: content, StoreVerified: storeVerified, Now: p.now()}
	var results []ValidationResult
	for _, rule := range p.rules.RulesFor(f.EvidenceType) {
		res := runRule(ctx, rule, in)
		if disagrees, _ := res.Metadata["store_verification_disagrees"].(bool); disagrees {
			log.Warn("Evidence store hash check disagrees with the recomputed hash",
				zap.String("locator", stringOrEmpty(f.StorageLocator)),
				zap.Boolp("store_verified", storeVerified))
		}
		results = append(results, res)
	}
	switch {
	case parseCrash != nil:
		results = append(results, ruleFailure(RuleStructure, f.ID, parseCrash))
	case parsed != nil:
		results = append(results, checkStructureSafely(f, parsed))
	}

	verified := true
	for _, r := range results {
		if !r.Valid {
			verified = false
			break
		}
	}

	processedAt := p.now()
	f.IsProcessed = true
	f.IsVerified = verified
	f.ProcessedAt = &processedAt
	f.Metadata = augmentMetadata(f.Metadata, results, parsed)

	archived := f.StorageLocator != nil && verified
	if verified && f.StorageLocator == nil && p.store != nil && content != nil {
		if locator, err := p.archive(ctx, f, content, log); err != nil {
			log.Warn("Evidence validated but not archived", zap.Error(err))
		} else {
			f.StorageLocator = &locator
			archived = true
		}
	}

	if err := p.repo.UpdateEvidenceFile(ctx, f); err != nil {
		log.Error("Failed to persist evidence processing state", zap.Error(err))
	}

	return FileResult{
		EvidenceID:     f.ID,
		EvidenceType:   f.EvidenceType,
		Verified:       verified,
		Archived:       archived,
		StructuredData: parsed != nil,
		Results:        results,
	}
}

var errParserPanic = errors.New("parser panicked")

// parse converts a parser panic into an error so one hostile file cannot take down the run
func (p *Pipeline) parse(ctx context.Context, f *File, content []byte) (res *parser.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("%w: %v", errParserPanic, r)
		}
	}()
	return p.parser.Parse(ctx, content, f.FileName, f.MimeType, p.config.ParseOptions)
}

func checkStructureSafely(f *File, parsed *parser.Result) (result ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ruleFailure(RuleStructure, f.ID, fmt.Errorf("rule panicked: %v", r))
		}
	}()
	return CheckStructure(f, parsed)
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (p *Pipeline) resolveContent(ctx context.Context, f *File, provided []byte, log *zap.Logger) ([]byte, *bool) {
	if provided != nil {
		return provided, nil
	}
	if f.StorageLocator == nil || p.store == nil {
		return nil, nil
	}

	obj, err := p.store.Get(ctx, *f.StorageLocator, f.ContentHash)
	if err != nil {
		log.Warn("Failed to retrieve evidence from store", zap.String("locator", *f.StorageLocator), zap.Error(err))
		return nil, nil
	}
	verified := obj.Verified
	return obj.Data, &verified
}

func (p *Pipeline) archive(ctx context.Context, f *File, content []byte, log *zap.Logger) (string, error) {
	meta := storage.ObjectMetadata{
		ContentType: f.MimeType,
		FileName:    f.FileName,
		Attributes: map[string]string{
			"evidence_id":   f.ID.String(),
			"evidence_type": string(f.EvidenceType),
		},
	}

	var lastErr error
	for attempt := 1; attempt <= p.config.ArchiveAttempts; attempt++ {
		locator, err := p.store.Put(ctx, content, meta)
		if err == nil {
			return locator, nil
		}
		lastErr = err
		log.Warn("Evidence archival attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < p.config.ArchiveAttempts {
			time.Sleep(p.config.ArchiveRetryDelay)
		}
	}
	return "", fmt.Errorf("archival failed after %d attempts: %w", p.config.ArchiveAttempts, lastErr)
}

// augmentMetadata returns a copy of meta with parse summaries and rule-derived metadata
func augmentMetadata(meta datatypes.JSONMap, results []ValidationResult, parsed *parser.Result) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(meta)+2)
	for k, v := range meta {
		out[k] = v
	}

	derived := make(map[string]interface{})
	for _, r := range results {
		if len(r.Metadata) > 0 {
			derived[r.Rule] = r.Metadata
		}
	}
	if len(derived) > 0 {
		out["validation"] = derived
	}

	if parsed != nil {
		out["parsed_data"] = map[string]interface{}{
			"format":    string(parsed.Format),
			"row_count": parsed.RowCount,
			"columns":   parsed.Columns,
		}
	}
	return out
}
