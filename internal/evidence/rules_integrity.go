package evidence

import (
	"context"
	"fmt"
	"strings"

	"carbon-scribe/verification-engine/pkg/storage"
)

const (
	RuleIntegrity            = "integrity"
	RuleMetadataCompleteness = "metadata_completeness"
)

// IntegrityRule recomputes hash and size of the retrieved bytes.
// It is the only rule with zero tolerance: any mismatch scores 0.
func IntegrityRule() Rule {
	return Rule{Name: RuleIntegrity, Apply: applyIntegrity}
}

func applyIntegrity(ctx context.Context, in RuleInput) (ValidationResult, error) {
	c := newCheck()
	f := in.File

	if in.Content == nil {
		c.invalid = true
		c.warn(0.5, "content", "evidence content not available for integrity verification",
			"provide the file bytes or a storage locator")
		return c.result(), nil
	}

	computedHash := storage.HashBytes(in.Content)
	computedSize := int64(len(in.Content))
	c.set("computed_hash", computedHash)
	c.set("computed_size", computedSize)

	if strings.TrimSpace(f.ContentHash) == "" {
		c.fail(1.0, "content_hash", "declared content hash is missing", "declare the SHA-256 of the file")
	} else if !storage.HashesEqual(f.ContentHash, computedHash) {
		c.fail(1.0, "content_hash",
			fmt.Sprintf("content hash mismatch: declared %s, computed %s", storage.NormalizeHash(f.ContentHash), computedHash),
			"re-upload the original file")
	}

	if f.FileSize != computedSize {
		c.fail(1.0, "file_size",
			fmt.Sprintf("file size mismatch: declared %d bytes, retrieved %d bytes", f.FileSize, computedSize),
			"re-upload the original file")
	}

	if in.StoreVerified != nil && *in.StoreVerified != storage.HashesEqual(f.ContentHash, computedHash) {
		c.set("store_verification_disagrees", true)
	}

	if len(c.issues) > 0 {
		c.score = 0
	}
	return c.result(), nil
}

// MetadataCompletenessRule degrades the score for missing capture metadata; it never hard-fails.
// Size enforcement belongs to IntegrityRule.
func MetadataCompletenessRule() Rule {
	return Rule{Name: RuleMetadataCompleteness, Apply: applyMetadataCompleteness}
}

func applyMetadataCompleteness(ctx context.Context, in RuleInput) (ValidationResult, error) {
	c := newCheck()
	f := in.File

	if f.FileSize <= 0 {
		c.warn(0.2, "file_size", "declared file size is not positive", "declare the file size in bytes")
	}

	switch {
	case f.CaptureDate == nil:
		c.warn(0.1, "capture_date", "capture date is missing", "record when the evidence was captured")
	case !in.Now.IsZero() && f.CaptureDate.After(in.Now):
		c.warn(0.2, "capture_date", "capture date is in the future", "check the capture device clock")
	}

	if f.CaptureDevice == nil || strings.TrimSpace(*f.CaptureDevice) == "" {
		c.info(0.05, "capture_device", "capture device is not recorded", "")
	}

	if len(f.Metadata) == 0 {
		c.warn(0.1, "metadata", "structured metadata is empty", "attach measurement metadata")
	}

	return c.result(), nil
}
