package verification

import (
	"context"
	"fmt"
)

// schema is applied idempotently at startup. The credits table belongs to the
// marketplace and is only read.
const schema = `
CREATE TABLE IF NOT EXISTS verification_methods (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	methodology_type TEXT NOT NULL,
	version TEXT NOT NULL,
	description TEXT,
	required_evidence_types TEXT[] NOT NULL DEFAULT '{}',
	minimum_confidence DOUBLE PRECISION NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (name, version)
);

CREATE TABLE IF NOT EXISTS verification_results (
	id UUID PRIMARY KEY,
	credit_id UUID NOT NULL,
	methodology_id UUID NOT NULL REFERENCES verification_methods (id),
	status TEXT NOT NULL,
	verified BOOLEAN NOT NULL DEFAULT FALSE,
	confidence_score DOUBLE PRECISION,
	quality_score DOUBLE PRECISION,
	quality_grade TEXT,
	calculation_payload JSONB,
	evidence_set_hash TEXT,
	notes TEXT[] NOT NULL DEFAULT '{}',
	validator TEXT NOT NULL,
	submission_notes TEXT,
	reviewer TEXT,
	review_notes TEXT,
	reviewed_at TIMESTAMPTZ,
	verified_at TIMESTAMPTZ,
	expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS verification_results_active_uniq
	ON verification_results (credit_id, methodology_id)
	WHERE status IN ('pending', 'in_review', 'verified');

CREATE INDEX IF NOT EXISTS verification_results_credit_idx ON verification_results (credit_id);
CREATE INDEX IF NOT EXISTS verification_results_expiry_idx ON verification_results (expires_at) WHERE status = 'verified';

CREATE TABLE IF NOT EXISTS evidence_files (
	id UUID PRIMARY KEY,
	verification_result_id UUID NOT NULL REFERENCES verification_results (id) ON DELETE CASCADE,
	evidence_type TEXT NOT NULL,
	file_name TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	file_size BIGINT NOT NULL DEFAULT 0,
	mime_type TEXT NOT NULL DEFAULT '',
	capture_date TIMESTAMPTZ,
	capture_device TEXT,
	capture_latitude DOUBLE PRECISION,
	capture_longitude DOUBLE PRECISION,
	metadata JSONB,
	is_processed BOOLEAN NOT NULL DEFAULT FALSE,
	is_verified BOOLEAN NOT NULL DEFAULT FALSE,
	storage_locator TEXT,
	uploaded_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS evidence_files_result_idx ON evidence_files (verification_result_id);
`

// Init creates the verification tables and indexes if they do not exist
func (r *PostgresRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply verification schema: %w", err)
	}
	return nil
}
