package evidence

import (
	"context"
	"fmt"
	"strings"
)

const RuleDocument = "document"

const maxDocumentBytes = 100 << 20

var acceptedMimeTypes = map[string]bool{
	"application/pdf":  true,
	"application/json": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
	"application/vnd.ms-excel": true,
	"text/csv":                 true,
	"text/plain":               true,
	"image/jpeg":               true,
	"image/png":                true,
	"image/tiff":               true,
}

// DocumentRule checks document-like evidence: format, size and authorship
func DocumentRule() Rule {
	return Rule{Name: RuleDocument, Apply: applyDocument}
}

func applyDocument(ctx context.Context, in RuleInput) (ValidationResult, error) {
	c := newCheck()
	f := in.File

	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(f.MimeType, ";", 2)[0]))
	if !acceptedMimeTypes[mime] {
		c.warn(0.2, "mime_type", fmt.Sprintf("unsupported document format %q", f.MimeType),
			"upload PDF, DOCX, XLSX, CSV, JSON or an image")
	}

	if f.FileSize > maxDocumentBytes {
		c.warn(0.1, "file_size", fmt.Sprintf("document is larger than %d MiB", maxDocumentBytes>>20), "")
	}

	switch f.EvidenceType {
	case TypeFieldReport, TypeSiteVerification:
		if _, ok := f.MetadataValue("author", "inspector"); !ok {
			c.warn(0.15, "author", "report does not name its author or inspector", "")
		}
	}
	if f.EvidenceType == TypeSiteVerification {
		if _, ok := f.MetadataValue("inspection_date"); !ok {
			c.warn(0.1, "inspection_date", "site verification has no inspection date", "")
		}
	}

	return c.result(), nil
}
