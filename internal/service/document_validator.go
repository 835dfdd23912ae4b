package service

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/noah-isme/admission-portal-api/internal/catalog"
	"github.com/noah-isme/admission-portal-api/internal/models"
)

const (
	bytesPerMB   = 1024 * 1024
	daysPerYear  = 365.0
	hoursPerYear = daysPerYear * 24
)

// ValidationResult carries blocking errors and advisory warnings. Both lists are never nil.
type ValidationResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Valid reports whether the result has no blocking errors.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func newValidationResult() ValidationResult {
	return ValidationResult{Errors: []string{}, Warnings: []string{}}
}

// NormalizeDocuments turns either input form into a document list. Map entries are
// visited in key order; entries without a storage locator are dropped with a warning.
func NormalizeDocuments(in models.DocumentsInput, applicationID string, now time.Time) ([]models.UploadedDocument, []string) {
	warnings := []string{}
	if in.ByType == nil {
		docs := make([]models.UploadedDocument, 0, len(in.List))
		for _, doc := range in.List {
			if applicationID != "" {
				doc.ApplicationID = applicationID
			}
			if doc.UploadedAt.IsZero() {
				doc.UploadedAt = now
			}
			if doc.Status == "" {
				doc.Status = models.DocumentStatusPending
			}
			docs = append(docs, doc)
		}
		return docs, warnings
	}

	keys := make([]string, 0, len(in.ByType))
	for key := range in.ByType {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	docs := make([]models.UploadedDocument, 0, len(keys))
	for _, docType := range keys {
		raw := in.ByType[docType]
		locator := strings.TrimSpace(raw.Locator())
		if locator == "" {
			warnings = append(warnings, fmt.Sprintf("ignored %s: no storage locator", docType))
			continue
		}
		uploadedAt := now
		if raw.UploadedAt != nil && !raw.UploadedAt.IsZero() {
			uploadedAt = *raw.UploadedAt
		}
		docs = append(docs, models.UploadedDocument{
			ID:             uuid.NewString(),
			ApplicationID:  applicationID,
			DocumentType:   docType,
			FileName:       raw.FileName,
			StorageLocator: locator,
			MimeType:       raw.MimeType,
			SizeBytes:      raw.SizeBytes,
			UploadedAt:     uploadedAt,
			DocumentDate:   raw.DocumentDate,
			WidthPx:        raw.WidthPx,
			HeightPx:       raw.HeightPx,
			Status:         models.DocumentStatusPending,
		})
	}
	return docs, warnings
}

// ValidateDocuments checks the supplied documents against the catalog.
// It has no side effects.
func ValidateDocuments(cat *catalog.Catalog, in models.DocumentsInput, now time.Time) ValidationResult {
	docs, warnings := NormalizeDocuments(in, "", now)
	result := ValidateDocumentList(cat, docs, now)
	result.Warnings = append(warnings, result.Warnings...)
	return result
}

// ValidateDocumentList validates already normalized documents. Superseded uploads are ignored.
func ValidateDocumentList(cat *catalog.Catalog, docs []models.UploadedDocument, now time.Time) ValidationResult {
	result := newValidationResult()
	active := models.ActiveDocuments(docs)

	present := make(map[string]struct{}, len(active))
	for _, doc := range active {
		present[doc.DocumentType] = struct{}{}
	}
	for _, req := range cat.Required() {
		if _, ok := present[req.Key]; !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("missing required document: %s", req.Label))
		}
	}

	for _, doc := range active {
		req, ok := cat.Lookup(doc.DocumentType)
		if !ok {
			continue
		}
		if ext := documentExtension(doc); !formatAllowed(req.AllowedFormats, ext) {
			shown := ext
			if shown == "" {
				shown = "(none)"
			}
			result.Errors = append(result.Errors, fmt.Sprintf("invalid file format for %s: %s (allowed: %s)",
				req.Label, shown, strings.Join(req.AllowedFormats, ", ")))
		}
		if req.MaxSizeBytes > 0 && doc.SizeBytes > req.MaxSizeBytes {
			result.Errors = append(result.Errors, fmt.Sprintf("file too large for %s: %.1fMB (max %gMB)",
				req.Label, float64(doc.SizeBytes)/bytesPerMB, float64(req.MaxSizeBytes)/bytesPerMB))
		}
		if req.MaxAgeYears != nil {
			if age := documentAgeYears(doc, now); age > *req.MaxAgeYears {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s may be outdated: %.1f years old (max %g)",
					req.Label, age, *req.MaxAgeYears))
			}
		}
		if warning, ok := aspectWarning(req, doc); ok {
			result.Warnings = append(result.Warnings, warning)
		}
	}
	return result
}

func documentExtension(doc models.UploadedDocument) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(doc.FileName)), ".")
	if ext != "" {
		return ext
	}
	if doc.MimeType == "" {
		return ""
	}
	if m := mimetype.Lookup(strings.ToLower(strings.TrimSpace(doc.MimeType))); m != nil {
		return strings.TrimPrefix(m.Extension(), ".")
	}
	return ""
}

func formatAllowed(allowed []string, ext string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, f := range allowed {
		if f == ext {
			return true
		}
	}
	return false
}

func documentAgeYears(doc models.UploadedDocument, now time.Time) float64 {
	date := now
	switch {
	case doc.DocumentDate != nil && !doc.DocumentDate.IsZero():
		date = *doc.DocumentDate
	case !doc.UploadedAt.IsZero():
		date = doc.UploadedAt
	}
	age := now.Sub(date).Hours() / hoursPerYear
	if age < 0 {
		return 0
	}
	return age
}

func aspectWarning(req models.DocumentRequirement, doc models.UploadedDocument) (string, bool) {
	ar := req.AspectRatio
	if ar == nil || ar.Width <= 0 || ar.Height <= 0 {
		return "", false
	}
	if doc.WidthPx == nil || doc.HeightPx == nil || *doc.WidthPx <= 0 || *doc.HeightPx <= 0 {
		return "", false
	}
	expected := ar.Width / ar.Height
	actual := float64(*doc.WidthPx) / float64(*doc.HeightPx)
	if math.Abs(actual-expected)/expected <= ar.Tolerance {
		return "", false
	}
	return fmt.Sprintf("%s aspect ratio %dx%d differs from expected %g:%g",
		req.Label, *doc.WidthPx, *doc.HeightPx, ar.Width, ar.Height), true
}
