package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DocumentCategory groups catalog entries for display.
type DocumentCategory string

const (
	DocumentCategoryIdentity  DocumentCategory = "IDENTITY"
	DocumentCategoryAcademic  DocumentCategory = "ACADEMIC"
	DocumentCategoryFinancial DocumentCategory = "FINANCIAL"
	DocumentCategoryOther     DocumentCategory = "OTHER"
)

// AspectRatio constrains image proportions (width:height) within a tolerance.
type AspectRatio struct {
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Tolerance float64 `json:"tolerance"`
}

// DocumentRequirement is one immutable catalog entry.
type DocumentRequirement struct {
	Key            string           `json:"key"`
	Label          string           `json:"label"`
	Description    string           `json:"description,omitempty"`
	Category       DocumentCategory `json:"category"`
	Required       bool             `json:"required"`
	AllowedFormats []string         `json:"allowedFormats"`
	MaxSizeBytes   int64            `json:"maxSizeBytes"`
	MaxAgeYears    *float64         `json:"maxAgeYears,omitempty"`
	AspectRatio    *AspectRatio     `json:"aspectRatio,omitempty"`
}

// DocumentStatus captures review state of an uploaded document.
type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "PENDING"
	DocumentStatusApproved DocumentStatus = "APPROVED"
	DocumentStatusRejected DocumentStatus = "REJECTED"
)

// UploadedDocument is a document attached to an application.
type UploadedDocument struct {
	ID             string         `json:"id" bson:"id"`
	ApplicationID  string         `json:"applicationId" bson:"applicationId"`
	DocumentType   string         `json:"documentType" bson:"documentType"`
	FileName       string         `json:"fileName" bson:"fileName"`
	StorageLocator string         `json:"storageLocator" bson:"storageLocator"`
	MimeType       string         `json:"mimeType" bson:"mimeType"`
	SizeBytes      int64          `json:"sizeBytes" bson:"sizeBytes"`
	UploadedAt     time.Time      `json:"uploadedAt" bson:"uploadedAt"`
	DocumentDate   *time.Time     `json:"documentDate,omitempty" bson:"documentDate,omitempty"`
	WidthPx        *int           `json:"widthPx,omitempty" bson:"widthPx,omitempty"`
	HeightPx       *int           `json:"heightPx,omitempty" bson:"heightPx,omitempty"`
	Status         DocumentStatus `json:"status" bson:"status"`
	Remarks        *string        `json:"remarks,omitempty" bson:"remarks,omitempty"`
	ReviewedBy     *string        `json:"reviewedBy,omitempty" bson:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time     `json:"reviewedAt,omitempty" bson:"reviewedAt,omitempty"`
	Superseded     bool           `json:"superseded" bson:"superseded"`
	SupersededAt   *time.Time     `json:"supersededAt,omitempty" bson:"supersededAt,omitempty"`
}

// Active reports whether the document takes part in validation and review.
func (d UploadedDocument) Active() bool {
	return !d.Superseded
}

// ActiveDocuments filters out superseded uploads, keeping order.
func ActiveDocuments(docs []UploadedDocument) []UploadedDocument {
	active := make([]UploadedDocument, 0, len(docs))
	for _, doc := range docs {
		if doc.Active() {
			active = append(active, doc)
		}
	}
	return active
}

// RawUpload is a document supplied in the type-keyed map form.
type RawUpload struct {
	FileName       string     `json:"fileName"`
	StorageLocator string     `json:"storageLocator"`
	URL            string     `json:"url,omitempty"`
	MimeType       string     `json:"mimeType"`
	SizeBytes      int64      `json:"sizeBytes"`
	UploadedAt     *time.Time `json:"uploadedAt,omitempty"`
	DocumentDate   *time.Time `json:"documentDate,omitempty"`
	WidthPx        *int       `json:"widthPx,omitempty"`
	HeightPx       *int       `json:"heightPx,omitempty"`
}

// Locator returns the storage locator, accepting the legacy url field.
func (r RawUpload) Locator() string {
	if r.StorageLocator != "" {
		return r.StorageLocator
	}
	return r.URL
}

// DocumentsInput accepts documents either as an ordered list or keyed by type.
// Exactly one of List or ByType is populated.
type DocumentsInput struct {
	List   []UploadedDocument
	ByType map[string]RawUpload
}

// IsZero reports whether no documents were supplied.
func (in DocumentsInput) IsZero() bool {
	return len(in.List) == 0 && len(in.ByType) == 0
}

// UnmarshalJSON decodes an array into List and an object into ByType.
func (in *DocumentsInput) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*in = DocumentsInput{}
		return nil
	}
	switch trimmed[0] {
	case '[':
		var list []UploadedDocument
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*in = DocumentsInput{List: list}
	case '{':
		var byType map[string]RawUpload
		if err := json.Unmarshal(trimmed, &byType); err != nil {
			return err
		}
		*in = DocumentsInput{ByType: byType}
	default:
		return fmt.Errorf("documents must be an array or an object")
	}
	return nil
}

// MarshalJSON renders whichever form is populated.
func (in DocumentsInput) MarshalJSON() ([]byte, error) {
	if in.ByType != nil {
		return json.Marshal(in.ByType)
	}
	if in.List == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(in.List)
}

// DocumentDecision is a staff verdict on one document, matched by id or type.
type DocumentDecision struct {
	DocumentID   string         `json:"documentId,omitempty"`
	DocumentType string         `json:"documentType,omitempty"`
	Status       DocumentStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Remarks      string         `json:"remarks,omitempty"`
}
