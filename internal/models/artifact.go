package models

import "time"

// SkippedDocument records a document left out of an artifact and why.
type SkippedDocument struct {
	DocumentID   string `json:"documentId"`
	DocumentType string `json:"documentType"`
	Reason       string `json:"reason"`
}

// Artifact describes a generated downloadable file.
type Artifact struct {
	Kind          ArtifactKind      `json:"kind"`
	ApplicationID string            `json:"applicationId"`
	FileName      string            `json:"fileName"`
	ContentType   string            `json:"contentType"`
	ByteSize      int64             `json:"byteSize"`
	Locator       string            `json:"locator"`
	DownloadURL   string            `json:"downloadUrl,omitempty"`
	ExpiresAt     *time.Time        `json:"expiresAt,omitempty"`
	DocumentCount int               `json:"documentCount"`
	Skipped       []SkippedDocument `json:"skipped"`
	GeneratedAt   time.Time         `json:"generatedAt"`
}

// ArtifactDownload is the resolved payload behind a download token.
type ArtifactDownload struct {
	FileName    string
	ContentType string
	Data        []byte
}
