package dto

import (
	"github.com/noah-isme/admission-portal-api/internal/models"
)

// SaveDraftRequest creates or updates a draft application. Section fields are merged key-wise.
type SaveDraftRequest struct {
	StudentID    string                   `json:"studentId,omitempty"`
	AgentID      *string                  `json:"agentId,omitempty"`
	Personal     models.SectionData       `json:"personalDetails,omitempty"`
	Contact      models.SectionData       `json:"contactDetails,omitempty"`
	Course       models.SectionData       `json:"courseDetails,omitempty"`
	Guardian     models.SectionData       `json:"guardianDetails,omitempty"`
	Documents    models.DocumentsInput    `json:"documents"`
	CurrentStage *models.ApplicationStage `json:"currentStage,omitempty" validate:"omitempty,oneof=PERSONAL_DETAILS CONTACT_DETAILS COURSE_DETAILS GUARDIAN_DETAILS DOCUMENTS DECLARATION"`
}

// SubmitApplicationRequest submits a draft for review.
type SubmitApplicationRequest struct {
	TermsAccepted bool `json:"termsAccepted"`
}

// DocumentDecisionsRequest carries staff verdicts for one or more documents.
type DocumentDecisionsRequest struct {
	Decisions []models.DocumentDecision `json:"decisions" validate:"dive"`
}

// ApproveApplicationRequest finalises an application.
type ApproveApplicationRequest struct {
	Remarks string `json:"remarks" validate:"max=2000"`
}

// RejectApplicationRequest rejects an application with a mandatory reason.
type RejectApplicationRequest struct {
	Reason  string `json:"reason" validate:"required,max=500"`
	Remarks string `json:"remarks" validate:"max=2000"`
}

// ResubmissionRequest sends an application back to the applicant.
type ResubmissionRequest struct {
	Remarks string `json:"remarks" validate:"required,max=2000"`
}

// WithdrawApplicationRequest withdraws an application before review starts.
type WithdrawApplicationRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ArtifactRequest selects documents by id or type; empty means every approved document.
type ArtifactRequest struct {
	Documents []string `json:"documents"`
}

// SaveDraftResponse returns the saved application together with normalisation warnings.
type SaveDraftResponse struct {
	Application *models.Application `json:"application"`
	Warnings    []string            `json:"warnings"`
}

// DocumentDecisionsResponse reports the updated application and unmatched references.
type DocumentDecisionsResponse struct {
	Application *models.Application `json:"application"`
	Unmatched   []string            `json:"unmatched"`
}
