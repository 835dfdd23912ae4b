package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ApplicationStatus is the lifecycle status of an application.
type ApplicationStatus string

const (
	ApplicationStatusDraft                ApplicationStatus = "DRAFT"
	ApplicationStatusSubmitted            ApplicationStatus = "SUBMITTED"
	ApplicationStatusUnderReview          ApplicationStatus = "UNDER_REVIEW"
	ApplicationStatusApproved             ApplicationStatus = "APPROVED"
	ApplicationStatusRejected             ApplicationStatus = "REJECTED"
	ApplicationStatusResubmissionRequired ApplicationStatus = "RESUBMISSION_REQUIRED"
	ApplicationStatusWithdrawn            ApplicationStatus = "WITHDRAWN"
)

// ApplicationStage is the UI cursor tracked alongside the status.
type ApplicationStage string

const (
	StagePersonalDetails ApplicationStage = "PERSONAL_DETAILS"
	StageContactDetails  ApplicationStage = "CONTACT_DETAILS"
	StageCourseDetails   ApplicationStage = "COURSE_DETAILS"
	StageGuardianDetails ApplicationStage = "GUARDIAN_DETAILS"
	StageDocuments       ApplicationStage = "DOCUMENTS"
	StageDeclaration     ApplicationStage = "DECLARATION"
	StageUnderReview     ApplicationStage = "UNDER_REVIEW"
	StageApproved        ApplicationStage = "APPROVED"
	StageRejected        ApplicationStage = "REJECTED"
	StageWithdrawn       ApplicationStage = "WITHDRAWN"
)

// DraftStages are the stages a student may move the cursor to while editing.
var DraftStages = []ApplicationStage{
	StagePersonalDetails,
	StageContactDetails,
	StageCourseDetails,
	StageGuardianDetails,
	StageDocuments,
	StageDeclaration,
}

// IsDraftStage reports whether stage is editable by the applicant.
func IsDraftStage(stage ApplicationStage) bool {
	for _, s := range DraftStages {
		if s == stage {
			return true
		}
	}
	return false
}

// HistoryAction labels workflow history entries.
type HistoryAction string

const (
	HistoryActionCreate              HistoryAction = "CREATE"
	HistoryActionSaveDraft           HistoryAction = "SAVE_DRAFT"
	HistoryActionSubmit              HistoryAction = "SUBMIT"
	HistoryActionApprove             HistoryAction = "APPROVE"
	HistoryActionReject              HistoryAction = "REJECT"
	HistoryActionRequestModification HistoryAction = "REQUEST_MODIFICATION"
	HistoryActionWithdraw            HistoryAction = "WITHDRAW"
)

// OverallReviewStatus summarises document review for an application.
type OverallReviewStatus string

const (
	ReviewNotVerified       OverallReviewStatus = "NOT_VERIFIED"
	ReviewPartiallyApproved OverallReviewStatus = "PARTIALLY_APPROVED"
	ReviewAllApproved       OverallReviewStatus = "ALL_APPROVED"
	ReviewAllRejected       OverallReviewStatus = "ALL_REJECTED"
)

// SectionData is a free-form JSON object holding one detail section.
type SectionData map[string]interface{}

// Value implements driver.Valuer for jsonb columns.
func (s SectionData) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for jsonb columns.
func (s *SectionData) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// ApplicationSections groups the four detail sections.
type ApplicationSections struct {
	Personal SectionData `json:"personal" bson:"personal"`
	Contact  SectionData `json:"contact" bson:"contact"`
	Course   SectionData `json:"course" bson:"course"`
	Guardian SectionData `json:"guardian" bson:"guardian"`
}

// MissingSections returns the names of empty sections in canonical order.
func (s ApplicationSections) MissingSections() []string {
	missing := make([]string, 0, 4)
	if len(s.Personal) == 0 {
		missing = append(missing, "personal")
	}
	if len(s.Contact) == 0 {
		missing = append(missing, "contact")
	}
	if len(s.Course) == 0 {
		missing = append(missing, "course")
	}
	if len(s.Guardian) == 0 {
		missing = append(missing, "guardian")
	}
	return missing
}

// DocumentCounts tallies active documents by review status.
type DocumentCounts struct {
	Total    int `json:"total" bson:"total"`
	Approved int `json:"approved" bson:"approved"`
	Rejected int `json:"rejected" bson:"rejected"`
	Pending  int `json:"pending" bson:"pending"`
}

// ReviewStatus is the cached document review aggregate stored on the application.
type ReviewStatus struct {
	DocumentCounts              DocumentCounts      `json:"documentCounts" bson:"documentCounts"`
	OverallDocumentReviewStatus OverallReviewStatus `json:"overallDocumentReviewStatus" bson:"overallDocumentReviewStatus"`
	DocumentsVerified           bool                `json:"documentsVerified" bson:"documentsVerified"`
	ReviewedBy                  *string             `json:"reviewedBy,omitempty" bson:"reviewedBy,omitempty"`
	ReviewedAt                  *time.Time          `json:"reviewedAt,omitempty" bson:"reviewedAt,omitempty"`
}

// Value implements driver.Valuer for jsonb columns.
func (r ReviewStatus) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner for jsonb columns.
func (r *ReviewStatus) Scan(src interface{}) error {
	return scanJSON(src, r)
}

// WorkflowHistoryEntry is one append-only audit record.
type WorkflowHistoryEntry struct {
	ID        string            `json:"id" bson:"id"`
	Stage     ApplicationStage  `json:"stage" bson:"stage"`
	Status    ApplicationStatus `json:"status" bson:"status"`
	ActorID   string            `json:"actorId" bson:"actorId"`
	ActorRole UserRole          `json:"actorRole" bson:"actorRole"`
	Action    HistoryAction     `json:"action" bson:"action"`
	Remarks   *string           `json:"remarks,omitempty" bson:"remarks,omitempty"`
	Timestamp time.Time         `json:"timestamp" bson:"timestamp"`
}

// ArtifactKind selects which generated artifact a locator refers to.
type ArtifactKind string

const (
	ArtifactCombinedPDF ArtifactKind = "COMBINED_PDF"
	ArtifactZip         ArtifactKind = "ZIP"
	ArtifactSummary     ArtifactKind = "SUMMARY"
)

// Application is the aggregate root of the admission workflow.
type Application struct {
	ID              string                 `json:"id" bson:"_id"`
	StudentID       string                 `json:"studentId" bson:"studentId"`
	AgentID         *string                `json:"agentId,omitempty" bson:"agentId,omitempty"`
	SubmittedBy     *string                `json:"submittedBy,omitempty" bson:"submittedBy,omitempty"`
	Status          ApplicationStatus      `json:"status" bson:"status"`
	CurrentStage    ApplicationStage       `json:"currentStage" bson:"currentStage"`
	Sections        ApplicationSections    `json:"sections" bson:"sections"`
	Documents       []UploadedDocument     `json:"documents" bson:"documents"`
	ReviewStatus    ReviewStatus           `json:"reviewStatus" bson:"reviewStatus"`
	WorkflowHistory []WorkflowHistoryEntry `json:"workflowHistory" bson:"workflowHistory"`

	TermsAccepted   bool       `json:"termsAccepted" bson:"termsAccepted"`
	TermsAcceptedAt *time.Time `json:"termsAcceptedAt,omitempty" bson:"termsAcceptedAt,omitempty"`
	SubmittedAt     *time.Time `json:"submittedAt,omitempty" bson:"submittedAt,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty" bson:"approvedAt,omitempty"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty" bson:"rejectedAt,omitempty"`
	WithdrawnAt     *time.Time `json:"withdrawnAt,omitempty" bson:"withdrawnAt,omitempty"`
	FinalRemarks    *string    `json:"finalRemarks,omitempty" bson:"finalRemarks,omitempty"`
	RejectionReason *string    `json:"rejectionReason,omitempty" bson:"rejectionReason,omitempty"`

	CombinedArtifactLocator *string `json:"combinedArtifactLocator,omitempty" bson:"combinedArtifactLocator,omitempty"`
	ZipArtifactLocator      *string `json:"zipArtifactLocator,omitempty" bson:"zipArtifactLocator,omitempty"`
	SummaryArtifactLocator  *string `json:"summaryArtifactLocator,omitempty" bson:"summaryArtifactLocator,omitempty"`

	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// ActiveDocuments returns the non-superseded documents.
func (a *Application) ActiveDocuments() []UploadedDocument {
	return ActiveDocuments(a.Documents)
}

// ArtifactLocator returns the stored locator for kind.
func (a *Application) ArtifactLocator(kind ArtifactKind) *string {
	switch kind {
	case ArtifactCombinedPDF:
		return a.CombinedArtifactLocator
	case ArtifactZip:
		return a.ZipArtifactLocator
	case ArtifactSummary:
		return a.SummaryArtifactLocator
	default:
		return nil
	}
}

// Stakeholders returns the distinct user ids that follow the application:
// the student, the agent when different, and the original submitter when different from both.
func (a *Application) Stakeholders() []Stakeholder {
	out := []Stakeholder{{UserID: a.StudentID, Relation: RelationStudent}}
	seen := map[string]struct{}{a.StudentID: {}}
	if a.AgentID != nil && *a.AgentID != "" {
		if _, ok := seen[*a.AgentID]; !ok {
			out = append(out, Stakeholder{UserID: *a.AgentID, Relation: RelationAgent})
			seen[*a.AgentID] = struct{}{}
		}
	}
	if a.SubmittedBy != nil && *a.SubmittedBy != "" {
		if _, ok := seen[*a.SubmittedBy]; !ok {
			out = append(out, Stakeholder{UserID: *a.SubmittedBy, Relation: RelationSubmitter})
		}
	}
	return out
}

// Clone returns a deep copy suitable for read-modify-write.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	c.Sections = ApplicationSections{
		Personal: cloneSection(a.Sections.Personal),
		Contact:  cloneSection(a.Sections.Contact),
		Course:   cloneSection(a.Sections.Course),
		Guardian: cloneSection(a.Sections.Guardian),
	}
	if a.Documents != nil {
		c.Documents = make([]UploadedDocument, len(a.Documents))
		copy(c.Documents, a.Documents)
	}
	if a.WorkflowHistory != nil {
		c.WorkflowHistory = make([]WorkflowHistoryEntry, len(a.WorkflowHistory))
		copy(c.WorkflowHistory, a.WorkflowHistory)
	}
	return &c
}

// StakeholderRelation describes how a recipient relates to an application.
type StakeholderRelation string

const (
	RelationStudent   StakeholderRelation = "STUDENT"
	RelationAgent     StakeholderRelation = "AGENT"
	RelationSubmitter StakeholderRelation = "SUBMITTER"
)

// Stakeholder is a notification recipient derived from an application.
type Stakeholder struct {
	UserID   string
	Relation StakeholderRelation
}

func cloneSection(s SectionData) SectionData {
	if s == nil {
		return nil
	}
	out := make(SectionData, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported json source %T", src)
	}
}
