package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/admission-portal-api/internal/models"
)

type queryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// ApplicationRepository persists applications with their documents and history in Postgres.
type ApplicationRepository struct {
	db      *sqlx.DB
	metrics queryObserver
}

// NewApplicationRepository constructs the repository. metrics may be nil.
func NewApplicationRepository(db *sqlx.DB, metrics queryObserver) *ApplicationRepository {
	return &ApplicationRepository{db: db, metrics: metrics}
}

type applicationRow struct {
	ID                      string                   `db:"id"`
	StudentID               string                   `db:"student_id"`
	AgentID                 *string                  `db:"agent_id"`
	SubmittedBy             *string                  `db:"submitted_by"`
	Status                  models.ApplicationStatus `db:"status"`
	CurrentStage            models.ApplicationStage  `db:"current_stage"`
	PersonalDetails         models.SectionData       `db:"personal_details"`
	ContactDetails          models.SectionData       `db:"contact_details"`
	CourseDetails           models.SectionData       `db:"course_details"`
	GuardianDetails         models.SectionData       `db:"guardian_details"`
	ReviewStatus            models.ReviewStatus      `db:"review_status"`
	TermsAccepted           bool                     `db:"terms_accepted"`
	TermsAcceptedAt         *time.Time               `db:"terms_accepted_at"`
	SubmittedAt             *time.Time               `db:"submitted_at"`
	ApprovedAt              *time.Time               `db:"approved_at"`
	RejectedAt              *time.Time               `db:"rejected_at"`
	WithdrawnAt             *time.Time               `db:"withdrawn_at"`
	FinalRemarks            *string                  `db:"final_remarks"`
	RejectionReason         *string                  `db:"rejection_reason"`
	CombinedArtifactLocator *string                  `db:"combined_artifact_locator"`
	ZipArtifactLocator      *string                  `db:"zip_artifact_locator"`
	SummaryArtifactLocator  *string                  `db:"summary_artifact_locator"`
	Version                 int64                    `db:"version"`
	ExpectedVersion         int64                    `db:"expected_version"`
	CreatedAt               time.Time                `db:"created_at"`
	UpdatedAt               time.Time                `db:"updated_at"`
}

type documentRow struct {
	ID             string                `db:"id"`
	ApplicationID  string                `db:"application_id"`
	Position       int                   `db:"position"`
	DocumentType   string                `db:"document_type"`
	FileName       string                `db:"file_name"`
	StorageLocator string                `db:"storage_locator"`
	MimeType       string                `db:"mime_type"`
	SizeBytes      int64                 `db:"size_bytes"`
	UploadedAt     time.Time             `db:"uploaded_at"`
	DocumentDate   *time.Time            `db:"document_date"`
	WidthPx        *int                  `db:"width_px"`
	HeightPx       *int                  `db:"height_px"`
	Status         models.DocumentStatus `db:"status"`
	Remarks        *string               `db:"remarks"`
	ReviewedBy     *string               `db:"reviewed_by"`
	ReviewedAt     *time.Time            `db:"reviewed_at"`
	Superseded     bool                  `db:"superseded"`
	SupersededAt   *time.Time            `db:"superseded_at"`
}

type historyRow struct {
	ID            string                   `db:"id"`
	ApplicationID string                   `db:"application_id"`
	Position      int                      `db:"position"`
	Stage         models.ApplicationStage  `db:"stage"`
	Status        models.ApplicationStatus `db:"status"`
	ActorID       string                   `db:"actor_id"`
	ActorRole     models.UserRole          `db:"actor_role"`
	Action        models.HistoryAction     `db:"action"`
	Remarks       *string                  `db:"remarks"`
	CreatedAt     time.Time                `db:"created_at"`
}

const applicationColumns = `id, student_id, agent_id, submitted_by, status, current_stage,
       personal_details, contact_details, course_details, guardian_details, review_status,
       terms_accepted, terms_accepted_at, submitted_at, approved_at, rejected_at, withdrawn_at,
       final_remarks, rejection_reason, combined_artifact_locator, zip_artifact_locator,
       summary_artifact_locator, version, created_at, updated_at`

const documentColumns = `id, application_id, position, document_type, file_name, storage_locator, mime_type,
       size_bytes, uploaded_at, document_date, width_px, height_px, status, remarks, reviewed_by,
       reviewed_at, superseded, superseded_at`

const historyColumns = `id, application_id, position, stage, status, actor_id, actor_role, action, remarks, created_at`

// Get loads the application aggregate. A missing row returns ErrNotFound.
func (r *ApplicationRepository) Get(ctx context.Context, id string) (*models.Application, error) {
	defer r.observe("application_get", time.Now())

	var row applicationRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id); err != nil {
		return nil, err
	}

	var docs []documentRow
	if err := r.db.SelectContext(ctx, &docs, `SELECT `+documentColumns+` FROM application_documents
	WHERE application_id = $1 ORDER BY position`, id); err != nil {
		return nil, fmt.Errorf("load application documents: %w", err)
	}

	var history []historyRow
	if err := r.db.SelectContext(ctx, &history, `SELECT `+historyColumns+` FROM application_workflow_history
	WHERE application_id = $1 ORDER BY position`, id); err != nil {
		return nil, fmt.Errorf("load application history: %w", err)
	}

	return toApplication(row, docs, history), nil
}

// Create inserts a new application with its documents and history in one transaction.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	defer r.observe("application_create", time.Now())

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin application tx: %w", err)
	}

	const query = `INSERT INTO applications (` + applicationColumns + `)
	VALUES (:id, :student_id, :agent_id, :submitted_by, :status, :current_stage,
	        :personal_details, :contact_details, :course_details, :guardian_details, :review_status,
	        :terms_accepted, :terms_accepted_at, :submitted_at, :approved_at, :rejected_at, :withdrawn_at,
	        :final_remarks, :rejection_reason, :combined_artifact_locator, :zip_artifact_locator,
	        :summary_artifact_locator, :version, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, fromApplication(app, 0)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert application: %w", err)
	}
	if err := writeChildren(ctx, tx, app); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit application tx: %w", err)
	}
	return nil
}

// Update writes app if the stored version still equals expectedVersion, otherwise
// it returns ErrVersionConflict and changes nothing. Artifact locators are not touched.
func (r *ApplicationRepository) Update(ctx context.Context, app *models.Application, expectedVersion int64) error {
	defer r.observe("application_update", time.Now())

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin application tx: %w", err)
	}

	const query = `UPDATE applications SET
	    agent_id = :agent_id, submitted_by = :submitted_by, status = :status, current_stage = :current_stage,
	    personal_details = :personal_details, contact_details = :contact_details,
	    course_details = :course_details, guardian_details = :guardian_details, review_status = :review_status,
	    terms_accepted = :terms_accepted, terms_accepted_at = :terms_accepted_at, submitted_at = :submitted_at,
	    approved_at = :approved_at, rejected_at = :rejected_at, withdrawn_at = :withdrawn_at,
	    final_remarks = :final_remarks, rejection_reason = :rejection_reason,
	    version = :version, updated_at = :updated_at
	WHERE id = :id AND version = :expected_version`
	result, err := tx.NamedExecContext(ctx, query, fromApplication(app, expectedVersion))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update application: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("check application update rows: %w", err)
	}
	if rows == 0 {
		_ = tx.Rollback()
		return ErrVersionConflict
	}
	if err := writeChildren(ctx, tx, app); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit application tx: %w", err)
	}
	return nil
}

// UpdateArtifactLocator records where a generated artifact was stored.
func (r *ApplicationRepository) UpdateArtifactLocator(ctx context.Context, id string, kind models.ArtifactKind, locator string) error {
	defer r.observe("application_artifact", time.Now())

	column, err := artifactColumn(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE applications SET %s = $1 WHERE id = $2", column)
	result, err := r.db.ExecContext(ctx, query, locator, id)
	if err != nil {
		return fmt.Errorf("update artifact locator: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check artifact locator rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func writeChildren(ctx context.Context, tx *sqlx.Tx, app *models.Application) error {
	const docQuery = `INSERT INTO application_documents (` + documentColumns + `)
	VALUES (:id, :application_id, :position, :document_type, :file_name, :storage_locator, :mime_type,
	        :size_bytes, :uploaded_at, :document_date, :width_px, :height_px, :status, :remarks, :reviewed_by,
	        :reviewed_at, :superseded, :superseded_at)
	ON CONFLICT (id) DO UPDATE SET position = EXCLUDED.position, status = EXCLUDED.status,
	    remarks = EXCLUDED.remarks, reviewed_by = EXCLUDED.reviewed_by, reviewed_at = EXCLUDED.reviewed_at,
	    superseded = EXCLUDED.superseded, superseded_at = EXCLUDED.superseded_at
	WHERE application_documents.application_id = EXCLUDED.application_id`
	for i, doc := range app.Documents {
		result, err := tx.NamedExecContext(ctx, docQuery, fromDocument(app.ID, i, doc))
		if err != nil {
			return fmt.Errorf("upsert application document: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check application document rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("upsert application document %s: %w", doc.ID, ErrDocumentOwnership)
		}
	}

	// history is insert-only; entries already stored are skipped
	const historyQuery = `INSERT INTO application_workflow_history (` + historyColumns + `)
	VALUES (:id, :application_id, :position, :stage, :status, :actor_id, :actor_role, :action, :remarks, :created_at)
	ON CONFLICT (id) DO NOTHING`
	for i, entry := range app.WorkflowHistory {
		row := historyRow{
			ID:            entry.ID,
			ApplicationID: app.ID,
			Position:      i,
			Stage:         entry.Stage,
			Status:        entry.Status,
			ActorID:       entry.ActorID,
			ActorRole:     entry.ActorRole,
			Action:        entry.Action,
			Remarks:       entry.Remarks,
			CreatedAt:     entry.Timestamp,
		}
		if _, err := tx.NamedExecContext(ctx, historyQuery, row); err != nil {
			return fmt.Errorf("insert workflow history: %w", err)
		}
	}
	return nil
}

func artifactColumn(kind models.ArtifactKind) (string, error) {
	switch kind {
	case models.ArtifactCombinedPDF:
		return "combined_artifact_locator", nil
	case models.ArtifactZip:
		return "zip_artifact_locator", nil
	case models.ArtifactSummary:
		return "summary_artifact_locator", nil
	default:
		return "", fmt.Errorf("unknown artifact kind %q", kind)
	}
}

func (r *ApplicationRepository) observe(label string, start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveDBQuery(label, time.Since(start))
	}
}

func fromApplication(app *models.Application, expectedVersion int64) applicationRow {
	return applicationRow{
		ID:                      app.ID,
		StudentID:               app.StudentID,
		AgentID:                 app.AgentID,
		SubmittedBy:             app.SubmittedBy,
		Status:                  app.Status,
		CurrentStage:            app.CurrentStage,
		PersonalDetails:         app.Sections.Personal,
		ContactDetails:          app.Sections.Contact,
		CourseDetails:           app.Sections.Course,
		GuardianDetails:         app.Sections.Guardian,
		ReviewStatus:            app.ReviewStatus,
		TermsAccepted:           app.TermsAccepted,
		TermsAcceptedAt:         app.TermsAcceptedAt,
		SubmittedAt:             app.SubmittedAt,
		ApprovedAt:              app.ApprovedAt,
		RejectedAt:              app.RejectedAt,
		WithdrawnAt:             app.WithdrawnAt,
		FinalRemarks:            app.FinalRemarks,
		RejectionReason:         app.RejectionReason,
		CombinedArtifactLocator: app.CombinedArtifactLocator,
		ZipArtifactLocator:      app.ZipArtifactLocator,
		SummaryArtifactLocator:  app.SummaryArtifactLocator,
		Version:                 app.Version,
		ExpectedVersion:         expectedVersion,
		CreatedAt:               app.CreatedAt,
		UpdatedAt:               app.UpdatedAt,
	}
}

func fromDocument(applicationID string, position int, doc models.UploadedDocument) documentRow {
	return documentRow{
		ID:             doc.ID,
		ApplicationID:  applicationID,
		Position:       position,
		DocumentType:   doc.DocumentType,
		FileName:       doc.FileName,
		StorageLocator: doc.StorageLocator,
		MimeType:       doc.MimeType,
		SizeBytes:      doc.SizeBytes,
		UploadedAt:     doc.UploadedAt,
		DocumentDate:   doc.DocumentDate,
		WidthPx:        doc.WidthPx,
		HeightPx:       doc.HeightPx,
		Status:         doc.Status,
		Remarks:        doc.Remarks,
		ReviewedBy:     doc.ReviewedBy,
		ReviewedAt:     doc.ReviewedAt,
		Superseded:     doc.Superseded,
		SupersededAt:   doc.SupersededAt,
	}
}

func toApplication(row applicationRow, docs []documentRow, history []historyRow) *models.Application {
	app := &models.Application{
		ID:           row.ID,
		StudentID:    row.StudentID,
		AgentID:      row.AgentID,
		SubmittedBy:  row.SubmittedBy,
		Status:       row.Status,
		CurrentStage: row.CurrentStage,
		Sections: models.ApplicationSections{
			Personal: row.PersonalDetails,
			Contact:  row.ContactDetails,
			Course:   row.CourseDetails,
			Guardian: row.GuardianDetails,
		},
		ReviewStatus:            row.ReviewStatus,
		TermsAccepted:           row.TermsAccepted,
		TermsAcceptedAt:         row.TermsAcceptedAt,
		SubmittedAt:             row.SubmittedAt,
		ApprovedAt:              row.ApprovedAt,
		RejectedAt:              row.RejectedAt,
		WithdrawnAt:             row.WithdrawnAt,
		FinalRemarks:            row.FinalRemarks,
		RejectionReason:         row.RejectionReason,
		CombinedArtifactLocator: row.CombinedArtifactLocator,
		ZipArtifactLocator:      row.ZipArtifactLocator,
		SummaryArtifactLocator:  row.SummaryArtifactLocator,
		Version:                 row.Version,
		CreatedAt:               row.CreatedAt,
		UpdatedAt:               row.UpdatedAt,
		Documents:               make([]models.UploadedDocument, 0, len(docs)),
		WorkflowHistory:         make([]models.WorkflowHistoryEntry, 0, len(history)),
	}
	for _, d := range docs {
		app.Documents = append(app.Documents, models.UploadedDocument{
			ID:             d.ID,
			ApplicationID:  d.ApplicationID,
			DocumentType:   d.DocumentType,
			FileName:       d.FileName,
			StorageLocator: d.StorageLocator,
			MimeType:       d.MimeType,
			SizeBytes:      d.SizeBytes,
			UploadedAt:     d.UploadedAt,
			DocumentDate:   d.DocumentDate,
			WidthPx:        d.WidthPx,
			HeightPx:       d.HeightPx,
			Status:         d.Status,
			Remarks:        d.Remarks,
			ReviewedBy:     d.ReviewedBy,
			ReviewedAt:     d.ReviewedAt,
			Superseded:     d.Superseded,
			SupersededAt:   d.SupersededAt,
		})
	}
	for _, h := range history {
		app.WorkflowHistory = append(app.WorkflowHistory, models.WorkflowHistoryEntry{
			ID:        h.ID,
			Stage:     h.Stage,
			Status:    h.Status,
			ActorID:   h.ActorID,
			ActorRole: h.ActorRole,
			Action:    h.Action,
			Remarks:   h.Remarks,
			Timestamp: h.CreatedAt,
		})
	}
	return app
}
