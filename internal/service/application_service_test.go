package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-portal-api/internal/dto"
	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/repository"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
)

type applicationStoreStub struct {
	mu        sync.Mutex
	apps      map[string]*models.Application
	updates   int
	conflicts int
	// beforeUpdate runs once before the conditional check, simulating a concurrent writer.
	beforeUpdate func(stored *models.Application)
	locators     map[models.ArtifactKind]string
}

func newApplicationStoreStub(apps ...*models.Application) *applicationStoreStub {
	s := &applicationStoreStub{apps: make(map[string]*models.Application), locators: make(map[models.ArtifactKind]string)}
	for _, app := range apps {
		s.apps[app.ID] = app.Clone()
	}
	return s
}

func (s *applicationStoreStub) Get(ctx context.Context, id string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return app.Clone(), nil
}

func (s *applicationStoreStub) Create(ctx context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *applicationStoreStub) Update(ctx context.Context, app *models.Application, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.apps[app.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if s.beforeUpdate != nil {
		hook := s.beforeUpdate
		s.beforeUpdate = nil
		hook(stored)
	}
	if stored.Version != expectedVersion {
		s.conflicts++
		return repository.ErrVersionConflict
	}
	s.updates++
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *applicationStoreStub) UpdateArtifactLocator(ctx context.Context, id string, kind models.ArtifactKind, locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return repository.ErrNotFound
	}
	switch kind {
	case models.ArtifactCombinedPDF:
		app.CombinedArtifactLocator = &locator
	case models.ArtifactZip:
		app.ZipArtifactLocator = &locator
	case models.ArtifactSummary:
		app.SummaryArtifactLocator = &locator
	}
	s.locators[kind] = locator
	return nil
}

func (s *applicationStoreStub) stored(id string) *models.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apps[id].Clone()
}

type notifierStub struct {
	mu      sync.Mutex
	notices []TransitionNotice
}

func (n *notifierStub) Dispatch(ctx context.Context, notice TransitionNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

var (
	testNow     = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	student     = models.Actor{ID: "student-1", Role: models.RoleStudent}
	otherPerson = models.Actor{ID: "student-2", Role: models.RoleStudent}
	agent       = models.Actor{ID: "agent-1", Role: models.RoleAgent}
	staff       = models.Actor{ID: "staff-1", Role: models.RoleStaff}
)

func fullSections() models.ApplicationSections {
	return models.ApplicationSections{
		Personal: models.SectionData{"name": "Asha"},
		Contact:  models.SectionData{"email": "asha@example.com"},
		Course:   models.SectionData{"course": "BSc"},
		Guardian: models.SectionData{"name": "Ravi"},
	}
}

func docWithStatus(id, docType string, status models.DocumentStatus) models.UploadedDocument {
	return models.UploadedDocument{
		ID: id, ApplicationID: "app-1", DocumentType: docType, FileName: docType + ".pdf",
		StorageLocator: "uploads/" + docType + ".pdf", MimeType: "application/pdf", SizeBytes: 1024,
		UploadedAt: testNow, Status: status,
	}
}

func reviewApplication(status models.ApplicationStatus, docs ...models.UploadedDocument) *models.Application {
	agentID := agent.ID
	app := &models.Application{
		ID:           "app-1",
		StudentID:    student.ID,
		AgentID:      &agentID,
		Status:       status,
		CurrentStage: models.StageUnderReview,
		Sections:     fullSections(),
		Documents:    docs,
		Version:      4,
		CreatedAt:    testNow.Add(-time.Hour),
		UpdatedAt:    testNow.Add(-time.Hour),
	}
	app.ReviewStatus = AggregateDocuments(docs)
	return app
}

func newTestApplicationService(store ApplicationStore, opts ...ApplicationServiceOption) *ApplicationService {
	opts = append([]ApplicationServiceOption{WithApplicationClock(func() time.Time { return testNow })}, opts...)
	return NewApplicationService(store, nil, nil, nil, opts...)
}

func requireAppError(t *testing.T, err error, sentinel *appErrors.Error) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, sentinel), "expected %s, got %v", sentinel.Code, err)
	return appErrors.FromError(err)
}

func TestSaveDraftCreatesApplication(t *testing.T) {
	store := newApplicationStoreStub()
	notifier := &notifierStub{}
	svc := newTestApplicationService(store, WithApplicationNotifier(notifier))

	res, err := svc.SaveDraft(context.Background(), "", dto.SaveDraftRequest{
		Personal: models.SectionData{"name": "Asha"},
		Documents: models.DocumentsInput{ByType: map[string]models.RawUpload{
			"aadhar_card":    {FileName: "aadhar.pdf", StorageLocator: "uploads/aadhar.pdf"},
			"passport_photo": {FileName: "photo.jpg"},
		}},
	}, student)
	require.NoError(t, err)

	app := res.Application
	require.Equal(t, models.ApplicationStatusDraft, app.Status)
	require.Equal(t, models.StagePersonalDetails, app.CurrentStage)
	require.Equal(t, student.ID, app.StudentID)
	require.Len(t, app.Documents, 1)
	require.Equal(t, []string{"ignored passport_photo: no storage locator"}, res.Warnings)
	require.Len(t, app.WorkflowHistory, 1)
	require.Equal(t, models.HistoryActionCreate, app.WorkflowHistory[0].Action)
	require.Equal(t, 1, app.ReviewStatus.DocumentCounts.Pending)
	require.NotNil(t, store.stored(app.ID))
	require.Len(t, notifier.notices, 1)
	require.Equal(t, models.NotificationApplicationCreated, notifier.notices[0].Type)
}

func TestSaveDraftAgentRequiresStudent(t *testing.T) {
	svc := newTestApplicationService(newApplicationStoreStub())
	_, err := svc.SaveDraft(context.Background(), "", dto.SaveDraftRequest{}, agent)
	requireAppError(t, err, appErrors.ErrValidation)
}

func TestSaveDraftSupersedesAndTracksStage(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusDraft, docWithStatus("d1", "aadhar_card", models.DocumentStatusPending))
	app.CurrentStage = models.StagePersonalDetails
	store := newApplicationStoreStub(app)
	svc := newTestApplicationService(store)

	stage := models.StageDocuments
	res, err := svc.SaveDraft(context.Background(), app.ID, dto.SaveDraftRequest{
		Contact:      models.SectionData{"phone": "123"},
		CurrentStage: &stage,
		Documents: models.DocumentsInput{List: []models.UploadedDocument{
			{DocumentType: "aadhar_card", FileName: "aadhar-new.pdf", StorageLocator: "uploads/aadhar-new.pdf", Status: models.DocumentStatusApproved},
		}},
	}, student)
	require.NoError(t, err)

	updated := res.Application
	require.Len(t, updated.Documents, 2)
	require.True(t, updated.Documents[0].Superseded)
	require.NotNil(t, updated.Documents[0].SupersededAt)
	require.False(t, updated.Documents[1].Superseded)
	require.Equal(t, models.DocumentStatusPending, updated.Documents[1].Status)
	require.Equal(t, "123", updated.Sections.Contact["phone"])
	require.Equal(t, "asha@example.com", updated.Sections.Contact["email"])
	require.Equal(t, models.StageDocuments, updated.CurrentStage)
	require.Len(t, updated.WorkflowHistory, 1)
	require.Equal(t, models.HistoryActionSaveDraft, updated.WorkflowHistory[0].Action)
	require.Equal(t, int64(5), updated.Version)
	require.Equal(t, 1, updated.ReviewStatus.DocumentCounts.Total)

	// same stage again: persisted without a history entry
	res, err = svc.SaveDraft(context.Background(), app.ID, dto.SaveDraftRequest{CurrentStage: &stage}, student)
	require.NoError(t, err)
	require.Len(t, res.Application.WorkflowHistory, 1)
}

func TestSaveDraftRejectedForOtherStudent(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusDraft)
	svc := newTestApplicationService(newApplicationStoreStub(app))
	_, err := svc.SaveDraft(context.Background(), app.ID, dto.SaveDraftRequest{}, otherPerson)
	requireAppError(t, err, appErrors.ErrForbidden)
}

func TestSaveDraftNotAllowedUnderReview(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusUnderReview)
	svc := newTestApplicationService(newApplicationStoreStub(app))
	_, err := svc.SaveDraft(context.Background(), app.ID, dto.SaveDraftRequest{}, student)
	appErr := requireAppError(t, err, appErrors.ErrPreconditionFailed)
	require.Equal(t, "status", appErr.Details["guard"])
}

func TestSubmitMissingRequiredDocument(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusDraft,
		docWithStatus("d1", "passport_photo", models.DocumentStatusPending),
		docWithStatus("d3", "tenth_marksheet", models.DocumentStatusPending),
		docWithStatus("d4", "twelfth_marksheet", models.DocumentStatusPending),
	)
	store := newApplicationStoreStub(app)
	svc := newTestApplicationService(store)

	_, err := svc.Submit(context.Background(), app.ID, dto.SubmitApplicationRequest{TermsAccepted: true}, student)

	appErr := requireAppError(t, err, appErrors.ErrValidation)
	require.Equal(t, []string{"missing required document: Aadhar Card"}, appErr.Details["errors"])
	require.Equal(t, 0, store.updates)
	require.Equal(t, models.ApplicationStatusDraft, store.stored(app.ID).Status)
}

func TestSubmitRequiresTermsAndSections(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusDraft, requiredDocs()...)
	app.Sections.Guardian = nil
	svc := newTestApplicationService(newApplicationStoreStub(app))

	_, err := svc.Submit(context.Background(), app.ID, dto.SubmitApplicationRequest{}, student)

	appErr := requireAppError(t, err, appErrors.ErrValidation)
	require.Equal(t, []string{"missing section: guardian", "terms and conditions must be accepted"}, appErr.Details["errors"])
}

func TestSubmitMovesToReview(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusDraft, requiredDocs()...)
	store := newApplicationStoreStub(app)
	notifier := &notifierStub{}
	svc := newTestApplicationService(store, WithApplicationNotifier(notifier))

	updated, err := svc.Submit(context.Background(), app.ID, dto.SubmitApplicationRequest{TermsAccepted: true}, agent)
	require.NoError(t, err)

	require.Equal(t, models.ApplicationStatusUnderReview, updated.Status)
	require.Equal(t, models.StageUnderReview, updated.CurrentStage)
	require.Equal(t, agent.ID, *updated.SubmittedBy)
	require.Equal(t, testNow, *updated.SubmittedAt)
	require.True(t, updated.TermsAccepted)
	require.Len(t, updated.WorkflowHistory, 1)
	require.Equal(t, models.HistoryActionSubmit, updated.WorkflowHistory[0].Action)
	require.Len(t, notifier.notices, 1)
	require.Equal(t, models.NotificationApplicationSubmitted, notifier.notices[0].Type)
}

func TestSubmitFromWithdrawnIsRefused(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusWithdrawn, requiredDocs()...)
	svc := newTestApplicationService(newApplicationStoreStub(app))
	_, err := svc.Submit(context.Background(), app.ID, dto.SubmitApplicationRequest{TermsAccepted: true}, student)
	requireAppError(t, err, appErrors.ErrPreconditionFailed)
}

func TestDecideDocumentsAutoRejects(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusUnderReview,
		docWithStatus("d1", "passport_photo", models.DocumentStatusPending),
		docWithStatus("d2", "aadhar_card", models.DocumentStatusPending),
		docWithStatus("d3", "tenth_marksheet", models.DocumentStatusPending),
	)
	store := newApplicationStoreStub(app)
	notifier := &notifierStub{}
	svc := newTestApplicationService(store, WithApplicationNotifier(notifier))

	res, err := svc.DecideDocuments(context.Background(), app.ID, []models.DocumentDecision{
		{DocumentID: "d1", Status: models.DocumentStatusApproved},
		{DocumentType: "aadhar_card", Status: models.DocumentStatusRejected, Remarks: "blurry"},
		{DocumentID: "missing", Status: models.DocumentStatusApproved},
	}, staff)
	require.NoError(t, err)

	updated := res.Application
	require.Equal(t, []string{"missing"}, res.Unmatched)
	require.Equal(t, models.ApplicationStatusRejected, updated.Status)
	require.Equal(t, models.StageRejected, updated.CurrentStage)
	require.Len(t, updated.WorkflowHistory, 1)
	require.Equal(t, models.HistoryActionRequestModification, updated.WorkflowHistory[0].Action)
	require.Equal(t, "Document verified", *updated.Documents[0].Remarks)
	require.Equal(t, staff.ID, *updated.Documents[1].ReviewedBy)
	require.Equal(t, models.DocumentCounts{Total: 3, Approved: 1, Rejected: 1, Pending: 1}, updated.ReviewStatus.DocumentCounts)
	require.Equal(t, models.ReviewPartiallyApproved, updated.ReviewStatus.OverallDocumentReviewStatus)
	require.Equal(t, staff.ID, *updated.ReviewStatus.ReviewedBy)
	require.Len(t, notifier.notices, 1)
}

func TestDecideDocumentsDerivesStage(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusUnderReview,
		docWithStatus("d1", "passport_photo", models.DocumentStatusPending),
		docWithStatus("d2", "aadhar_card", models.DocumentStatusPending),
	)
	store := newApplicationStoreStub(app)
	svc := newTestApplicationService(store)

	res, err := svc.DecideDocuments(context.Background(), app.ID, []models.DocumentDecision{
		{DocumentID: "d1", Status: models.DocumentStatusApproved},
	}, staff)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusUnderReview, res.Application.Status)
	require.Equal(t, models.StageDocuments, res.Application.CurrentStage)

	res, err = svc.DecideDocuments(context.Background(), app.ID, []models.DocumentDecision{
		{DocumentID: "d2", Status: models.DocumentStatusApproved, Remarks: "ok"},
	}, staff)
	require.NoError(t, err)
	require.Equal(t, models.StageUnderReview, res.Application.CurrentStage)
	require.True(t, res.Application.ReviewStatus.DocumentsVerified)
	require.Len(t, res.Application.WorkflowHistory, 2)
}

func TestDecideDocumentsErrors(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusUnderReview, docWithStatus("d1", "aadhar_card", models.DocumentStatusPending))
	approved := reviewApplication(models.ApplicationStatusApproved, docWithStatus("d1", "aadhar_card", models.DocumentStatusApproved))
	approved.ID = "app-2"
	svc := newTestApplicationService(newApplicationStoreStub(app, approved))
	ctx := context.Background()

	_, err := svc.DecideDocuments(ctx, app.ID, nil, staff)
	requireAppError(t, err, appErrors.ErrNoOp)

	_, err = svc.DecideDocuments(ctx, app.ID, []models.DocumentDecision{{DocumentID: "d1", Status: models.DocumentStatusRejected}}, staff)
	requireAppError(t, err, appErrors.ErrValidation)

	_, err = svc.DecideDocuments(ctx, app.ID, []models.DocumentDecision{{DocumentID: "d1", Status: "MAYBE"}}, staff)
	requireAppError(t, err, appErrors.ErrValidation)

	_, err = svc.DecideDocuments(ctx, app.ID, []models.DocumentDecision{{DocumentID: "nope", Status: models.DocumentStatusApproved}}, staff)
	requireAppError(t, err, appErrors.ErrNotFound)

	_, err = svc.DecideDocuments(ctx, "unknown", []models.DocumentDecision{{DocumentID: "d1", Status: models.DocumentStatusApproved}}, staff)
	requireAppError(t, err, appErrors.ErrNotFound)

	_, err = svc.DecideDocuments(ctx, approved.ID, []models.DocumentDecision{{DocumentID: "d1", Status: models.DocumentStatusApproved}}, staff)
	requireAppError(t, err, appErrors.ErrPreconditionFailed)

	_, err = svc.DecideDocuments(ctx, app.ID, []models.DocumentDecision{{DocumentID: "d1", Status: models.DocumentStatusApproved}}, student)
	requireAppError(t, err, appErrors.ErrForbidden)
}

func TestApproveGuards(t *testing.T) {
	cases := []struct {
		name  string
		app   *models.Application
		guard string
	}{
		{name: "no documents", app: reviewApplication(models.ApplicationStatusUnderReview), guard: "documents_uploaded"},
		{name: "pending document", app: reviewApplication(models.ApplicationStatusUnderReview,
			docWithStatus("d1", "aadhar_card", models.DocumentStatusApproved),
			docWithStatus("d2", "passport_photo", models.DocumentStatusPending)), guard: "documents_approved"},
		{name: "already rejected", app: reviewApplication(models.ApplicationStatusRejected,
			docWithStatus("d1", "aadhar_card", models.DocumentStatusApproved)), guard: "status"},
		{name: "withdrawn", app: reviewApplication(models.ApplicationStatusWithdrawn,
			docWithStatus("d1", "aadhar_card", models.DocumentStatusApproved)), guard: "status"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newApplicationStoreStub(tc.app)
			svc := newTestApplicationService(store)
			_, err := svc.Approve(context.Background(), tc.app.ID, dto.ApproveApplicationRequest{}, staff)
			appErr := requireAppError(t, err, appErrors.ErrPreconditionFailed)
			require.Equal(t, tc.guard, appErr.Details["guard"])
			require.Equal(t, 0, store.updates)
		})
	}
}

func TestApproveSucceeds(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusUnderReview,
		docWithStatus("d1", "aadhar_card", models.DocumentStatusApproved),
		docWithStatus("d2", "passport_photo", models.DocumentStatusApproved),
	)
	svc := newTestApplicationService(newApplicationStoreStub(app))

	updated, err := svc.Approve(context.Background(), app.ID, dto.ApproveApplicationRequest{Remarks: "welcome"}, staff)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusApproved, updated.Status)
	require.Equal(t, models.StageApproved, updated.CurrentStage)
	require.Equal(t, "welcome", *updated.FinalRemarks)
	require.Equal(t, testNow, *updated.ApprovedAt)
	require.Len(t, updated.WorkflowHistory, 1)
	require.Equal(t, models.HistoryActionApprove, updated.WorkflowHistory[0].Action)
	require.Equal(t, updated.ReviewStatus.DocumentCounts.Total, updated.ReviewStatus.DocumentCounts.Approved)

	_, err = svc.Approve(context.Background(), app.ID, dto.ApproveApplicationRequest{}, staff)
	requireAppError(t, err, appErrors.ErrPreconditionFailed)
}

func TestRejectRequiresReason(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusUnderReview)
	store := newApplicationStoreStub(app)
	svc := newTestApplicationService(store)

	_, err := svc.Reject(context.Background(), app.ID, dto.RejectApplicationRequest{Reason: "  "}, staff)
	requireAppError(t, err, appErrors.ErrValidation)

	updated, err := svc.Reject(context.Background(), app.ID, dto.RejectApplicationRequest{Reason: "incomplete", Remarks: "missing marks"}, staff)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusRejected, updated.Status)
	require.Equal(t, "incomplete", *updated.RejectionReason)
	require.Equal(t, models.HistoryActionReject, updated.WorkflowHistory[0].Action)
	require.Equal(t, "incomplete: missing marks", *updated.WorkflowHistory[0].Remarks)
}

func TestRequestResubmissionOnlyFromReview(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusUnderReview)
	svc := newTestApplicationService(newApplicationStoreStub(app))

	updated, err := svc.RequestResubmission(context.Background(), app.ID, dto.ResubmissionRequest{Remarks: "upload clearer scans"}, staff)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusResubmissionRequired, updated.Status)
	require.Equal(t, models.StageDocuments, updated.CurrentStage)

	_, err = svc.RequestResubmission(context.Background(), app.ID, dto.ResubmissionRequest{Remarks: "again"}, staff)
	requireAppError(t, err, appErrors.ErrPreconditionFailed)
}

func TestWithdrawGuard(t *testing.T) {
	draft := reviewApplication(models.ApplicationStatusDraft)
	store := newApplicationStoreStub(draft)
	svc := newTestApplicationService(store)

	updated, err := svc.Withdraw(context.Background(), draft.ID, dto.WithdrawApplicationRequest{Reason: "changed plans"}, student)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusWithdrawn, updated.Status)
	require.Equal(t, models.StageWithdrawn, updated.CurrentStage)
	require.NotNil(t, updated.WithdrawnAt)
}

func TestWithdrawRefusedOnceReviewStarted(t *testing.T) {
	reason := "fraudulent marksheet"
	tests := []struct {
		name   string
		status models.ApplicationStatus
		reason *string
	}{
		{name: "under review", status: models.ApplicationStatusUnderReview},
		{name: "approved", status: models.ApplicationStatusApproved},
		{name: "rejected by documents", status: models.ApplicationStatusRejected},
		{name: "rejected by reviewer", status: models.ApplicationStatusRejected, reason: &reason},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := reviewApplication(tc.status, docWithStatus("d1", "aadhar_card", models.DocumentStatusApproved))
			app.RejectionReason = tc.reason
			app.WorkflowHistory = []models.WorkflowHistoryEntry{{ID: "h1", Action: models.HistoryActionSubmit, Timestamp: testNow}}
			store := newApplicationStoreStub(app)
			svc := newTestApplicationService(store)

			_, err := svc.Withdraw(context.Background(), app.ID, dto.WithdrawApplicationRequest{Reason: "no longer interested"}, student)
			appErr := requireAppError(t, err, appErrors.ErrPreconditionFailed)
			require.Equal(t, "status", appErr.Details["guard"])

			stored := store.stored(app.ID)
			require.Equal(t, tc.status, stored.Status)
			require.Len(t, stored.WorkflowHistory, 1)
			require.Equal(t, app.Version, stored.Version)
			require.Nil(t, stored.WithdrawnAt)
			require.Zero(t, store.updates)
		})
	}
}

func TestSaveDraftIgnoresClientDocumentIdentity(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusDraft, docWithStatus("d1", "aadhar_card", models.DocumentStatusPending))
	store := newApplicationStoreStub(app)
	svc := newTestApplicationService(store)

	res, err := svc.SaveDraft(context.Background(), app.ID, dto.SaveDraftRequest{
		Documents: models.DocumentsInput{List: []models.UploadedDocument{
			{ID: "d1", ApplicationID: "app-1", DocumentType: "aadhar_card", StorageLocator: "uploads/aadhar_card.pdf"},
			{
				ID: "doc-of-other-application", ApplicationID: "app-other", DocumentType: "passport_photo",
				FileName: "photo.jpg", StorageLocator: "uploads/photo.jpg", Status: models.DocumentStatusApproved,
			},
		}},
	}, student)
	require.NoError(t, err)

	docs := store.stored(app.ID).Documents
	require.Len(t, docs, 2)
	require.Equal(t, "d1", docs[0].ID)
	require.False(t, docs[0].Superseded)

	added := docs[1]
	require.NotEqual(t, "doc-of-other-application", added.ID)
	require.NotEmpty(t, added.ID)
	require.Equal(t, app.ID, added.ApplicationID)
	require.Equal(t, models.DocumentStatusPending, added.Status)
	require.Nil(t, added.ReviewedBy)
	require.Equal(t, res.Application.Documents[1].ID, added.ID)
}

func TestDocumentRejectionCanBeReworked(t *testing.T) {
	docs := requiredDocs()
	remarks := "blurry scan"
	reviewedAt := testNow.Add(-time.Hour)
	docs[1].Status = models.DocumentStatusRejected
	docs[1].Remarks = &remarks
	docs[1].ReviewedBy = &staff.ID
	docs[1].ReviewedAt = &reviewedAt
	app := reviewApplication(models.ApplicationStatusRejected, docs...)
	app.CurrentStage = models.StageRejected
	app.RejectedAt = &reviewedAt
	store := newApplicationStoreStub(app)
	svc := newTestApplicationService(store)

	_, err := svc.Submit(context.Background(), app.ID, dto.SubmitApplicationRequest{TermsAccepted: true}, student)
	appErr := requireAppError(t, err, appErrors.ErrValidation)
	require.Contains(t, appErr.Details["errors"], "rejected document must be replaced: Aadhar Card")
	require.Equal(t, models.ApplicationStatusRejected, store.stored(app.ID).Status)

	res, err := svc.SaveDraft(context.Background(), app.ID, dto.SaveDraftRequest{
		Documents: models.DocumentsInput{List: []models.UploadedDocument{
			{DocumentType: "aadhar_card", FileName: "aadhar-rescan.pdf", StorageLocator: "uploads/aadhar-rescan.pdf", SizeBytes: 2048},
		}},
	}, student)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusRejected, res.Application.Status)
	require.True(t, res.Application.Documents[1].Superseded)

	updated, err := svc.Submit(context.Background(), app.ID, dto.SubmitApplicationRequest{TermsAccepted: true}, student)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusUnderReview, updated.Status)
	require.Equal(t, models.StageUnderReview, updated.CurrentStage)
	require.Nil(t, updated.RejectedAt)
	require.Nil(t, updated.RejectionReason)
	require.Equal(t, models.HistoryActionSubmit, updated.WorkflowHistory[len(updated.WorkflowHistory)-1].Action)
}

func TestReviewerRejectionIsFinal(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusUnderReview,
		docWithStatus("d1", "aadhar_card", models.DocumentStatusPending),
	)
	store := newApplicationStoreStub(app)
	svc := newTestApplicationService(store)

	rejected, err := svc.Reject(context.Background(), app.ID, dto.RejectApplicationRequest{Reason: "ineligible"}, staff)
	require.NoError(t, err)
	require.NotNil(t, rejected.RejectedAt)

	_, err = svc.DecideDocuments(context.Background(), app.ID, []models.DocumentDecision{
		{DocumentID: "d1", Status: models.DocumentStatusApproved},
	}, staff)
	requireAppError(t, err, appErrors.ErrPreconditionFailed)

	_, err = svc.SaveDraft(context.Background(), app.ID, dto.SaveDraftRequest{Contact: models.SectionData{"phone": "1"}}, student)
	requireAppError(t, err, appErrors.ErrPreconditionFailed)

	_, err = svc.Submit(context.Background(), app.ID, dto.SubmitApplicationRequest{TermsAccepted: true}, student)
	requireAppError(t, err, appErrors.ErrPreconditionFailed)

	stored := store.stored(app.ID)
	require.Equal(t, models.ApplicationStatusRejected, stored.Status)
	require.Equal(t, "ineligible", *stored.RejectionReason)
	require.Equal(t, models.DocumentStatusPending, stored.Documents[0].Status)
	require.Len(t, stored.WorkflowHistory, 1)
}

func TestMutateRetriesOnVersionConflict(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusUnderReview, docWithStatus("d1", "aadhar_card", models.DocumentStatusPending))
	store := newApplicationStoreStub(app)
	store.beforeUpdate = func(stored *models.Application) {
		stored.Version++
		stored.WorkflowHistory = append(stored.WorkflowHistory, models.WorkflowHistoryEntry{ID: "concurrent", Action: models.HistoryActionApprove})
	}
	svc := newTestApplicationService(store)

	res, err := svc.DecideDocuments(context.Background(), app.ID, []models.DocumentDecision{
		{DocumentID: "d1", Status: models.DocumentStatusApproved},
	}, staff)
	require.NoError(t, err)
	require.Equal(t, 1, store.conflicts)
	require.Len(t, res.Application.WorkflowHistory, 2)
	require.Equal(t, "concurrent", res.Application.WorkflowHistory[0].ID)
	require.Equal(t, int64(6), res.Application.Version)
}

type alwaysConflictStore struct {
	*applicationStoreStub
	attempts int
}

func (s *alwaysConflictStore) Update(ctx context.Context, app *models.Application, expectedVersion int64) error {
	s.attempts++
	return repository.ErrVersionConflict
}

func TestMutateGivesUpAfterMaxAttempts(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusUnderReview)
	store := &alwaysConflictStore{applicationStoreStub: newApplicationStoreStub(app)}
	svc := newTestApplicationService(store)

	_, err := svc.Reject(context.Background(), app.ID, dto.RejectApplicationRequest{Reason: "late"}, staff)
	requireAppError(t, err, appErrors.ErrConflict)
	require.Equal(t, 3, store.attempts)
}

func TestHistoryGrowsByOnePerTransition(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusDraft, requiredDocs()...)
	for i := range app.Documents {
		app.Documents[i].ApplicationID = app.ID
	}
	store := newApplicationStoreStub(app)
	svc := newTestApplicationService(store)
	ctx := context.Background()

	_, err := svc.Submit(ctx, app.ID, dto.SubmitApplicationRequest{TermsAccepted: true}, student)
	require.NoError(t, err)

	decisions := make([]models.DocumentDecision, 0, len(app.Documents))
	for _, doc := range app.Documents {
		decisions = append(decisions, models.DocumentDecision{DocumentID: doc.ID, Status: models.DocumentStatusApproved})
	}
	_, err = svc.DecideDocuments(ctx, app.ID, decisions, staff)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, app.ID, dto.ApproveApplicationRequest{}, staff)
	require.NoError(t, err)

	history, err := svc.History(ctx, app.ID, student)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, models.HistoryActionSubmit, history[0].Action)
	require.Equal(t, models.HistoryActionApprove, history[1].Action)
	require.Equal(t, models.HistoryActionApprove, history[2].Action)
	require.Equal(t, models.ApplicationStatusApproved, history[2].Status)

	summary, err := svc.ReviewSummary(ctx, app.ID, staff)
	require.NoError(t, err)
	require.Equal(t, models.ReviewAllApproved, summary.OverallDocumentReviewStatus)
}

func TestValidateIsDryRun(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusDraft, requiredDocs()[:3]...)
	store := newApplicationStoreStub(app)
	svc := newTestApplicationService(store)

	result, err := svc.Validate(context.Background(), app.ID, student)
	require.NoError(t, err)
	require.Equal(t, []string{"missing required document: 12th Marksheet"}, result.Errors)
	require.Equal(t, 0, store.updates)
}

func TestRecordArtifactDoesNotTouchHistory(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusApproved)
	store := newApplicationStoreStub(app)
	svc := newTestApplicationService(store)

	require.NoError(t, svc.RecordArtifact(context.Background(), app.ID, models.ArtifactZip, "app-1/bundle.zip"))
	stored := store.stored(app.ID)
	require.Equal(t, "app-1/bundle.zip", *stored.ZipArtifactLocator)
	require.Equal(t, app.Version, stored.Version)
	require.Empty(t, stored.WorkflowHistory)

	err := svc.RecordArtifact(context.Background(), "missing", models.ArtifactZip, "x")
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestTransitionTable(t *testing.T) {
	_, err := NextTransition(models.ApplicationStatusApproved, EventDocumentsReviewed)
	require.Error(t, err)

	tr, err := NextTransition(models.ApplicationStatusRejected, EventDocumentsApproved)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusUnderReview, tr.Status)

	require.Equal(t, []WorkflowEvent{EventSaveDraft, EventSubmit, EventApprove, EventReject, EventWithdraw},
		AllowedEvents(models.ApplicationStatusDraft))
	require.Empty(t, AllowedEvents(models.ApplicationStatusWithdrawn))

	for _, status := range []models.ApplicationStatus{
		models.ApplicationStatusUnderReview, models.ApplicationStatusApproved, models.ApplicationStatusRejected,
	} {
		_, err := NextTransition(status, EventWithdraw)
		require.Error(t, err, status)
	}

	_, err = NextTransition(models.ApplicationStatusRejected, EventSubmit)
	require.NoError(t, err)
	reason := "ineligible"
	_, err = TransitionFor(&models.Application{Status: models.ApplicationStatusRejected, RejectionReason: &reason}, EventSubmit)
	require.Error(t, err)
	require.True(t, ClosedByReviewer(&models.Application{Status: models.ApplicationStatusRejected, RejectionReason: &reason}))
}
