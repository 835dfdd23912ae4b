package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-portal-api/internal/catalog"
	"github.com/noah-isme/admission-portal-api/internal/dto"
	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/repository"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/logger"
)

const (
	defaultWriteAttempts   = 3
	defaultApprovalRemarks = "Document verified"
)

// ApplicationStore persists applications. Update must be atomic: it writes the
// application, upserts its documents and appends new history entries only when the
// stored version equals expectedVersion, returning repository.ErrVersionConflict otherwise.
type ApplicationStore interface {
	Get(ctx context.Context, id string) (*models.Application, error)
	Create(ctx context.Context, app *models.Application) error
	Update(ctx context.Context, app *models.Application, expectedVersion int64) error
	UpdateArtifactLocator(ctx context.Context, id string, kind models.ArtifactKind, locator string) error
}

type transitionNotifier interface {
	Dispatch(ctx context.Context, notice TransitionNotice)
}

// ApplicationService drives the application state machine.
type ApplicationService struct {
	store       ApplicationStore
	catalog     *catalog.Catalog
	cache       *CacheService
	notifier    transitionNotifier
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
	maxAttempts int
}

// ApplicationServiceOption configures the service.
type ApplicationServiceOption func(*ApplicationService)

// WithApplicationCache enables the read-through cache.
func WithApplicationCache(cache *CacheService) ApplicationServiceOption {
	return func(s *ApplicationService) { s.cache = cache }
}

// WithApplicationNotifier sets the notification dispatcher.
func WithApplicationNotifier(n transitionNotifier) ApplicationServiceOption {
	return func(s *ApplicationService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithApplicationMetrics records transition metrics.
func WithApplicationMetrics(m *MetricsService) ApplicationServiceOption {
	return func(s *ApplicationService) { s.metrics = m }
}

// WithApplicationClock overrides the time source.
func WithApplicationClock(now func() time.Time) ApplicationServiceOption {
	return func(s *ApplicationService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxWriteAttempts bounds optimistic write retries.
func WithMaxWriteAttempts(n int) ApplicationServiceOption {
	return func(s *ApplicationService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// NewApplicationService constructs the service with defaults.
func NewApplicationService(store ApplicationStore, cat *catalog.Catalog, validate *validator.Validate, logger *zap.Logger, opts ...ApplicationServiceOption) *ApplicationService {
	if cat == nil {
		cat = catalog.Default()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ApplicationService{
		store:       store,
		catalog:     cat,
		notifier:    noopNotifier{},
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: defaultWriteAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Catalog returns the requirement catalog in use.
func (s *ApplicationService) Catalog() *catalog.Catalog {
	return s.catalog
}

// Get returns an application visible to actor.
func (s *ApplicationService) Get(ctx context.Context, id string, actor models.Actor) (*models.Application, error) {
	app, _, err := s.Lookup(ctx, id, actor)
	return app, err
}

// Lookup is Get that also reports whether the cache served the read.
func (s *ApplicationService) Lookup(ctx context.Context, id string, actor models.Actor) (*models.Application, bool, error) {
	app, hit, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if err := authorizeApplication(app, actor); err != nil {
		return nil, false, err
	}
	return app, hit, nil
}

// ReviewSummary recomputes the document review aggregate from the stored documents.
func (s *ApplicationService) ReviewSummary(ctx context.Context, id string, actor models.Actor) (*models.ReviewStatus, error) {
	app, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	summary := AggregateDocuments(app.Documents)
	summary.ReviewedBy = app.ReviewStatus.ReviewedBy
	summary.ReviewedAt = app.ReviewStatus.ReviewedAt
	return &summary, nil
}

// Validate runs the submission checks without changing the application.
func (s *ApplicationService) Validate(ctx context.Context, id string, actor models.Actor) (*ValidationResult, error) {
	app, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	result := s.submissionCheck(app, true)
	return &result, nil
}

// History returns the workflow history in append order.
func (s *ApplicationService) History(ctx context.Context, id string, actor models.Actor) ([]models.WorkflowHistoryEntry, error) {
	app, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if app.WorkflowHistory == nil {
		return []models.WorkflowHistoryEntry{}, nil
	}
	return app.WorkflowHistory, nil
}

// SaveDraft creates the application on first save (empty id) or merges the request into it.
func (s *ApplicationService) SaveDraft(ctx context.Context, id string, req dto.SaveDraftRequest, actor models.Actor) (*dto.SaveDraftResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if strings.TrimSpace(id) == "" {
		return s.createDraft(ctx, req, actor)
	}

	var warnings []string
	app, err := s.mutate(ctx, id, EventSaveDraft, actor, func(app *models.Application, now time.Time) (*Transition, *string, error) {
		if err := authorizeApplication(app, actor); err != nil {
			return nil, nil, err
		}
		t, err := TransitionFor(app, EventSaveDraft)
		if err != nil {
			return nil, nil, err
		}
		mergeSections(&app.Sections, req)
		if req.AgentID != nil && actor.Role != models.RoleStudent {
			app.AgentID = req.AgentID
		}

		incoming, normWarnings := NormalizeDocuments(req.Documents, app.ID, now)
		warnings = normWarnings
		app.Documents = mergeDocuments(app.ID, app.Documents, incoming, now)
		app.ReviewStatus = restampReview(AggregateDocuments(app.Documents), app.ReviewStatus)

		if req.CurrentStage == nil || *req.CurrentStage == app.CurrentStage {
			return nil, nil, nil
		}
		app.CurrentStage = *req.CurrentStage
		t.Stage = app.CurrentStage
		return &t, nil, nil
	})
	if err != nil {
		return nil, err
	}
	if warnings == nil {
		warnings = []string{}
	}
	return &dto.SaveDraftResponse{Application: app, Warnings: warnings}, nil
}

func (s *ApplicationService) createDraft(ctx context.Context, req dto.SaveDraftRequest, actor models.Actor) (*dto.SaveDraftResponse, error) {
	studentID, agentID, err := draftOwners(req, actor)
	if err != nil {
		return nil, err
	}
	now := s.now()
	app := &models.Application{
		ID:           uuid.NewString(),
		StudentID:    studentID,
		AgentID:      agentID,
		Status:       models.ApplicationStatusDraft,
		CurrentStage: models.StagePersonalDetails,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.CurrentStage != nil {
		app.CurrentStage = *req.CurrentStage
	}
	mergeSections(&app.Sections, req)
	incoming, warnings := NormalizeDocuments(req.Documents, app.ID, now)
	app.Documents = mergeDocuments(app.ID, nil, incoming, now)
	app.ReviewStatus = AggregateDocuments(app.Documents)
	appendHistory(app, models.HistoryActionCreate, actor, nil, now)

	if err := s.store.Create(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}
	s.metrics.RecordTransition("CREATE", string(app.Status))
	logger.WithContext(ctx, s.logger).Info("application created",
		zap.String("application_id", app.ID),
		zap.String("actor_id", actor.ID),
		zap.Int("documents", len(app.Documents)),
	)
	s.notifier.Dispatch(ctx, TransitionNotice{
		Type:        models.NotificationApplicationCreated,
		Actor:       actor,
		Application: app.Clone(),
	})
	return &dto.SaveDraftResponse{Application: app, Warnings: warnings}, nil
}

// Submit moves the application to review once sections, terms and documents are complete.
func (s *ApplicationService) Submit(ctx context.Context, id string, req dto.SubmitApplicationRequest, actor models.Actor) (*models.Application, error) {
	return s.mutate(ctx, id, EventSubmit, actor, func(app *models.Application, now time.Time) (*Transition, *string, error) {
		if err := authorizeApplication(app, actor); err != nil {
			return nil, nil, err
		}
		t, err := TransitionFor(app, EventSubmit)
		if err != nil {
			return nil, nil, err
		}
		if result := s.submissionCheck(app, req.TermsAccepted); !result.Valid() {
			return nil, nil, appErrors.Validation("application is incomplete", result.Errors, result.Warnings)
		}
		app.TermsAccepted = true
		app.TermsAcceptedAt = &now
		app.SubmittedAt = &now
		if app.SubmittedBy == nil {
			submitter := actor.ID
			app.SubmittedBy = &submitter
		}
		return &t, nil, nil
	})
}

// DecideDocuments applies staff verdicts and derives the application status from the
// re-aggregated review. Decisions that match no active document are skipped and reported.
func (s *ApplicationService) DecideDocuments(ctx context.Context, id string, decisions []models.DocumentDecision, actor models.Actor) (*dto.DocumentDecisionsResponse, error) {
	if len(decisions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoOp, "no document decisions supplied")
	}
	if err := s.validator.Struct(dto.DocumentDecisionsRequest{Decisions: decisions}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document decision")
	}
	for _, d := range decisions {
		if d.DocumentID == "" && d.DocumentType == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "each decision needs a documentId or documentType")
		}
		if d.Status == models.DocumentStatusRejected && strings.TrimSpace(d.Remarks) == "" {
			return nil, appErrors.Validation("remarks are required when rejecting a document",
				[]string{fmt.Sprintf("remarks required for %s", decisionRef(d))}, nil)
		}
	}
	if err := requireReviewer(actor); err != nil {
		return nil, err
	}

	var unmatched []string
	app, err := s.mutate(ctx, id, EventDocumentsReviewed, actor, func(app *models.Application, now time.Time) (*Transition, *string, error) {
		if _, err := TransitionFor(app, EventDocumentsReviewed); err != nil {
			return nil, nil, err
		}
		unmatched = unmatched[:0]
		matched := 0
		for _, d := range decisions {
			idx := findActiveDocument(app.Documents, d)
			if idx < 0 {
				unmatched = append(unmatched, decisionRef(d))
				continue
			}
			applyDecision(&app.Documents[idx], d, actor, now)
			matched++
		}
		if matched == 0 {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "none of the referenced documents exist")
		}

		reviewer := actor.ID
		summary := AggregateDocuments(app.Documents)
		summary.ReviewedBy = &reviewer
		summary.ReviewedAt = &now
		app.ReviewStatus = summary

		t, err := TransitionFor(app, documentReviewEvent(summary))
		if err != nil {
			return nil, nil, err
		}
		return &t, nil, nil
	})
	if err != nil {
		return nil, err
	}
	if unmatched == nil {
		unmatched = []string{}
	}
	if len(unmatched) > 0 {
		logger.WithContext(ctx, s.logger).Warn("document decisions skipped",
			zap.String("application_id", id),
			zap.Strings("unmatched", unmatched),
		)
	}
	return &dto.DocumentDecisionsResponse{Application: app, Unmatched: unmatched}, nil
}

// Approve finalises an application whose active documents are all approved.
func (s *ApplicationService) Approve(ctx context.Context, id string, req dto.ApproveApplicationRequest, actor models.Actor) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if err := requireReviewer(actor); err != nil {
		return nil, err
	}
	remarks := optionalString(req.Remarks)
	return s.mutate(ctx, id, EventApprove, actor, func(app *models.Application, now time.Time) (*Transition, *string, error) {
		t, err := TransitionFor(app, EventApprove)
		if err != nil {
			return nil, nil, err
		}
		summary := AggregateDocuments(app.Documents)
		switch {
		case summary.DocumentCounts.Total == 0:
			return nil, nil, appErrors.Precondition("documents_uploaded", "no documents uploaded")
		case summary.DocumentCounts.Approved != summary.DocumentCounts.Total:
			return nil, nil, appErrors.Precondition("documents_approved", "not all documents approved")
		case !summary.DocumentsVerified:
			return nil, nil, appErrors.Precondition("documents_verified", "document verification incomplete")
		}

		reviewer := actor.ID
		summary.ReviewedBy = &reviewer
		summary.ReviewedAt = &now
		app.ReviewStatus = summary
		app.ApprovedAt = &now
		app.FinalRemarks = remarks
		return &t, remarks, nil
	})
}

// Reject closes an application with a reason.
func (s *ApplicationService) Reject(ctx context.Context, id string, req dto.RejectApplicationRequest, actor models.Actor) (*models.Application, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rejection reason is required")
	}
	if err := requireReviewer(actor); err != nil {
		return nil, err
	}
	reason := req.Reason
	remarks := optionalString(req.Remarks)
	return s.mutate(ctx, id, EventReject, actor, func(app *models.Application, now time.Time) (*Transition, *string, error) {
		t, err := TransitionFor(app, EventReject)
		if err != nil {
			return nil, nil, err
		}
		app.RejectionReason = &reason
		app.RejectedAt = &now
		if remarks != nil {
			app.FinalRemarks = remarks
		}
		note := reason
		if remarks != nil {
			note = reason + ": " + *remarks
		}
		return &t, &note, nil
	})
}

// RequestResubmission sends an application under review back to the applicant.
func (s *ApplicationService) RequestResubmission(ctx context.Context, id string, req dto.ResubmissionRequest, actor models.Actor) (*models.Application, error) {
	req.Remarks = strings.TrimSpace(req.Remarks)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "remarks are required")
	}
	if err := requireReviewer(actor); err != nil {
		return nil, err
	}
	remarks := req.Remarks
	return s.mutate(ctx, id, EventRequestResubmission, actor, func(app *models.Application, now time.Time) (*Transition, *string, error) {
		t, err := TransitionFor(app, EventRequestResubmission)
		if err != nil {
			return nil, nil, err
		}
		return &t, &remarks, nil
	})
}

// Withdraw cancels an application that has not entered review.
func (s *ApplicationService) Withdraw(ctx context.Context, id string, req dto.WithdrawApplicationRequest, actor models.Actor) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	reason := optionalString(req.Reason)
	return s.mutate(ctx, id, EventWithdraw, actor, func(app *models.Application, now time.Time) (*Transition, *string, error) {
		if err := authorizeApplication(app, actor); err != nil {
			return nil, nil, err
		}
		t, err := TransitionFor(app, EventWithdraw)
		if err != nil {
			return nil, nil, err
		}
		app.WithdrawnAt = &now
		return &t, reason, nil
	})
}

// RecordArtifact stores an artifact locator without touching history or version.
func (s *ApplicationService) RecordArtifact(ctx context.Context, id string, kind models.ArtifactKind, locator string) error {
	if err := s.store.UpdateArtifactLocator(ctx, id, kind, locator); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record artifact")
	}
	s.cache.InvalidateApplication(ctx, id)
	return nil
}

// mutateFunc edits the cloned application in place. A nil transition means the
// change is persisted without a history entry or notification.
type mutateFunc func(app *models.Application, now time.Time) (*Transition, *string, error)

// mutate runs one read-modify-write cycle, retrying from a fresh read when the
// conditional write loses to a concurrent writer.
func (s *ApplicationService) mutate(ctx context.Context, id string, event WorkflowEvent, actor models.Actor, apply mutateFunc) (*models.Application, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		current, err := s.read(ctx, id)
		if err != nil {
			return nil, err
		}
		now := s.now()
		next := current.Clone()
		t, remarks, err := apply(next, now)
		if err != nil {
			s.metrics.RecordTransitionError(string(event), appErrors.FromError(err).Code)
			return nil, err
		}
		if t != nil {
			if t.Status != "" {
				next.Status = t.Status
			}
			if t.Stage != "" {
				next.CurrentStage = t.Stage
			}
			appendHistory(next, t.Action, actor, remarks, now)
		}
		if current.Status == models.ApplicationStatusRejected && next.Status != models.ApplicationStatusRejected {
			next.RejectionReason = nil
			next.RejectedAt = nil
		}
		next.Version = current.Version + 1
		next.UpdatedAt = now

		err = s.store.Update(ctx, next, current.Version)
		switch {
		case err == nil:
		case errors.Is(err, repository.ErrVersionConflict):
			logger.WithContext(ctx, s.logger).Warn("application write conflict, retrying",
				zap.String("application_id", id),
				zap.String("event", string(event)),
				zap.Int("attempt", attempt),
			)
			continue
		case errors.Is(err, repository.ErrNotFound):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application")
		}

		s.cache.InvalidateApplication(ctx, id)
		if t == nil {
			return next, nil
		}
		s.metrics.RecordTransition(string(event), string(next.Status))
		logger.WithContext(ctx, s.logger).Info("application transition",
			zap.String("application_id", id),
			zap.String("event", string(event)),
			zap.String("from", string(current.Status)),
			zap.String("to", string(next.Status)),
			zap.String("actor_id", actor.ID),
		)
		if t.Notification != "" {
			notice := TransitionNotice{Type: t.Notification, Actor: actor, Application: next.Clone()}
			if remarks != nil {
				notice.Message = *remarks
			}
			s.notifier.Dispatch(ctx, notice)
		}
		return next, nil
	}
	s.metrics.RecordTransitionError(string(event), appErrors.ErrConflict.Code)
	return nil, appErrors.Clone(appErrors.ErrConflict, "application was modified concurrently, please retry")
}

// load reads through the cache.
func (s *ApplicationService) load(ctx context.Context, id string) (*models.Application, bool, error) {
	if app, ok := s.cache.GetApplication(ctx, id); ok {
		return app, true, nil
	}
	app, err := s.read(ctx, id)
	if err != nil {
		return nil, false, err
	}
	s.cache.PutApplication(ctx, app)
	return app, false, nil
}

// read always goes to the store; writes must never start from a cached snapshot.
func (s *ApplicationService) read(ctx context.Context, id string) (*models.Application, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	app, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

func (s *ApplicationService) submissionCheck(app *models.Application, termsAccepted bool) ValidationResult {
	result := ValidateDocumentList(s.catalog, app.Documents, s.now())
	sectionErrors := make([]string, 0, 5)
	for _, section := range app.Sections.MissingSections() {
		sectionErrors = append(sectionErrors, fmt.Sprintf("missing section: %s", section))
	}
	if !termsAccepted {
		sectionErrors = append(sectionErrors, "terms and conditions must be accepted")
	}
	for _, doc := range models.ActiveDocuments(app.Documents) {
		if doc.Status == models.DocumentStatusRejected {
			sectionErrors = append(sectionErrors, fmt.Sprintf("rejected document must be replaced: %s", s.catalog.Label(doc.DocumentType)))
		}
	}
	result.Errors = append(sectionErrors, result.Errors...)
	return result
}

func draftOwners(req dto.SaveDraftRequest, actor models.Actor) (string, *string, error) {
	switch actor.Role {
	case models.RoleStudent:
		return actor.ID, nil, nil
	case models.RoleAgent:
		if strings.TrimSpace(req.StudentID) == "" {
			return "", nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required when an agent creates an application")
		}
		agent := actor.ID
		return req.StudentID, &agent, nil
	case models.RoleStaff, models.RoleAdmin:
		if strings.TrimSpace(req.StudentID) == "" {
			return "", nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
		}
		return req.StudentID, req.AgentID, nil
	default:
		return "", nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot create applications")
	}
}

func authorizeApplication(app *models.Application, actor models.Actor) error {
	switch {
	case actor.Role.IsReviewer():
		return nil
	case actor.Role == models.RoleStudent && app.StudentID == actor.ID:
		return nil
	case actor.Role == models.RoleAgent && app.AgentID != nil && *app.AgentID == actor.ID:
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "you do not have access to this application")
}

func requireReviewer(actor models.Actor) error {
	if actor.Role.IsReviewer() {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "only staff may review applications")
}

func mergeSections(sections *models.ApplicationSections, req dto.SaveDraftRequest) {
	sections.Personal = mergeSection(sections.Personal, req.Personal)
	sections.Contact = mergeSection(sections.Contact, req.Contact)
	sections.Course = mergeSection(sections.Course, req.Course)
	sections.Guardian = mergeSection(sections.Guardian, req.Guardian)
}

func mergeSection(dst, src models.SectionData) models.SectionData {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(models.SectionData, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// mergeDocuments appends new uploads. An upload replaces (supersedes) the active document
// of the same type; re-sending a document of this application is a no-op. New uploads
// always get a server-side id and belong to applicationID.
func mergeDocuments(applicationID string, existing, incoming []models.UploadedDocument, now time.Time) []models.UploadedDocument {
	docs := existing
	for _, doc := range incoming {
		if doc.ID != "" && indexOfDocument(docs, doc.ID) >= 0 {
			continue
		}
		active := -1
		for i := range docs {
			if docs[i].Active() && docs[i].DocumentType == doc.DocumentType {
				active = i
				break
			}
		}
		if active >= 0 && docs[active].StorageLocator == doc.StorageLocator && doc.StorageLocator != "" {
			continue
		}
		if active >= 0 {
			docs[active].Superseded = true
			supersededAt := now
			docs[active].SupersededAt = &supersededAt
		}
		doc.ID = uuid.NewString()
		doc.ApplicationID = applicationID
		if doc.UploadedAt.IsZero() {
			doc.UploadedAt = now
		}
		doc.Status = models.DocumentStatusPending
		doc.Remarks = nil
		doc.ReviewedBy = nil
		doc.ReviewedAt = nil
		doc.Superseded = false
		doc.SupersededAt = nil
		docs = append(docs, doc)
	}
	return docs
}

func indexOfDocument(docs []models.UploadedDocument, id string) int {
	for i := range docs {
		if docs[i].ID == id {
			return i
		}
	}
	return -1
}

func findActiveDocument(docs []models.UploadedDocument, d models.DocumentDecision) int {
	for i := range docs {
		if !docs[i].Active() {
			continue
		}
		if d.DocumentID != "" && docs[i].ID == d.DocumentID {
			return i
		}
		if d.DocumentID == "" && docs[i].DocumentType == d.DocumentType {
			return i
		}
	}
	return -1
}

func applyDecision(doc *models.UploadedDocument, d models.DocumentDecision, actor models.Actor, now time.Time) {
	remarks := strings.TrimSpace(d.Remarks)
	if d.Status == models.DocumentStatusApproved && remarks == "" {
		remarks = defaultApprovalRemarks
	}
	reviewer := actor.ID
	reviewedAt := now
	doc.Status = d.Status
	doc.Remarks = &remarks
	doc.ReviewedBy = &reviewer
	doc.ReviewedAt = &reviewedAt
}

func decisionRef(d models.DocumentDecision) string {
	if d.DocumentID != "" {
		return d.DocumentID
	}
	return d.DocumentType
}

func appendHistory(app *models.Application, action models.HistoryAction, actor models.Actor, remarks *string, now time.Time) {
	app.WorkflowHistory = append(app.WorkflowHistory, models.WorkflowHistoryEntry{
		ID:        uuid.NewString(),
		Stage:     app.CurrentStage,
		Status:    app.Status,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Action:    action,
		Remarks:   remarks,
		Timestamp: now,
	})
}

func restampReview(summary, previous models.ReviewStatus) models.ReviewStatus {
	summary.ReviewedBy = previous.ReviewedBy
	summary.ReviewedAt = previous.ReviewedAt
	return summary
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

type noopNotifier struct{}

func (noopNotifier) Dispatch(context.Context, TransitionNotice) {}
