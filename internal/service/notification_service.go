package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/repository"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/jobs"
	"github.com/noah-isme/admission-portal-api/pkg/logger"
)

const notificationJobType = "notification"

// TransitionNotice describes a completed workflow transition to fan out.
type TransitionNotice struct {
	Type        models.NotificationType
	Actor       models.Actor
	Application *models.Application
	Message     string
}

// NotificationSender delivers one notification record.
type NotificationSender interface {
	Send(ctx context.Context, notification *models.Notification) error
}

type notificationQueue interface {
	TryEnqueue(job jobs.Job) error
}

type notificationLister interface {
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, recipientID string) error
}

// NotificationService fans transitions out to stakeholders without blocking the caller.
type NotificationService struct {
	queue   notificationQueue
	inbox   notificationLister
	metrics *MetricsService
	logger  *zap.Logger
	enabled bool
}

// NewNotificationService constructs the dispatcher. A nil queue disables dispatch.
func NewNotificationService(queue notificationQueue, inbox notificationLister, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		queue:   queue,
		inbox:   inbox,
		metrics: metrics,
		logger:  logger,
		enabled: queue != nil,
	}
}

// Dispatch builds one record per distinct stakeholder and queues them. It never fails.
func (s *NotificationService) Dispatch(ctx context.Context, notice TransitionNotice) {
	if s == nil || !s.enabled || notice.Application == nil {
		return
	}
	for _, n := range BuildNotifications(notice) {
		record := n
		err := s.queue.TryEnqueue(jobs.Job{ID: record.ID, Type: notificationJobType, Payload: &record})
		if err != nil {
			s.metrics.RecordNotification("dropped")
			logger.WithContext(ctx, s.logger).Warn("notification dropped",
				zap.String("application_id", record.ApplicationID),
				zap.String("recipient_id", record.RecipientID),
				zap.String("type", string(record.Type)),
				zap.Error(err),
			)
			continue
		}
		s.metrics.RecordNotification("queued")
	}
}

// ListNotifications returns the actor's inbox.
func (s *NotificationService) ListNotifications(ctx context.Context, actor models.Actor, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	if s.inbox == nil {
		return []models.Notification{}, &models.Pagination{Page: 1, PageSize: 0}, nil
	}
	filter.RecipientID = actor.ID
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	items, total, err := s.inbox.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// MarkRead marks one of the actor's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id string, actor models.Actor) error {
	if s.inbox == nil {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	if err := s.inbox.MarkRead(ctx, id, actor.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notification")
	}
	return nil
}

// BuildNotifications renders the per-stakeholder records for a notice.
func BuildNotifications(notice TransitionNotice) []models.Notification {
	app := notice.Application
	title, body := notificationCopy(notice.Type, app)
	if notice.Message != "" {
		body = fmt.Sprintf("%s Remarks: %s", body, notice.Message)
	}
	stakeholders := app.Stakeholders()
	out := make([]models.Notification, 0, len(stakeholders))
	for _, sh := range stakeholders {
		out = append(out, models.Notification{
			ID:            uuid.NewString(),
			RecipientID:   sh.UserID,
			Relation:      sh.Relation,
			ApplicationID: app.ID,
			Type:          notice.Type,
			Title:         title,
			Message:       body,
			ActorID:       notice.Actor.ID,
			ActorRole:     notice.Actor.Role,
			Status:        app.Status,
			CreatedAt:     app.UpdatedAt,
		})
	}
	return out
}

func notificationCopy(t models.NotificationType, app *models.Application) (string, string) {
	short := app.ID
	if len(short) > 8 {
		short = short[:8]
	}
	switch t {
	case models.NotificationApplicationCreated:
		return "Application created", fmt.Sprintf("Application %s was created as a draft.", short)
	case models.NotificationApplicationSubmitted:
		return "Application submitted", fmt.Sprintf("Application %s was submitted and is now under review.", short)
	case models.NotificationDocumentsReviewed:
		return "Documents reviewed", fmt.Sprintf("Documents of application %s were reviewed (%d of %d approved).",
			short, app.ReviewStatus.DocumentCounts.Approved, app.ReviewStatus.DocumentCounts.Total)
	case models.NotificationApplicationApproved:
		return "Application approved", fmt.Sprintf("Application %s was approved.", short)
	case models.NotificationApplicationRejected:
		return "Application rejected", fmt.Sprintf("Application %s was rejected.", short)
	case models.NotificationResubmission:
		return "Resubmission requested", fmt.Sprintf("Application %s needs changes before it can be reviewed again.", short)
	case models.NotificationApplicationWithdrawn:
		return "Application withdrawn", fmt.Sprintf("Application %s was withdrawn.", short)
	default:
		return "Application updated", fmt.Sprintf("Application %s is now %s.", short, app.Status)
	}
}

// NotificationWorker drains the outbound queue into the sender.
type NotificationWorker struct {
	sender  NotificationSender
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationWorker constructs a worker.
func NewNotificationWorker(sender NotificationSender, metrics *MetricsService, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{sender: sender, metrics: metrics, logger: logger}
}

// Handle processes one queued record. Failures are logged and reported to the queue,
// which is configured not to retry.
func (w *NotificationWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, ok := job.Payload.(*models.Notification)
	if !ok || record == nil {
		return fmt.Errorf("notification job %s: unexpected payload %T", job.ID, job.Payload)
	}
	if err := w.sender.Send(ctx, record); err != nil {
		w.metrics.RecordNotification("failed")
		w.logger.Warn("notification delivery failed",
			zap.String("notification_id", record.ID),
			zap.String("recipient_id", record.RecipientID),
			zap.Error(err),
		)
		return err
	}
	w.metrics.RecordNotification("sent")
	return nil
}
