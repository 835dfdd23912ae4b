package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/admission-portal-api/internal/models"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
)

// WorkflowEvent is an input to the application state machine.
type WorkflowEvent string

const (
	EventSaveDraft           WorkflowEvent = "SAVE_DRAFT"
	EventSubmit              WorkflowEvent = "SUBMIT"
	EventDocumentsRejected   WorkflowEvent = "DOCUMENTS_REJECTED"
	EventDocumentsApproved   WorkflowEvent = "DOCUMENTS_APPROVED"
	EventDocumentsReviewed   WorkflowEvent = "DOCUMENTS_REVIEWED"
	EventApprove             WorkflowEvent = "APPROVE"
	EventReject              WorkflowEvent = "REJECT"
	EventRequestResubmission WorkflowEvent = "REQUEST_RESUBMISSION"
	EventWithdraw            WorkflowEvent = "WITHDRAW"
)

// Transition is the outcome of applying an event in a given status.
// An empty Status or Stage keeps the current value.
type Transition struct {
	Status       models.ApplicationStatus
	Stage        models.ApplicationStage
	Action       models.HistoryAction
	Notification models.NotificationType
}

type transitionKey struct {
	from  models.ApplicationStatus
	event WorkflowEvent
}

var (
	editableStatuses = []models.ApplicationStatus{
		models.ApplicationStatusDraft,
		models.ApplicationStatusSubmitted,
		models.ApplicationStatusResubmissionRequired,
		models.ApplicationStatusRejected,
	}
	reviewableStatuses = []models.ApplicationStatus{
		models.ApplicationStatusSubmitted,
		models.ApplicationStatusUnderReview,
		models.ApplicationStatusResubmissionRequired,
		models.ApplicationStatusRejected,
	}
	openStatuses = []models.ApplicationStatus{
		models.ApplicationStatusDraft,
		models.ApplicationStatusSubmitted,
		models.ApplicationStatusUnderReview,
		models.ApplicationStatusResubmissionRequired,
	}
	withdrawableStatuses = []models.ApplicationStatus{
		models.ApplicationStatusDraft,
		models.ApplicationStatusSubmitted,
	}
)

var transitionTable = buildTransitionTable()

func buildTransitionTable() map[transitionKey]Transition {
	table := make(map[transitionKey]Transition)
	add := func(froms []models.ApplicationStatus, event WorkflowEvent, t Transition) {
		for _, from := range froms {
			table[transitionKey{from: from, event: event}] = t
		}
	}

	add(editableStatuses, EventSaveDraft, Transition{
		Action: models.HistoryActionSaveDraft,
	})
	add(editableStatuses, EventSubmit, Transition{
		Status:       models.ApplicationStatusUnderReview,
		Stage:        models.StageUnderReview,
		Action:       models.HistoryActionSubmit,
		Notification: models.NotificationApplicationSubmitted,
	})
	add(reviewableStatuses, EventDocumentsRejected, Transition{
		Status:       models.ApplicationStatusRejected,
		Stage:        models.StageRejected,
		Action:       models.HistoryActionRequestModification,
		Notification: models.NotificationDocumentsReviewed,
	})
	add(reviewableStatuses, EventDocumentsApproved, Transition{
		Status:       models.ApplicationStatusUnderReview,
		Stage:        models.StageUnderReview,
		Action:       models.HistoryActionApprove,
		Notification: models.NotificationDocumentsReviewed,
	})
	add(reviewableStatuses, EventDocumentsReviewed, Transition{
		Status:       models.ApplicationStatusUnderReview,
		Stage:        models.StageDocuments,
		Action:       models.HistoryActionApprove,
		Notification: models.NotificationDocumentsReviewed,
	})
	add(openStatuses, EventApprove, Transition{
		Status:       models.ApplicationStatusApproved,
		Stage:        models.StageApproved,
		Action:       models.HistoryActionApprove,
		Notification: models.NotificationApplicationApproved,
	})
	add(openStatuses, EventReject, Transition{
		Status:       models.ApplicationStatusRejected,
		Stage:        models.StageRejected,
		Action:       models.HistoryActionReject,
		Notification: models.NotificationApplicationRejected,
	})
	add([]models.ApplicationStatus{models.ApplicationStatusUnderReview}, EventRequestResubmission, Transition{
		Status:       models.ApplicationStatusResubmissionRequired,
		Stage:        models.StageDocuments,
		Action:       models.HistoryActionRequestModification,
		Notification: models.NotificationResubmission,
	})
	add(withdrawableStatuses, EventWithdraw, Transition{
		Status:       models.ApplicationStatusWithdrawn,
		Stage:        models.StageWithdrawn,
		Action:       models.HistoryActionWithdraw,
		Notification: models.NotificationApplicationWithdrawn,
	})
	return table
}

// NextTransition looks up the transition for event in status. Illegal combinations
// yield a PRECONDITION_FAILED error with guard "status".
func NextTransition(status models.ApplicationStatus, event WorkflowEvent) (Transition, error) {
	t, ok := transitionTable[transitionKey{from: status, event: event}]
	if !ok {
		return Transition{}, appErrors.Precondition("status",
			fmt.Sprintf("cannot %s an application in status %s", eventVerb(event), status))
	}
	return t, nil
}

// TransitionFor is NextTransition with the application's rejection taken into account.
// A rejection recorded through REJECT (it carries a reason) closes the application; one
// derived from a rejected document may still be edited, resubmitted and re-reviewed.
func TransitionFor(app *models.Application, event WorkflowEvent) (Transition, error) {
	if ClosedByReviewer(app) {
		return Transition{}, appErrors.Precondition("status",
			fmt.Sprintf("cannot %s an application rejected by a reviewer", eventVerb(event)))
	}
	return NextTransition(app.Status, event)
}

// ClosedByReviewer reports whether the application was rejected with a reason.
func ClosedByReviewer(app *models.Application) bool {
	return app.Status == models.ApplicationStatusRejected &&
		app.RejectionReason != nil && strings.TrimSpace(*app.RejectionReason) != ""
}

// AllowedEvents lists the events accepted in status, in declaration order.
func AllowedEvents(status models.ApplicationStatus) []WorkflowEvent {
	events := []WorkflowEvent{
		EventSaveDraft, EventSubmit, EventDocumentsRejected, EventDocumentsApproved, EventDocumentsReviewed,
		EventApprove, EventReject, EventRequestResubmission, EventWithdraw,
	}
	out := make([]WorkflowEvent, 0, len(events))
	for _, e := range events {
		if _, ok := transitionTable[transitionKey{from: status, event: e}]; ok {
			out = append(out, e)
		}
	}
	return out
}

// documentReviewEvent derives the state machine event from the re-aggregated review status.
// Any rejected document rejects the application.
func documentReviewEvent(summary models.ReviewStatus) WorkflowEvent {
	switch {
	case summary.DocumentCounts.Rejected > 0:
		return EventDocumentsRejected
	case summary.OverallDocumentReviewStatus == models.ReviewAllApproved:
		return EventDocumentsApproved
	default:
		return EventDocumentsReviewed
	}
}

func eventVerb(event WorkflowEvent) string {
	switch event {
	case EventSaveDraft:
		return "edit"
	case EventSubmit:
		return "submit"
	case EventDocumentsRejected, EventDocumentsApproved, EventDocumentsReviewed:
		return "review documents of"
	case EventApprove:
		return "approve"
	case EventReject:
		return "reject"
	case EventRequestResubmission:
		return "request resubmission of"
	case EventWithdraw:
		return "withdraw"
	default:
		return string(event)
	}
}
