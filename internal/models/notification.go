package models

import "time"

// NotificationType names the transition a notification reports.
type NotificationType string

const (
	NotificationApplicationCreated   NotificationType = "APPLICATION_CREATED"
	NotificationApplicationSubmitted NotificationType = "APPLICATION_SUBMITTED"
	NotificationDocumentsReviewed    NotificationType = "DOCUMENTS_REVIEWED"
	NotificationApplicationApproved  NotificationType = "APPLICATION_APPROVED"
	NotificationApplicationRejected  NotificationType = "APPLICATION_REJECTED"
	NotificationResubmission         NotificationType = "RESUBMISSION_REQUESTED"
	NotificationApplicationWithdrawn NotificationType = "APPLICATION_WITHDRAWN"
)

// Notification is an in-app inbox record for one recipient.
type Notification struct {
	ID            string              `db:"id" json:"id" bson:"_id"`
	RecipientID   string              `db:"recipient_id" json:"recipientId" bson:"recipientId"`
	Relation      StakeholderRelation `db:"recipient_relation" json:"relation" bson:"relation"`
	ApplicationID string              `db:"application_id" json:"applicationId" bson:"applicationId"`
	Type          NotificationType    `db:"type" json:"type" bson:"type"`
	Title         string              `db:"title" json:"title" bson:"title"`
	Message       string              `db:"message" json:"message" bson:"message"`
	ActorID       string              `db:"actor_id" json:"actorId" bson:"actorId"`
	ActorRole     UserRole            `db:"actor_role" json:"actorRole" bson:"actorRole"`
	Status        ApplicationStatus   `db:"application_status" json:"applicationStatus" bson:"applicationStatus"`
	CreatedAt     time.Time           `db:"created_at" json:"createdAt" bson:"createdAt"`
	ReadAt        *time.Time          `db:"read_at" json:"readAt,omitempty" bson:"readAt,omitempty"`
}

// NotificationFilter constrains inbox listing.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	Page        int
	PageSize    int
}
