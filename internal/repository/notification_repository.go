package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/admission-portal-api/internal/models"
)

// NotificationRepository is the in-app inbox. It doubles as the notification sender.
type NotificationRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db, now: time.Now}
}

const notificationColumns = `id, recipient_id, recipient_relation, application_id, type, title, message,
       actor_id, actor_role, application_status, created_at, read_at`

// Send stores the notification in the recipient's inbox. Redelivery of the same id is a no-op.
func (r *NotificationRepository) Send(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now().UTC()
	}
	const query = `INSERT INTO notifications (` + notificationColumns + `)
	VALUES (:id, :recipient_id, :recipient_relation, :application_id, :type, :title, :message,
	        :actor_id, :actor_role, :application_status, :created_at, :read_at)
	ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// List returns a page of the recipient's notifications (newest first) and the total count.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	conditions := []string{"recipient_id = $1"}
	args := []interface{}{filter.RecipientID}
	if filter.UnreadOnly {
		conditions = append(conditions, "read_at IS NULL")
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM notifications"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	query := fmt.Sprintf("SELECT %s FROM notifications%s ORDER BY created_at DESC, id LIMIT %d OFFSET %d",
		notificationColumns, where, size, (page-1)*size)

	items := make([]models.Notification, 0)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return items, total, nil
}

// MarkRead stamps read_at once. It returns ErrNotFound when the notification is not the recipient's.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string) error {
	const query = `UPDATE notifications SET read_at = COALESCE(read_at, $1) WHERE id = $2 AND recipient_id = $3`
	result, err := r.db.ExecContext(ctx, query, r.now().UTC(), id, recipientID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check notification rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
