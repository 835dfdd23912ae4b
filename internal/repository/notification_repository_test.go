package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-portal-api/internal/models"
)

var notificationRowColumns = []string{"id", "recipient_id", "recipient_relation", "application_id", "type", "title", "message",
	"actor_id", "actor_role", "application_status", "created_at", "read_at"}

func TestNotificationRepositorySend(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).WillReturnResult(sqlmock.NewResult(1, 1))

	n := &models.Notification{ID: "n-1", RecipientID: "stu-1", ApplicationID: "app-1", Type: models.NotificationApplicationSubmitted}
	require.NoError(t, repo.Send(context.Background(), n))
	require.False(t, n.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryList(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read_at IS NULL")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id LIMIT 5 OFFSET 5")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows(notificationRowColumns).
			AddRow("n-6", "stu-1", "STUDENT", "app-1", "APPLICATION_APPROVED", "Application approved", "ok", "staff-1", "STAFF", "APPROVED", now, nil))

	items, total, err := repo.List(context.Background(), models.NotificationFilter{RecipientID: "stu-1", UnreadOnly: true, Page: 2, PageSize: 5})
	require.NoError(t, err)
	require.Equal(t, 7, total)
	require.Len(t, items, 1)
	require.Equal(t, models.NotificationApplicationApproved, items[0].Type)
	require.Nil(t, items[0].ReadAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkRead(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read_at")).
		WithArgs(sqlmock.AnyArg(), "n-1", "stu-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkRead(context.Background(), "n-1", "stu-1"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read_at")).
		WithArgs(sqlmock.AnyArg(), "n-1", "intruder").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkRead(context.Background(), "n-1", "intruder")
	require.True(t, errors.Is(err, ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}
