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
	"github.com/noah-isme/admission-portal-api/pkg/jobs"
)

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) TryEnqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type senderStub struct {
	mu   sync.Mutex
	sent []*models.Notification
	err  error
}

func (s *senderStub) Send(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *senderStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestBuildNotificationsDistinctStakeholders(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusApproved)
	submitter := staff.ID
	app.SubmittedBy = &submitter

	records := BuildNotifications(TransitionNotice{Type: models.NotificationApplicationApproved, Actor: staff, Application: app, Message: "welcome"})

	require.Len(t, records, 3)
	require.Equal(t, student.ID, records[0].RecipientID)
	require.Equal(t, models.RelationStudent, records[0].Relation)
	require.Equal(t, agent.ID, records[1].RecipientID)
	require.Equal(t, models.RelationAgent, records[1].Relation)
	require.Equal(t, staff.ID, records[2].RecipientID)
	require.Equal(t, models.RelationSubmitter, records[2].Relation)
	require.Contains(t, records[0].Message, "Remarks: welcome")
	require.Equal(t, models.ApplicationStatusApproved, records[0].Status)
}

func TestBuildNotificationsCollapsesDuplicates(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusUnderReview)
	same := student.ID
	app.AgentID = &same
	app.SubmittedBy = &same

	records := BuildNotifications(TransitionNotice{Type: models.NotificationApplicationSubmitted, Actor: student, Application: app})
	require.Len(t, records, 1)
}

func TestDispatchSwallowsQueueErrors(t *testing.T) {
	queue := &queueStub{err: jobs.ErrQueueFull}
	svc := NewNotificationService(queue, nil, NewMetricsService(), nil)

	require.NotPanics(t, func() {
		svc.Dispatch(context.Background(), TransitionNotice{Type: models.NotificationApplicationRejected, Actor: staff, Application: reviewApplication(models.ApplicationStatusRejected)})
	})
	require.Empty(t, queue.jobs)

	queue.err = nil
	svc.Dispatch(context.Background(), TransitionNotice{Type: models.NotificationApplicationRejected, Actor: staff, Application: reviewApplication(models.ApplicationStatusRejected)})
	require.Len(t, queue.jobs, 2)
}

func TestNotificationWorkerDeliversThroughQueue(t *testing.T) {
	sender := &senderStub{}
	worker := NewNotificationWorker(sender, nil, nil)
	queue := jobs.NewQueue("notifications", worker.Handle, jobs.QueueConfig{Workers: 1, BufferSize: 8, MaxRetries: -1})
	queue.Start(context.Background())
	defer queue.Stop()

	svc := NewNotificationService(queue, nil, nil, nil)
	svc.Dispatch(context.Background(), TransitionNotice{Type: models.NotificationApplicationSubmitted, Actor: student, Application: reviewApplication(models.ApplicationStatusUnderReview)})

	require.Eventually(t, func() bool { return sender.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestNotificationWorkerReportsFailure(t *testing.T) {
	worker := NewNotificationWorker(&senderStub{err: errors.New("smtp down")}, nil, nil)
	err := worker.Handle(context.Background(), jobs.Job{ID: "n1", Payload: &models.Notification{ID: "n1"}})
	require.Error(t, err)

	err = worker.Handle(context.Background(), jobs.Job{ID: "n2", Payload: "bogus"})
	require.Error(t, err)
}

func TestTransitionsDispatchWithoutBlocking(t *testing.T) {
	app := reviewApplication(models.ApplicationStatusDraft)
	queue := &queueStub{err: jobs.ErrQueueStopped}
	notifications := NewNotificationService(queue, nil, nil, nil)
	svc := newTestApplicationService(newApplicationStoreStub(app), WithApplicationNotifier(notifications))

	updated, err := svc.Withdraw(context.Background(), app.ID, dto.WithdrawApplicationRequest{Reason: "moving abroad"}, student)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusWithdrawn, updated.Status)
}
