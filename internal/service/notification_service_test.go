package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Y04ash/Projexx/internal/dto"
	"github.com/Y04ash/Projexx/internal/models"
)

type fakeNotificationRepo struct {
	notifications []models.Notification
}

func (f *fakeNotificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	notification.CreatedAt = time.Now()
	f.notifications = append(f.notifications, *notification)
	return nil
}

func (f *fakeNotificationRepo) ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range f.notifications {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	for _, n := range f.notifications {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (f *fakeNotificationRepo) MarkRead(ctx context.Context, id, recipientID string) (models.Notification, error) {
	for i, n := range f.notifications {
		if n.ID == id && n.RecipientID == recipientID {
			now := time.Now()
			f.notifications[i].Read = true
			f.notifications[i].ReadAt = &now
			return f.notifications[i], nil
		}
	}
	return models.Notification{}, gorm.ErrRecordNotFound
}

func (f *fakeNotificationRepo) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	var affected int64
	now := time.Now()
	for i, n := range f.notifications {
		if n.RecipientID == recipientID && !n.Read {
			f.notifications[i].Read = true
			f.notifications[i].ReadAt = &now
			affected++
		}
	}
	return affected, nil
}

func TestNotificationServicePublish(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := NewNotificationService(repo, nil, "", nil, testValidator(), testLogger())

	recipient := uuid.NewString()
	stream, cleanup := svc.Subscribe(recipient)
	defer cleanup()

	published, err := svc.Publish(context.Background(), dto.NotificationCreateRequest{
		RecipientID:   recipient,
		RecipientRole: models.RoleFaculty,
		Type:          models.NotificationTypeTaskSubmission,
		Title:         "New Task Submission",
		Message:       "amrita has submitted task: Research Report",
	})
	require.NoError(t, err)
	require.Equal(t, models.NotificationPriorityMedium, published.Priority)
	require.Len(t, repo.notifications, 1)

	select {
	case received := <-stream:
		require.Equal(t, published.ID, received.ID)
	case <-time.After(time.Second):
		t.Fatal("expected live delivery on the subscriber channel")
	}
}

func TestNotificationServicePublishValidation(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := NewNotificationService(repo, nil, "", nil, testValidator(), testLogger())

	_, err := svc.Publish(context.Background(), dto.NotificationCreateRequest{
		RecipientID:   uuid.NewString(),
		RecipientRole: "admin",
		Type:          models.NotificationTypeTaskSubmission,
		Title:         "New Task Submission",
		Message:       "hello",
	})
	require.Error(t, err)
	require.Empty(t, repo.notifications)
}

func TestNotificationServiceMessageSanitized(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := NewNotificationService(repo, nil, "", nil, testValidator(), testLogger())

	published, err := svc.Publish(context.Background(), dto.NotificationCreateRequest{
		RecipientID:   uuid.NewString(),
		RecipientRole: models.RoleStudent,
		Type:          models.NotificationTypeTaskStatusUpdate,
		Title:         "Task Status Update",
		Message:       "<img src=x onerror=alert(1)>Your submission has been graded.",
	})
	require.NoError(t, err)
	require.Equal(t, "Your submission has been graded.", published.Message)
}

func TestNotificationServiceRedisFanOut(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer redisClient.Close()

	repo := &fakeNotificationRepo{}
	svc := NewNotificationService(repo, redisClient, "projexx", nil, testValidator(), testLogger())

	_, err = svc.Publish(context.Background(), dto.NotificationCreateRequest{
		RecipientID:   uuid.NewString(),
		RecipientRole: models.RoleStudent,
		Type:          models.NotificationTypeTaskStatusUpdate,
		Title:         "Task Status Update",
		Message:       "Your submission has been graded.",
	})
	require.NoError(t, err)
}

func TestNotificationServiceCrossNodeDedup(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := NewNotificationService(repo, nil, "", nil, testValidator(), testLogger()).(*notificationService)

	recipient := uuid.NewString()
	stream, cleanup := svc.Subscribe(recipient)
	defer cleanup()

	foreign := notificationEvent{
		Source: uuid.NewString(),
		Notification: dto.NotificationResponse{
			ID:          uuid.NewString(),
			RecipientID: recipient,
			Type:        models.NotificationTypeTaskStatusUpdate,
		},
		SentAt: time.Now(),
	}
	payload, err := json.Marshal(foreign)
	require.NoError(t, err)
	svc.handleEvent(payload)

	select {
	case received := <-stream:
		require.Equal(t, foreign.Notification.ID, received.ID)
	case <-time.After(time.Second):
		t.Fatal("expected cross-node event to reach the subscriber")
	}

	// Events this node published itself are already broadcast locally
	// and must not be delivered twice.
	own := foreign
	own.Source = svc.nodeID
	own.Notification.ID = uuid.NewString()
	payload, err = json.Marshal(own)
	require.NoError(t, err)
	svc.handleEvent(payload)

	select {
	case received := <-stream:
		t.Fatalf("unexpected duplicate delivery: %s", received.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotificationServiceReadFlow(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := NewNotificationService(repo, nil, "", nil, testValidator(), testLogger())

	recipient := uuid.NewString()
	for i := 0; i < 3; i++ {
		_, err := svc.Publish(context.Background(), dto.NotificationCreateRequest{
			RecipientID:   recipient,
			RecipientRole: models.RoleStudent,
			Type:          models.NotificationTypeTaskStatusUpdate,
			Title:         "Task Status Update",
			Message:       "Your submission is under review.",
		})
		require.NoError(t, err)
	}

	unread, err := svc.CountUnread(context.Background(), recipient)
	require.NoError(t, err)
	require.EqualValues(t, 3, unread)

	listed, err := svc.List(context.Background(), recipient, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 3)

	marked, err := svc.MarkRead(context.Background(), listed[0].ID, recipient)
	require.NoError(t, err)
	require.True(t, marked.Read)

	affected, err := svc.MarkAllRead(context.Background(), recipient)
	require.NoError(t, err)
	require.EqualValues(t, 2, affected)

	unread, err = svc.CountUnread(context.Background(), recipient)
	require.NoError(t, err)
	require.Zero(t, unread)
}

func TestNotificationServiceTaskSubmissionHelper(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := NewNotificationService(repo, nil, "", nil, testValidator(), testLogger())

	facultyID := uuid.NewString()
	svc.NotifyTaskSubmission(context.Background(), TaskSubmissionEvent{
		FacultyID:    facultyID,
		StudentID:    uuid.NewString(),
		StudentName:  "Amrita Shah",
		TaskID:       uuid.NewString(),
		TaskTitle:    "Research Report",
		SubmissionID: uuid.NewString(),
	})

	require.Len(t, repo.notifications, 1)
	stored := repo.notifications[0]
	require.Equal(t, facultyID, stored.RecipientID)
	require.Equal(t, models.RoleFaculty, stored.RecipientRole)
	require.Equal(t, models.NotificationTypeTaskSubmission, stored.Type)
	require.Contains(t, stored.Message, "Amrita Shah")
}

func TestNotificationServiceStatusHelperIncludesGrade(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := NewNotificationService(repo, nil, "", nil, testValidator(), testLogger())

	grade := 42.0
	studentID := uuid.NewString()
	svc.NotifyTaskStatusUpdate(context.Background(), TaskStatusUpdateEvent{
		StudentID:    studentID,
		TaskID:       uuid.NewString(),
		TaskTitle:    "Research Report",
		SubmissionID: uuid.NewString(),
		Status:       models.SubmissionStatusGraded,
		Feedback:     "Strong analysis.",
		Grade:        &grade,
		MaxPoints:    50,
	})

	require.Len(t, repo.notifications, 1)
	stored := repo.notifications[0]
	require.Equal(t, studentID, stored.RecipientID)
	require.Equal(t, models.NotificationPriorityHigh, stored.Priority)
	require.EqualValues(t, 42.0, stored.Data["grade"])
	require.Contains(t, stored.Message, "42/50")
}
