package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Y04ash/Projexx/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Student{},
		&models.Faculty{},
		&models.Team{},
		&models.Task{},
		&models.Submission{},
		&models.SubmissionReview{},
		&models.SubmissionView{},
		&models.Notification{},
	))
	return db
}

func seedTask(t *testing.T, db *gorm.DB) (models.Faculty, models.Student, models.Task) {
	t.Helper()

	faculty := models.Faculty{Username: "prof", Email: "prof@example.com"}
	require.NoError(t, db.Create(&faculty).Error)

	student := models.Student{Username: "s1", Email: "s1@example.com"}
	require.NoError(t, db.Create(&student).Error)

	team := models.Team{Name: "Team Alpha", Members: []models.Student{student}}
	require.NoError(t, db.Create(&team).Error)

	task := models.Task{
		Title:       "Essay",
		FacultyID:   faculty.ID,
		DueDate:     time.Now().Add(24 * time.Hour),
		MaxPoints:   100,
		MaxAttempts: 2,
		Teams:       []models.Team{team},
	}
	require.NoError(t, db.Create(&task).Error)

	return faculty, student, task
}

func TestSubmissionRepositoryUniqueActivePair(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	_, student, task := seedTask(t, db)

	first := models.Submission{
		StudentID:   student.ID,
		TaskID:      task.ID,
		Comment:     "Here is my work on the assignment",
		Status:      models.SubmissionStatusSubmitted,
		SubmittedAt: time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), &first))

	second := models.Submission{
		StudentID:   student.ID,
		TaskID:      task.ID,
		Comment:     "Trying to submit a second time",
		Status:      models.SubmissionStatusSubmitted,
		SubmittedAt: time.Now(),
	}
	err := repo.Create(context.Background(), &second)
	require.Error(t, err)
	require.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "expected duplicated key, got %v", err)
}

func TestSubmissionRepositoryAllowsNewAttemptAfterSoftDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	_, student, task := seedTask(t, db)

	first := models.Submission{
		StudentID:   student.ID,
		TaskID:      task.ID,
		Comment:     "Here is my work on the assignment",
		Status:      models.SubmissionStatusSubmitted,
		SubmittedAt: time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), &first))

	now := time.Now()
	first.DeletedAt = &now
	first.DeletedBy = &student.ID
	first.DeleterRole = models.RoleStudent
	require.NoError(t, repo.Update(context.Background(), &first))

	second := models.Submission{
		StudentID:     student.ID,
		TaskID:        task.ID,
		Comment:       "Second attempt after the first was archived",
		Status:        models.SubmissionStatusSubmitted,
		AttemptNumber: 2,
		SubmittedAt:   time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), &second))

	attempts, err := repo.CountAttempts(context.Background(), task.ID, student.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), attempts, "archived attempts still count")
}

func TestSubmissionRepositorySoftDeleteExcludedFromLookups(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	_, student, task := seedTask(t, db)

	submission := models.Submission{
		StudentID:   student.ID,
		TaskID:      task.ID,
		Comment:     "Here is my work on the assignment",
		Status:      models.SubmissionStatusSubmitted,
		SubmittedAt: time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), &submission))

	now := time.Now()
	submission.DeletedAt = &now
	submission.DeleterRole = models.RoleStudent
	require.NoError(t, repo.Update(context.Background(), &submission))

	_, err := repo.GetByID(context.Background(), submission.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	listed, err := repo.ListByTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Empty(t, listed)

	// Audit path still sees the record.
	audit, err := repo.GetByIDIncludingDeleted(context.Background(), submission.ID)
	require.NoError(t, err)
	require.True(t, audit.IsDeleted())

	auditList, err := repo.ListByTaskIncludingDeleted(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, auditList, 1)
}

func TestSubmissionRepositoryReviewsPreloadedInOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	faculty, student, task := seedTask(t, db)

	submission := models.Submission{
		StudentID:   student.ID,
		TaskID:      task.ID,
		Comment:     "Here is my work on the assignment",
		Status:      models.SubmissionStatusSubmitted,
		SubmittedAt: time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), &submission))

	base := time.Now().Add(-time.Hour)
	for i, action := range []string{models.ReviewActionReviewed, models.ReviewActionGraded} {
		review := models.SubmissionReview{
			SubmissionID: submission.ID,
			ReviewerID:   faculty.ID,
			Action:       action,
			ReviewedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.CreateReview(context.Background(), &review))
	}

	loaded, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Reviews, 2)
	require.Equal(t, models.ReviewActionReviewed, loaded.Reviews[0].Action)
	require.Equal(t, models.ReviewActionGraded, loaded.Reviews[1].Action)
}

func TestTaskRepositoryMembership(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db)
	_, student, task := seedTask(t, db)

	outsider := models.Student{Username: "outsider", Email: "outsider@example.com"}
	require.NoError(t, db.Create(&outsider).Error)

	assigned, err := repo.IsStudentAssigned(context.Background(), task.ID, student.ID)
	require.NoError(t, err)
	require.True(t, assigned)

	assigned, err = repo.IsStudentAssigned(context.Background(), task.ID, outsider.ID)
	require.NoError(t, err)
	require.False(t, assigned)
}

func TestTaskRepositoryMarkCompleted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db)
	_, _, task := seedTask(t, db)

	require.NoError(t, repo.MarkCompleted(context.Background(), task.ID))

	updated, err := repo.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusCompleted, updated.Status)
}

func TestNotificationRepositoryUnreadFlow(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)

	recipient := "0b2f8c64-1111-4222-8333-444455556666"
	for i := 0; i < 3; i++ {
		n := models.Notification{
			RecipientID:   recipient,
			RecipientRole: models.RoleFaculty,
			Type:          models.NotificationTypeTaskSubmission,
			Title:         "New Task Submission",
			Message:       "a student submitted work",
			Priority:      models.NotificationPriorityMedium,
		}
		require.NoError(t, repo.Create(context.Background(), &n))
	}

	unread, err := repo.CountUnread(context.Background(), recipient)
	require.NoError(t, err)
	require.Equal(t, int64(3), unread)

	listed, err := repo.ListByRecipient(context.Background(), recipient, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 3)

	marked, err := repo.MarkRead(context.Background(), listed[0].ID, recipient)
	require.NoError(t, err)
	require.True(t, marked.Read)
	require.NotNil(t, marked.ReadAt)

	affected, err := repo.MarkAllRead(context.Background(), recipient)
	require.NoError(t, err)
	require.Equal(t, int64(2), affected)

	unread, err = repo.CountUnread(context.Background(), recipient)
	require.NoError(t, err)
	require.Zero(t, unread)
}
