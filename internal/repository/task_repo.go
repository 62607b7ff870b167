package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Y04ash/Projexx/internal/models"
)

// TaskRepository exposes the task lookups the submission workflow needs.
// Task CRUD itself is owned elsewhere.
type TaskRepository interface {
	GetByID(ctx context.Context, id string) (models.Task, error)
	IsStudentAssigned(ctx context.Context, taskID, studentID string) (bool, error)
	MarkCompleted(ctx context.Context, taskID string) error
}

type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository instantiates the repository.
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Model(&models.Task{}).
		Preload("Teams").
		First(&task, "id = ?", id).Error; err != nil {
		return models.Task{}, err
	}

	return task, nil
}

// IsStudentAssigned reports whether the student is a member of any team the
// task is assigned to.
func (r *taskRepository) IsStudentAssigned(ctx context.Context, taskID, studentID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Table("task_teams").
		Joins("JOIN team_members ON team_members.team_id = task_teams.team_id").
		Where("task_teams.task_id = ?", taskID).
		Where("team_members.student_id = ?", studentID).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}

// MarkCompleted flips the task status once a grading outcome implies
// course completion.
func (r *taskRepository) MarkCompleted(ctx context.Context, taskID string) error {
	return r.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ?", taskID).
		Updates(map[string]any{
			"status":     models.TaskStatusCompleted,
			"updated_at": time.Now(),
		}).Error
}
