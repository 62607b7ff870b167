package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Y04ash/Projexx/internal/models"
)

// SubmissionRepository defines data operations for submissions. Standard
// lookups exclude soft-deleted rows; the IncludingDeleted variants exist for
// the audit path only.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id string) (models.Submission, error)
	GetByIDIncludingDeleted(ctx context.Context, id string) (models.Submission, error)
	GetByTaskAndStudent(ctx context.Context, taskID, studentID string) (models.Submission, error)
	ListByTask(ctx context.Context, taskID string) ([]models.Submission, error)
	ListByTaskIncludingDeleted(ctx context.Context, taskID string) ([]models.Submission, error)
	CountAttempts(ctx context.Context, taskID, studentID string) (int64, error)
	Update(ctx context.Context, submission *models.Submission) error
	CreateReview(ctx context.Context, review *models.SubmissionReview) error
	CreateView(ctx context.Context, view *models.SubmissionView) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Task").
		Preload("Student").
		Preload("Reviews", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("reviewed_at ASC")
		})
}

func (r *submissionRepository) activeQuery(ctx context.Context) *gorm.DB {
	return r.baseQuery(ctx).Where("submissions.deleted_at IS NULL")
}

// Create inserts the submission. The partial unique index on
// (student_id, task_id) is the authoritative uniqueness guard; a conflict
// surfaces as gorm.ErrDuplicatedKey for the caller to map.
func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (models.Submission, error) {
	var submission models.Submission
	if err := r.activeQuery(ctx).Where("submissions.id = ?", id).First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByIDIncludingDeleted(ctx context.Context, id string) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).Where("submissions.id = ?", id).First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByTaskAndStudent(ctx context.Context, taskID, studentID string) (models.Submission, error) {
	var submission models.Submission
	if err := r.activeQuery(ctx).
		Where("submissions.task_id = ?", taskID).
		Where("submissions.student_id = ?", studentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) ListByTask(ctx context.Context, taskID string) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.activeQuery(ctx).
		Where("submissions.task_id = ?", taskID).
		Order("submitted_at DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) ListByTaskIncludingDeleted(ctx context.Context, taskID string) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.baseQuery(ctx).
		Where("submissions.task_id = ?", taskID).
		Order("submitted_at DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

// CountAttempts counts every attempt for the pair, archived ones included,
// so attempt numbers never regress after a resubmission.
func (r *submissionRepository) CountAttempts(ctx context.Context, taskID, studentID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("task_id = ?", taskID).
		Where("student_id = ?", studentID).
		Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) CreateReview(ctx context.Context, review *models.SubmissionReview) error {
	return r.db.WithContext(ctx).Create(review).Error
}

func (r *submissionRepository) CreateView(ctx context.Context, view *models.SubmissionView) error {
	return r.db.WithContext(ctx).Create(view).Error
}
