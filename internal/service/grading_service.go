package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/Y04ash/Projexx/internal/dto"
	"github.com/Y04ash/Projexx/internal/models"
	"github.com/Y04ash/Projexx/internal/observability"
	"github.com/Y04ash/Projexx/internal/repository"
)

const minFeedbackLength = 10

var (
	ErrNotTaskOwner     = errors.New("only the task owner may grade this submission")
	ErrGradeRequired    = errors.New("a non-negative grade is required")
	ErrGradeOutOfRange  = errors.New("grade exceeds the maximum points for this task")
	ErrFeedbackTooShort = errors.New("feedback must be at least 10 characters")
	ErrInvalidStatus    = errors.New("invalid grading status")
)

// GradingService applies grades and manages the review lifecycle of a
// submission.
type GradingService interface {
	Grade(ctx context.Context, submissionID, reviewerID string, payload dto.GradeSubmissionRequest) (dto.SubmissionResponse, error)
}

type gradingService struct {
	submissions repository.SubmissionRepository
	tasks       repository.TaskRepository
	faculties   repository.FacultyRepository
	dispatcher  Dispatcher
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	sanitizer   *bluemonday.Policy
	now         func() time.Time
}

// NewGradingService constructs the grading workflow service.
func NewGradingService(
	submissions repository.SubmissionRepository,
	tasks repository.TaskRepository,
	faculties repository.FacultyRepository,
	dispatcher Dispatcher,
	validate *validator.Validate,
	logger zerolog.Logger,
) GradingService {
	if dispatcher == nil {
		dispatcher = NopDispatcher{}
	}

	return &gradingService{
		submissions: submissions,
		tasks:       tasks,
		faculties:   faculties,
		dispatcher:  dispatcher,
		validator:   validate,
		logger:      logger.With().Str("component", "grading_service").Logger(),
		tracer:      otel.Tracer("github.com/Y04ash/Projexx/internal/service/grading"),
		sanitizer:   bluemonday.StrictPolicy(),
		now:         time.Now,
	}
}

// Grade applies a grade and feedback to a submission. The upper bound is
// read from the task at grading time, so raising max points immediately
// widens the acceptable range. Repeating an identical grade call is a
// no-op that returns the current state without adding history.
func (s *gradingService) Grade(ctx context.Context, submissionID, reviewerID string, payload dto.GradeSubmissionRequest) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.grade", trace.WithAttributes(
		attribute.String("submission.id", submissionID),
		attribute.String("reviewer.id", reviewerID),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, fmt.Errorf("load submission: %w", err)
	}

	task, err := s.tasks.GetByID(ctx, submission.TaskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrTaskNotFound
		}
		return dto.SubmissionResponse{}, fmt.Errorf("load task: %w", err)
	}

	if task.FacultyID != reviewerID {
		return dto.SubmissionResponse{}, ErrNotTaskOwner
	}

	if payload.Grade == nil || *payload.Grade < 0 {
		return dto.SubmissionResponse{}, ErrGradeRequired
	}
	grade := *payload.Grade
	if grade > task.MaxPoints {
		return dto.SubmissionResponse{}, ErrGradeOutOfRange
	}

	feedback := strings.TrimSpace(s.sanitizer.Sanitize(payload.Feedback))
	if len([]rune(feedback)) < minFeedbackLength {
		return dto.SubmissionResponse{}, ErrFeedbackTooShort
	}

	status := models.SubmissionStatusGraded
	if payload.Status != nil {
		status = *payload.Status
	}
	if !validGradeStatus(status) {
		return dto.SubmissionResponse{}, ErrInvalidStatus
	}

	if sameGrading(submission, reviewerID, grade, feedback, status) {
		return dto.NewSubmissionResponse(submission), nil
	}

	now := s.now()
	submission.Grade = &grade
	submission.Feedback = feedback
	submission.Status = status
	submission.GradedAt = &now
	submission.GradedBy = &reviewerID

	if err := s.submissions.Update(ctx, &submission); err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, fmt.Errorf("apply grade: %w", err)
	}

	review := models.SubmissionReview{
		SubmissionID: submission.ID,
		ReviewerID:   reviewerID,
		Action:       reviewActionForStatus(status),
		Comment:      fmt.Sprintf("Graded with %g/%g points", grade, task.MaxPoints),
		Grade:        &grade,
		ReviewedAt:   now,
	}
	if err := s.submissions.CreateReview(ctx, &review); err != nil {
		s.logger.Warn().Err(err).Str("submission_id", submission.ID).Msg("failed to record grading review entry")
	}

	if status == models.SubmissionStatusGraded {
		if err := s.tasks.MarkCompleted(ctx, task.ID); err != nil {
			s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("failed to mark task completed")
		}
	}

	graded, err := s.submissions.GetByID(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionResponse{}, fmt.Errorf("reload submission: %w", err)
	}

	observability.GradesApplied().Inc()

	facultyName := reviewerID
	if faculty, err := s.faculties.GetByID(ctx, reviewerID); err == nil {
		facultyName = displayName(faculty.FirstName, faculty.LastName, faculty.Username)
	}

	s.dispatcher.NotifyTaskStatusUpdate(ctx, TaskStatusUpdateEvent{
		StudentID:    submission.StudentID,
		TaskID:       task.ID,
		TaskTitle:    task.Title,
		SubmissionID: submission.ID,
		Status:       status,
		Feedback:     feedback,
		FacultyName:  facultyName,
		Grade:        &grade,
		MaxPoints:    task.MaxPoints,
	})

	s.logger.Info().
		Str("submission_id", submission.ID).
		Str("reviewer_id", reviewerID).
		Float64("grade", grade).
		Str("status", status).
		Msg("submission graded")

	return dto.NewSubmissionResponse(graded), nil
}

// sameGrading reports whether the incoming call would change nothing. A
// repeat of the exact same grade, feedback, status and reviewer collapses
// into the earlier application.
func sameGrading(submission models.Submission, reviewerID string, grade float64, feedback, status string) bool {
	if !submission.IsGraded() || submission.GradedBy == nil {
		return false
	}

	return *submission.Grade == grade &&
		submission.Feedback == feedback &&
		submission.Status == status &&
		*submission.GradedBy == reviewerID
}

func validGradeStatus(status string) bool {
	switch status {
	case models.SubmissionStatusUnderReview,
		models.SubmissionStatusGraded,
		models.SubmissionStatusReturned,
		models.SubmissionStatusResubmissionRequired:
		return true
	default:
		return false
	}
}

func reviewActionForStatus(status string) string {
	switch status {
	case models.SubmissionStatusReturned, models.SubmissionStatusResubmissionRequired:
		return models.ReviewActionReturned
	case models.SubmissionStatusUnderReview:
		return models.ReviewActionReviewed
	default:
		return models.ReviewActionGraded
	}
}
