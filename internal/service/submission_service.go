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
	"github.com/Y04ash/Projexx/internal/upload"
)

const (
	minCommentLength = 10
	maxCommentLength = 2000
)

var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrStudentNotFound    = errors.New("student not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrNotAssigned        = errors.New("student is not assigned to this task")
	ErrAlreadySubmitted   = errors.New("an active submission already exists for this task")
	ErrDeadlinePassed     = errors.New("the deadline for this task has passed")
	ErrAttemptLimit       = errors.New("maximum submission attempts reached")
	ErrCommentLength      = errors.New("comment must be between 10 and 2000 characters")
	ErrAccessDenied       = errors.New("access to this submission is denied")
	ErrNotDeleted         = errors.New("submission is not deleted")
)

// ViewContext captures request metadata recorded alongside a view event.
type ViewContext struct {
	ViewerID   string
	ViewerRole string
	IPAddress  string
	UserAgent  string
}

// SubmissionService owns the submission lifecycle: creation, retrieval
// with view tracking, listing for reviewers, and soft deletion.
type SubmissionService interface {
	Submit(ctx context.Context, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error)
	Get(ctx context.Context, id string, viewer ViewContext) (dto.SubmissionResponse, error)
	ListByTask(ctx context.Context, taskID, facultyID string) ([]dto.SubmissionResponse, error)
	ListByTaskAudit(ctx context.Context, taskID, facultyID string) ([]dto.SubmissionResponse, error)
	SoftDelete(ctx context.Context, id, actorID, actorRole string) error
	Restore(ctx context.Context, id string) (dto.SubmissionResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	tasks       repository.TaskRepository
	students    repository.StudentRepository
	blobs       upload.BlobStore
	dispatcher  Dispatcher
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	sanitizer   *bluemonday.Policy
	now         func() time.Time
}

// NewSubmissionService constructs the submission workflow service. blobs
// may be nil when no blob store is configured; attachment cleanup is then
// skipped on deletion.
func NewSubmissionService(
	submissions repository.SubmissionRepository,
	tasks repository.TaskRepository,
	students repository.StudentRepository,
	blobs upload.BlobStore,
	dispatcher Dispatcher,
	validate *validator.Validate,
	logger zerolog.Logger,
) SubmissionService {
	if dispatcher == nil {
		dispatcher = NopDispatcher{}
	}

	return &submissionService{
		submissions: submissions,
		tasks:       tasks,
		students:    students,
		blobs:       blobs,
		dispatcher:  dispatcher,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/Y04ash/Projexx/internal/service/submission"),
		sanitizer:   bluemonday.StrictPolicy(),
		now:         time.Now,
	}
}

// Submit validates and persists a new submission attempt. The insert
// against the partial unique index is the authoritative duplicate guard;
// every earlier check merely produces a friendlier error.
func (s *submissionService) Submit(ctx context.Context, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submissions.submit", trace.WithAttributes(
		attribute.String("task.id", payload.TaskID),
		attribute.String("student.id", payload.StudentID),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	comment := strings.TrimSpace(s.sanitizer.Sanitize(payload.Comment))
	if length := len([]rune(comment)); length < minCommentLength || length > maxCommentLength {
		return dto.SubmissionResponse{}, ErrCommentLength
	}

	collaborators := normalizeCollaborators(payload.Collaborators)

	student, err := s.students.GetByID(ctx, payload.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrStudentNotFound
		}
		return dto.SubmissionResponse{}, fmt.Errorf("load student: %w", err)
	}

	task, err := s.tasks.GetByID(ctx, payload.TaskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrTaskNotFound
		}
		return dto.SubmissionResponse{}, fmt.Errorf("load task: %w", err)
	}

	assigned, err := s.tasks.IsStudentAssigned(ctx, task.ID, student.ID)
	if err != nil {
		return dto.SubmissionResponse{}, fmt.Errorf("check task membership: %w", err)
	}
	if !assigned {
		return dto.SubmissionResponse{}, ErrNotAssigned
	}

	now := s.now()
	isLate := task.IsPastDue(now)
	if isLate && !task.AllowLate {
		return dto.SubmissionResponse{}, ErrDeadlinePassed
	}

	if existing, err := s.submissions.GetByTaskAndStudent(ctx, task.ID, student.ID); err == nil {
		if existing.Status != models.SubmissionStatusResubmissionRequired {
			return dto.SubmissionResponse{}, ErrAlreadySubmitted
		}
		if err := s.archive(ctx, existing, student.ID, models.RoleStudent, now); err != nil {
			return dto.SubmissionResponse{}, fmt.Errorf("archive previous attempt: %w", err)
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.SubmissionResponse{}, fmt.Errorf("check existing submission: %w", err)
	}

	// Archived attempts still count; the attempt number never regresses.
	attempts, err := s.submissions.CountAttempts(ctx, task.ID, student.ID)
	if err != nil {
		return dto.SubmissionResponse{}, fmt.Errorf("count attempts: %w", err)
	}
	attemptNumber := int(attempts) + 1
	if attemptNumber > task.MaxAttempts {
		return dto.SubmissionResponse{}, ErrAttemptLimit
	}

	submission := models.Submission{
		StudentID:     student.ID,
		TaskID:        task.ID,
		Comment:       comment,
		Collaborators: collaborators,
		Attachments:   attachmentsFromPayload(payload.Attachments, now),
		Status:        models.SubmissionStatusSubmitted,
		AttemptNumber: attemptNumber,
		IsLate:        isLate,
		SubmittedAt:   now,
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.SubmissionResponse{}, ErrAlreadySubmitted
		}
		span.RecordError(err)
		return dto.SubmissionResponse{}, fmt.Errorf("create submission: %w", err)
	}

	review := models.SubmissionReview{
		SubmissionID: submission.ID,
		ReviewerID:   student.ID,
		Action:       models.ReviewActionSubmitted,
		Comment:      fmt.Sprintf("Attempt %d submitted", attemptNumber),
		ReviewedAt:   now,
	}
	if err := s.submissions.CreateReview(ctx, &review); err != nil {
		s.logger.Warn().Err(err).Str("submission_id", submission.ID).Msg("failed to record submission review entry")
	}

	created, err := s.submissions.GetByID(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionResponse{}, fmt.Errorf("reload submission: %w", err)
	}

	observability.SubmissionsCreated().WithLabelValues(boolLabel(isLate)).Inc()

	s.dispatcher.NotifyTaskSubmission(ctx, TaskSubmissionEvent{
		FacultyID:    task.FacultyID,
		StudentID:    student.ID,
		StudentName:  displayName(student.FirstName, student.LastName, student.Username),
		TaskID:       task.ID,
		TaskTitle:    task.Title,
		SubmissionID: created.ID,
	})

	s.logger.Info().
		Str("submission_id", created.ID).
		Str("task_id", task.ID).
		Str("student_id", student.ID).
		Int("attempt", attemptNumber).
		Bool("late", isLate).
		Msg("submission created")

	return dto.NewSubmissionResponse(created), nil
}

// Get returns a submission to its owner or to the task's faculty, and
// records the view. View recording is best-effort.
func (s *submissionService) Get(ctx context.Context, id string, viewer ViewContext) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, fmt.Errorf("load submission: %w", err)
	}

	if !s.canView(submission, viewer) {
		return dto.SubmissionResponse{}, ErrAccessDenied
	}

	view := models.SubmissionView{
		SubmissionID: submission.ID,
		ViewerID:     viewer.ViewerID,
		ViewerRole:   viewer.ViewerRole,
		ViewedAt:     s.now(),
		IPAddress:    viewer.IPAddress,
		UserAgent:    viewer.UserAgent,
	}
	if err := s.submissions.CreateView(ctx, &view); err != nil {
		s.logger.Warn().Err(err).Str("submission_id", submission.ID).Msg("failed to record submission view")
	}

	return dto.NewSubmissionResponse(submission), nil
}

// ListByTask returns the active submissions for a task. Only the faculty
// who owns the task may list them.
func (s *submissionService) ListByTask(ctx context.Context, taskID, facultyID string) ([]dto.SubmissionResponse, error) {
	task, err := s.loadOwnedTask(ctx, taskID, facultyID)
	if err != nil {
		return nil, err
	}

	submissions, err := s.submissions.ListByTask(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

// ListByTaskAudit includes soft-deleted submissions so reviewers can see
// superseded attempts.
func (s *submissionService) ListByTaskAudit(ctx context.Context, taskID, facultyID string) ([]dto.SubmissionResponse, error) {
	task, err := s.loadOwnedTask(ctx, taskID, facultyID)
	if err != nil {
		return nil, err
	}

	submissions, err := s.submissions.ListByTaskIncludingDeleted(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

// SoftDelete archives a submission. Only the owning student may delete;
// attachment blobs are cleaned up best-effort.
func (s *submissionService) SoftDelete(ctx context.Context, id, actorID, actorRole string) error {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return fmt.Errorf("load submission: %w", err)
	}

	if actorRole != models.RoleStudent || submission.StudentID != actorID {
		return ErrAccessDenied
	}

	if err := s.archive(ctx, submission, actorID, actorRole, s.now()); err != nil {
		return err
	}

	s.cleanupBlobs(ctx, submission)

	s.logger.Info().
		Str("submission_id", submission.ID).
		Str("deleted_by", actorID).
		Msg("submission soft deleted")

	return nil
}

// Restore clears the deletion markers on an archived submission. This is
// an administrative operation; the handler layer gates who may call it.
func (s *submissionService) Restore(ctx context.Context, id string) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByIDIncludingDeleted(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, fmt.Errorf("load submission: %w", err)
	}

	if !submission.IsDeleted() {
		return dto.SubmissionResponse{}, ErrNotDeleted
	}

	submission.DeletedAt = nil
	submission.DeletedBy = nil
	submission.DeleterRole = ""

	if err := s.submissions.Update(ctx, &submission); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.SubmissionResponse{}, ErrAlreadySubmitted
		}
		return dto.SubmissionResponse{}, fmt.Errorf("restore submission: %w", err)
	}

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) loadOwnedTask(ctx context.Context, taskID, facultyID string) (models.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Task{}, ErrTaskNotFound
		}
		return models.Task{}, fmt.Errorf("load task: %w", err)
	}

	if task.FacultyID != facultyID {
		return models.Task{}, ErrAccessDenied
	}

	return task, nil
}

func (s *submissionService) canView(submission models.Submission, viewer ViewContext) bool {
	switch viewer.ViewerRole {
	case models.RoleStudent:
		return submission.StudentID == viewer.ViewerID
	case models.RoleFaculty:
		return submission.Task.FacultyID == viewer.ViewerID
	default:
		return false
	}
}

func (s *submissionService) archive(ctx context.Context, submission models.Submission, actorID, actorRole string, at time.Time) error {
	submission.DeletedAt = &at
	submission.DeletedBy = &actorID
	submission.DeleterRole = actorRole

	if err := s.submissions.Update(ctx, &submission); err != nil {
		return fmt.Errorf("archive submission: %w", err)
	}

	return nil
}

func (s *submissionService) cleanupBlobs(ctx context.Context, submission models.Submission) {
	if s.blobs == nil {
		return
	}

	for _, attachment := range submission.Attachments {
		if err := s.blobs.Delete(ctx, attachment.BlobID); err != nil {
			s.logger.Warn().Err(err).
				Str("submission_id", submission.ID).
				Str("blob_id", attachment.BlobID).
				Msg("failed to delete attachment blob")
		}
	}
}

func attachmentsFromPayload(payloads []dto.AttachmentPayload, now time.Time) []models.Attachment {
	attachments := make([]models.Attachment, 0, len(payloads))
	for _, p := range payloads {
		uploadedAt := p.UploadedAt
		if uploadedAt.IsZero() {
			uploadedAt = now
		}
		attachments = append(attachments, models.Attachment{
			BlobID:       p.BlobID,
			URL:          p.URL,
			SecureURL:    p.SecureURL,
			OriginalName: p.OriginalName,
			SizeBytes:    p.SizeBytes,
			Format:       p.Format,
			UploadedAt:   uploadedAt,
		})
	}

	return attachments
}

func normalizeCollaborators(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	collaborators := make([]string, 0, len(raw))
	for _, email := range raw {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		collaborators = append(collaborators, email)
	}

	return collaborators
}

func displayName(first, last, fallback string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name == "" {
		return fallback
	}

	return name
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
