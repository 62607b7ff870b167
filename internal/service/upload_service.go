package service

import (
	"context"
	"errors"
	"mime/multipart"
	"time"

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

var (
	ErrNoFiles     = errors.New("no files in upload batch")
	ErrBatchFailed = errors.New("one or more uploads failed")
)

// UploadService runs a batch of multipart files through the upload
// pipeline and returns descriptors for the completed blobs.
type UploadService interface {
	UploadBatch(ctx context.Context, taskID string, files []*multipart.FileHeader) (dto.UploadBatchResponse, []dto.UploadFileStatus, error)
}

type uploadService struct {
	store  upload.BlobStore
	tasks  repository.TaskRepository
	policy upload.RetryPolicy
	rules  upload.Rules
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewUploadService constructs the upload workflow. rules is the fallback
// policy used when no task id accompanies the batch.
func NewUploadService(store upload.BlobStore, tasks repository.TaskRepository, policy upload.RetryPolicy, rules upload.Rules, logger zerolog.Logger) UploadService {
	return &uploadService{
		store:  store,
		tasks:  tasks,
		policy: policy,
		rules:  rules,
		logger: logger.With().Str("component", "upload_service").Logger(),
		tracer: otel.Tracer("github.com/Y04ash/Projexx/internal/service/upload"),
	}
}

// UploadBatch admits, uploads with retries, and finalizes a batch. The
// batch either completes as a whole or fails with per-file statuses; a
// partially uploaded batch is never reported as success.
func (s *uploadService) UploadBatch(ctx context.Context, taskID string, files []*multipart.FileHeader) (dto.UploadBatchResponse, []dto.UploadFileStatus, error) {
	ctx, span := s.tracer.Start(ctx, "uploads.batch", trace.WithAttributes(
		attribute.Int("upload.batch_size", len(files)),
	))
	defer span.End()

	if len(files) == 0 {
		return dto.UploadBatchResponse{}, nil, ErrNoFiles
	}

	rules, err := s.resolveRules(ctx, taskID)
	if err != nil {
		return dto.UploadBatchResponse{}, nil, err
	}

	pipeline := upload.NewPipeline(s.store, s.policy, rules, s.logger)
	for _, file := range files {
		if err := pipeline.Add(file); err != nil {
			observability.UploadRejected().WithLabelValues(rejectionReason(err)).Inc()
			return dto.UploadBatchResponse{}, nil, err
		}
	}

	started := time.Now()
	pipeline.Run(ctx)
	observability.UploadBatchLatency().Observe(time.Since(started).Seconds())

	statuses := pipeline.Snapshot()
	recordBatchMetrics(statuses)

	attachments, err := pipeline.Finalize()
	if err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Int("files", len(files)).Msg("upload batch failed")
		return dto.UploadBatchResponse{}, toStatusDTOs(statuses), ErrBatchFailed
	}

	s.logger.Info().Int("files", len(attachments)).Msg("upload batch completed")

	return dto.NewUploadBatchResponse(attachments), toStatusDTOs(statuses), nil
}

// resolveRules reads the attachment policy from the task when the batch
// names one, falling back to the service defaults otherwise.
func (s *uploadService) resolveRules(ctx context.Context, taskID string) (upload.Rules, error) {
	if taskID == "" {
		return s.rules, nil
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return upload.Rules{}, ErrTaskNotFound
		}
		return upload.Rules{}, err
	}

	rules := upload.Rules{
		AllowedTypes: task.AllowedTypeSet(),
		MaxFileSize:  task.MaxFileSizeBytes,
		MaxFiles:     s.rules.MaxFiles,
	}
	if rules.MaxFileSize <= 0 {
		rules.MaxFileSize = s.rules.MaxFileSize
	}

	return rules, nil
}

func recordBatchMetrics(statuses []upload.FileStatus) {
	for _, status := range statuses {
		observability.UploadFiles().WithLabelValues(status.State).Inc()
		if status.Attempts > 1 {
			observability.UploadRetries().Add(float64(status.Attempts - 1))
		}
	}
}

func toStatusDTOs(statuses []upload.FileStatus) []dto.UploadFileStatus {
	out := make([]dto.UploadFileStatus, 0, len(statuses))
	for _, status := range statuses {
		entry := dto.UploadFileStatus{
			Name:     status.Name,
			State:    status.State,
			Attempts: status.Attempts,
		}
		if status.Err != nil {
			entry.Error = status.Err.Error()
		}
		out = append(out, entry)
	}

	return out
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, upload.ErrTypeNotAllowed):
		return "invalid_type"
	case errors.Is(err, upload.ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, upload.ErrInvalidFileName):
		return "invalid_name"
	case errors.Is(err, upload.ErrDuplicateFile):
		return "duplicate"
	case errors.Is(err, upload.ErrTooManyFiles):
		return "too_many"
	default:
		return "other"
	}
}

// DefaultUploadRules mirrors the submission dialog limits.
func DefaultUploadRules() upload.Rules {
	types := make(map[string]struct{}, len(models.DefaultAllowedFileTypes))
	for _, ext := range models.DefaultAllowedFileTypes {
		types[ext] = struct{}{}
	}

	return upload.Rules{
		AllowedTypes: types,
		MaxFileSize:  52428800,
		MaxFiles:     10,
	}
}
