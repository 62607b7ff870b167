package dto

import (
	"time"

	"github.com/Y04ash/Projexx/internal/models"
)

// AttachmentPayload is one completed upload descriptor sent back by the
// client when finalizing a submission. Every field is required: partial
// descriptors are never accepted as completed attachments.
type AttachmentPayload struct {
	BlobID       string    `json:"blob_id" validate:"required"`
	URL          string    `json:"url" validate:"required,url"`
	SecureURL    string    `json:"secure_url" validate:"required,url"`
	OriginalName string    `json:"original_name" validate:"required"`
	SizeBytes    int64     `json:"size_bytes" validate:"required,gt=0"`
	Format       string    `json:"format" validate:"required"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// SubmissionCreateRequest carries a finalized submission. Identifier fields
// hold already-normalized canonical ids; handlers reject anything that does
// not normalize before this struct is built.
type SubmissionCreateRequest struct {
	TaskID        string              `json:"task_id" validate:"required"`
	StudentID     string              `json:"-" validate:"required"`
	Comment       string              `json:"comment" validate:"required"`
	Collaborators []string            `json:"collaborators" validate:"omitempty,dive,email"`
	Attachments   []AttachmentPayload `json:"attachments" validate:"omitempty,dive"`
}

// GradeSubmissionRequest is the strict grading payload.
type GradeSubmissionRequest struct {
	Grade    *float64 `json:"grade" validate:"required"`
	Feedback string   `json:"feedback" validate:"required"`
	Status   *string  `json:"status" validate:"omitempty,oneof=under_review graded returned resubmission_required"`
}

// AttachmentResponse serializes an embedded attachment descriptor.
type AttachmentResponse struct {
	BlobID       string    `json:"blob_id"`
	URL          string    `json:"url"`
	SecureURL    string    `json:"secure_url"`
	OriginalName string    `json:"original_name"`
	SizeBytes    int64     `json:"size_bytes"`
	Format       string    `json:"format"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// TaskLite summarizes a task in submission responses.
type TaskLite struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	MaxPoints float64   `json:"max_points"`
	DueDate   time.Time `json:"due_date"`
}

// StudentLite summarizes a student without exposing full profile data.
type StudentLite struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ReviewResponse serializes one append-only review history entry.
type ReviewResponse struct {
	ReviewerID string    `json:"reviewer_id"`
	Action     string    `json:"action"`
	Comment    string    `json:"comment"`
	Grade      *float64  `json:"grade"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID            string               `json:"id"`
	TaskID        string               `json:"task_id"`
	StudentID     string               `json:"student_id"`
	Comment       string               `json:"comment"`
	Collaborators []string             `json:"collaborators"`
	Attachments   []AttachmentResponse `json:"attachments"`
	Status        string               `json:"status"`
	AttemptNumber int                  `json:"attempt_number"`
	IsLate        bool                 `json:"is_late"`
	SubmittedAt   time.Time            `json:"submitted_at"`
	Grade         *float64             `json:"grade"`
	Feedback      string               `json:"feedback"`
	GradedAt      *time.Time           `json:"graded_at"`
	GradedBy      *string              `json:"graded_by"`
	Reviews       []ReviewResponse     `json:"reviews"`
	Deleted       bool                 `json:"deleted"`
	Task          TaskLite             `json:"task"`
	Student       StudentLite          `json:"student"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:            model.ID,
		TaskID:        model.TaskID,
		StudentID:     model.StudentID,
		Comment:       model.Comment,
		Collaborators: model.Collaborators,
		Status:        model.Status,
		AttemptNumber: model.AttemptNumber,
		IsLate:        model.IsLate,
		SubmittedAt:   model.SubmittedAt,
		Grade:         model.Grade,
		Feedback:      model.Feedback,
		GradedAt:      model.GradedAt,
		GradedBy:      model.GradedBy,
		Deleted:       model.IsDeleted(),
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}

	if len(model.Attachments) > 0 {
		attachments := make([]AttachmentResponse, 0, len(model.Attachments))
		for _, a := range model.Attachments {
			attachments = append(attachments, AttachmentResponse{
				BlobID:       a.BlobID,
				URL:          a.URL,
				SecureURL:    a.SecureURL,
				OriginalName: a.OriginalName,
				SizeBytes:    a.SizeBytes,
				Format:       a.Format,
				UploadedAt:   a.UploadedAt,
			})
		}
		response.Attachments = attachments
	}

	if len(model.Reviews) > 0 {
		reviews := make([]ReviewResponse, 0, len(model.Reviews))
		for _, entry := range model.Reviews {
			reviews = append(reviews, ReviewResponse{
				ReviewerID: entry.ReviewerID,
				Action:     entry.Action,
				Comment:    entry.Comment,
				Grade:      entry.Grade,
				ReviewedAt: entry.ReviewedAt,
			})
		}
		response.Reviews = reviews
	}

	if model.Task.ID != "" {
		response.Task = TaskLite{
			ID:        model.Task.ID,
			Title:     model.Task.Title,
			MaxPoints: model.Task.MaxPoints,
			DueDate:   model.Task.DueDate,
		}
	}

	if model.Student.ID != "" {
		response.Student = StudentLite{
			ID:        model.Student.ID,
			Username:  model.Student.Username,
			Email:     model.Student.Email,
			FirstName: model.Student.FirstName,
			LastName:  model.Student.LastName,
		}
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
