package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Submission status values. A draft state exists conceptually on the client
// but is never persisted by the workflow.
const (
	SubmissionStatusSubmitted            = "submitted"
	SubmissionStatusUnderReview          = "under_review"
	SubmissionStatusGraded               = "graded"
	SubmissionStatusReturned             = "returned"
	SubmissionStatusResubmissionRequired = "resubmission_required"
)

// Review actions recorded in the append-only review history.
const (
	ReviewActionSubmitted = "submitted"
	ReviewActionReviewed  = "reviewed"
	ReviewActionGraded    = "graded"
	ReviewActionReturned  = "returned"
)

// Attachment is a completed blob-store descriptor embedded on a submission.
// Only descriptors the upload pipeline reports as completed are persisted.
type Attachment struct {
	BlobID       string    `json:"blob_id"`
	URL          string    `json:"url"`
	SecureURL    string    `json:"secure_url"`
	OriginalName string    `json:"original_name"`
	SizeBytes    int64     `json:"size_bytes"`
	Format       string    `json:"format"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// Submission is one attempt by a student against a task. The partial unique
// index enforces at most one non-deleted submission per (student, task) pair;
// the insert itself is the authoritative guard under concurrency.
type Submission struct {
	ID            string       `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID     string       `gorm:"type:uuid;not null;uniqueIndex:idx_active_submission,where:deleted_at IS NULL" json:"student_id"`
	TaskID        string       `gorm:"type:uuid;not null;uniqueIndex:idx_active_submission,where:deleted_at IS NULL" json:"task_id"`
	Comment       string       `gorm:"type:text;not null" json:"comment"`
	Collaborators []string     `gorm:"serializer:json" json:"collaborators"`
	Attachments   []Attachment `gorm:"serializer:json" json:"attachments"`
	Status        string       `gorm:"size:32;not null;index" json:"status"`
	AttemptNumber int          `gorm:"not null;default:1" json:"attempt_number"`
	IsLate        bool         `gorm:"not null;default:false" json:"is_late"`
	SubmittedAt   time.Time    `gorm:"index" json:"submitted_at"`

	Grade    *float64   `json:"grade"`
	Feedback string     `gorm:"type:text" json:"feedback"`
	GradedAt *time.Time `json:"graded_at"`
	GradedBy *string    `gorm:"type:uuid" json:"graded_by"`

	DeletedAt   *time.Time `gorm:"index" json:"deleted_at"`
	DeletedBy   *string    `gorm:"type:uuid" json:"deleted_by"`
	DeleterRole string     `gorm:"size:16" json:"deleter_role"`

	Reviews []SubmissionReview `gorm:"foreignKey:SubmissionID" json:"reviews"`
	Views   []SubmissionView   `gorm:"foreignKey:SubmissionID" json:"views"`
	Student Student            `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
	Task    Task               `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"task"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a canonical id when none was provided.
func (s *Submission) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// IsGraded reports whether the submission carries a final grade.
func (s Submission) IsGraded() bool {
	return s.Grade != nil
}

// IsDeleted reports whether the submission has been soft deleted.
func (s Submission) IsDeleted() bool {
	return s.DeletedAt != nil
}

// SubmissionReview is one entry of the append-only review history. Rows are
// only ever inserted, never updated or removed.
type SubmissionReview struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID string    `gorm:"type:uuid;index;not null" json:"submission_id"`
	ReviewerID   string    `gorm:"type:uuid;not null" json:"reviewer_id"`
	Action       string    `gorm:"size:32;not null" json:"action"`
	Comment      string    `gorm:"type:text" json:"comment"`
	Grade        *float64  `json:"grade"`
	ReviewedAt   time.Time `gorm:"not null" json:"reviewed_at"`
}

// SubmissionView is an append-only record of a submission being opened,
// tagged with the viewer's role rather than inferred from shape.
type SubmissionView struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID string    `gorm:"type:uuid;index;not null" json:"submission_id"`
	ViewerID     string    `gorm:"type:uuid;not null" json:"viewer_id"`
	ViewerRole   string    `gorm:"size:16;not null" json:"viewer_role"`
	ViewedAt     time.Time `gorm:"not null" json:"viewed_at"`
	IPAddress    string    `gorm:"size:64" json:"ip_address"`
	UserAgent    string    `gorm:"size:255" json:"user_agent"`
}
