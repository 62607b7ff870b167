package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Task status values.
const (
	TaskStatusActive    = "active"
	TaskStatusCompleted = "completed"
)

// Task represents a piece of work assigned to one or more teams. The
// submission policy fields (due date, attempts, attachment limits) are read
// fresh at validation time, never cached on the submission.
type Task struct {
	ID               string    `gorm:"type:uuid;primaryKey" json:"id"`
	Title            string    `gorm:"size:255;not null" json:"title"`
	Description      string    `gorm:"type:text" json:"description"`
	FacultyID        string    `gorm:"type:uuid;index;not null" json:"faculty_id"`
	DueDate          time.Time `gorm:"not null" json:"due_date"`
	MaxPoints        float64   `gorm:"not null;default:100" json:"max_points"`
	MaxAttempts      int       `gorm:"not null;default:1" json:"max_attempts"`
	AllowLate        bool      `gorm:"not null;default:false" json:"allow_late"`
	MaxFileSizeBytes int64     `gorm:"not null;default:52428800" json:"max_file_size_bytes"`
	AllowedFileTypes []string  `gorm:"serializer:json" json:"allowed_file_types"`
	Status           string    `gorm:"size:32;not null;default:active" json:"status"`
	Teams            []Team    `gorm:"many2many:task_teams" json:"teams"`
	Faculty          Faculty   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"faculty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BeforeCreate assigns a canonical id when none was provided.
func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// IsPastDue returns true when the deadline has already passed.
func (t Task) IsPastDue(reference time.Time) bool {
	return reference.After(t.DueDate)
}

// AllowedTypeSet returns the allowed file extensions as a lookup set,
// falling back to the default policy when the task specifies none.
func (t Task) AllowedTypeSet() map[string]struct{} {
	types := t.AllowedFileTypes
	if len(types) == 0 {
		types = DefaultAllowedFileTypes
	}

	set := make(map[string]struct{}, len(types))
	for _, ext := range types {
		set[ext] = struct{}{}
	}
	return set
}

// DefaultAllowedFileTypes mirrors the upload policy used when a task does
// not restrict attachment types itself.
var DefaultAllowedFileTypes = []string{"jpg", "jpeg", "png", "gif", "webp", "pdf", "doc", "docx", "txt"}
