package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Canonical notification kinds dispatched by the workflow.
const (
	NotificationTypeTaskSubmission   = "task_submission"
	NotificationTypeTaskStatusUpdate = "task_status_update"
)

// Notification priorities.
const (
	NotificationPriorityLow    = "low"
	NotificationPriorityMedium = "medium"
	NotificationPriorityHigh   = "high"
)

// Notification is the durable record behind the dispatcher. The recipient is
// a tagged variant: RecipientRole discriminates student and faculty rows.
type Notification struct {
	ID            string            `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID   string            `gorm:"type:uuid;index;not null" json:"recipient_id"`
	RecipientRole string            `gorm:"size:16;not null" json:"recipient_role"`
	Type          string            `gorm:"size:64;not null" json:"type"`
	Title         string            `gorm:"size:255;not null" json:"title"`
	Message       string            `gorm:"type:text;not null" json:"message"`
	Data          datatypes.JSONMap `gorm:"type:json" json:"data"`
	Priority      string            `gorm:"size:16;not null;default:medium" json:"priority"`
	Read          bool              `gorm:"not null;default:false;index" json:"read"`
	ReadAt        *time.Time        `json:"read_at"`
	CreatedAt     time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// BeforeCreate assigns a canonical id when none was provided.
func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
