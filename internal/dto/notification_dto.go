package dto

import (
	"time"

	"github.com/Y04ash/Projexx/internal/models"
)

// NotificationCreateRequest is the payload the dispatcher persists and
// fans out. RecipientRole is an explicit discriminator, never inferred
// from the shape of the recipient.
type NotificationCreateRequest struct {
	RecipientID   string         `json:"recipient_id" validate:"required"`
	RecipientRole string         `json:"recipient_role" validate:"required,oneof=student faculty"`
	Type          string         `json:"type" validate:"required"`
	Title         string         `json:"title" validate:"required"`
	Message       string         `json:"message" validate:"required"`
	Data          map[string]any `json:"data"`
	Priority      string         `json:"priority" validate:"omitempty,oneof=low medium high"`
}

// NotificationResponse serializes a durable notification record.
type NotificationResponse struct {
	ID            string         `json:"id"`
	RecipientID   string         `json:"recipient_id"`
	RecipientRole string         `json:"recipient_role"`
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Data          map[string]any `json:"data"`
	Priority      string         `json:"priority"`
	Read          bool           `json:"read"`
	ReadAt        *time.Time     `json:"read_at"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NewNotificationResponse converts a Notification model into a DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:            model.ID,
		RecipientID:   model.RecipientID,
		RecipientRole: model.RecipientRole,
		Type:          model.Type,
		Title:         model.Title,
		Message:       model.Message,
		Data:          model.Data,
		Priority:      model.Priority,
		Read:          model.Read,
		ReadAt:        model.ReadAt,
		CreatedAt:     model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts notification models into DTOs.
func NewNotificationResponseSlice(notifications []models.Notification) []NotificationResponse {
	responses := make([]NotificationResponse, 0, len(notifications))
	for _, notification := range notifications {
		responses = append(responses, NewNotificationResponse(notification))
	}

	return responses
}
