package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Y04ash/Projexx/internal/dto"
	"github.com/Y04ash/Projexx/internal/middleware"
	"github.com/Y04ash/Projexx/internal/models"
	"github.com/Y04ash/Projexx/internal/service"
	"github.com/Y04ash/Projexx/internal/utils"
)

// SubmissionHandler wires the submission lifecycle endpoints.
type SubmissionHandler struct {
	submissions service.SubmissionService
	grading     service.GradingService
	logger      zerolog.Logger
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(submissions service.SubmissionService, grading service.GradingService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		grading:     grading,
		logger:      logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches submission endpoints to the router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("/submissions", middleware.RequireRole(models.RoleStudent), h.create)
	router.Get("/submissions/:id", h.get)
	router.Delete("/submissions/:id", middleware.RequireRole(models.RoleStudent), h.remove)
	router.Put("/submissions/:id/grade", middleware.RequireRole(models.RoleFaculty), h.grade)
	router.Post("/submissions/:id/restore", middleware.RequireRole(models.RoleFaculty), h.restore)
	router.Get("/tasks/:id/submissions", middleware.RequireRole(models.RoleFaculty), h.listByTask)
}

// submissionCreateBody tolerates legacy clients that send the task
// reference as a wrapper object instead of a plain string.
type submissionCreateBody struct {
	TaskID        any                     `json:"task_id"`
	Comment       string                  `json:"comment"`
	Collaborators []string                `json:"collaborators"`
	Attachments   []dto.AttachmentPayload `json:"attachments"`
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	var body submissionCreateBody
	if err := c.BodyParser(&body); err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "missing_fields", "invalid payload")
	}

	taskID, err := normalizeRef(body.TaskID)
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_id", "invalid task reference")
	}

	payload := dto.SubmissionCreateRequest{
		TaskID:        taskID,
		StudentID:     userIDFromContext(c),
		Comment:       body.Comment,
		Collaborators: body.Collaborators,
		Attachments:   body.Attachments,
	}

	submission, err := h.submissions.Submit(c.UserContext(), payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTaskNotFound):
			return utils.SendErrorCode(c, fiber.StatusNotFound, "task_not_found", "task not found")
		case errors.Is(err, service.ErrStudentNotFound):
			return utils.SendErrorCode(c, fiber.StatusNotFound, "not_found", "student not found")
		case errors.Is(err, service.ErrNotAssigned):
			return utils.SendErrorCode(c, fiber.StatusForbidden, "not_assigned", "you are not assigned to this task")
		case errors.Is(err, service.ErrAlreadySubmitted):
			return utils.SendErrorCode(c, fiber.StatusConflict, "already_submitted", "you have already submitted this task")
		case errors.Is(err, service.ErrDeadlinePassed):
			return utils.SendErrorCode(c, fiber.StatusBadRequest, "deadline_passed", "the deadline for this task has passed")
		case errors.Is(err, service.ErrAttemptLimit):
			return utils.SendErrorCode(c, fiber.StatusBadRequest, "attempt_limit_reached", "maximum submission attempts reached")
		case errors.Is(err, service.ErrCommentLength):
			return utils.SendErrorCode(c, fiber.StatusBadRequest, "missing_fields", "comment must be between 10 and 2000 characters")
		case isValidationError(err):
			return utils.SendErrorCode(c, fiber.StatusBadRequest, "missing_fields", err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to create submission")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to create submission")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission created", submission)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := normalizedParam(c, "id")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_id", "invalid submission id")
	}

	viewer := service.ViewContext{
		ViewerID:   userIDFromContext(c),
		ViewerRole: userRoleFromContext(c),
		IPAddress:  c.IP(),
		UserAgent:  c.Get("User-Agent"),
	}

	submission, err := h.submissions.Get(c.UserContext(), id, viewer)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionNotFound):
			return utils.SendErrorCode(c, fiber.StatusNotFound, "not_found", "submission not found")
		case errors.Is(err, service.ErrAccessDenied):
			return utils.SendErrorCode(c, fiber.StatusForbidden, "access_denied", "you cannot view this submission")
		default:
			requestLogger(h.logger, c).Error().Err(err).Str("submission_id", id).Msg("failed to load submission")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to load submission")
		}
	}

	return utils.SendSuccess(c, "submission found", submission)
}

func (h *SubmissionHandler) listByTask(c *fiber.Ctx) error {
	taskID, err := normalizedParam(c, "id")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_id", "invalid task id")
	}

	facultyID := userIDFromContext(c)

	var submissions []dto.SubmissionResponse
	if c.QueryBool("include_deleted") {
		submissions, err = h.submissions.ListByTaskAudit(c.UserContext(), taskID, facultyID)
	} else {
		submissions, err = h.submissions.ListByTask(c.UserContext(), taskID, facultyID)
	}
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTaskNotFound):
			return utils.SendErrorCode(c, fiber.StatusNotFound, "task_not_found", "task not found")
		case errors.Is(err, service.ErrAccessDenied):
			return utils.SendErrorCode(c, fiber.StatusForbidden, "not_authorized", "you do not own this task")
		default:
			requestLogger(h.logger, c).Error().Err(err).Str("task_id", taskID).Msg("failed to list submissions")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to list submissions")
		}
	}

	return utils.SendSuccess(c, "submissions found", submissions)
}

func (h *SubmissionHandler) grade(c *fiber.Ctx) error {
	id, err := normalizedParam(c, "id")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_id", "invalid submission id")
	}

	var payload dto.GradeSubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "grade_required", "invalid payload")
	}

	submission, err := h.grading.Grade(c.UserContext(), id, userIDFromContext(c), payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionNotFound):
			return utils.SendErrorCode(c, fiber.StatusNotFound, "not_found", "submission not found")
		case errors.Is(err, service.ErrTaskNotFound):
			return utils.SendErrorCode(c, fiber.StatusNotFound, "task_not_found", "task not found")
		case errors.Is(err, service.ErrNotTaskOwner):
			return utils.SendErrorCode(c, fiber.StatusForbidden, "not_authorized", "only the task owner may grade this submission")
		case errors.Is(err, service.ErrGradeRequired):
			return utils.SendErrorCode(c, fiber.StatusBadRequest, "grade_required", "a non-negative grade is required")
		case errors.Is(err, service.ErrGradeOutOfRange):
			return utils.SendErrorCode(c, fiber.StatusBadRequest, "grade_out_of_range", "grade exceeds the maximum points for this task")
		case errors.Is(err, service.ErrFeedbackTooShort):
			return utils.SendErrorCode(c, fiber.StatusBadRequest, "feedback_too_short", "feedback must be at least 10 characters")
		case errors.Is(err, service.ErrInvalidStatus):
			return utils.SendErrorCode(c, fiber.StatusBadRequest, "missing_fields", "invalid grading status")
		case isValidationError(err):
			return utils.SendErrorCode(c, fiber.StatusBadRequest, "grade_required", err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Str("submission_id", id).Msg("failed to grade submission")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to grade submission")
		}
	}

	return utils.SendSuccess(c, "submission graded", submission)
}

func (h *SubmissionHandler) remove(c *fiber.Ctx) error {
	id, err := normalizedParam(c, "id")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_id", "invalid submission id")
	}

	err = h.submissions.SoftDelete(c.UserContext(), id, userIDFromContext(c), userRoleFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionNotFound):
			return utils.SendErrorCode(c, fiber.StatusNotFound, "not_found", "submission not found")
		case errors.Is(err, service.ErrAccessDenied):
			return utils.SendErrorCode(c, fiber.StatusForbidden, "access_denied", "you cannot delete this submission")
		default:
			requestLogger(h.logger, c).Error().Err(err).Str("submission_id", id).Msg("failed to delete submission")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to delete submission")
		}
	}

	return utils.SendSuccess(c, "submission deleted", nil)
}

func (h *SubmissionHandler) restore(c *fiber.Ctx) error {
	id, err := normalizedParam(c, "id")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_id", "invalid submission id")
	}

	submission, err := h.submissions.Restore(c.UserContext(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionNotFound):
			return utils.SendErrorCode(c, fiber.StatusNotFound, "not_found", "submission not found")
		case errors.Is(err, service.ErrNotDeleted):
			return utils.SendErrorCode(c, fiber.StatusBadRequest, "missing_fields", "submission is not deleted")
		case errors.Is(err, service.ErrAlreadySubmitted):
			return utils.SendErrorCode(c, fiber.StatusConflict, "already_submitted", "an active submission already exists for this task")
		default:
			requestLogger(h.logger, c).Error().Err(err).Str("submission_id", id).Msg("failed to restore submission")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to restore submission")
		}
	}

	return utils.SendSuccess(c, "submission restored", submission)
}
