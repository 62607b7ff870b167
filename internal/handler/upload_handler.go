package handler

import (
	"errors"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Y04ash/Projexx/internal/service"
	"github.com/Y04ash/Projexx/internal/upload"
	"github.com/Y04ash/Projexx/internal/utils"
)

// UploadHandler drives the attachment upload endpoint used by the
// submission dialog.
type UploadHandler struct {
	uploads service.UploadService
	logger  zerolog.Logger
}

// NewUploadHandler constructs the handler.
func NewUploadHandler(uploads service.UploadService, logger zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		uploads: uploads,
		logger:  logger.With().Str("component", "upload_handler").Logger(),
	}
}

// Register attaches the upload endpoint to the router group.
func (h *UploadHandler) Register(router fiber.Router) {
	router.Post("/submissions/uploads", h.uploadBatch)
}

func (h *UploadHandler) uploadBatch(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "no_files", "multipart form required")
	}

	files := collectFiles(form)
	if len(files) == 0 {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "no_files", "no files uploaded")
	}

	taskID := ""
	if raw := formValue(form, "task_id"); raw != "" {
		taskID, err = normalizeRef(raw)
		if err != nil {
			return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_id", "invalid task reference")
		}
	}

	batch, statuses, err := h.uploads.UploadBatch(c.UserContext(), taskID, files)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoFiles):
			return utils.SendErrorCode(c, fiber.StatusBadRequest, "no_files", "no files uploaded")
		case errors.Is(err, service.ErrTaskNotFound):
			return utils.SendErrorCode(c, fiber.StatusNotFound, "task_not_found", "task not found")
		case errors.Is(err, upload.ErrTypeNotAllowed):
			return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_type", err.Error())
		case errors.Is(err, upload.ErrFileTooLarge):
			return utils.SendErrorCode(c, fiber.StatusRequestEntityTooLarge, "invalid_type", err.Error())
		case errors.Is(err, upload.ErrInvalidFileName),
			errors.Is(err, upload.ErrDuplicateFile),
			errors.Is(err, upload.ErrTooManyFiles):
			return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_type", err.Error())
		case errors.Is(err, service.ErrBatchFailed):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"success": false,
				"code":    "upload_failed",
				"message": "one or more uploads failed",
				"files":   statuses,
			})
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("upload batch failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to upload files")
		}
	}

	return utils.SendSuccess(c, "files uploaded", batch)
}

// collectFiles accepts both field names the clients have used for multi
// file uploads.
func collectFiles(form *multipart.Form) []*multipart.FileHeader {
	for _, field := range []string{"images", "files"} {
		if files := form.File[field]; len(files) > 0 {
			return files
		}
	}
	return nil
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}
