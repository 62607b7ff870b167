package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Y04ash/Projexx/internal/ident"
	"github.com/Y04ash/Projexx/internal/middleware"
)

func userIDFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(string); ok {
			return strings.TrimSpace(id)
		}
	}
	return ""
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

// normalizedParam resolves a path parameter to a canonical identifier.
// Anything that does not normalize is rejected before it can reach a query.
func normalizedParam(c *fiber.Ctx, name string) (string, error) {
	return ident.Normalize(c.Params(name))
}

// normalizeRef resolves a body-level reference that may be a plain string
// or a legacy wrapper object.
func normalizeRef(ref any) (string, error) {
	return ident.Normalize(ref)
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}
