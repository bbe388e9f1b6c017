package serverutils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"rag-chat-be/pkg/rag/ragerr"
)

// statusFor maps an error returned by a handler to the HTTP status and the
// message shown to the client. Internal details are never echoed for 5xx.
func statusFor(err error) (int, string) {
	var fiberErr *fiber.Error
	var validationErrs validator.ValidationErrors

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiberErr.Message
	case errors.As(err, &validationErrs):
		return fiber.StatusBadRequest, validationMessage(validationErrs)
	case errors.Is(err, ragerr.ErrNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, ragerr.ErrUnauthorized):
		return fiber.StatusForbidden, err.Error()
	case errors.Is(err, ragerr.ErrUnsupportedInput):
		return fiber.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, ragerr.ErrExternalService):
		return fiber.StatusBadGateway, "Upstream AI service failed"
	default:
		return fiber.StatusInternalServerError, "Internal server error"
	}
}

func validationMessage(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%s failed on '%s'", e.Field(), e.Tag()))
	}
	return strings.Join(parts, "; ")
}

// ErrorHandler writes the JSON error body. It doubles as fiber's
// Config.ErrorHandler.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code, message := statusFor(err)
	return ctx.Status(code).JSON(ErrorResponse(code, message))
}

func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return ErrorHandler(ctx, err)
	}
}
