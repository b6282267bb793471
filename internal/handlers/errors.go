package handlers

import (
	"github.com/go-faster/errors"
	"github.com/gofiber/fiber/v2"

	"tokoadmin/internal/repositories"
	"tokoadmin/internal/services"
)

// classify maps workflow errors to a status code and a user-facing message.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return fiber.StatusForbidden, "Access denied"
	case errors.Is(err, repositories.ErrProductNotFound):
		return fiber.StatusNotFound, "Product not found"
	case errors.Is(err, repositories.ErrImageNotFound):
		return fiber.StatusNotFound, "Image not found"
	case errors.Is(err, services.ErrInvalidToken):
		return fiber.StatusBadRequest, "Invalid token"
	case errors.Is(err, services.ErrArtifactDeletionFailed):
		return fiber.StatusBadRequest, "Image could not be deleted"
	default:
		return fiber.StatusInternalServerError, "Internal server error"
	}
}
