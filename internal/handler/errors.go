package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-relay/internal/domain"
	"github.com/kursadbilgin/notify-relay/internal/provider"
)

func toHTTPError(err error) error {
	var deliveryErr *provider.DeliveryError

	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidConfig):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.As(err, &deliveryErr):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		return err
	}
}
