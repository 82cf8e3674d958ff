// Package httpx holds the fiber glue shared by every handler package.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"medstock-backend/internal/apperr"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/logger"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders fiber errors as-is and maps service errors through
// apperr. Anything unclassified is logged and hidden behind a generic 500.
func ErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		status := apperr.HTTPStatus(err)
		if status == fiber.StatusInternalServerError {
			log.Error("Unexpected error", "path", c.Path(), "method", c.Method(), "error", err)
			return c.Status(status).JSON(fiber.Map{"error": "unexpected server error"})
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
}

func ParamID(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid %s", name))
	}
	return uint(id), nil
}

// QueryUint reads an optional positive integer query parameter.
func QueryUint(c *fiber.Ctx, name string) (*uint, error) {
	s := c.Query(name)
	if s == "" {
		return nil, nil
	}
	var v uint
	if _, err := fmt.Sscan(s, &v); err != nil || v == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid %s", name))
	}
	return &v, nil
}

// QueryDate reads an optional YYYY-MM-DD query parameter.
func QueryDate(c *fiber.Ctx, name string) (*time.Time, error) {
	s := c.Query(name)
	if s == "" {
		return nil, nil
	}
	d, err := clock.ParseDate(s)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("%s must be formatted as YYYY-MM-DD", name))
	}
	return &d, nil
}

func BadBody() error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
}

// ParseBody decodes the request body into out. A JSON value of the wrong type
// is reported against its field; numeric fields are stock quantities.
func ParseBody(c *fiber.Ctx, out interface{}) error {
	err := c.BodyParser(out)
	if err == nil {
		return nil
	}
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) && ute.Field != "" {
		switch ute.Type.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return apperr.InvalidQuantity(ute.Field, "must be a whole number")
		case reflect.Float32, reflect.Float64:
			return apperr.InvalidQuantity(ute.Field, "must be a number")
		}
		return apperr.InvalidInput(ute.Field, fmt.Sprintf("must be a %s", ute.Type))
	}
	return BadBody()
}
