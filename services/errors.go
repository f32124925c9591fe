// services/errors.go
package services

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
)

// Shared outcome taxonomy for the recovery flows. These are expected,
// user-facing results and are never retried by the service itself; anything
// else that bubbles up is a dependency failure and maps to a generic 500.
var (
	// ErrNotFound covers both "row absent" and "caller has no visibility",
	// so existence can't be probed by unauthorized users.
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	// ErrConflict means a conditional write lost a race. Clients may retry.
	ErrConflict = errors.New("conflicting update")

	ErrAlreadyOwned   = errors.New("disc already has an owner")
	ErrAlreadyLinked  = errors.New("disc already has a QR code linked")
	ErrNoQRCode       = errors.New("disc has no QR code linked")
	ErrDropOffMissing = errors.New("no drop-off recorded for this recovery")
	ErrNoReward       = errors.New("disc has no reward offered")
)

// InvalidStateError means the action is not legal from the event's current
// lifecycle state. It always carries the current state so clients can resync.
type InvalidStateError struct {
	Current string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("action not allowed while recovery is %q", e.Current)
}

// respondServiceError maps a domain error onto the HTTP response.
func respondServiceError(c *fiber.Ctx, err error) error {
	var stateErr *InvalidStateError
	switch {
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	case errors.As(err, &stateErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":          stateErr.Error(),
			"current_status": stateErr.Current,
		})
	case errors.Is(err, ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": ErrConflict.Error()})
	case errors.Is(err, ErrAlreadyOwned),
		errors.Is(err, ErrAlreadyLinked),
		errors.Is(err, ErrNoQRCode),
		errors.Is(err, ErrDropOffMissing),
		errors.Is(err, ErrNoReward):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Printf("❌ [RECOVERY] unexpected error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
