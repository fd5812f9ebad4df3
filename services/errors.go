package services

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// Validation
	ErrInvalidSide       = errors.New("side must be LEFT or RIGHT")
	ErrInvalidReferral   = errors.New("invalid referral")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidReason     = errors.New("ledger reason not allowed for this operation")
	ErrInvalidWithdrawal = errors.New("invalid withdrawal request")

	// Identity
	ErrDuplicateMember    = errors.New("member already registered")
	ErrSponsorNotFound    = errors.New("sponsor not found")
	ErrMemberNotFound     = errors.New("member not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")

	// Business outcomes
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrWithdrawalProcessed = errors.New("withdrawal already processed")

	// Consistency
	ErrStaleWatermark   = errors.New("watermark must strictly increase")
	ErrInvalidWatermark = errors.New("watermark exceeds completed pairs")
	ErrDuplicateEntry   = errors.New("ledger entry already recorded")
	ErrSlotTaken        = errors.New("structure slot already occupied")
	ErrPolicyMismatch   = errors.New("structure policy differs from the persisted policy")

	// Retryable covers lock timeouts, deadlocks and serialization failures.
	ErrRetryable = errors.New("transient conflict, retry the request")
)

// IsRetryable reports whether the caller may resubmit the same request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}

// IsValidation reports whether err was raised before any mutation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidSide) ||
		errors.Is(err, ErrInvalidReferral) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidReason) ||
		errors.Is(err, ErrInvalidWithdrawal)
}

// IsNotFound reports whether err names a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSponsorNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrWithdrawalNotFound)
}

// isUniqueViolation matches translated gorm errors and raw postgres 23505.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// classifyDBError maps driver level failures onto engine errors.
// Engine sentinels pass through untouched.
func classifyDBError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57014":
			return fmt.Errorf("%w: %w", ErrRetryable, err)
		}
	}
	if strings.Contains(err.Error(), "database is locked") {
		return fmt.Errorf("%w: %w", ErrRetryable, err)
	}
	return err
}

// statusFor maps engine errors onto HTTP status codes. Not-found wins over
// validation so an unknown sponsor stays a 404.
func statusFor(err error) int {
	switch {
	case IsNotFound(err):
		return fiber.StatusNotFound
	case IsValidation(err):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrDuplicateMember), errors.Is(err, ErrDuplicateEntry), errors.Is(err, ErrWithdrawalProcessed):
		return fiber.StatusConflict
	case errors.Is(err, ErrInsufficientFunds):
		return fiber.StatusPaymentRequired
	case IsRetryable(err):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes {"error": ...} with the mapped status.
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable {
		log.Printf("❌ [HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	body := fiber.Map{"error": err.Error()}
	if status == fiber.StatusServiceUnavailable {
		body["retryable"] = true
	}
	return c.Status(status).JSON(body)
}
