package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	bookingDomain "github.com/taskhive/service-booking/internal/domain/booking"
	"github.com/taskhive/service-booking/pkg/domain"
)

const pgUniqueViolation = "23505"

// Unique indexes created by migrations/000001_init.up.sql.
const (
	constraintProviderSlot = "uq_bookings_provider_slot"
	constraintPendingPair  = "uq_bookings_pending_pair"
)

// conflictForConstraint maps a violated booking index to the conflict kind
// the validator reports for the same situation.
var conflictForConstraint = map[string]bookingDomain.ConflictKind{
	constraintProviderSlot: bookingDomain.ConflictProviderUnavailable,
	constraintPendingPair:  bookingDomain.ConflictDuplicatePending,
}

// translateError turns a driver error into a domain error where one applies
// and wraps it with op otherwise. Domain errors pass through untouched.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.AsDomainError(err); ok {
		return err
	}
	if isTransient(err) {
		return domain.NewTransientError(op+": store unavailable, retry later", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// uniqueViolation returns the name of the violated constraint, if err is a
// unique violation.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || pgconn.Timeout(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01": // serialization failure, deadlock
			return true
		case pgErr.Code == "53300", pgErr.Code == "57P01", pgErr.Code == "57P03":
			return true
		}
		return false
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
