package repository

import (
	"context"
	"errors"
	"fmt"

	"subpromo/internal/database"
	"subpromo/internal/model"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the store reacts to.
const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgQueryCanceled        = "57014"
)

// isRetryable reports whether a transaction failed in a way that is safe to retry.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected:
		return true
	default:
		return false
	}
}

// usageWithinLimitCheck keeps usage_count at or below usage_limit.
const usageWithinLimitCheck = "promo_codes_usage_within_limit"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// isCheckViolation reports whether err broke the named CHECK constraint.
func isCheckViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation && pgErr.ConstraintName == constraint
}

// redemptionConflict maps a unique violation on subscription_promo_codes.
// Hitting the active-redemption index means the user already holds the code.
func redemptionConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName == database.ActiveRedemptionIndex {
		return model.ErrAlreadyUsed
	}
	return model.NewConflictError(model.ErrCodeDuplicateRedemption,
		"Promo code has already been applied to this subscription", err)
}

// classify wraps a store error with message. Timeouts and connection-level
// failures become transient errors so callers can decide whether to retry,
// and CHECK violations become bad requests. Domain errors pass through untouched.
func classify(message string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := model.AsDomainError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.NewTransientError(message, err)
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) || isRetryable(err) {
		return model.NewTransientError(message, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgQueryCanceled:
			return model.NewTransientError(message, err)
		case pgCheckViolation:
			return &model.DomainError{
				Kind:    model.KindBadRequest,
				Code:    model.ErrCodeConstraintViolation,
				Message: fmt.Sprintf("%s: constraint %s violated", message, pgErr.ConstraintName),
				Err:     err,
			}
		}
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return model.NewTransientError(message, err)
	}
	return fmt.Errorf("%s: %w", message, err)
}
