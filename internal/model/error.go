package model

import (
	"errors"
	"fmt"
)

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// ErrorKind classifies a DomainError for propagation and HTTP mapping.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindBadRequest ErrorKind = "bad_request"
	KindConflict   ErrorKind = "conflict"
	KindTransient  ErrorKind = "transient"
	KindInvariant  ErrorKind = "invariant"
	KindInternal   ErrorKind = "internal"
)

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON   = "INVALID_JSON"
	ErrCodeMissingField  = "MISSING_FIELD"
	ErrCodeUnauthorised  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"

	ErrCodePromoNotFound       = "PROMO_NOT_FOUND"
	ErrCodePromoInactive       = "PROMO_INACTIVE"
	ErrCodePromoNotYetActive   = "PROMO_NOT_YET_ACTIVE"
	ErrCodePromoExpired        = "PROMO_EXPIRED"
	ErrCodeUsageLimitReached   = "PROMO_USAGE_LIMIT_REACHED"
	ErrCodeAlreadyUsed         = "PROMO_ALREADY_USED"
	ErrCodePlanNotApplicable   = "PROMO_PLAN_NOT_APPLICABLE"
	ErrCodeUserNotEligible     = "PROMO_USER_NOT_ELIGIBLE"
	ErrCodeFirstTimeOnly       = "PROMO_FIRST_TIME_ONLY"
	ErrCodePlanNotFound        = "PLAN_NOT_FOUND"
	ErrCodeSubscriptionMissing = "SUBSCRIPTION_NOT_FOUND"
	ErrCodeSubscriptionOwner   = "SUBSCRIPTION_OWNER_MISMATCH"
	ErrCodeInvalidDiscount     = "INVALID_DISCOUNT_AMOUNT"
	ErrCodeDuplicateCode       = "DUPLICATE_PROMO_CODE"
	ErrCodeDuplicateRedemption = "DUPLICATE_REDEMPTION"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	ErrCodeUnknownDiscountType = "UNKNOWN_DISCOUNT_TYPE"
	ErrCodeInvalidDefinition   = "INVALID_PROMO_DEFINITION"
	ErrCodeConstraintViolation = "CONSTRAINT_VIOLATION"
)

// MsgValidationUnavailable is shown when validation could not be completed.
const MsgValidationUnavailable = "Unable to validate promo code at this time, please try again"

// DomainError is an error carrying a kind, a stable code and a user-facing message.
type DomainError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches DomainErrors by kind and code so wrapped copies of a sentinel
// still satisfy errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a user-facing validation failure.
func NewValidationError(code, message string) *DomainError {
	return NewDomainError(KindValidation, code, message)
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(code, message string) *DomainError {
	return NewDomainError(KindNotFound, code, message)
}

// NewBadRequestError creates a bad-request error.
func NewBadRequestError(code, message string) *DomainError {
	return NewDomainError(KindBadRequest, code, message)
}

// NewConflictError wraps err as a conflict.
func NewConflictError(code, message string, err error) *DomainError {
	return &DomainError{Kind: KindConflict, Code: code, Message: message, Err: err}
}

// NewTransientError wraps a retryable store or cache failure.
func NewTransientError(message string, err error) *DomainError {
	return &DomainError{Kind: KindTransient, Code: ErrCodeStoreUnavailable, Message: message, Err: err}
}

// NewInvariantViolation reports a programming error that must never reach users as a validation message.
func NewInvariantViolation(code, message string) *DomainError {
	return NewDomainError(KindInvariant, code, message)
}

// Validation failures, one per pipeline check outcome.
var (
	ErrPromoNotFound     = NewValidationError(ErrCodePromoNotFound, "Promo code not found")
	ErrPromoInactive     = NewValidationError(ErrCodePromoInactive, "Promo code is inactive")
	ErrPromoNotYetActive = NewValidationError(ErrCodePromoNotYetActive, "Promo code is not yet active")
	ErrPromoExpired      = NewValidationError(ErrCodePromoExpired, "Promo code has expired")
	ErrUsageLimitReached = NewValidationError(ErrCodeUsageLimitReached, "Promo code has reached its maximum usage limit")
	ErrAlreadyUsed       = NewValidationError(ErrCodeAlreadyUsed, "You have already used this promo code")
	ErrPlanNotApplicable = NewValidationError(ErrCodePlanNotApplicable, "Promo code is not applicable to the selected plan")
	ErrUserNotEligible   = NewValidationError(ErrCodeUserNotEligible, "Promo code is not applicable to this user")
	ErrFirstTimeOnly     = NewValidationError(ErrCodeFirstTimeOnly, "Promo code is only valid for first-time subscribers")
)

// Errors raised around redemption.
var (
	ErrPlanNotFound          = NewNotFoundError(ErrCodePlanNotFound, "Subscription plan not found")
	ErrPromoCodeMissing      = NewNotFoundError(ErrCodePromoNotFound, "Promo code not found")
	ErrSubscriptionNotFound  = NewNotFoundError(ErrCodeSubscriptionMissing, "Subscription not found")
	ErrSubscriptionOwner     = NewBadRequestError(ErrCodeSubscriptionOwner, "Subscription does not belong to this user")
	ErrInvalidDiscountAmount = NewBadRequestError(ErrCodeInvalidDiscount, "Discount amount must not be negative")
)

// AsDomainError extracts a DomainError from an error chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf returns the kind of the first DomainError in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	if de, ok := AsDomainError(err); ok {
		return de.Kind
	}
	return KindInternal
}
