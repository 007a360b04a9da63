package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType determines how a promo code's discount value is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// ApplicableTo restricts which plans or users a promo code can be used with.
type ApplicableTo string

const (
	ApplicableAll           ApplicableTo = "ALL"
	ApplicableSpecificPlans ApplicableTo = "SPECIFIC_PLANS"
	ApplicableSpecificUsers ApplicableTo = "SPECIFIC_USERS"
)

// PromoCode represents a subscription discount code.
type PromoCode struct {
	ID                uuid.UUID        `json:"id" db:"id"`
	Code              string           `json:"code" db:"code"`
	Description       string           `json:"description" db:"description"`
	DiscountType      DiscountType     `json:"discountType" db:"discount_type"`
	DiscountValue     decimal.Decimal  `json:"discountValue" db:"discount_value"`
	MaxDiscountAmount *decimal.Decimal `json:"maxDiscountAmount,omitempty" db:"max_discount_amount"`
	StartDate         time.Time        `json:"startDate" db:"start_date"`
	EndDate           *time.Time       `json:"endDate,omitempty" db:"end_date"`
	UsageLimit        *int             `json:"usageLimit,omitempty" db:"usage_limit"`
	UsageCount        int              `json:"usageCount" db:"usage_count"`
	IsActive          bool             `json:"isActive" db:"is_active"`
	IsFirstTimeOnly   bool             `json:"isFirstTimeOnly" db:"is_first_time_only"`
	ApplicableTo      ApplicableTo     `json:"applicableTo" db:"applicable_to"`
	CreatedAt         time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time        `json:"updatedAt" db:"updated_at"`
}

// HasCapacity reports whether the global usage limit still allows a redemption.
func (p *PromoCode) HasCapacity() bool {
	return p.UsageLimit == nil || p.UsageCount < *p.UsageLimit
}

// PromoCodeApplicablePlan links a promo code to a plan it may be used with.
type PromoCodeApplicablePlan struct {
	PromoCodeID uuid.UUID `json:"promoCodeId" db:"promo_code_id"`
	PlanID      uuid.UUID `json:"planId" db:"plan_id"`
}

// PromoCodeApplicableUser links a promo code to a user allowed to use it.
type PromoCodeApplicableUser struct {
	PromoCodeID uuid.UUID `json:"promoCodeId" db:"promo_code_id"`
	UserID      uuid.UUID `json:"userId" db:"user_id"`
}

// PromoCodeDefinition is a promo code together with its applicability rows,
// as written by the catalog importer.
type PromoCodeDefinition struct {
	PromoCode
	PlanIDs []uuid.UUID `json:"planIds,omitempty"`
	UserIDs []uuid.UUID `json:"userIds,omitempty"`
}

// SubscriptionPromoCode records one successful redemption.
type SubscriptionPromoCode struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	SubscriptionID uuid.UUID       `json:"subscriptionId" db:"subscription_id"`
	PromoCodeID    uuid.UUID       `json:"promoCodeId" db:"promo_code_id"`
	UserID         uuid.UUID       `json:"userId" db:"user_id"`
	DiscountAmount decimal.Decimal `json:"discountAmount" db:"discount_amount"`
	AppliedDate    time.Time       `json:"appliedDate" db:"applied_date"`
	IsActive       bool            `json:"isActive" db:"is_active"`
}

// ValidationResult is the outcome of validating a promo code for a user and plan.
// It is cached briefly and never persisted.
type ValidationResult struct {
	IsValid        bool             `json:"isValid"`
	PromoCode      *PromoCode       `json:"promoCode,omitempty"`
	DiscountAmount *decimal.Decimal `json:"discountAmount,omitempty"`
	Message        string           `json:"message"`
	Reason         string           `json:"reason,omitempty"`
}

// InvalidResult builds a failed ValidationResult from an error. User-facing
// kinds keep their message and code; store failures only keep the code.
func InvalidResult(err error) ValidationResult {
	de, ok := AsDomainError(err)
	if !ok {
		return ValidationResult{IsValid: false, Message: MsgValidationUnavailable, Reason: ErrCodeInternalError}
	}

	switch de.Kind {
	case KindValidation, KindNotFound, KindBadRequest:
		return ValidationResult{IsValid: false, Message: de.Message, Reason: de.Code}
	case KindTransient:
		return ValidationResult{IsValid: false, Message: MsgValidationUnavailable, Reason: de.Code}
	default:
		return ValidationResult{IsValid: false, Message: MsgValidationUnavailable, Reason: ErrCodeInternalError}
	}
}

// Cacheable reports whether the result describes the promo code rather than
// a failure to reach the store.
func (r ValidationResult) Cacheable() bool {
	return r.IsValid || (r.Reason != ErrCodeInternalError && r.Reason != ErrCodeStoreUnavailable)
}
