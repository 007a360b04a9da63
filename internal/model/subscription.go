package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan is the subscription plan a promo code is applied against.
// Only the fields the discount engine reads are mapped.
type Plan struct {
	ID       uuid.UUID       `json:"id" db:"id"`
	Name     string          `json:"name" db:"name"`
	Price    decimal.Decimal `json:"price" db:"price"`
	IsActive bool            `json:"isActive" db:"is_active"`
}

// Subscription is a user's subscription to a plan.
type Subscription struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	PlanID    uuid.UUID `json:"planId" db:"plan_id"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ValidateRequest is the payload of the "apply promo" validation endpoint.
// Either PromoCodeID or Code must be set.
type ValidateRequest struct {
	PromoCodeID *uuid.UUID `json:"promoCodeId,omitempty"`
	Code        string     `json:"code,omitempty"`
	UserID      uuid.UUID  `json:"userId"`
	PlanID      uuid.UUID  `json:"planId"`
}

// RedeemRequest is the payload of the redemption endpoint.
type RedeemRequest struct {
	SubscriptionID uuid.UUID       `json:"subscriptionId"`
	UserID         uuid.UUID       `json:"userId"`
	PromoCodeID    uuid.UUID       `json:"promoCodeId"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}
