package promo

import (
	"context"

	"subpromo/internal/cache"
	"subpromo/internal/model"

	"github.com/google/uuid"
)

// Service defines the promo code operations exposed to callers.
type Service interface {
	// ValidateAndCache validates a promo code for a user and plan, serving
	// results from cache while they are fresh. It never fails.
	ValidateAndCache(ctx context.Context, promoCodeID, userID, planID uuid.UUID) model.ValidationResult

	// ValidateCodeAndCache is ValidateAndCache keyed by the code string.
	ValidateCodeAndCache(ctx context.Context, code string, userID, planID uuid.UUID) model.ValidationResult

	// Redeem applies a promo code to a subscription in one transaction.
	Redeem(ctx context.Context, req *model.RedeemRequest) (*model.SubscriptionPromoCode, error)
}

// Invalidator purges cached data after a promo code mutation.
type Invalidator interface {
	Invalidate(ctx context.Context, ev cache.Event) (int, error)
}

var _ Service = (*Coordinator)(nil)
