package repository

import (
	"context"

	"subpromo/internal/model"

	"github.com/google/uuid"
)

// PromoCodeReader defines the read queries the validation pipeline runs.
// Lookups return (nil, nil) when the row does not exist.
type PromoCodeReader interface {
	// FindByID retrieves a promo code by its ID.
	FindByID(ctx context.Context, id uuid.UUID) (*model.PromoCode, error)

	// FindByCode retrieves a promo code by its normalised code string.
	FindByCode(ctx context.Context, code string) (*model.PromoCode, error)

	// IsPlanApplicable reports whether planID is in the promo code's applicable plans.
	IsPlanApplicable(ctx context.Context, promoCodeID, planID uuid.UUID) (bool, error)

	// IsUserApplicable reports whether userID is in the promo code's applicable users.
	IsUserApplicable(ctx context.Context, promoCodeID, userID uuid.UUID) (bool, error)

	// CountUsageByUserAndCode counts active redemptions of the promo code on
	// subscriptions owned by the user.
	CountUsageByUserAndCode(ctx context.Context, userID, promoCodeID uuid.UUID) (int, error)

	// CountPriorSubscriptions counts the user's subscriptions, ignoring
	// excludeSubscriptionID when it is not uuid.Nil.
	CountPriorSubscriptions(ctx context.Context, userID, excludeSubscriptionID uuid.UUID) (int, error)
}

// PromoCodeTx exposes the queries available inside a store transaction.
type PromoCodeTx interface {
	PromoCodeReader

	// LockByID retrieves a promo code and locks its row until the transaction ends.
	LockByID(ctx context.Context, id uuid.UUID) (*model.PromoCode, error)

	// FindSubscription retrieves a subscription by its ID.
	FindSubscription(ctx context.Context, id uuid.UUID) (*model.Subscription, error)

	// FindPlan retrieves a plan by its ID.
	FindPlan(ctx context.Context, id uuid.UUID) (*model.Plan, error)

	// AtomicIncrementUsage increments usage_count only while the promo code is
	// active and below its usage limit. ok is false when no capacity was left.
	AtomicIncrementUsage(ctx context.Context, id uuid.UUID) (newCount int, ok bool, err error)

	// CreateRedemptionRecord inserts a subscription promo code row.
	CreateRedemptionRecord(ctx context.Context, rec *model.SubscriptionPromoCode) error

	// UpsertPromoCode inserts or updates a promo code and replaces its
	// applicability rows. created is true when a new row was inserted.
	UpsertPromoCode(ctx context.Context, def *model.PromoCodeDefinition) (created bool, err error)
}

// PromoCodeStore is the source of truth for promo codes and redemptions.
type PromoCodeStore interface {
	PromoCodeReader

	// WithinTx runs fn in a transaction, committing when fn returns nil.
	// Serialization failures and deadlocks are retried.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx PromoCodeTx) error) error
}

// PlanRepository defines plan lookups used to price discounts.
type PlanRepository interface {
	// GetByID retrieves a plan by its ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Plan, error)
}
