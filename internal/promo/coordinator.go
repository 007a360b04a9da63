package promo

import (
	"context"
	"errors"
	"time"

	"subpromo/internal/cache"
	"subpromo/internal/config"
	"subpromo/internal/model"
	"subpromo/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CoordinatorConfig holds TTLs and per-call timeouts for the coordinator.
type CoordinatorConfig struct {
	CachePrefix   string
	ValidationTTL time.Duration
	LookupTTL     time.Duration
	CacheTimeout  time.Duration
	StoreTimeout  time.Duration
	RedeemTimeout time.Duration
}

// NewCoordinatorConfig builds a CoordinatorConfig from application configuration.
func NewCoordinatorConfig(c config.CacheConfig, p config.PromoConfig) CoordinatorConfig {
	return CoordinatorConfig{
		CachePrefix:   c.Prefix,
		ValidationTTL: c.ValidationTTL,
		LookupTTL:     c.LookupTTL,
		CacheTimeout:  c.OperationTimeout,
		StoreTimeout:  p.StoreTimeout,
		RedeemTimeout: p.RedeemTimeout,
	}
}

// Coordinator implements Service. Reads go through the cache; redemptions
// run in a store transaction and invalidate the cache after commit.
type Coordinator struct {
	store       repository.PromoCodeStore
	plans       repository.PlanRepository
	cache       cache.Cache
	keys        cache.Keys
	invalidator Invalidator
	pipeline    *Pipeline
	cfg         CoordinatorConfig
	logger      zerolog.Logger
}

// NewCoordinator creates a redemption coordinator.
func NewCoordinator(
	store repository.PromoCodeStore,
	plans repository.PlanRepository,
	c cache.Cache,
	invalidator Invalidator,
	pipeline *Pipeline,
	cfg CoordinatorConfig,
	logger zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		store:       store,
		plans:       plans,
		cache:       c,
		keys:        cache.NewKeys(cfg.CachePrefix),
		invalidator: invalidator,
		pipeline:    pipeline,
		cfg:         cfg,
		logger:      logger.With().Str("component", "redemption_coordinator").Logger(),
	}
}

// ValidateAndCache returns a cached validation result when one is fresh and
// otherwise validates against the store and caches the outcome.
// Cached results are not re-validated.
func (c *Coordinator) ValidateAndCache(ctx context.Context, promoCodeID, userID, planID uuid.UUID) model.ValidationResult {
	key := c.keys.Validation(promoCodeID, userID, planID)

	if res, ok := c.cachedResult(ctx, key); ok {
		return res
	}

	res := c.validate(ctx, promoCodeID, userID, planID)

	if res.Cacheable() {
		c.withCacheTimeout(ctx, func(ctx context.Context) {
			if err := cache.SetJSON(ctx, c.cache, key, res, c.cfg.ValidationTTL); err != nil {
				c.logger.Warn().Err(err).Str("key", key).Msg("failed to cache validation result")
			}
		})
	}

	return res
}

// ValidateCodeAndCache resolves code to a promo code id, through the lookup
// cache, and then behaves like ValidateAndCache.
func (c *Coordinator) ValidateCodeAndCache(ctx context.Context, code string, userID, planID uuid.UUID) model.ValidationResult {
	code = repository.NormaliseCode(code)
	if code == "" {
		return model.InvalidResult(model.ErrPromoNotFound)
	}

	id, ok := c.cachedCodeID(ctx, code)
	if !ok {
		storeCtx, cancel := c.storeContext(ctx)
		promo, err := c.store.FindByCode(storeCtx, code)
		cancel()
		if err != nil {
			c.logger.Error().Err(err).Str("code", code).Msg("failed to look up promo code")
			return model.InvalidResult(err)
		}
		if promo == nil {
			c.logger.Debug().Str("code", code).Msg("promo code not found")
			return model.InvalidResult(model.ErrPromoNotFound)
		}
		id = promo.ID

		key := c.keys.Code(code)
		c.withCacheTimeout(ctx, func(ctx context.Context) {
			if err := c.cache.Set(ctx, key, []byte(id.String()), c.cfg.LookupTTL); err != nil {
				c.logger.Warn().Err(err).Str("key", key).Msg("failed to cache promo code lookup")
			}
		})
	}

	return c.ValidateAndCache(ctx, id, userID, planID)
}

// Redeem re-validates the promo code under a row lock, consumes one use and
// records the redemption, all in one transaction. Cache invalidation runs
// after commit and never fails the redemption.
func (c *Coordinator) Redeem(ctx context.Context, req *model.RedeemRequest) (*model.SubscriptionPromoCode, error) {
	if req.DiscountAmount.IsNegative() {
		return nil, model.ErrInvalidDiscountAmount
	}

	txCtx, cancel := withTimeout(ctx, c.cfg.RedeemTimeout)
	defer cancel()

	log := c.logger.With().
		Str("subscription_id", req.SubscriptionID.String()).
		Str("user_id", req.UserID.String()).
		Str("promo_code_id", req.PromoCodeID.String()).
		Logger()

	var (
		record *model.SubscriptionPromoCode
		code   string
	)
	err := c.store.WithinTx(txCtx, func(ctx context.Context, tx repository.PromoCodeTx) error {
		record, code = nil, ""

		sub, err := tx.FindSubscription(ctx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return model.ErrSubscriptionNotFound
		}
		if sub.UserID != req.UserID {
			return model.ErrSubscriptionOwner
		}

		promo, err := tx.LockByID(ctx, req.PromoCodeID)
		if err != nil {
			return err
		}
		if promo == nil {
			return model.ErrPromoCodeMissing
		}

		in := Input{PromoCode: promo, UserID: req.UserID, PlanID: sub.PlanID, SubscriptionID: sub.ID}
		if err := c.pipeline.Check(ctx, tx, in); err != nil {
			return err
		}

		plan, err := tx.FindPlan(ctx, sub.PlanID)
		if err != nil {
			return err
		}
		if plan == nil {
			return model.ErrPlanNotFound
		}

		discount, err := CalculateDiscount(promo, plan.Price)
		if err != nil {
			return err
		}
		if !discount.Equal(req.DiscountAmount) {
			log.Warn().
				Str("requested", req.DiscountAmount.String()).
				Str("computed", discount.String()).
				Msg("requested discount differs from computed discount")
		}

		count, ok, err := tx.AtomicIncrementUsage(ctx, promo.ID)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrUsageLimitReached
		}

		rec := &model.SubscriptionPromoCode{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			PromoCodeID:    promo.ID,
			UserID:         req.UserID,
			DiscountAmount: discount,
			AppliedDate:    c.pipeline.Now().UTC(),
			IsActive:       true,
		}
		if err := tx.CreateRedemptionRecord(ctx, rec); err != nil {
			return err
		}

		log.Debug().Int("usage_count", count).Msg("promo code usage incremented")
		record, code = rec, promo.Code
		return nil
	})
	if err != nil {
		err = c.redeemError(err)
		switch model.KindOf(err) {
		case model.KindValidation, model.KindNotFound, model.KindBadRequest, model.KindConflict:
			log.Info().Err(err).Msg("promo code redemption rejected")
		default:
			log.Error().Err(err).Msg("promo code redemption failed")
		}
		return nil, err
	}

	log.Info().
		Str("redemption_id", record.ID.String()).
		Str("discount_amount", record.DiscountAmount.String()).
		Msg("promo code redeemed")

	c.invalidate(ctx, cache.Event{Kind: cache.EventRedeemed, PromoCodeID: record.PromoCodeID, Code: code})

	return record, nil
}

// redeemError makes a timed-out redemption a retryable error.
func (c *Coordinator) redeemError(err error) error {
	if model.KindOf(err) != model.KindInternal {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.NewTransientError("promo code redemption timed out", err)
	}
	return err
}

// invalidate purges caches for a committed change. It outlives the caller's cancellation.
func (c *Coordinator) invalidate(ctx context.Context, ev cache.Event) {
	if c.invalidator == nil {
		return
	}

	deleted, err := c.invalidator.Invalidate(context.WithoutCancel(ctx), ev)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("promo_code_id", ev.PromoCodeID.String()).
			Str("event", string(ev.Kind)).
			Int("deleted", deleted).
			Msg("cache invalidation incomplete")
		return
	}

	c.logger.Debug().
		Str("promo_code_id", ev.PromoCodeID.String()).
		Str("event", string(ev.Kind)).
		Int("deleted", deleted).
		Msg("cache invalidated")
}

func (c *Coordinator) validate(ctx context.Context, promoCodeID, userID, planID uuid.UUID) model.ValidationResult {
	ctx, cancel := c.storeContext(ctx)
	defer cancel()

	res := c.pipeline.Validate(ctx, c.store, promoCodeID, userID, planID)
	if !res.IsValid {
		return res
	}

	plan, err := c.plans.GetByID(ctx, planID)
	if err != nil {
		c.logger.Error().Err(err).Str("plan_id", planID.String()).Msg("failed to load plan")
		return model.InvalidResult(err)
	}
	if plan == nil {
		return model.InvalidResult(model.ErrPlanNotFound)
	}

	discount, err := CalculateDiscount(res.PromoCode, plan.Price)
	if err != nil {
		c.logger.Error().Err(err).Str("promo_code_id", promoCodeID.String()).Msg("failed to calculate discount")
		return model.InvalidResult(err)
	}

	res.DiscountAmount = &discount
	return res
}

// cachedResult treats every cache failure, timeouts included, as a miss.
func (c *Coordinator) cachedResult(ctx context.Context, key string) (model.ValidationResult, bool) {
	var (
		res model.ValidationResult
		err error
	)
	c.withCacheTimeout(ctx, func(ctx context.Context) {
		res, err = cache.GetJSON[model.ValidationResult](ctx, c.cache, key)
	})
	if err != nil {
		if !cache.IsMiss(err) {
			c.logger.Warn().Err(err).Str("key", key).Msg("validation cache unavailable, falling back to store")
		}
		return model.ValidationResult{}, false
	}
	return res, true
}

func (c *Coordinator) cachedCodeID(ctx context.Context, code string) (uuid.UUID, bool) {
	key := c.keys.Code(code)

	var (
		data []byte
		err  error
	)
	c.withCacheTimeout(ctx, func(ctx context.Context) {
		data, err = c.cache.Get(ctx, key)
	})
	if err != nil {
		if !cache.IsMiss(err) {
			c.logger.Warn().Err(err).Str("key", key).Msg("code lookup cache unavailable, falling back to store")
		}
		return uuid.Nil, false
	}

	id, err := uuid.ParseBytes(data)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("ignoring malformed code lookup entry")
		return uuid.Nil, false
	}
	return id, true
}

func (c *Coordinator) withCacheTimeout(ctx context.Context, fn func(ctx context.Context)) {
	ctx, cancel := withTimeout(ctx, c.cfg.CacheTimeout)
	defer cancel()
	fn(ctx)
}

func (c *Coordinator) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, c.cfg.StoreTimeout)
}

// withTimeout applies d when it is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
