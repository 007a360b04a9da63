package promo

import (
	"context"
	"time"

	"subpromo/internal/model"
	"subpromo/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MsgValid is the message of a successful validation.
const MsgValid = "Promo code is valid"

// PipelineConfig holds configuration for the validation pipeline.
type PipelineConfig struct {
	// MaxUsesPerUser is how many active redemptions one user may hold per code.
	// Default: 1
	MaxUsesPerUser int

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// DefaultPipelineConfig returns the default pipeline configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxUsesPerUser: 1,
		Now:            time.Now,
	}
}

// Input is what a validation run is evaluated against.
type Input struct {
	PromoCode *model.PromoCode
	UserID    uuid.UUID
	PlanID    uuid.UUID

	// SubscriptionID is the subscription being redeemed against, if any.
	// It is not counted as a prior subscription by the first-time check.
	SubscriptionID uuid.UUID
}

type check struct {
	name string
	run  func(ctx context.Context, r repository.PromoCodeReader, in Input) error
}

// Pipeline runs the eligibility checks in a fixed order and stops at the
// first failure.
type Pipeline struct {
	cfg    PipelineConfig
	checks []check
	logger zerolog.Logger
}

// NewPipeline creates a validation pipeline.
func NewPipeline(cfg PipelineConfig, logger zerolog.Logger) *Pipeline {
	if cfg.MaxUsesPerUser < 1 {
		cfg.MaxUsesPerUser = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: logger.With().Str("component", "validation_pipeline").Logger(),
	}
	p.checks = []check{
		{name: "existence", run: p.checkExistence},
		{name: "date_range", run: p.checkDateRange},
		{name: "usage_limits", run: p.checkUsage},
		{name: "plan_applicability", run: p.checkPlan},
		{name: "user_eligibility", run: p.checkUser},
	}
	return p
}

// Now returns the pipeline's current time.
func (p *Pipeline) Now() time.Time {
	return p.cfg.Now()
}

// Validate loads the promo code and runs every check. It never returns an
// error: failures are reported in the result.
func (p *Pipeline) Validate(ctx context.Context, r repository.PromoCodeReader, promoCodeID, userID, planID uuid.UUID) model.ValidationResult {
	promo, err := r.FindByID(ctx, promoCodeID)
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("promo_code_id", promoCodeID.String()).
			Msg("failed to load promo code for validation")
		return model.InvalidResult(err)
	}

	in := Input{PromoCode: promo, UserID: userID, PlanID: planID}
	if err := p.Check(ctx, r, in); err != nil {
		if model.KindOf(err) != model.KindValidation {
			p.logger.Error().
				Err(err).
				Str("promo_code_id", promoCodeID.String()).
				Str("user_id", userID.String()).
				Str("plan_id", planID.String()).
				Msg("promo code validation failed")
		}
		return model.InvalidResult(err)
	}

	return model.ValidationResult{IsValid: true, PromoCode: promo, Message: MsgValid}
}

// Check runs the checks against in.PromoCode, which may be nil. It returns
// the first failing check's validation error or a store error.
func (p *Pipeline) Check(ctx context.Context, r repository.PromoCodeReader, in Input) error {
	for _, c := range p.checks {
		if err := c.run(ctx, r, in); err != nil {
			if model.KindOf(err) == model.KindValidation {
				p.logger.Debug().
					Str("check", c.name).
					Str("reason", reasonOf(err)).
					Str("user_id", in.UserID.String()).
					Str("plan_id", in.PlanID.String()).
					Msg("promo code check failed")
			}
			return err
		}
	}
	return nil
}

func (p *Pipeline) checkExistence(_ context.Context, _ repository.PromoCodeReader, in Input) error {
	if in.PromoCode == nil {
		return model.ErrPromoNotFound
	}
	if !in.PromoCode.IsActive {
		return model.ErrPromoInactive
	}
	return nil
}

// checkDateRange accepts now in [StartDate, EndDate).
func (p *Pipeline) checkDateRange(_ context.Context, _ repository.PromoCodeReader, in Input) error {
	now := p.cfg.Now()
	if now.Before(in.PromoCode.StartDate) {
		return model.ErrPromoNotYetActive
	}
	if in.PromoCode.EndDate != nil && !now.Before(*in.PromoCode.EndDate) {
		return model.ErrPromoExpired
	}
	return nil
}

// checkUsage checks the user's own prior use before the global limit.
func (p *Pipeline) checkUsage(ctx context.Context, r repository.PromoCodeReader, in Input) error {
	used, err := r.CountUsageByUserAndCode(ctx, in.UserID, in.PromoCode.ID)
	if err != nil {
		return err
	}
	if used >= p.cfg.MaxUsesPerUser {
		return model.ErrAlreadyUsed
	}

	if !in.PromoCode.HasCapacity() {
		return model.ErrUsageLimitReached
	}
	return nil
}

func (p *Pipeline) checkPlan(ctx context.Context, r repository.PromoCodeReader, in Input) error {
	if in.PromoCode.ApplicableTo != model.ApplicableSpecificPlans {
		return nil
	}

	ok, err := r.IsPlanApplicable(ctx, in.PromoCode.ID, in.PlanID)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrPlanNotApplicable
	}
	return nil
}

func (p *Pipeline) checkUser(ctx context.Context, r repository.PromoCodeReader, in Input) error {
	if in.PromoCode.ApplicableTo == model.ApplicableSpecificUsers {
		ok, err := r.IsUserApplicable(ctx, in.PromoCode.ID, in.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrUserNotEligible
		}
	}

	if in.PromoCode.IsFirstTimeOnly {
		prior, err := r.CountPriorSubscriptions(ctx, in.UserID, in.SubscriptionID)
		if err != nil {
			return err
		}
		if prior > 0 {
			return model.ErrFirstTimeOnly
		}
	}

	return nil
}

func reasonOf(err error) string {
	if de, ok := model.AsDomainError(err); ok {
		return de.Code
	}
	return ""
}
