package promo

import (
	"context"
	"errors"
	"testing"
	"time"

	"subpromo/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestPipeline(maxUses int) *Pipeline {
	return NewPipeline(PipelineConfig{
		MaxUsesPerUser: maxUses,
		Now:            func() time.Time { return fixedNow },
	}, zerolog.Nop())
}

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func activePromo(code string) model.PromoCode {
	return model.PromoCode{
		ID:            uuid.New(),
		Code:          code,
		DiscountType:  model.DiscountPercentage,
		DiscountValue: dec("20"),
		StartDate:     fixedNow.Add(-24 * time.Hour),
		IsActive:      true,
		ApplicableTo:  model.ApplicableAll,
	}
}

func TestPipeline_Check(t *testing.T) {
	userID, planID := uuid.New(), uuid.New()

	tests := []struct {
		name     string
		mutate   func(p *model.PromoCode, s *fakeStore)
		nilPromo bool
		expected error
	}{
		{name: "Valid", mutate: func(p *model.PromoCode, s *fakeStore) {}},
		{name: "Not found", nilPromo: true, expected: model.ErrPromoNotFound},
		{
			name:     "Inactive",
			mutate:   func(p *model.PromoCode, s *fakeStore) { p.IsActive = false },
			expected: model.ErrPromoInactive,
		},
		{
			name:     "Not yet active",
			mutate:   func(p *model.PromoCode, s *fakeStore) { p.StartDate = fixedNow.Add(time.Hour) },
			expected: model.ErrPromoNotYetActive,
		},
		{
			name:   "Start date is inclusive",
			mutate: func(p *model.PromoCode, s *fakeStore) { p.StartDate = fixedNow },
		},
		{
			name:     "End date is exclusive",
			mutate:   func(p *model.PromoCode, s *fakeStore) { p.EndDate = timePtr(fixedNow) },
			expected: model.ErrPromoExpired,
		},
		{
			name: "Global usage limit reached",
			mutate: func(p *model.PromoCode, s *fakeStore) {
				p.UsageLimit = intPtr(3)
				p.UsageCount = 3
			},
			expected: model.ErrUsageLimitReached,
		},
		{
			name: "Already used by this user",
			mutate: func(p *model.PromoCode, s *fakeStore) {
				sub := s.addSubscription(userID, planID)
				s.redemptions = append(s.redemptions, model.SubscriptionPromoCode{
					ID: uuid.New(), SubscriptionID: sub.ID, PromoCodeID: p.ID, UserID: userID, IsActive: true,
				})
			},
			expected: model.ErrAlreadyUsed,
		},
		{
			name: "Inactive redemption does not count",
			mutate: func(p *model.PromoCode, s *fakeStore) {
				sub := s.addSubscription(userID, planID)
				s.redemptions = append(s.redemptions, model.SubscriptionPromoCode{
					ID: uuid.New(), SubscriptionID: sub.ID, PromoCodeID: p.ID, UserID: userID, IsActive: false,
				})
			},
		},
		{
			name:     "Plan not applicable",
			mutate:   func(p *model.PromoCode, s *fakeStore) { p.ApplicableTo = model.ApplicableSpecificPlans },
			expected: model.ErrPlanNotApplicable,
		},
		{
			name: "Plan applicable",
			mutate: func(p *model.PromoCode, s *fakeStore) {
				p.ApplicableTo = model.ApplicableSpecificPlans
				s.allowPlan(p.ID, planID)
			},
		},
		{
			name:     "User not eligible",
			mutate:   func(p *model.PromoCode, s *fakeStore) { p.ApplicableTo = model.ApplicableSpecificUsers },
			expected: model.ErrUserNotEligible,
		},
		{
			name: "User eligible",
			mutate: func(p *model.PromoCode, s *fakeStore) {
				p.ApplicableTo = model.ApplicableSpecificUsers
				s.allowUser(p.ID, userID)
			},
		},
		{
			name: "First time only with prior subscription",
			mutate: func(p *model.PromoCode, s *fakeStore) {
				p.IsFirstTimeOnly = true
				s.addSubscription(userID, planID)
			},
			expected: model.ErrFirstTimeOnly,
		},
		{
			name:   "First time only without prior subscription",
			mutate: func(p *model.PromoCode, s *fakeStore) { p.IsFirstTimeOnly = true },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			in := Input{UserID: userID, PlanID: planID}
			if !tt.nilPromo {
				promo := activePromo("SAVE20")
				tt.mutate(&promo, store)
				in.PromoCode = &promo
			}

			err := newTestPipeline(1).Check(context.Background(), store, in)

			if tt.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestPipeline_ShortCircuits(t *testing.T) {
	store := newFakeStore()
	promo := activePromo("LATER")
	promo.StartDate = fixedNow.Add(48 * time.Hour)
	promo.UsageLimit = intPtr(1)
	promo.UsageCount = 1

	err := newTestPipeline(1).Check(context.Background(), store, Input{PromoCode: &promo, UserID: uuid.New(), PlanID: uuid.New()})

	assert.ErrorIs(t, err, model.ErrPromoNotYetActive)
	assert.Zero(t, store.callCount("CountUsageByUserAndCode"))
}

func TestPipeline_ExpiredRegardlessOfUsage(t *testing.T) {
	store := newFakeStore()
	promo := activePromo("OLD")
	promo.EndDate = timePtr(fixedNow.Add(-24 * time.Hour))
	promo.UsageLimit = intPtr(100)
	promo.UsageCount = 100

	err := newTestPipeline(1).Check(context.Background(), store, Input{PromoCode: &promo, UserID: uuid.New(), PlanID: uuid.New()})

	assert.ErrorIs(t, err, model.ErrPromoExpired)
}

func TestPipeline_MaxUsesPerUser(t *testing.T) {
	store := newFakeStore()
	userID, planID := uuid.New(), uuid.New()
	promo := activePromo("TWICE")
	sub := store.addSubscription(userID, planID)
	store.redemptions = append(store.redemptions, model.SubscriptionPromoCode{
		ID: uuid.New(), SubscriptionID: sub.ID, PromoCodeID: promo.ID, UserID: userID, IsActive: true,
	})
	in := Input{PromoCode: &promo, UserID: userID, PlanID: planID}

	assert.ErrorIs(t, newTestPipeline(1).Check(context.Background(), store, in), model.ErrAlreadyUsed)
	assert.NoError(t, newTestPipeline(2).Check(context.Background(), store, in))
}

func TestPipeline_FirstTimeExcludesCurrentSubscription(t *testing.T) {
	store := newFakeStore()
	userID, planID := uuid.New(), uuid.New()
	sub := store.addSubscription(userID, planID)
	promo := activePromo("WELCOME")
	promo.IsFirstTimeOnly = true

	err := newTestPipeline(1).Check(context.Background(), store, Input{
		PromoCode: &promo, UserID: userID, PlanID: planID, SubscriptionID: sub.ID,
	})

	assert.NoError(t, err)
}

func TestPipeline_Validate(t *testing.T) {
	t.Run("Valid result carries the promo code", func(t *testing.T) {
		store := newFakeStore()
		promo := activePromo("SAVE20")
		store.addPromo(promo)

		res := newTestPipeline(1).Validate(context.Background(), store, promo.ID, uuid.New(), uuid.New())

		assert.True(t, res.IsValid)
		assert.Equal(t, MsgValid, res.Message)
		require.NotNil(t, res.PromoCode)
		assert.Equal(t, promo.ID, res.PromoCode.ID)
	})

	t.Run("Failure explains why", func(t *testing.T) {
		store := newFakeStore()
		promo := activePromo("OFF")
		promo.IsActive = false
		store.addPromo(promo)

		res := newTestPipeline(1).Validate(context.Background(), store, promo.ID, uuid.New(), uuid.New())

		assert.False(t, res.IsValid)
		assert.Equal(t, "Promo code is inactive", res.Message)
		assert.Equal(t, model.ErrCodePromoInactive, res.Reason)
	})

	t.Run("Store failure never escapes", func(t *testing.T) {
		store := newFakeStore()
		store.failOn["FindByID"] = model.NewTransientError("failed to query promo code", errors.New("timeout"))

		res := newTestPipeline(1).Validate(context.Background(), store, uuid.New(), uuid.New(), uuid.New())

		assert.False(t, res.IsValid)
		assert.Equal(t, model.MsgValidationUnavailable, res.Message)
		assert.Equal(t, model.ErrCodeStoreUnavailable, res.Reason)
	})

	t.Run("Store failure mid pipeline never escapes", func(t *testing.T) {
		store := newFakeStore()
		promo := activePromo("SAVE20")
		store.addPromo(promo)
		store.failOn["CountUsageByUserAndCode"] = errors.New("connection reset")

		res := newTestPipeline(1).Validate(context.Background(), store, promo.ID, uuid.New(), uuid.New())

		assert.False(t, res.IsValid)
		assert.Equal(t, model.ErrCodeInternalError, res.Reason)
	})
}

func TestNewPipeline_Defaults(t *testing.T) {
	p := NewPipeline(PipelineConfig{}, zerolog.Nop())

	assert.Equal(t, 1, p.cfg.MaxUsesPerUser)
	assert.WithinDuration(t, time.Now(), p.Now(), time.Second)
	assert.Len(t, p.checks, 5)
}
