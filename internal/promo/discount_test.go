package promo

import (
	"math/rand"
	"testing"

	"subpromo/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestCalculateDiscount(t *testing.T) {
	tests := []struct {
		name     string
		promo    model.PromoCode
		price    string
		expected string
	}{
		{
			name:     "Percentage without cap",
			promo:    model.PromoCode{DiscountType: model.DiscountPercentage, DiscountValue: dec("20")},
			price:    "100",
			expected: "20",
		},
		{
			name:     "Percentage capped",
			promo:    model.PromoCode{DiscountType: model.DiscountPercentage, DiscountValue: dec("50"), MaxDiscountAmount: decPtr("15")},
			price:    "100",
			expected: "15",
		},
		{
			name:     "Percentage below cap",
			promo:    model.PromoCode{DiscountType: model.DiscountPercentage, DiscountValue: dec("10"), MaxDiscountAmount: decPtr("15")},
			price:    "100",
			expected: "10",
		},
		{
			name:     "Percentage rounds to cents",
			promo:    model.PromoCode{DiscountType: model.DiscountPercentage, DiscountValue: dec("33.333")},
			price:    "10",
			expected: "3.33",
		},
		{
			name:     "Fixed below price",
			promo:    model.PromoCode{DiscountType: model.DiscountFixed, DiscountValue: dec("10")},
			price:    "30",
			expected: "10",
		},
		{
			name:     "Fixed capped by price",
			promo:    model.PromoCode{DiscountType: model.DiscountFixed, DiscountValue: dec("50")},
			price:    "30",
			expected: "30",
		},
		{
			name:     "Free plan",
			promo:    model.PromoCode{DiscountType: model.DiscountFixed, DiscountValue: dec("50")},
			price:    "0",
			expected: "0",
		},
		{
			name:     "Negative price is treated as zero",
			promo:    model.PromoCode{DiscountType: model.DiscountPercentage, DiscountValue: dec("20")},
			price:    "-10",
			expected: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateDiscount(&tt.promo, dec(tt.price))
			require.NoError(t, err)
			assert.True(t, dec(tt.expected).Equal(got), "expected %s, got %s", tt.expected, got)
		})
	}
}

func TestCalculateDiscount_UnknownType(t *testing.T) {
	promo := &model.PromoCode{DiscountType: "BOGO", DiscountValue: dec("1")}

	_, err := CalculateDiscount(promo, dec("10"))

	require.Error(t, err)
	assert.Equal(t, model.KindInvariant, model.KindOf(err))
}

func TestCalculateDiscount_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		price := decimal.New(rng.Int63n(100000), -2)
		maxDiscount := decimal.New(rng.Int63n(5000)+1, -2)

		pct := model.PromoCode{
			DiscountType:      model.DiscountPercentage,
			DiscountValue:     decimal.New(rng.Int63n(10000)+1, -2),
			MaxDiscountAmount: &maxDiscount,
		}
		first, err := CalculateDiscount(&pct, price)
		require.NoError(t, err)
		second, err := CalculateDiscount(&pct, price)
		require.NoError(t, err)

		assert.True(t, first.Equal(second))
		assert.False(t, first.IsNegative())
		assert.True(t, first.LessThanOrEqual(maxDiscount.Round(2)))

		fixed := model.PromoCode{
			DiscountType:  model.DiscountFixed,
			DiscountValue: decimal.New(rng.Int63n(100000)+1, -2),
		}
		got, err := CalculateDiscount(&fixed, price)
		require.NoError(t, err)
		assert.True(t, got.LessThanOrEqual(price))
		assert.False(t, got.IsNegative())
	}
}
