package promo

import (
	"fmt"

	"subpromo/internal/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateDiscount returns the discount promo gives on price, rounded to cents.
//
// PERCENTAGE discounts are price * value / 100, capped at MaxDiscountAmount
// when set. FIXED discounts never exceed the price. The result is never
// negative. Any other discount type is an invariant violation.
func CalculateDiscount(promo *model.PromoCode, price decimal.Decimal) (decimal.Decimal, error) {
	if price.IsNegative() {
		price = decimal.Zero
	}

	var discount decimal.Decimal
	switch promo.DiscountType {
	case model.DiscountPercentage:
		discount = price.Mul(promo.DiscountValue).Div(hundred)
		if promo.MaxDiscountAmount != nil && discount.GreaterThan(*promo.MaxDiscountAmount) {
			discount = *promo.MaxDiscountAmount
		}
	case model.DiscountFixed:
		discount = decimal.Min(promo.DiscountValue, price)
	default:
		return decimal.Zero, model.NewInvariantViolation(model.ErrCodeUnknownDiscountType,
			fmt.Sprintf("unknown discount type %q on promo code %s", promo.DiscountType, promo.ID))
	}

	if discount.IsNegative() {
		return decimal.Zero, nil
	}
	return discount.Round(2), nil
}
