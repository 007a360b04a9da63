package catalog

import (
	"fmt"

	"subpromo/internal/model"
	"subpromo/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxCodeLength matches the promo_codes.code column.
const maxCodeLength = 64

var hundred = decimal.NewFromInt(100)

// idNamespace derives stable ids for catalog entries that omit one, so
// re-importing the same file updates rather than duplicates.
var idNamespace = uuid.MustParse("6f1c1d0a-4a8e-4c53-9a55-2f3b7e3f9d41")

// Normalise upper-cases the code and fills in a stable id when it is missing.
func Normalise(def *model.PromoCodeDefinition) {
	def.Code = repository.NormaliseCode(def.Code)
	if def.ID == uuid.Nil && def.Code != "" {
		def.ID = uuid.NewSHA1(idNamespace, []byte(def.Code))
	}
	if def.ApplicableTo == "" {
		def.ApplicableTo = model.ApplicableAll
	}
}

// Validate checks a normalised definition against the promo code invariants.
func Validate(def *model.PromoCodeDefinition) error {
	switch {
	case def.Code == "":
		return invalid("code is required")
	case len(def.Code) > maxCodeLength:
		return invalid(fmt.Sprintf("code must be at most %d characters", maxCodeLength))
	case def.StartDate.IsZero():
		return invalid("startDate is required")
	case def.EndDate != nil && !def.EndDate.After(def.StartDate):
		return invalid("endDate must be after startDate")
	case !def.DiscountValue.IsPositive():
		return invalid("discountValue must be positive")
	case def.MaxDiscountAmount != nil && !def.MaxDiscountAmount.IsPositive():
		return invalid("maxDiscountAmount must be positive")
	case def.UsageLimit != nil && *def.UsageLimit < 1:
		return invalid("usageLimit must be positive")
	}

	switch def.DiscountType {
	case model.DiscountPercentage:
		if def.DiscountValue.GreaterThan(hundred) {
			return invalid("percentage discountValue must not exceed 100")
		}
	case model.DiscountFixed:
	default:
		return invalid(fmt.Sprintf("unknown discountType %q", def.DiscountType))
	}

	switch def.ApplicableTo {
	case model.ApplicableAll:
	case model.ApplicableSpecificPlans:
		if len(def.PlanIDs) == 0 {
			return invalid("SPECIFIC_PLANS requires at least one plan id")
		}
	case model.ApplicableSpecificUsers:
		if len(def.UserIDs) == 0 {
			return invalid("SPECIFIC_USERS requires at least one user id")
		}
	default:
		return invalid(fmt.Sprintf("unknown applicableTo %q", def.ApplicableTo))
	}

	return nil
}

func invalid(message string) error {
	return model.NewBadRequestError(model.ErrCodeInvalidDefinition, message)
}
