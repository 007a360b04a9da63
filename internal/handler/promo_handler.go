package handler

import (
	"net/http"
	"strings"

	"subpromo/internal/model"
	"subpromo/internal/promo"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PromoHandler handles promo code validation and redemption requests.
type PromoHandler struct {
	service promo.Service
	logger  zerolog.Logger
}

// NewPromoHandler creates a new promo code handler.
func NewPromoHandler(service promo.Service, logger zerolog.Logger) *PromoHandler {
	return &PromoHandler{
		service: service,
		logger:  logger.With().Str("handler", "promo").Logger(),
	}
}

// Validate handles POST /api/promo-codes/validate requests. Validation
// failures are part of the result and still answer 200.
func (h *PromoHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r, h.logger) {
		return
	}

	var req model.ValidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, err.Error(), h.logger)
		return
	}

	switch {
	case req.PromoCodeID == nil && strings.TrimSpace(req.Code) == "":
		writeError(w, r, http.StatusBadRequest, model.ErrCodeMissingField, "promoCodeId or code is required", h.logger)
		return
	case req.UserID == uuid.Nil:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeMissingField, "userId is required", h.logger)
		return
	case req.PlanID == uuid.Nil:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeMissingField, "planId is required", h.logger)
		return
	}

	var result model.ValidationResult
	if req.PromoCodeID != nil {
		result = h.service.ValidateAndCache(r.Context(), *req.PromoCodeID, req.UserID, req.PlanID)
	} else {
		result = h.service.ValidateCodeAndCache(r.Context(), req.Code, req.UserID, req.PlanID)
	}

	writeJSON(w, http.StatusOK, result)
}

// Redeem handles POST /api/promo-codes/redeem requests.
func (h *PromoHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r, h.logger) {
		return
	}

	var req model.RedeemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, err.Error(), h.logger)
		return
	}

	required := []struct {
		field string
		id    uuid.UUID
	}{
		{"subscriptionId", req.SubscriptionID},
		{"userId", req.UserID},
		{"promoCodeId", req.PromoCodeID},
	}
	for _, f := range required {
		if f.id == uuid.Nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeMissingField, f.field+" is required", h.logger)
			return
		}
	}

	record, err := h.service.Redeem(r.Context(), &req)
	if err != nil {
		writeDomainError(w, r, err, "failed to redeem promo code", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}
