package handler

import (
	"context"
	"net/http"

	"subpromo/internal/catalog"
	"subpromo/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CacheInvalidator purges cached promo code data.
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context, promoCodeID *uuid.UUID) (int, error)
	InvalidateOne(ctx context.Context, promoCodeID uuid.UUID) (int, error)
}

// CatalogImporter bulk-loads promo code definitions.
type CatalogImporter interface {
	Import(ctx context.Context, sources ...string) (*catalog.ImportReport, error)
}

// Invalidation scopes.
const (
	ScopeAll = "all"
	ScopeOne = "one"
)

// InvalidateRequest is the body of POST /api/admin/cache/invalidate.
type InvalidateRequest struct {
	PromoCodeID *uuid.UUID `json:"promoCodeId,omitempty"`
	Scope       string     `json:"scope"`
}

// InvalidateResponse reports how many keys were removed. Partial is set
// when some patterns could not be purged.
type InvalidateResponse struct {
	Deleted int  `json:"deleted"`
	Partial bool `json:"partial,omitempty"`
}

// ImportRequest is the body of POST /api/admin/catalog/import.
type ImportRequest struct {
	Sources []string `json:"sources"`
}

// AdminHandler handles cache and catalog maintenance requests.
type AdminHandler struct {
	invalidator CacheInvalidator
	importer    CatalogImporter
	logger      zerolog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(invalidator CacheInvalidator, importer CatalogImporter, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		invalidator: invalidator,
		importer:    importer,
		logger:      logger.With().Str("handler", "admin").Logger(),
	}
}

// InvalidateCache handles POST /api/admin/cache/invalidate requests.
func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r, h.logger) {
		return
	}

	var req InvalidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, err.Error(), h.logger)
		return
	}
	if req.Scope == "" {
		req.Scope = ScopeAll
	}

	var (
		deleted int
		err     error
	)
	switch req.Scope {
	case ScopeAll:
		deleted, err = h.invalidator.InvalidateAll(r.Context(), req.PromoCodeID)
	case ScopeOne:
		if req.PromoCodeID == nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeMissingField, "promoCodeId is required for scope one", h.logger)
			return
		}
		deleted, err = h.invalidator.InvalidateOne(r.Context(), *req.PromoCodeID)
	default:
		writeError(w, r, http.StatusBadRequest, "INVALID_SCOPE", `scope must be "all" or "one"`, h.logger)
		return
	}

	resp := InvalidateResponse{Deleted: deleted}
	if err != nil {
		h.logger.Warn().Err(err).Str("scope", req.Scope).Int("deleted", deleted).Msg("cache invalidation incomplete")
		resp.Partial = true
	}

	writeJSON(w, http.StatusOK, resp)
}

// ImportCatalog handles POST /api/admin/catalog/import requests.
func (h *AdminHandler) ImportCatalog(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r, h.logger) {
		return
	}

	var req ImportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, err.Error(), h.logger)
		return
	}
	if len(req.Sources) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeMissingField, "sources must contain at least one entry", h.logger)
		return
	}

	report, err := h.importer.Import(r.Context(), req.Sources...)
	if err != nil {
		writeDomainError(w, r, err, "failed to import catalog", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
