package router

import (
	"net/http"

	"subpromo/internal/handler"
	"subpromo/internal/middleware"

	"github.com/rs/zerolog"
)

// New creates a new HTTP router with all routes and middleware configured.
func New(
	promoHandler *handler.PromoHandler,
	adminHandler *handler.AdminHandler,
	healthHandler *handler.HealthHandler,
	apiKey string,
	logger zerolog.Logger,
) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint (no authentication required)
	mux.HandleFunc("/health", healthHandler.Health)

	mux.HandleFunc("/api/promo-codes/validate", promoHandler.Validate)
	mux.HandleFunc("/api/promo-codes/redeem", promoHandler.Redeem)

	mux.HandleFunc("/api/admin/cache/invalidate", adminHandler.InvalidateCache)
	mux.HandleFunc("/api/admin/catalog/import", adminHandler.ImportCatalog)

	// Apply middleware in order: Recovery -> RequestID -> Logging -> CORS -> APIKeyAuth
	var h http.Handler = mux
	h = middleware.APIKeyAuth(apiKey, logger)(h)
	h = middleware.CORS(h)
	h = middleware.Logging(logger)(h)
	h = middleware.RequestID(h)
	h = middleware.Recovery(logger)(h)

	return h
}
