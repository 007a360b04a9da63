package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"subpromo/internal/middleware"
	"subpromo/internal/model"

	"github.com/rs/zerolog"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeError writes an error response with the given status code, code and message.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, logger zerolog.Logger) {
	requestID := middleware.RequestIDFromContext(r.Context())

	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Str("error", code).
		Str("message", message).
		Int("status", status).
		Str("request_id", requestID).
		Msg("handler error")

	writeJSON(w, status, model.ErrorResponse{Error: code, Message: message, RequestID: requestID})
}

// writeDomainError maps err to a status by kind. Messages of internal
// failures are not exposed.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, fallback string, logger zerolog.Logger) {
	status := statusFor(model.KindOf(err))

	de, ok := model.AsDomainError(err)
	switch {
	case !ok:
		logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg(fallback)
		writeError(w, r, status, model.ErrCodeInternalError, fallback, logger)
	case de.Kind == model.KindTransient:
		writeError(w, r, status, de.Code, "service temporarily unavailable, please retry", logger)
	case de.Kind == model.KindInvariant:
		logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg(fallback)
		writeError(w, r, status, model.ErrCodeInternalError, fallback, logger)
	default:
		writeError(w, r, status, de.Code, de.Message, logger)
	}
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation, model.KindBadRequest:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict:
		return http.StatusConflict
	case model.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes a bounded JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid request body: trailing data")
	}
	return nil
}

// requirePost rejects any method but POST.
func requirePost(w http.ResponseWriter, r *http.Request, logger zerolog.Logger) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", logger)
		return false
	}
	return true
}
