package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/givers/charity-ledger/internal/service"
	"github.com/givers/charity-ledger/internal/token"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// decodeBody reads a JSON request body into v. It writes the 400 itself.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

// errorStatus maps ledger and token errors to a status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInactiveCampaign):
		return http.StatusConflict, "inactive_campaign"
	case errors.Is(err, service.ErrExpired):
		return http.StatusConflict, "expired"
	case errors.Is(err, service.ErrNotEnded):
		return http.StatusConflict, "not_ended"
	case errors.Is(err, service.ErrNothingToRelease):
		return http.StatusConflict, "nothing_to_release"
	case errors.Is(err, service.ErrAlreadyReleased):
		return http.StatusConflict, "already_released"
	case errors.Is(err, service.ErrInsufficientFunds), errors.Is(err, token.ErrInsufficientBalance):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, service.ErrInsufficientAllowance), errors.Is(err, token.ErrInsufficientAllowance):
		return http.StatusPaymentRequired, "insufficient_allowance"
	case errors.Is(err, token.ErrNotOwner):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, token.ErrZeroAddress), errors.Is(err, token.ErrNegativeAmount),
		errors.Is(err, token.ErrLengthMismatch), errors.Is(err, token.ErrAllowanceBelowZero):
		return http.StatusBadRequest, "invalid_input"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeServiceError logs 5xx errors and writes the mapped response.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error(op+" failed", "error", err, "path", r.URL.Path, "request_id", RequestIDFromContext(r.Context()))
	} else {
		slog.Debug(op+" rejected", "error", err, "code", code)
	}
	writeError(w, status, code)
}
