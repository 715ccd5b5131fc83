package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"budsjett/internal/core"
	"budsjett/internal/extractor"
)

const userIDHeader = "X-User-ID"

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// userID reads the authenticated user set by the fronting auth layer.
func userID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(userIDHeader))
	return id, id != ""
}

// monthParam parses a required YYYYMM value from a query or form field.
func monthParam(value string) (core.YearMonth, error) {
	return core.ParseYearMonth(strings.TrimSpace(value))
}

// respondServiceError maps service and domain errors onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var extErr *extractor.ExtractionError
	switch {
	case errors.As(err, &extErr):
		respondError(w, http.StatusBadGateway, extErr.Reason)
	case errors.Is(err, core.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrNegativeSettlement),
		errors.Is(err, core.ErrSettlementExceedsAmount),
		errors.Is(err, core.ErrEmptyTitle),
		errors.Is(err, core.ErrInvalidAmount):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, core.ErrInvalidYearMonth),
		errors.Is(err, core.ErrNoFieldsToUpdate):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
