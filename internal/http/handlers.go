package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"budsjett/internal/core"
	"budsjett/internal/extractor"
)

const maxUploadBytes = 32 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

const extractorCacheKey = "extractors"

type extractorsResponse struct {
	Extractors []extractor.Info `json:"extractors"`
}

func (s *Server) handleListExtractors(w http.ResponseWriter, r *http.Request) {
	if infos, found := s.extractorCache.Get(extractorCacheKey); found {
		respondJSON(w, http.StatusOK, extractorsResponse{Extractors: infos})
		return
	}

	infos, err := s.extractors.ListExtractors(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.extractorCache.Set(extractorCacheKey, infos)

	respondJSON(w, http.StatusOK, extractorsResponse{Extractors: infos})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	month, err := monthParam(r.FormValue("month"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "month must be YYYYMM")
		return
	}

	extractorID := r.FormValue("extractor")
	if extractorID == "" {
		respondError(w, http.StatusBadRequest, "extractor is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	result, err := s.service.StageImport(r.Context(), user, header.Filename, file, extractorID, month)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListStaged(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	month, err := monthParam(r.URL.Query().Get("month"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "month must be YYYYMM")
		return
	}

	staged, err := s.service.ListStaged(r.Context(), user, month)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if staged == nil {
		staged = []core.StagedTransaction{}
	}

	respondJSON(w, http.StatusOK, staged)
}

func (s *Server) handleUpdateStaged(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	id := r.PathValue("id")

	// Fields are tri-state: absent leaves the value alone, null clears where
	// clearing is meaningful, a value sets it. Decoding into raw messages
	// keeps absent and null apart.
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params, err := decodeUpdateParams(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.service.UpdateStaged(r.Context(), user, id, params)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

func decodeUpdateParams(raw map[string]json.RawMessage) (core.UpdateStagedParams, error) {
	var params core.UpdateStagedParams

	if msg, ok := presentField(raw, "title"); ok {
		var title string
		if err := json.Unmarshal(msg, &title); err != nil {
			return params, fmt.Errorf("invalid title")
		}
		params.Title = &title
	}

	if msg, ok := presentField(raw, "amount"); ok {
		var amount core.Money
		if err := json.Unmarshal(msg, &amount); err != nil {
			return params, fmt.Errorf("amount must be an integer in minor units")
		}
		params.Amount = &amount
	}

	if msg, ok := presentField(raw, "date"); ok {
		var dateStr string
		if err := json.Unmarshal(msg, &dateStr); err != nil {
			return params, fmt.Errorf("invalid date")
		}
		d, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return params, fmt.Errorf("date must be YYYY-MM-DD")
		}
		params.Date = &d
	}

	if msg, ok := presentField(raw, "notes"); ok {
		var notes string
		if err := json.Unmarshal(msg, &notes); err != nil {
			return params, fmt.Errorf("invalid notes")
		}
		params.Notes = &notes
	}

	// Category is the one clearable field: present-and-null means clear.
	if msg, ok := raw["category"]; ok {
		params.SetCategory = true
		if string(msg) != "null" {
			var category string
			if err := json.Unmarshal(msg, &category); err != nil {
				return params, fmt.Errorf("invalid category")
			}
			params.Category = &category
		}
	}

	if msg, ok := presentField(raw, "isShared"); ok {
		var isShared bool
		if err := json.Unmarshal(msg, &isShared); err != nil {
			return params, fmt.Errorf("invalid isShared")
		}
		params.IsShared = &isShared
	}

	if msg, ok := presentField(raw, "collectToMe"); ok {
		var toMe core.Money
		if err := json.Unmarshal(msg, &toMe); err != nil {
			return params, fmt.Errorf("collectToMe must be an integer in minor units")
		}
		params.CollectToMe = &toMe
	}

	if msg, ok := presentField(raw, "collectFromMe"); ok {
		var fromMe core.Money
		if err := json.Unmarshal(msg, &fromMe); err != nil {
			return params, fmt.Errorf("collectFromMe must be an integer in minor units")
		}
		params.CollectFromMe = &fromMe
	}

	return params, nil
}

// presentField reports a field that is present with a non-null value.
func presentField(raw map[string]json.RawMessage, field string) (json.RawMessage, bool) {
	msg, ok := raw[field]
	if !ok || string(msg) == "null" {
		return nil, false
	}
	return msg, true
}

func (s *Server) handleDeleteStaged(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	if err := s.service.DeleteStaged(r.Context(), user, r.PathValue("id")); err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type bulkCategorizeRequest struct {
	IDs      []string `json:"ids"`
	Category *string  `json:"category"`
}

type bulkCategorizeResponse struct {
	Updated int `json:"updated"`
}

func (s *Server) handleBulkCategorize(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	var req bulkCategorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		respondError(w, http.StatusBadRequest, "ids is required")
		return
	}

	updated, err := s.service.BulkCategorize(r.Context(), user, req.IDs, req.Category)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, bulkCategorizeResponse{Updated: updated})
}

type commitRequest struct {
	Month string `json:"month"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	month, err := monthParam(req.Month)
	if err != nil {
		respondError(w, http.StatusBadRequest, "month must be YYYYMM")
		return
	}

	result, err := s.service.Commit(r.Context(), user, month)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListLedger(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return
	}

	month, err := monthParam(r.URL.Query().Get("month"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "month must be YYYYMM")
		return
	}

	ledger, err := s.service.ListLedger(r.Context(), user, month)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if ledger == nil {
		ledger = []core.LedgerEntry{}
	}

	respondJSON(w, http.StatusOK, ledger)
}
