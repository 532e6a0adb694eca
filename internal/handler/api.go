package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/examcert/internal/model"
)

const maxRequestBody = 64 << 10

type generateRequest struct {
	Course string `json:"course"`
	Level  string `json:"level"`
}

type apiError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func invalidRequest(w http.ResponseWriter, details string) {
	writeJSON(w, http.StatusBadRequest, apiError{Error: "Invalid request", Details: details})
}

func (h *Handler) tooManyRequestsAPI(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, apiError{
		Error:   "Too many requests",
		Details: "rate limit exceeded, try again later",
	})
}

// handleGenerateAPI serves POST /api/generate-questions.
func (h *Handler) handleGenerateAPI(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		invalidRequest(w, err.Error())
		return
	}
	course := strings.TrimSpace(req.Course)
	if course == "" {
		invalidRequest(w, "course is required")
		return
	}
	level, err := model.ParseLevel(req.Level)
	if err != nil {
		invalidRequest(w, err.Error())
		return
	}

	doc, err := h.generate(r.Context(), course, level)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{
			Error:   "Failed to generate questions",
			Details: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
