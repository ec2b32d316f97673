package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/convergelabs/beliefd/internal/domain"
	"github.com/convergelabs/beliefd/internal/service"
	"github.com/go-chi/chi/v5"
)

type ObservationHandler struct {
	svc *service.ReconcileService
}

func NewObservationHandler(svc *service.ReconcileService) *ObservationHandler {
	return &ObservationHandler{svc: svc}
}

type ingestRequest struct {
	Documents []domain.DocumentBatch `json:"documents"`
}

type ingestResponse struct {
	Results []service.DocumentResult `json:"results"`
}

// Ingest accepts a batch of source documents and reconciles their
// observations into the user's beliefs.
func (h *ObservationHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "documents is required")
		return
	}
	for i := range req.Documents {
		if err := req.Documents[i].Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	results, err := h.svc.ReconcileBatch(r.Context(), userID, req.Documents)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reconcile observations")
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{Results: results})
}
