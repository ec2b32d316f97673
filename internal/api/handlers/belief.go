package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/convergelabs/beliefd/internal/domain"
	"github.com/convergelabs/beliefd/internal/service"
	"github.com/convergelabs/beliefd/internal/store"
	"github.com/go-chi/chi/v5"
)

type BeliefHandler struct {
	store domain.BeliefStore
	svc   *service.ReconcileService
}

func NewBeliefHandler(s domain.BeliefStore, svc *service.ReconcileService) *BeliefHandler {
	return &BeliefHandler{store: s, svc: svc}
}

type listBeliefsResponse struct {
	Beliefs []domain.Belief `json:"beliefs"`
	Count   int             `json:"count"`
}

func (h *BeliefHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	kind := domain.KindSemantic
	if k := r.URL.Query().Get("kind"); k != "" {
		kind = domain.MemoryKind(k)
		if kind != domain.KindSemantic && kind != domain.KindEpisodic {
			writeError(w, http.StatusBadRequest, "kind must be semantic or episodic")
			return
		}
	}

	beliefs, err := h.store.ListAll(r.Context(), userID, kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list beliefs")
		return
	}

	if section := r.URL.Query().Get("section"); section != "" {
		filtered := beliefs[:0]
		for _, b := range beliefs {
			if b.Section == section {
				filtered = append(filtered, b)
			}
		}
		beliefs = filtered
	}

	writeJSON(w, http.StatusOK, listBeliefsResponse{Beliefs: beliefs, Count: len(beliefs)})
}

func (h *BeliefHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	beliefID := chi.URLParam(r, "beliefID")

	belief, err := h.store.Get(r.Context(), userID, beliefID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch belief")
		return
	}
	if belief == nil {
		writeError(w, http.StatusNotFound, "belief not found")
		return
	}

	writeJSON(w, http.StatusOK, belief)
}

func (h *BeliefHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	beliefID := chi.URLParam(r, "beliefID")

	if err := h.store.Delete(r.Context(), userID, beliefID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "belief not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete belief")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *BeliefHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	section := r.URL.Query().Get("section")

	min := 1
	if raw := r.URL.Query().Get("min"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "min must be a positive integer")
			return
		}
		min = v
	}

	conflicts, err := h.svc.Conflicting(r.Context(), userID, section, min)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conflicts")
		return
	}

	writeJSON(w, http.StatusOK, listBeliefsResponse{Beliefs: conflicts, Count: len(conflicts)})
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
}

func (h *BeliefHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	beliefID := chi.URLParam(r, "beliefID")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Resolution != service.ResolutionKeep && req.Resolution != service.ResolutionDelete {
		writeError(w, http.StatusBadRequest, "resolution must be keep or delete")
		return
	}

	if err := h.svc.Resolve(r.Context(), userID, beliefID, req.Resolution); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "belief not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to resolve belief")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved", "resolution": req.Resolution})
}
