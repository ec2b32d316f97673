package handlers

import (
	"net/http"

	"github.com/convergelabs/beliefd/internal/domain"
	"github.com/convergelabs/beliefd/internal/service"
	"github.com/go-chi/chi/v5"
)

// HistoryStore provides the per-document history behind a profile: episode
// records and the processed-document ledger.
type HistoryStore interface {
	domain.EpisodeStore
	domain.ProcessedTracker
}

type ProfileHandler struct {
	svc     *service.ProfileService
	history HistoryStore
}

func NewProfileHandler(svc *service.ProfileService, history HistoryStore) *ProfileHandler {
	return &ProfileHandler{svc: svc, history: history}
}

// Get returns the consolidated tiered view of the user's beliefs.
// ?section= narrows to one section, ?decay=true recalibrates confidence for
// staleness before selection.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	applyDecay := r.URL.Query().Get("decay") == "true"

	profile, err := h.svc.Build(r.Context(), userID, applyDecay)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build profile")
		return
	}

	if section := r.URL.Query().Get("section"); section != "" {
		if sel, ok := profile.Sections[section]; ok {
			profile.Sections = map[string]map[string]service.TieredSelection{section: sel}
		} else {
			profile.Sections = map[string]map[string]service.TieredSelection{}
		}
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) Stale(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	stale, err := h.svc.StaleBeliefs(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list stale beliefs")
		return
	}

	writeJSON(w, http.StatusOK, listBeliefsResponse{Beliefs: stale, Count: len(stale)})
}

type episodesResponse struct {
	Episodes []domain.Episode `json:"episodes"`
	Count    int              `json:"count"`
}

func (h *ProfileHandler) Episodes(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	episodes, err := h.history.ListEpisodes(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list episodes")
		return
	}

	writeJSON(w, http.StatusOK, episodesResponse{Episodes: episodes, Count: len(episodes)})
}

type processedResponse struct {
	DocumentIDs []string `json:"document_ids"`
	Count       int      `json:"count"`
}

func (h *ProfileHandler) Processed(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	ids, err := h.history.ProcessedIDs(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list processed documents")
		return
	}

	writeJSON(w, http.StatusOK, processedResponse{DocumentIDs: ids, Count: len(ids)})
}
