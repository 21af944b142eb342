package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *APIHandler) ListCollectionsHandler(w http.ResponseWriter, r *http.Request) {
	collections, err := h.collections.Collections(tenantFrom(r))
	if err != nil {
		writeServiceError(w, h.logger, "list-collections", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": collections})
}

func (h *APIHandler) CollectionChunksHandler(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collectionID")
	chunks, err := h.collections.FetchChunks(tenantFrom(r), collectionID)
	if err != nil {
		writeServiceError(w, h.logger, "collection-chunks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

func (h *APIHandler) DeleteCollectionHandler(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collectionID")
	if err := h.collections.DeleteCollection(collectionID); err != nil {
		writeServiceError(w, h.logger, "delete-collection", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
