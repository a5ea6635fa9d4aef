package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/database"
)

// MarkersHandler exposes the admin-only marker mutations: move a
// misplaced marker or take one off the map.
type MarkersHandler struct {
	db  *database.DB
	log zerolog.Logger
}

func NewMarkersHandler(db *database.DB, log zerolog.Logger) *MarkersHandler {
	return &MarkersHandler{db: db, log: log.With().Str("handler", "markers").Logger()}
}

func (h *MarkersHandler) Routes(r chi.Router) {
	r.Put("/markers/{id}/location", h.UpdateLocation)
	r.Delete("/markers/{id}", h.Delete)
}

type markerLocationRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// UpdateLocation handles PUT /api/markers/{id}/location.
func (h *MarkersHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid call id")
		return
	}
	var req markerLocationRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lon < -180 || req.Lon > 180 {
		WriteError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}

	err = h.db.UpdateMarkerLocation(r.Context(), id, req.Lat, req.Lon)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "no marker for that call")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "update failed")
		return
	}
	h.log.Info().Int64("call_id", id).Float64("lat", req.Lat).Float64("lon", req.Lon).Msg("marker moved")
	WriteJSON(w, http.StatusOK, map[string]any{"id": id, "lat": req.Lat, "lon": req.Lon})
}

// Delete handles DELETE /api/markers/{id}: clears the call's
// coordinates and address so it leaves the map; the call record and
// transcription stay.
func (h *MarkersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid call id")
		return
	}
	if err := h.db.ClearMarker(r.Context(), id); err != nil {
		WriteError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	h.log.Info().Int64("call_id", id).Msg("marker removed")
	w.WriteHeader(http.StatusNoContent)
}
