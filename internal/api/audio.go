package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/database"
	"github.com/snarg/scanmap/internal/storage"
)

// AudioHandler serves call audio by call id, falling back to the
// legacy database blob when the object store read fails.
type AudioHandler struct {
	db    *database.DB
	store storage.AudioStore
	log   zerolog.Logger
}

func NewAudioHandler(db *database.DB, store storage.AudioStore, log zerolog.Logger) *AudioHandler {
	return &AudioHandler{
		db:    db,
		store: store,
		log:   log.With().Str("handler", "audio").Logger(),
	}
}

func (h *AudioHandler) Routes(r chi.Router) {
	r.Get("/audio/{id}", h.Serve)
}

// Serve handles GET /audio/{id}.
func (h *AudioHandler) Serve(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid call id")
		return
	}

	call, err := h.db.GetCall(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "call not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	contentType := "audio/mpeg"
	if strings.HasSuffix(strings.ToLower(call.AudioKey), ".m4a") {
		contentType = "audio/mp4"
	}

	if rc, err := h.store.Open(r.Context(), call.AudioKey); err == nil {
		defer rc.Close()
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=86400")
		if _, err := io.Copy(w, rc); err != nil {
			h.log.Debug().Err(err).Int64("call_id", id).Msg("audio stream aborted")
		}
		return
	}

	// Legacy path: the blob table keeps a copy for the retention window.
	data, err := h.db.GetAudioBlob(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "audio not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "audio fetch failed")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(data)
}
