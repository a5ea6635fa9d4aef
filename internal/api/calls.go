package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/database"
)

// CallsHandler serves the read-only call and talkgroup queries used by
// the map and live-feed clients.
type CallsHandler struct {
	db  *database.DB
	log zerolog.Logger
}

func NewCallsHandler(db *database.DB, log zerolog.Logger) *CallsHandler {
	return &CallsHandler{db: db, log: log.With().Str("handler", "calls").Logger()}
}

func (h *CallsHandler) Routes(r chi.Router) {
	r.Get("/calls", h.List)
	r.Get("/call/{id}/details", h.Details)
	r.Get("/additional-transcriptions/{callId}", h.AdditionalTranscriptions)
	r.Get("/talkgroup/{id}/calls", h.TalkgroupCalls)
	r.Get("/talkgroups", h.Talkgroups)
}

// List handles GET /api/calls?hours=H: located calls for map boot.
func (h *CallsHandler) List(w http.ResponseWriter, r *http.Request) {
	hours := QueryFloat(r, "hours", 24)
	if hours <= 0 || hours > 24*31 {
		WriteError(w, http.StatusBadRequest, "hours out of range")
		return
	}
	calls, err := h.db.CallsWithCoordsSince(r.Context(), hours)
	if err != nil {
		h.log.Error().Err(err).Msg("calls query failed")
		WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if calls == nil {
		calls = []database.Call{}
	}
	WriteJSON(w, http.StatusOK, calls)
}

// Details handles GET /api/call/{id}/details.
func (h *CallsHandler) Details(w http.ResponseWriter, r *http.Request) {
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
		WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}
	WriteJSON(w, http.StatusOK, call)
}

// AdditionalTranscriptions handles
// GET /api/additional-transcriptions/{callId}?skip=K: earlier calls on
// the same talkgroup, for the marker popup's history view.
func (h *CallsHandler) AdditionalTranscriptions(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "callId")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid call id")
		return
	}
	skip := QueryInt(r, "skip", 0)
	if skip < 0 {
		skip = 0
	}
	calls, err := h.db.AdditionalTranscriptions(r.Context(), id, skip)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "call not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if calls == nil {
		calls = []database.Call{}
	}
	WriteJSON(w, http.StatusOK, calls)
}

// TalkgroupCalls handles GET /api/talkgroup/{id}/calls?sinceId&limit&offset.
func (h *CallsHandler) TalkgroupCalls(w http.ResponseWriter, r *http.Request) {
	tgID := chi.URLParam(r, "id")
	sinceID := QueryInt64(r, "sinceId", 0)
	limit := QueryInt(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset := QueryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	calls, err := h.db.TalkgroupCalls(r.Context(), tgID, sinceID, limit, offset)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if calls == nil {
		calls = []database.Call{}
	}
	WriteJSON(w, http.StatusOK, calls)
}

// Talkgroups handles GET /api/talkgroups.
func (h *CallsHandler) Talkgroups(w http.ResponseWriter, r *http.Request) {
	tgs, err := h.db.ListTalkgroups(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if tgs == nil {
		tgs = []database.Talkgroup{}
	}
	WriteJSON(w, http.StatusOK, tgs)
}
