package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// LogsHandler appends user-submitted correction and deletion reports
// to JSON-lines files. The web client posts these when someone fixes a
// bad transcription or flags a marker; operators review them offline.
type LogsHandler struct {
	dir string
	mu  sync.Mutex
	log zerolog.Logger
}

func NewLogsHandler(dir string, log zerolog.Logger) *LogsHandler {
	return &LogsHandler{dir: dir, log: log.With().Str("handler", "logs").Logger()}
}

func (h *LogsHandler) Routes(r chi.Router) {
	r.Post("/log/correction", h.append("corrections.log"))
	r.Post("/log/deletion", h.append("deletions.log"))
}

func (h *LogsHandler) append(filename string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entry map[string]any
		if err := DecodeJSON(r, &entry); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid body")
			return
		}
		entry["logged_at"] = time.Now().UTC().Format(time.RFC3339)

		line, err := json.Marshal(entry)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "unencodable body")
			return
		}

		h.mu.Lock()
		err = h.writeLine(filename, line)
		h.mu.Unlock()
		if err != nil {
			h.log.Error().Err(err).Str("file", filename).Msg("log append failed")
			WriteError(w, http.StatusInternalServerError, "log write failed")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "logged"})
	}
}

func (h *LogsHandler) writeLine(filename string, line []byte) error {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(h.dir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}
