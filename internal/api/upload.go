package api

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/apikeys"
	"github.com/snarg/scanmap/internal/ingest"
	"github.com/snarg/scanmap/internal/metrics"
)

const (
	msgImported   = "Call imported successfully."
	msgIncomplete = "incomplete call data: no talkgroup"
)

// Ingestor is the pipeline surface the upload handler needs.
type Ingestor interface {
	HandleUpload(ctx context.Context, up ingest.Upload) (int64, error)
}

// UploadHandler accepts RdioScanner-compatible multipart call uploads
// from SDRTrunk and TrunkRecorder/rdio-scanner.
type UploadHandler struct {
	keys     *apikeys.Store
	pipeline Ingestor
	loc      *time.Location
	log      zerolog.Logger
}

func NewUploadHandler(keys *apikeys.Store, pipeline Ingestor, loc *time.Location, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		keys:     keys,
		pipeline: pipeline,
		loc:      loc,
		log:      log.With().Str("handler", "upload").Logger(),
	}
}

// Routes registers the upload endpoint.
func (h *UploadHandler) Routes(r chi.Router) {
	r.Post("/call-upload", h.Upload)
}

// responder guards against double writes: capture software retries on
// anything but a single clean response, so every exit path funnels
// through respond and only the first one wins.
type responder struct {
	w    http.ResponseWriter
	done bool
}

func (rp *responder) respond(status int, body string) {
	if rp.done {
		return
	}
	rp.done = true
	rp.w.Header().Set("Content-Type", "text/plain")
	rp.w.WriteHeader(status)
	io.WriteString(rp.w, body)
}

// Upload handles POST /api/call-upload.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	rp := &responder{w: w}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		rp.respond(http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	field := func(name string) string {
		if v := r.MultipartForm.Value[name]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	key := field("key")
	if key == "" {
		rp.respond(http.StatusBadRequest, "API key missing")
		return
	}
	if !h.keys.Validate(key) {
		rp.respond(http.StatusUnauthorized, "invalid API key")
		return
	}

	sdrtrunk := ingest.IsSDRTrunk(r.UserAgent())

	// SDRTrunk probes connectivity with test=1 and no audio; it expects
	// this exact reply.
	if sdrtrunk && field("test") == "1" {
		rp.respond(http.StatusOK, msgIncomplete)
		return
	}

	audio, filename, ok := pickAudioPart(r.MultipartForm)
	if !ok {
		rp.respond(http.StatusBadRequest, "no audio part")
		return
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "pcm" {
		// Raw PCM from SDRTrunk streaming configs is not playable or
		// transcribable; drop it without complaint so the uploader
		// does not retry.
		metrics.UploadsDiscarded.WithLabelValues("pcm").Inc()
		h.log.Debug().Str("filename", filename).Msg("discarding pcm upload")
		rp.respond(http.StatusOK, msgImported)
		return
	}

	talkgroup := field("talkgroup")
	if talkgroup == "" {
		metrics.UploadsDiscarded.WithLabelValues("no_talkgroup").Inc()
		rp.respond(http.StatusOK, msgIncomplete)
		return
	}

	ts, dialect, tsOK := ingest.ParseDateTime(field("dateTime"), time.Now())
	if !tsOK {
		h.log.Warn().Str("dateTime", field("dateTime")).Msg("unparseable dateTime, using ingestion time")
	}
	ts = ts.In(h.loc)

	source := field("source")
	if source == "" {
		source = ingest.ParseSources(field("sources"))
	}
	if source == "" && sdrtrunk {
		source = ingest.SourceFromFilename(filename)
	}

	errCount, spikeCount, freqOK := ingest.SumFrequencies(field("frequencies"))
	if !freqOK {
		h.log.Warn().Str("talkgroup", talkgroup).Msg("malformed frequencies field, signal quality zeroed")
	}

	data, err := io.ReadAll(audio)
	audio.Close()
	if err != nil {
		rp.respond(http.StatusInternalServerError, "failed to read audio")
		return
	}

	up := ingest.Upload{
		Talkgroup:      talkgroup,
		TalkgroupLabel: field("talkgroupLabel"),
		SystemLabel:    field("systemLabel"),
		TalkgroupGroup: field("talkgroupGroup"),
		Timestamp:      ts,
		Source:         source,
		Errors:         errCount,
		Spikes:         spikeCount,
		Audio:          data,
		Filename:       filename,
		Ext:            ext,
	}

	id, err := h.pipeline.HandleUpload(r.Context(), up)
	if err != nil {
		h.log.Error().Err(err).Str("talkgroup", talkgroup).Str("dialect", string(dialect)).Msg("upload processing failed")
		rp.respond(http.StatusInternalServerError, "internal error")
		return
	}

	h.log.Info().
		Int64("call_id", id).
		Str("talkgroup", talkgroup).
		Str("dialect", string(dialect)).
		Int("bytes", len(data)).
		Msg("call uploaded")
	rp.respond(http.StatusOK, msgImported)
}

// pickAudioPart returns the call audio from the "file" or "audio"
// part. File parts under any other name are ignored, not rejected:
// some uploaders attach extra artifacts.
func pickAudioPart(form *multipart.Form) (multipart.File, string, bool) {
	for _, name := range []string{"file", "audio"} {
		headers := form.File[name]
		if len(headers) == 0 {
			continue
		}
		f, err := headers[0].Open()
		if err != nil {
			continue
		}
		return f, headers[0].Filename, true
	}
	return nil, "", false
}
