package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/config"
	"github.com/snarg/scanmap/internal/database"
	"github.com/snarg/scanmap/internal/extract"
	"github.com/snarg/scanmap/internal/geocode"
	"github.com/snarg/scanmap/internal/metrics"
	"github.com/snarg/scanmap/internal/storage"
	"github.com/snarg/scanmap/internal/transcribe"
)

// minExtractLen gates address extraction: shorter transmissions are
// acknowledgements and unit chatter, not dispatches.
const minExtractLen = 15

// Upload is a normalised call upload, independent of dialect.
type Upload struct {
	Talkgroup      string
	TalkgroupLabel string
	SystemLabel    string
	TalkgroupGroup string
	Timestamp      time.Time
	Source         string
	Errors         int
	Spikes         int
	Audio          []byte
	Filename       string // original upload filename
	Ext            string
}

// Publisher pushes pipeline events to live consumers.
type Publisher interface {
	Publish(event string, payload any)
}

// Notifier receives each call once its transcription (and possibly
// location) is final.
type Notifier interface {
	CallFinished(ctx context.Context, call *database.Call)
}

// CallStore is the slice of the database the pipeline writes through.
// *database.DB satisfies it.
type CallStore interface {
	InsertCall(ctx context.Context, c *database.Call) (int64, error)
	InsertAudioBlob(ctx context.Context, transcriptionID int64, data []byte) error
	UpdateTranscription(ctx context.Context, id int64, text string) error
	UpdateLocation(ctx context.Context, id int64, address string, lat, lon float64, transcription string) error
	GetCall(ctx context.Context, id int64) (*database.Call, error)
}

// Pipeline owns the call lifecycle from upload to fan-out.
type Pipeline struct {
	cfg       *config.Config
	db        CallStore
	store     storage.AudioStore
	queue     *transcribe.Queue
	extractor *extract.Extractor
	geocoder  geocode.Geocoder
	publisher Publisher
	notifier  Notifier
	log       zerolog.Logger
}

// Options wires the pipeline's collaborators. Publisher and Notifier
// may be nil.
type Options struct {
	Config    *config.Config
	DB        CallStore
	Store     storage.AudioStore
	Extractor *extract.Extractor
	Geocoder  geocode.Geocoder
	Publisher Publisher
	Notifier  Notifier
	Log       zerolog.Logger
}

func NewPipeline(opts Options) *Pipeline {
	return &Pipeline{
		cfg:       opts.Config,
		db:        opts.DB,
		store:     opts.Store,
		extractor: opts.Extractor,
		geocoder:  opts.Geocoder,
		publisher: opts.Publisher,
		notifier:  opts.Notifier,
		log:       opts.Log.With().Str("component", "pipeline").Logger(),
	}
}

// SetQueue attaches the transcription queue. Separate from NewPipeline
// because the queue's result callback points back at the pipeline.
func (p *Pipeline) SetQueue(q *transcribe.Queue) { p.queue = q }

// HandleUpload persists the audio and the call record, then queues
// transcription. Audio and record are created atomically: a failure on
// either side leaves neither behind.
func (p *Pipeline) HandleUpload(ctx context.Context, up Upload) (int64, error) {
	key := GenerateAudioKey(Meta{
		Timestamp: up.Timestamp,
		System:    up.SystemLabel,
		Talkgroup: up.Talkgroup,
		Source:    up.Source,
		Ext:       up.Ext,
	})

	if err := p.store.Save(ctx, key, up.Audio, contentTypeFor(up.Ext)); err != nil {
		metrics.UploadErrors.Inc()
		return 0, fmt.Errorf("persist audio: %w", err)
	}

	call := &database.Call{
		TalkGroupID:   up.Talkgroup,
		Timestamp:     up.Timestamp.Unix(),
		Transcription: "",
		AudioKey:      key,
		ErrorCount:    up.Errors,
		SpikeCount:    up.Spikes,
	}
	call.SourceID = parseSourceID(up.Source)

	id, err := p.db.InsertCall(ctx, call)
	if err != nil {
		if delErr := p.store.Delete(ctx, key); delErr != nil {
			p.log.Warn().Err(delErr).Str("key", key).Msg("orphan audio cleanup failed")
		}
		metrics.UploadErrors.Inc()
		return 0, fmt.Errorf("insert call: %w", err)
	}
	call.ID = id

	// Legacy fallback for the audio endpoint when the object store is
	// unavailable. Best effort.
	if err := p.db.InsertAudioBlob(ctx, id, up.Audio); err != nil {
		p.log.Warn().Err(err).Int64("call_id", id).Msg("audio blob insert failed")
	}

	metrics.UploadsAccepted.Inc()

	// No feed event here: subscribers see a call only once its
	// transcription (or the poller's placeholder) has landed.
	if !p.queue.Enqueue(transcribe.Job{CallID: id, AudioKey: key}) {
		// The call stays with an empty transcription, a valid terminal
		// state, rather than blocking the upload handler.
		metrics.TranscriptionsDropped.Inc()
		p.log.Warn().Int64("call_id", id).Msg("transcription queue full, call will stay untranscribed")
	}

	p.log.Debug().
		Int64("call_id", id).
		Str("talkgroup", up.Talkgroup).
		Str("key", key).
		Int("bytes", len(up.Audio)).
		Msg("call ingested")
	return id, nil
}

// OnTranscribed is the queue's result callback. It stores the final
// transcription, runs extraction and geocoding for mapped talkgroups,
// and hands the finished call to the fan-out.
func (p *Pipeline) OnTranscribed(ctx context.Context, job transcribe.Job, text string) {
	log := p.log.With().Int64("call_id", job.CallID).Logger()

	final := text
	var located bool

	if p.shouldExtract(ctx, job.CallID, text) {
		if addr, lat, lon, ok := p.locate(ctx, job.CallID, text); ok {
			linked := linkifyTranscript(text, addr, lat, lon)
			if err := p.db.UpdateLocation(ctx, job.CallID, addr, lat, lon, linked); err != nil {
				log.Error().Err(err).Msg("location update failed")
			} else {
				final = linked
				located = true
				metrics.GeocodeAccepted.Inc()
			}
		}
	}

	if !located {
		if err := p.db.UpdateTranscription(ctx, job.CallID, text); err != nil {
			log.Error().Err(err).Msg("transcription update failed")
			return
		}
	}

	if p.publisher != nil {
		p.publisher.Publish("transcription", map[string]any{
			"id":            job.CallID,
			"transcription": final,
			"located":       located,
		})
	}

	if p.notifier != nil {
		call, err := p.db.GetCall(ctx, job.CallID)
		if err != nil {
			log.Warn().Err(err).Msg("call reload for fan-out failed")
			return
		}
		p.notifier.CallFinished(ctx, call)
	}
}

func (p *Pipeline) shouldExtract(ctx context.Context, callID int64, text string) bool {
	if p.extractor == nil || p.geocoder == nil {
		return false
	}
	if len(text) < minExtractLen {
		return false
	}
	call, err := p.db.GetCall(ctx, callID)
	if err != nil {
		p.log.Warn().Err(err).Int64("call_id", callID).Msg("call lookup for extraction gate failed")
		return false
	}
	return p.cfg.Mapped(call.TalkGroupID)
}

func (p *Pipeline) locate(ctx context.Context, callID int64, text string) (addr string, lat, lon float64, ok bool) {
	call, err := p.db.GetCall(ctx, callID)
	if err != nil {
		return "", 0, 0, false
	}
	town := p.cfg.Town(call.TalkGroupID)

	addr, err = p.extractor.Extract(ctx, text, town)
	if err != nil {
		p.log.Warn().Err(err).Int64("call_id", callID).Msg("address extraction failed")
		return "", 0, 0, false
	}
	if addr == "" {
		return "", 0, 0, false
	}

	res, err := p.geocoder.Geocode(ctx, addr)
	if err != nil {
		metrics.GeocodeErrors.Inc()
		p.log.Warn().Err(err).Str("address", addr).Msg("geocoding failed")
		return "", 0, 0, false
	}
	if reason := geocode.Accept(res, p.cfg.TargetCounties); reason != "" {
		metrics.GeocodeRejected.Inc()
		p.log.Debug().Str("address", addr).Str("reason", reason).Msg("geocode result rejected")
		return "", 0, 0, false
	}
	return res.Address, res.Lat, res.Lon, true
}

// linkifyTranscript hyperlinks occurrences of the extracted address to
// a map URL. When the formatted address never appears verbatim, a link
// line is appended so the stored transcript still references it.
func linkifyTranscript(transcript, address string, lat, lon float64) string {
	url := fmt.Sprintf("https://www.google.com/maps?q=%.6f,%.6f", lat, lon)

	// Try the full formatted address first, then its street segment.
	for _, needle := range []string{address, strings.SplitN(address, ",", 2)[0]} {
		needle = strings.TrimSpace(needle)
		if needle == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(needle))
		if re.MatchString(transcript) {
			return re.ReplaceAllStringFunc(transcript, func(match string) string {
				return "[" + match + "](" + url + ")"
			})
		}
	}
	return transcript + "\n[" + address + "](" + url + ")"
}

// parseSourceID converts the dialect's textual unit id to the stored
// bigint. Non-numeric values (some systems report alias strings) are
// dropped rather than failing the upload.
func parseSourceID(s string) *int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

func contentTypeFor(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "m4a", "mp4":
		return "audio/mp4"
	case "wav":
		return "audio/wav"
	default:
		return "audio/mpeg"
	}
}
