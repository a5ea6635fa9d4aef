package livefeed

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/database"
)

const (
	// Placeholder emitted for calls whose transcription has not landed
	// within pendingGrace of the call timestamp.
	Placeholder  = "[Transcription Pending...]"
	pendingGrace = 10 * time.Second

	// batchLimit caps emissions per poll so a backlog cannot flood
	// connected clients.
	batchLimit = 10
)

// ClassifyFunc labels a transcription with an incident category.
type ClassifyFunc func(ctx context.Context, transcription string) string

// Poller is one of the two live fan-out loops. The map poller
// (mappedOnly, classifier attached) emits newCall for located calls;
// the feed poller emits liveFeedUpdate for everything.
type Poller struct {
	db         *database.DB
	bus        *EventBus
	event      string
	mappedOnly bool
	interval   time.Duration
	classify   ClassifyFunc
	log        zerolog.Logger

	watermark int64
	now       func() time.Time
}

// NewMapPoller creates the location-filtered loop (2.0 s cadence).
func NewMapPoller(db *database.DB, bus *EventBus, classify ClassifyFunc, log zerolog.Logger) *Poller {
	return &Poller{
		db:         db,
		bus:        bus,
		event:      "newCall",
		mappedOnly: true,
		interval:   2 * time.Second,
		classify:   classify,
		log:        log.With().Str("component", "map-poller").Logger(),
		now:        time.Now,
	}
}

// NewFeedPoller creates the unfiltered live-ticker loop (2.5 s cadence).
func NewFeedPoller(db *database.DB, bus *EventBus, log zerolog.Logger) *Poller {
	return &Poller{
		db:       db,
		bus:      bus,
		event:    "liveFeedUpdate",
		interval: 2500 * time.Millisecond,
		log:      log.With().Str("component", "feed-poller").Logger(),
		now:      time.Now,
	}
}

// Run seeds the watermark and polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	max, err := p.db.MaxCallID(ctx)
	if err != nil {
		return err
	}
	p.watermark = max
	p.log.Info().Int64("watermark", max).Dur("interval", p.interval).Msg("poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	rows, err := p.db.CallsAfterID(ctx, p.watermark, batchLimit, p.mappedOnly)
	if err != nil {
		p.log.Warn().Err(err).Msg("poll query failed")
		return
	}

	emits, newWatermark := planBatch(rows, p.now())
	for _, em := range emits {
		call := em.call
		if em.pending {
			call.Transcription = Placeholder
		} else if p.classify != nil && call.Category == nil {
			// Classify once on first real emission; later polls see
			// the persisted category.
			if cat := p.classify(ctx, call.Transcription); cat != "" {
				if err := p.db.UpdateCategory(ctx, call.ID, cat); err != nil {
					p.log.Warn().Err(err).Int64("call_id", call.ID).Msg("category update failed")
				} else {
					call.Category = &cat
				}
			}
		}
		p.bus.Publish(p.event, call)
	}
	if newWatermark > p.watermark {
		p.watermark = newWatermark
	}
}

type emission struct {
	call    database.Call
	pending bool
}

// planBatch walks a batch in id order and decides what to emit. The
// watermark only moves past ids that were emitted: a call younger than
// the grace period with no transcription halts the batch so it (and
// everything behind it) is retried on the next poll. A call past the
// grace period is emitted once with the placeholder and the watermark
// moves on; its real transcription reaches clients through the
// pipeline's transcription event.
func planBatch(rows []database.Call, now time.Time) ([]emission, int64) {
	var emits []emission
	var watermark int64
	for _, row := range rows {
		if row.Transcription == "" {
			age := now.Sub(time.Unix(row.Timestamp, 0))
			if age < pendingGrace {
				break
			}
			emits = append(emits, emission{call: row, pending: true})
			watermark = row.ID
			continue
		}
		emits = append(emits, emission{call: row})
		watermark = row.ID
	}
	return emits, watermark
}
