package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested call does not exist.
var ErrNotFound = errors.New("not found")

// Call is a single radio-call record ("transcriptions" table row).
// Lat/Lon/Address are set together or not at all.
type Call struct {
	ID            int64    `json:"id"`
	TalkGroupID   string   `json:"talk_group_id"`
	Timestamp     int64    `json:"timestamp"` // unix seconds
	Transcription string   `json:"transcription"`
	AudioKey      string   `json:"audio_file_path"`
	Address       *string  `json:"address,omitempty"`
	Lat           *float64 `json:"lat,omitempty"`
	Lon           *float64 `json:"lon,omitempty"`
	Category      *string  `json:"category,omitempty"`
	SourceID      *int64   `json:"source_id,omitempty"`
	ErrorCount    int      `json:"error_count"`
	SpikeCount    int      `json:"spike_count"`
}

const callColumns = `id, talk_group_id, timestamp, transcription, audio_file_path,
	address, lat, lon, category, source_id, error_count, spike_count`

func scanCall(row pgx.Row) (*Call, error) {
	var c Call
	err := row.Scan(
		&c.ID, &c.TalkGroupID, &c.Timestamp, &c.Transcription, &c.AudioKey,
		&c.Address, &c.Lat, &c.Lon, &c.Category, &c.SourceID, &c.ErrorCount, &c.SpikeCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectCalls(rows pgx.Rows) ([]Call, error) {
	defer rows.Close()
	var calls []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *c)
	}
	return calls, rows.Err()
}

// InsertCall creates a new call record and returns its id. The
// transcription starts empty; AudioKey must be unique.
func (db *DB) InsertCall(ctx context.Context, c *Call) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO transcriptions (talk_group_id, timestamp, audio_file_path, source_id, error_count, spike_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, c.TalkGroupID, c.Timestamp, c.AudioKey, c.SourceID, c.ErrorCount, c.SpikeCount).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert call: %w", err)
	}
	return id, nil
}

// DeleteCall removes a call record (upload rollback, admin purge).
func (db *DB) DeleteCall(ctx context.Context, id int64) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM transcriptions WHERE id = $1`, id)
	return err
}

// UpdateTranscription sets the transcription text for a call. Called
// exactly once per call by the pipeline; an empty string is a valid
// terminal state.
func (db *DB) UpdateTranscription(ctx context.Context, id int64, text string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE transcriptions SET transcription = $2 WHERE id = $1
	`, id, text)
	return err
}

// UpdateLocation sets address, coordinates, and the rewritten
// transcription (address occurrences hyperlinked) in one statement so
// the coords-paired invariant cannot be observed half-applied.
func (db *DB) UpdateLocation(ctx context.Context, id int64, address string, lat, lon float64, transcription string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE transcriptions SET address = $2, lat = $3, lon = $4, transcription = $5
		WHERE id = $1
	`, id, address, lat, lon, transcription)
	return err
}

// UpdateMarkerLocation moves an existing marker (admin correction).
func (db *DB) UpdateMarkerLocation(ctx context.Context, id int64, lat, lon float64) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE transcriptions SET lat = $2, lon = $3 WHERE id = $1 AND lat IS NOT NULL
	`, id, lat, lon)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearMarker removes a call's coordinates and address (admin delete).
func (db *DB) ClearMarker(ctx context.Context, id int64) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE transcriptions SET lat = NULL, lon = NULL, address = NULL WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCategory persists the map classifier's label so later polls do
// not re-classify.
func (db *DB) UpdateCategory(ctx context.Context, id int64, category string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE transcriptions SET category = $2 WHERE id = $1
	`, id, category)
	return err
}

// MaxCallID returns the highest call id, or 0 when the table is empty.
// The polling loops seed their watermarks from it so a restart does
// not replay history.
func (db *DB) MaxCallID(ctx context.Context) (int64, error) {
	var max int64
	err := db.Pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM transcriptions`).Scan(&max)
	return max, err
}

// GetCall returns a single call by id.
func (db *DB) GetCall(ctx context.Context, id int64) (*Call, error) {
	return scanCall(db.Pool.QueryRow(ctx,
		`SELECT `+callColumns+` FROM transcriptions WHERE id = $1`, id))
}

// CallsWithCoordsSince returns calls in the last `hours` hours that
// have coordinates, newest first.
func (db *DB) CallsWithCoordsSince(ctx context.Context, hours float64) ([]Call, error) {
	cutoff := time.Now().Add(-time.Duration(hours * float64(time.Hour))).Unix()
	rows, err := db.Pool.Query(ctx, `
		SELECT `+callColumns+` FROM transcriptions
		WHERE timestamp >= $1 AND lat IS NOT NULL
		ORDER BY timestamp DESC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return collectCalls(rows)
}

// CallsAfterID returns up to limit calls with id > afterID in id order.
// When mappedOnly is set, only calls with coordinates are returned
// (the map polling loop); otherwise all calls (the live feed loop).
func (db *DB) CallsAfterID(ctx context.Context, afterID int64, limit int, mappedOnly bool) ([]Call, error) {
	q := `SELECT ` + callColumns + ` FROM transcriptions WHERE id > $1`
	if mappedOnly {
		q += ` AND lat IS NOT NULL`
	}
	q += ` ORDER BY id ASC LIMIT $2`
	rows, err := db.Pool.Query(ctx, q, afterID, limit)
	if err != nil {
		return nil, err
	}
	return collectCalls(rows)
}

// TalkgroupCalls pages through a talkgroup's calls, newest first.
// sinceID > 0 restricts to ids above the watermark.
func (db *DB) TalkgroupCalls(ctx context.Context, talkgroupID string, sinceID int64, limit, offset int) ([]Call, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT `+callColumns+` FROM transcriptions
		WHERE talk_group_id = $1 AND id > $2
		ORDER BY id DESC
		LIMIT $3 OFFSET $4
	`, talkgroupID, sinceID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectCalls(rows)
}

// AdditionalTranscriptions returns older calls on the same talkgroup as
// callID, skipping the first skip rows. Used by the map client to page
// context under a marker.
func (db *DB) AdditionalTranscriptions(ctx context.Context, callID int64, skip int) ([]Call, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+callColumns+` FROM transcriptions
		WHERE talk_group_id = (SELECT talk_group_id FROM transcriptions WHERE id = $1)
		  AND id < $1 AND transcription <> ''
		ORDER BY id DESC
		LIMIT 10 OFFSET $2
	`, callID, skip)
	if err != nil {
		return nil, err
	}
	return collectCalls(rows)
}

// TranscriptsInWindow returns all non-empty transcripts in [start, end),
// oldest first. Used by the summariser.
func (db *DB) TranscriptsInWindow(ctx context.Context, start, end time.Time) ([]Call, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+callColumns+` FROM transcriptions
		WHERE timestamp >= $1 AND timestamp < $2 AND transcription <> ''
		ORDER BY timestamp ASC
	`, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	return collectCalls(rows)
}

// TranscriptsForTalkgroup returns a talkgroup's non-empty transcripts
// since `start`, oldest first. Used by Ask-AI.
func (db *DB) TranscriptsForTalkgroup(ctx context.Context, talkgroupID string, start time.Time) ([]Call, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+callColumns+` FROM transcriptions
		WHERE talk_group_id = $1 AND timestamp >= $2 AND transcription <> ''
		ORDER BY timestamp ASC
	`, talkgroupID, start.Unix())
	if err != nil {
		return nil, err
	}
	return collectCalls(rows)
}
