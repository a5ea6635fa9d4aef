package database

import "context"

// schemaSQL is the full schema for a fresh database. There is no
// migration system; columns are only ever added via IF NOT EXISTS
// statements appended here.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS transcriptions (
	id              bigserial PRIMARY KEY,
	talk_group_id   text NOT NULL,
	timestamp       bigint NOT NULL CHECK (timestamp > 0),
	transcription   text NOT NULL DEFAULT '',
	audio_file_path text NOT NULL,
	address         text,
	lat             double precision,
	lon             double precision,
	category        text,
	source_id       bigint,
	error_count     int NOT NULL DEFAULT 0,
	spike_count     int NOT NULL DEFAULT 0,
	created_at      timestamptz NOT NULL DEFAULT now(),
	CONSTRAINT coords_paired CHECK ((lat IS NULL) = (lon IS NULL)),
	CONSTRAINT address_needs_coords CHECK (lat IS NOT NULL OR address IS NULL)
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_ts ON transcriptions (timestamp);
CREATE INDEX IF NOT EXISTS idx_transcriptions_tg ON transcriptions (talk_group_id, id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_transcriptions_audio_key ON transcriptions (audio_file_path);

CREATE TABLE IF NOT EXISTS talk_groups (
	id        text PRIMARY KEY,
	alpha_tag text NOT NULL DEFAULT '',
	tag       text NOT NULL DEFAULT '',
	county    text NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS global_keywords (
	keyword       text NOT NULL,
	talk_group_id text,
	UNIQUE NULLS NOT DISTINCT (keyword, talk_group_id)
);

-- Legacy blob fallback: audio bytes served from here when the object
-- store read fails.
CREATE TABLE IF NOT EXISTS audio_files (
	transcription_id bigint NOT NULL REFERENCES transcriptions(id) ON DELETE CASCADE,
	audio_data       bytea NOT NULL,
	created_at       timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_audio_files_tid ON audio_files (transcription_id);
CREATE INDEX IF NOT EXISTS idx_audio_files_created ON audio_files (created_at);
`

// InitSchema applies the schema. Every statement is idempotent, so it
// runs unconditionally on startup.
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schemaSQL); err != nil {
		return err
	}
	db.log.Info().Msg("schema initialized")
	return nil
}
