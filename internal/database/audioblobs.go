package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// InsertAudioBlob stores audio bytes in the legacy audio_files table.
// Serves as a fallback when the object store read fails.
func (db *DB) InsertAudioBlob(ctx context.Context, transcriptionID int64, data []byte) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO audio_files (transcription_id, audio_data) VALUES ($1, $2)
	`, transcriptionID, data)
	return err
}

// GetAudioBlob returns the stored audio bytes for a call, or ErrNotFound.
func (db *DB) GetAudioBlob(ctx context.Context, transcriptionID int64) ([]byte, error) {
	var data []byte
	err := db.Pool.QueryRow(ctx, `
		SELECT audio_data FROM audio_files WHERE transcription_id = $1
		ORDER BY created_at DESC LIMIT 1
	`, transcriptionID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// PruneAudioBlobs deletes blob rows older than the cutoff. The blob
// table shares the object store's retention window.
func (db *DB) PruneAudioBlobs(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM audio_files WHERE created_at < $1
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
