package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/config"
)

// AudioStore abstracts call-audio blob storage backends. Keys are the
// generated call filenames (see ingest.GenerateAudioKey).
type AudioStore interface {
	// Save stores audio data under key.
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// Open returns a reader for the audio bytes.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks whether the key is present.
	Exists(ctx context.Context, key string) bool

	// Delete removes the object. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// LocalPath returns the on-disk path if the backend is local, else "".
	// The local ASR child reads audio by path; remote stores return ""
	// and the pipeline falls back to sending raw bytes.
	LocalPath(key string) string

	// Type returns "local" or "s3".
	Type() string
}

// New creates an AudioStore from config. S3 access is verified at
// startup so a misconfigured bucket fails fast.
func New(cfg *config.Config, log zerolog.Logger) (AudioStore, error) {
	if cfg.StorageMode != "s3" {
		return NewLocalStore(cfg.AudioDir), nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("s3 init: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("s3 startup check (bucket=%q endpoint=%q): %w",
			cfg.S3Bucket, cfg.S3Endpoint, err)
	}
	log.Info().Str("bucket", cfg.S3Bucket).Str("endpoint", cfg.S3Endpoint).Msg("s3 connection verified")
	return s3store, nil
}
