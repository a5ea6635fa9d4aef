package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PruneBlobsFunc deletes legacy database audio blobs older than the
// cutoff and returns how many rows went away.
type PruneBlobsFunc func(ctx context.Context, olderThan time.Time) (int64, error)

// Pruner garbage-collects audio past the retention window from whichever
// backend is active, plus the legacy blob table. Runs every 24 hours.
type Pruner struct {
	store      AudioStore
	retention  time.Duration
	interval   time.Duration
	pruneBlobs PruneBlobsFunc
	log        zerolog.Logger
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewPruner creates an audio GC task. retentionDays <= 0 disables it.
func NewPruner(store AudioStore, retentionDays int, pruneBlobs PruneBlobsFunc, log zerolog.Logger) *Pruner {
	return &Pruner{
		store:      store,
		retention:  time.Duration(retentionDays) * 24 * time.Hour,
		interval:   24 * time.Hour,
		pruneBlobs: pruneBlobs,
		log:        log.With().Str("component", "audio-pruner").Logger(),
		stop:       make(chan struct{}),
	}
}

func (p *Pruner) Start() {
	if p.retention <= 0 {
		p.log.Info().Msg("audio retention disabled")
		return
	}
	go p.loop()
}

func (p *Pruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Pruner) loop() {
	// Run once on startup to clear any backlog from downtime
	p.prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stop:
			return
		}
	}
}

func (p *Pruner) prune() {
	cutoff := time.Now().Add(-p.retention)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var pruned int
	switch s := p.store.(type) {
	case *LocalStore:
		pruned = p.pruneLocal(s, cutoff)
	case *S3Store:
		pruned = p.pruneS3(ctx, s, cutoff)
	}

	var blobRows int64
	if p.pruneBlobs != nil {
		var err error
		blobRows, err = p.pruneBlobs(ctx, cutoff)
		if err != nil {
			p.log.Warn().Err(err).Msg("blob table prune failed")
		}
	}

	if pruned > 0 || blobRows > 0 {
		p.log.Info().
			Int("files", pruned).
			Int64("blob_rows", blobRows).
			Time("cutoff", cutoff).
			Msg("audio prune complete")
	}
}

func (p *Pruner) pruneLocal(s *LocalStore, cutoff time.Time) int {
	var pruned int
	filepath.WalkDir(s.Dir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				pruned++
			}
		}
		return nil
	})
	return pruned
}

func (p *Pruner) pruneS3(ctx context.Context, s *S3Store, cutoff time.Time) int {
	keys, err := s.ListOlderThan(ctx, cutoff)
	if err != nil {
		p.log.Warn().Err(err).Msg("s3 list for prune failed")
		return 0
	}
	var pruned int
	for _, objKey := range keys {
		key := strings.TrimPrefix(objKey, "audio/")
		if err := s.Delete(ctx, key); err != nil {
			p.log.Warn().Err(err).Str("key", key).Msg("s3 delete failed")
			continue
		}
		pruned++
	}
	return pruned
}
