// Package apikeys manages the upload shared-secret file: bcrypt hashes
// with a disabled flag, validated on every call upload. The file is
// generated on first boot and reloaded atomically when it changes.
package apikeys

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Entry is one stored API key.
type Entry struct {
	Key      string `json:"key"` // bcrypt hash
	Disabled bool   `json:"disabled"`
}

// Store holds the active key set. The set is read-only between reloads;
// Replace swaps it atomically.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	path    string
	log     zerolog.Logger
}

// Load reads the key file. A missing or empty file triggers first-boot
// key generation: a random key is written (hashed) and logged once in
// plaintext so the operator can configure the uploader.
func Load(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{path: path, log: log.With().Str("component", "apikeys").Logger()}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) || (err == nil && len(data) == 0) {
		if genErr := s.generateFirstKey(); genErr != nil {
			return nil, genErr
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read api key file: %w", err)
	}

	entries, err := parse(data)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		if genErr := s.generateFirstKey(); genErr != nil {
			return nil, genErr
		}
		return s, nil
	}
	s.entries = entries
	s.log.Info().Int("keys", len(entries)).Msg("api keys loaded")
	return s, nil
}

func parse(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse api key file: %w", err)
	}
	return entries, nil
}

// Validate checks a presented key against every enabled stored hash.
// bcrypt's comparison is constant-time per hash; all hashes are checked
// so timing does not reveal which entry matched.
func (s *Store) Validate(key string) bool {
	s.mu.RLock()
	entries := s.entries
	s.mu.RUnlock()

	valid := false
	for _, e := range entries {
		if e.Disabled {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(e.Key), []byte(key)) == nil {
			valid = true
		}
	}
	return valid
}

// Watch reloads the key file whenever it changes, until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch api key file: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				s.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn().Err(err).Msg("api key watcher error")
			}
		}
	}()
	return nil
}

func (s *Store) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Warn().Err(err).Msg("api key reload failed")
		return
	}
	entries, err := parse(data)
	if err != nil || len(entries) == 0 {
		s.log.Warn().Err(err).Msg("api key reload skipped: invalid or empty file")
		return
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	s.log.Info().Int("keys", len(entries)).Msg("api keys reloaded")
}

func (s *Store) generateFirstKey() error {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	plaintext := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	entries := []Entry{{Key: string(hash)}}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write api key file: %w", err)
	}

	s.entries = entries
	// Shown once; only the hash is persisted.
	s.log.Info().Str("api_key", plaintext).Msg("generated first-boot api key")
	return nil
}
