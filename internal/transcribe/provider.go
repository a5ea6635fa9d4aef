// Package transcribe turns call audio into text. Four backends share
// one interface: a long-lived local ASR child process, an
// OpenAI-compatible remote server, the hosted OpenAI endpoint, and an
// iCAD transcribe server. A bounded queue in front of the backend
// applies the retry and timeout policy.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/config"
)

// Input references the audio for one job. Path is preferred when the
// audio lives on the local filesystem; Data carries raw bytes when it
// does not (S3-backed storage).
type Input struct {
	Path string
	Data []byte
	Name string // original filename, used for multipart uploads
}

func (in Input) reader() (io.ReadCloser, error) {
	if in.Data != nil {
		return io.NopCloser(bytes.NewReader(in.Data)), nil
	}
	f, err := os.Open(in.Path)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	return f, nil
}

func (in Input) size() (int64, error) {
	if in.Data != nil {
		return int64(len(in.Data)), nil
	}
	info, err := os.Stat(in.Path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Provider is a speech-to-text backend.
type Provider interface {
	Transcribe(ctx context.Context, in Input) (string, error)
	Name() string
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks an error as non-retryable: the backend understood
// the request and rejected it, so trying again cannot help.
func Permanent(err error) error { return permanentError{err} }

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe)
}

// NewProvider builds the backend selected by TRANSCRIPTION_MODE.
func NewProvider(cfg *config.Config, log zerolog.Logger) (Provider, error) {
	switch cfg.TranscriptionMode {
	case "local":
		return NewLocalProc(workerCommand(cfg), log), nil
	case "remote":
		if cfg.WhisperServerURL == "" {
			return nil, fmt.Errorf("TRANSCRIPTION_MODE=remote requires FASTER_WHISPER_SERVER_URL")
		}
		return NewRemoteWhisper(cfg.WhisperServerURL, cfg.WhisperModel, cfg.TranscriptionTimeout), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("TRANSCRIPTION_MODE=openai requires OPENAI_API_KEY")
		}
		return NewOpenAIWhisper(cfg.OpenAIAPIKey, cfg.TranscriptionTimeout), nil
	case "icad":
		if cfg.ICADURL == "" {
			return nil, fmt.Errorf("TRANSCRIPTION_MODE=icad requires ICAD_URL")
		}
		return NewICAD(cfg.ICADURL, cfg.ICADAPIKey, cfg.ICADProfile, cfg.WhisperModel, cfg.TranscriptionTimeout), nil
	default:
		return nil, fmt.Errorf("unknown TRANSCRIPTION_MODE %q", cfg.TranscriptionMode)
	}
}

func workerCommand(cfg *config.Config) []string {
	cmd := strings.Fields(cfg.WhisperWorkerCmd)
	return append(cmd, "--model", cfg.WhisperModel, "--device", cfg.TranscriptionDevice)
}

// httpTimeout pads the per-request client timeout slightly so the
// queue's context deadline fires first and controls the outcome.
func httpTimeout(d time.Duration) time.Duration {
	return d + 10*time.Second
}
