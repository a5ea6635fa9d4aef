package transcribe

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/scanmap/internal/storage"
)

// Audio smaller than this is noise or a truncated upload; it fails
// without a round trip to the backend.
const minAudioBytes = 1024

// Job is one call waiting for transcription.
type Job struct {
	CallID   int64
	AudioKey string
}

// ResultFunc receives the final text for a job. An empty string is a
// valid terminal state: the call still persists and fans out, it just
// skips extraction.
type ResultFunc func(ctx context.Context, job Job, text string)

// QueueStats reports the state of the transcription queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// QueueOptions configures the transcription queue.
type QueueOptions struct {
	Provider  Provider
	Store     storage.AudioStore
	Workers   int
	QueueSize int
	Timeout   time.Duration
	OnResult  ResultFunc
	Log       zerolog.Logger
}

// Queue feeds jobs to the backend FIFO with bounded concurrency.
// Transport errors retry up to twice with backoff; permanent errors
// and timeouts complete immediately with an empty transcription.
type Queue struct {
	jobs     chan Job
	provider Provider
	store    storage.AudioStore
	timeout  time.Duration
	backoff  time.Duration
	onResult ResultFunc
	log      zerolog.Logger

	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	completed atomic.Int64
	failed    atomic.Int64
}

// NewQueue creates the queue. Start launches the workers.
func NewQueue(opts QueueOptions) *Queue {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		jobs:     make(chan Job, opts.QueueSize),
		provider: opts.Provider,
		store:    opts.Store,
		timeout:  opts.Timeout,
		backoff:  2 * time.Second,
		onResult: opts.OnResult,
		log:      opts.Log.With().Str("component", "transcribe-queue").Logger(),
		workers:  opts.Workers,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutines.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.log.Info().Int("workers", q.workers).Str("backend", q.provider.Name()).Msg("transcription queue started")
}

// Stop drains the queue and waits for in-flight jobs.
func (q *Queue) Stop() {
	close(q.jobs)
	q.wg.Wait()
	q.cancel()
	q.log.Info().
		Int64("completed", q.completed.Load()).
		Int64("failed", q.failed.Load()).
		Msg("transcription queue stopped")
}

// Enqueue adds a job. Returns false when the queue is full.
func (q *Queue) Enqueue(j Job) bool {
	select {
	case q.jobs <- j:
		return true
	default:
		return false
	}
}

// Stats returns current queue statistics.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Pending:   len(q.jobs),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log := q.log.With().Int("worker", id).Logger()

	for job := range q.jobs {
		text, ok := q.process(log, job)
		if ok {
			q.completed.Add(1)
		} else {
			q.failed.Add(1)
		}
		if q.onResult != nil {
			q.onResult(q.ctx, job, text)
		}
	}
}

func (q *Queue) process(log zerolog.Logger, job Job) (string, bool) {
	in, err := q.loadInput(job)
	if err != nil {
		log.Warn().Err(err).Int64("call_id", job.CallID).Str("key", job.AudioKey).Msg("audio load failed")
		return "", false
	}

	if size, err := in.size(); err == nil && size < minAudioBytes {
		log.Debug().Int64("call_id", job.CallID).Int64("bytes", size).Msg("audio too small, skipping transcription")
		return "", false
	}

	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
		text, err := q.provider.Transcribe(ctx, in)
		cancel()

		switch {
		case err == nil:
			return strings.TrimSpace(text), true
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn().Int64("call_id", job.CallID).Dur("timeout", q.timeout).Msg("transcription timed out")
			return "", false
		case IsPermanent(err) || q.ctx.Err() != nil:
			log.Warn().Err(err).Int64("call_id", job.CallID).Msg("transcription failed")
			return "", false
		case attempt >= 2:
			log.Warn().Err(err).Int64("call_id", job.CallID).Msg("transcription failed after retries")
			return "", false
		}

		backoff := time.Duration(attempt+1) * q.backoff
		log.Debug().Err(err).Int64("call_id", job.CallID).Dur("backoff", backoff).Msg("transcription retry")
		select {
		case <-q.ctx.Done():
			return "", false
		case <-time.After(backoff):
		}
	}
}

// loadInput resolves the audio reference. Local storage passes a path
// through; remote storage pulls the bytes so any backend can consume
// them.
func (q *Queue) loadInput(job Job) (Input, error) {
	in := Input{Name: job.AudioKey}
	if path := q.store.LocalPath(job.AudioKey); path != "" {
		in.Path = path
		return in, nil
	}

	ctx, cancel := context.WithTimeout(q.ctx, 30*time.Second)
	defer cancel()
	rc, err := q.store.Open(ctx, job.AudioKey)
	if err != nil {
		return Input{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return Input{}, err
	}
	in.Data = data
	return in, nil
}
