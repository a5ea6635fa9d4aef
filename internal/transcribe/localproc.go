package transcribe

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrChildExited is returned for jobs in flight when the ASR child
// dies. It is permanent: the queue completes the call with an empty
// transcription instead of retrying into a dead process.
var ErrChildExited = Permanent(errors.New("asr child exited"))

const childRestartDelay = 5 * time.Second

type childRequest struct {
	Command  string `json:"command"`
	ID       int64  `json:"id"`
	Path     string `json:"path,omitempty"`
	AudioB64 string `json:"audio_data_base64,omitempty"`
}

type childReply struct {
	Ready         bool    `json:"ready"`
	ID            int64   `json:"id"`
	Transcription *string `json:"transcription"`
	Error         string  `json:"error"`
}

// childConn demultiplexes the newline-delimited JSON protocol spoken
// with one ASR child process. The child replies out of order; replies
// are matched to callers by job id. Writes to the child are serialised.
type childConn struct {
	w       io.Writer
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan childReply

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}

	log zerolog.Logger
}

func newChildConn(w io.Writer, r io.Reader, log zerolog.Logger) *childConn {
	c := &childConn{
		w:       w,
		pending: make(map[int64]chan childReply),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		log:     log,
	}
	go c.readLoop(r)
	return c
}

func (c *childConn) readLoop(r io.Reader) {
	defer close(c.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var reply childReply
		if err := json.Unmarshal(line, &reply); err != nil {
			c.log.Warn().Err(err).Str("line", truncate(string(line), 120)).Msg("unparseable line from asr child")
			continue
		}
		if reply.Ready {
			c.readyOnce.Do(func() { close(c.ready) })
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[reply.ID]
		c.mu.Unlock()
		if !ok {
			c.log.Warn().Int64("id", reply.ID).Msg("reply for unknown asr job")
			continue
		}
		ch <- reply
	}
}

// call sends one job and waits for its reply, child death, or ctx.
func (c *childConn) call(ctx context.Context, req childRequest) (string, error) {
	ch := make(chan childReply, 1)
	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return "", Permanent(fmt.Errorf("marshal asr request: %w", err))
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	_, err = c.w.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		return "", ErrChildExited
	}

	select {
	case reply := <-ch:
		if reply.Error != "" {
			return "", Permanent(fmt.Errorf("asr: %s", reply.Error))
		}
		if reply.Transcription == nil {
			return "", Permanent(errors.New("asr reply missing transcription"))
		}
		return *reply.Transcription, nil
	case <-c.done:
		return "", ErrChildExited
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *childConn) awaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return ErrChildExited
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LocalProc runs the ASR model in a child process and restarts it when
// it dies. Jobs in flight across a death complete with ErrChildExited.
type LocalProc struct {
	command []string
	log     zerolog.Logger

	mu     sync.Mutex
	conn   *childConn
	kill   func()
	closed bool

	nextID atomic.Int64
}

// NewLocalProc prepares the local backend. Start must be called before
// Transcribe.
func NewLocalProc(command []string, log zerolog.Logger) *LocalProc {
	return &LocalProc{
		command: command,
		log:     log.With().Str("component", "asr-child").Logger(),
	}
}

func (lp *LocalProc) Name() string { return "local" }

// Start spawns the child and a supervisor that respawns it 5 s after
// any exit, until ctx is cancelled.
func (lp *LocalProc) Start(ctx context.Context) error {
	if err := lp.spawn(); err != nil {
		return err
	}
	go lp.supervise(ctx)
	return nil
}

func (lp *LocalProc) spawn() error {
	cmd := exec.Command(lp.command[0], lp.command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("asr child stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("asr child stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("asr child stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start asr child: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			lp.log.Debug().Str("stderr", scanner.Text()).Msg("asr child")
		}
	}()
	// Reap the process once stdout closes so it never zombies.
	conn := newChildConn(stdin, stdout, lp.log)
	go func() {
		<-conn.done
		cmd.Wait()
	}()

	lp.mu.Lock()
	lp.conn = conn
	lp.kill = func() { cmd.Process.Kill() }
	lp.mu.Unlock()

	lp.log.Info().Str("cmd", lp.command[0]).Int("pid", cmd.Process.Pid).Msg("asr child started")
	return nil
}

func (lp *LocalProc) supervise(ctx context.Context) {
	for {
		lp.mu.Lock()
		conn := lp.conn
		lp.mu.Unlock()

		select {
		case <-ctx.Done():
			lp.Stop()
			return
		case <-conn.done:
		}

		lp.mu.Lock()
		closed := lp.closed
		lp.mu.Unlock()
		if closed {
			return
		}

		lp.log.Warn().Dur("restart_in", childRestartDelay).Msg("asr child died")
		select {
		case <-ctx.Done():
			return
		case <-time.After(childRestartDelay):
		}
		if err := lp.spawn(); err != nil {
			lp.log.Error().Err(err).Msg("asr child restart failed")
			// Try again on the next loop iteration after the delay.
			continue
		}
	}
}

// Stop kills the child. The supervisor sees closed and does not respawn.
func (lp *LocalProc) Stop() {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.closed = true
	if lp.kill != nil {
		lp.kill()
	}
}

// Transcribe sends one job to the child. When the audio has a local
// path the child reads it directly; otherwise the bytes go inline as
// base64, which is how S3-backed storage reaches a filesystem-less
// child.
func (lp *LocalProc) Transcribe(ctx context.Context, in Input) (string, error) {
	lp.mu.Lock()
	conn := lp.conn
	lp.mu.Unlock()
	if conn == nil {
		return "", Permanent(errors.New("asr child not started"))
	}

	if err := conn.awaitReady(ctx); err != nil {
		return "", err
	}

	req := childRequest{Command: "transcribe", ID: lp.nextID.Add(1)}
	if in.Path != "" {
		req.Path = in.Path
	} else {
		req.AudioB64 = base64.StdEncoding.EncodeToString(in.Data)
	}
	return conn.call(ctx, req)
}
