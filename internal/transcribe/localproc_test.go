package transcribe

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeChild drives a childConn over pipes, standing in for the ASR
// process.
type fakeChild struct {
	conn *childConn
	in   *bufio.Scanner // requests the parent wrote
	out  io.WriteCloser // replies back to the parent
	tail io.Closer
}

func newFakeChild(t *testing.T) *fakeChild {
	t.Helper()
	parentR, childW := io.Pipe()
	childR, parentW := io.Pipe()

	fc := &fakeChild{
		conn: newChildConn(parentW, parentR, zerolog.Nop()),
		in:   bufio.NewScanner(childR),
		out:  childW,
		tail: parentW,
	}
	t.Cleanup(func() {
		fc.out.Close()
		fc.tail.Close()
	})
	return fc
}

func (fc *fakeChild) sendReady(t *testing.T) {
	t.Helper()
	if _, err := fc.out.Write([]byte(`{"ready":true}` + "\n")); err != nil {
		t.Fatal(err)
	}
}

func (fc *fakeChild) readRequest(t *testing.T) childRequest {
	t.Helper()
	if !fc.in.Scan() {
		t.Fatal("no request from parent")
	}
	var req childRequest
	if err := json.Unmarshal(fc.in.Bytes(), &req); err != nil {
		t.Fatalf("bad request line: %v", err)
	}
	return req
}

func (fc *fakeChild) reply(t *testing.T, id int64, text string) {
	t.Helper()
	line := fmt.Sprintf(`{"id":%d,"transcription":%q}`+"\n", id, text)
	if _, err := fc.out.Write([]byte(line)); err != nil {
		t.Fatal(err)
	}
}

func TestChildConn_MatchesRepliesOutOfOrder(t *testing.T) {
	fc := newFakeChild(t)
	fc.sendReady(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fc.conn.awaitReady(ctx); err != nil {
		t.Fatal(err)
	}

	type result struct {
		text string
		err  error
	}
	res1 := make(chan result, 1)
	res2 := make(chan result, 1)
	go func() {
		text, err := fc.conn.call(ctx, childRequest{Command: "transcribe", ID: 1, Path: "a.mp3"})
		res1 <- result{text, err}
	}()
	go func() {
		text, err := fc.conn.call(ctx, childRequest{Command: "transcribe", ID: 2, Path: "b.mp3"})
		res2 <- result{text, err}
	}()

	// Collect both requests, then answer in reverse order.
	got := map[int64]childRequest{}
	for i := 0; i < 2; i++ {
		req := fc.readRequest(t)
		got[req.ID] = req
	}
	if got[1].Path != "a.mp3" || got[2].Path != "b.mp3" {
		t.Fatalf("requests misrouted: %+v", got)
	}
	fc.reply(t, 2, "second call")
	fc.reply(t, 1, "first call")

	r1 := <-res1
	r2 := <-res2
	if r1.err != nil || r1.text != "first call" {
		t.Errorf("job 1: got (%q, %v), want (first call, nil)", r1.text, r1.err)
	}
	if r2.err != nil || r2.text != "second call" {
		t.Errorf("job 2: got (%q, %v), want (second call, nil)", r2.text, r2.err)
	}
}

func TestChildConn_ErrorReplyIsPermanent(t *testing.T) {
	fc := newFakeChild(t)
	fc.sendReady(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fc.conn.awaitReady(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := fc.conn.call(ctx, childRequest{Command: "transcribe", ID: 7, Path: "x.mp3"})
		done <- err
	}()
	req := fc.readRequest(t)
	line := fmt.Sprintf(`{"id":%d,"error":"audio too short"}`+"\n", req.ID)
	fc.out.Write([]byte(line))

	err := <-done
	if err == nil || !IsPermanent(err) {
		t.Fatalf("got %v, want permanent error", err)
	}
}

func TestChildConn_DeathCompletesInFlightJobs(t *testing.T) {
	fc := newFakeChild(t)
	fc.sendReady(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fc.conn.awaitReady(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := fc.conn.call(ctx, childRequest{Command: "transcribe", ID: 3, Path: "x.mp3"})
		done <- err
	}()
	fc.readRequest(t)

	// Child dies without answering.
	fc.out.Close()

	err := <-done
	if !errors.Is(err, ErrChildExited) {
		t.Fatalf("got %v, want ErrChildExited", err)
	}
	if !IsPermanent(err) {
		t.Error("child death should be permanent so the job completes empty")
	}
}

func TestChildConn_NotReadyUntilChildSaysSo(t *testing.T) {
	fc := newFakeChild(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := fc.conn.awaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded before ready line", err)
	}
}
