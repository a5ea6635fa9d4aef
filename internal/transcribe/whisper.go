package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// RemoteWhisper calls an OpenAI-compatible /v1/audio/transcriptions
// endpoint such as faster-whisper-server or speaches.
type RemoteWhisper struct {
	url    string
	model  string
	client *http.Client
}

// NewRemoteWhisper creates a client for a self-hosted whisper server.
func NewRemoteWhisper(url, model string, timeout time.Duration) *RemoteWhisper {
	return &RemoteWhisper{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: httpTimeout(timeout)},
	}
}

func (rw *RemoteWhisper) Name() string { return "remote" }

func (rw *RemoteWhisper) Transcribe(ctx context.Context, in Input) (string, error) {
	fields := map[string]string{"response_format": "json"}
	if rw.model != "" {
		fields["model"] = rw.model
	}
	return postAudio(ctx, rw.client, rw.url, in, fields, nil)
}

type whisperResponse struct {
	Text string `json:"text"`
}

// postAudio sends the audio as multipart form-data and decodes the
// standard {text} response. 4xx statuses are permanent failures; 5xx
// and transport errors are retryable.
func postAudio(ctx context.Context, client *http.Client, url string, in Input, fields, headers map[string]string) (string, error) {
	audio, err := in.reader()
	if err != nil {
		return "", Permanent(err)
	}
	defer audio.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := in.Name
	if name == "" {
		name = "audio.mp3"
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("transcription API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", Permanent(err)
		}
		return "", err
	}

	var result whisperResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", Permanent(fmt.Errorf("decode response: %w", err))
	}
	return result.Text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
