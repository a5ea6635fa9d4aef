package transcribe

import (
	"context"
	"net/http"
	"time"
)

const openAITranscriptionURL = "https://api.openai.com/v1/audio/transcriptions"

// OpenAIWhisper calls the hosted OpenAI transcription endpoint with
// bearer auth. The hosted API only serves whisper-1.
type OpenAIWhisper struct {
	apiKey string
	client *http.Client
}

func NewOpenAIWhisper(apiKey string, timeout time.Duration) *OpenAIWhisper {
	return &OpenAIWhisper{
		apiKey: apiKey,
		client: &http.Client{Timeout: httpTimeout(timeout)},
	}
}

func (ow *OpenAIWhisper) Name() string { return "openai" }

func (ow *OpenAIWhisper) Transcribe(ctx context.Context, in Input) (string, error) {
	fields := map[string]string{
		"model":           "whisper-1",
		"response_format": "json",
	}
	headers := map[string]string{"Authorization": "Bearer " + ow.apiKey}
	return postAudio(ctx, ow.client, openAITranscriptionURL, in, fields, headers)
}
