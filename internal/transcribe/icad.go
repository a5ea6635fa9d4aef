package transcribe

import (
	"context"
	"net/http"
	"time"
)

// ICAD calls an iCAD transcribe server. The request shape matches the
// OpenAI-compatible endpoint plus a profile selector; the server picks
// per-agency tuning from the profile.
type ICAD struct {
	url     string
	apiKey  string
	profile string
	model   string
	client  *http.Client
}

func NewICAD(url, apiKey, profile, model string, timeout time.Duration) *ICAD {
	return &ICAD{
		url:     url,
		apiKey:  apiKey,
		profile: profile,
		model:   model,
		client:  &http.Client{Timeout: httpTimeout(timeout)},
	}
}

func (ic *ICAD) Name() string { return "icad" }

func (ic *ICAD) Transcribe(ctx context.Context, in Input) (string, error) {
	fields := map[string]string{}
	if ic.profile != "" {
		fields["profile"] = ic.profile
	}
	if ic.model != "" {
		fields["model"] = ic.model
	}
	var headers map[string]string
	if ic.apiKey != "" {
		headers = map[string]string{"Authorization": ic.apiKey}
	}
	return postAudio(ctx, ic.client, ic.url, in, fields, headers)
}
