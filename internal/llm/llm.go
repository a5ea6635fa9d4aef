// Package llm wraps github.com/mozilla-ai/any-llm-go behind a small
// completion interface. The extractor, classifier, summariser, and
// Ask-AI all share one Client; the backend is chosen by AI_PROVIDER.
package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	anyllm "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	"github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/snarg/scanmap/internal/config"
)

// Request is a single-turn completion request.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// Completer produces a text completion. Implementations must be safe
// for concurrent use.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client implements Completer over any-llm-go.
type Client struct {
	backend anyllm.Provider
	model   string
}

// New creates a Client from config. AI_PROVIDER selects the backend:
// "ollama" (local, OLLAMA_URL/OLLAMA_MODEL) or "openai"
// (OPENAI_API_KEY/OPENAI_MODEL).
func New(cfg *config.Config) (*Client, error) {
	switch strings.ToLower(cfg.AIProvider) {
	case "ollama":
		backend, err := ollama.New(anyllm.WithBaseURL(cfg.OllamaURL))
		if err != nil {
			return nil, fmt.Errorf("llm: ollama backend: %w", err)
		}
		return &Client{backend: backend, model: cfg.OllamaModel}, nil
	case "openai":
		backend, err := openai.New(anyllm.WithAPIKey(cfg.OpenAIAPIKey))
		if err != nil {
			return nil, fmt.Errorf("llm: openai backend: %w", err)
		}
		return &Client{backend: backend, model: cfg.OpenAIModel}, nil
	default:
		return nil, fmt.Errorf("llm: unsupported AI_PROVIDER %q: want ollama or openai", cfg.AIProvider)
	}
}

// Complete sends the request and returns the reply text with any
// <think> block removed.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	var messages []anyllm.Message
	if req.SystemPrompt != "" {
		messages = append(messages, anyllm.Message{Role: anyllm.RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, anyllm.Message{Role: anyllm.RoleUser, Content: req.UserPrompt})

	params := anyllm.CompletionParams{
		Model:    c.model,
		Messages: messages,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}

	resp, err := c.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty choices in response")
	}
	return StripThink(resp.Choices[0].Message.ContentString()), nil
}

var thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThink removes reasoning-model <think>…</think> blocks. An
// unterminated block is removed to end of string.
func StripThink(s string) string {
	s = thinkRe.ReplaceAllString(s, "")
	if idx := strings.Index(s, "<think>"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// StripMarkdownFence removes optional ```json fences some models wrap
// around JSON output.
func StripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
