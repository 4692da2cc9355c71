// Package ai drafts message text through an LLM provider, so a
// broadcast can be composed from a topic and a tone instead of written
// by hand. Drafts are sanitized for WhatsApp before they are returned.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"zapsend/internal/domain"
	"zapsend/pkg/logx"
)

// Providers the composer can talk to.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

const systemPrompt = "You are a helpful assistant that creates short, " +
	"WhatsApp-compatible messages. Keep messages concise, friendly, and " +
	"under 500 characters. Avoid using links or excessive emojis."

type Config struct {
	Provider string // default provider; ProviderOpenRouter when empty

	OpenRouterAPIKey string
	OpenRouterModel  string // default "openai/gpt-3.5-turbo"
	OpenRouterURL    string // default "https://openrouter.ai/api/v1/chat/completions"

	OllamaHost  string // default "http://localhost:11434"
	OllamaModel string // default "llama2"

	Timeout time.Duration // per-request bound; default 30s
}

// ErrNotConfigured means the selected provider has no usable
// credentials.
var ErrNotConfigured = errors.New("ai composer not configured")

// Request describes the message to draft.
type Request struct {
	Topic        string
	Tone         string            // default "friendly"
	Placeholders map[string]string // details to weave into the text
	Provider     string            // override; default from config
}

type Client struct {
	mu   sync.Mutex
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}, log: log}
}

// Apply swaps the static config at runtime.
func (c *Client) Apply(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	if cfg.Timeout > 0 && cfg.Timeout != c.http.Timeout {
		// Replace rather than mutate: in-flight requests keep their client.
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
}

// Compose drafts one message from the request's topic, tone, and
// placeholder details.
func (c *Client) Compose(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return "", fmt.Errorf("%w: topic is empty", domain.ErrInvalidInput)
	}
	tone := strings.TrimSpace(req.Tone)
	if tone == "" {
		tone = "friendly"
	}

	c.mu.Lock()
	cfg := c.cfg
	httpc := c.http
	c.mu.Unlock()

	provider := req.Provider
	if provider == "" {
		provider = cfg.Provider
	}
	if provider == "" {
		provider = ProviderOpenRouter
	}

	prompt := buildPrompt(req.Topic, tone, req.Placeholders)

	var (
		text string
		err  error
	)
	switch provider {
	case ProviderOpenRouter:
		text, err = composeOpenRouter(ctx, httpc, cfg, prompt)
	case ProviderOllama:
		text, err = composeOllama(ctx, httpc, cfg, tone, prompt)
	default:
		return "", fmt.Errorf("%w: unknown ai provider %q", domain.ErrInvalidInput, provider)
	}
	if err != nil {
		c.log.Warn("compose failed", logx.String("provider", provider), logx.Err(err))
		return "", err
	}

	out := sanitize(text)
	c.log.Debug("message composed", logx.String("provider", provider), logx.Int("length", len(out)))
	return out, nil
}

func composeOpenRouter(ctx context.Context, httpc *http.Client, cfg Config, prompt string) (string, error) {
	key := strings.TrimSpace(cfg.OpenRouterAPIKey)
	if key == "" {
		return "", fmt.Errorf("%w: openrouter api key missing", ErrNotConfigured)
	}
	model := cfg.OpenRouterModel
	if model == "" {
		model = "openai/gpt-3.5-turbo"
	}
	url := cfg.OpenRouterURL
	if url == "" {
		url = "https://openrouter.ai/api/v1/chat/completions"
	}

	body, err := json.Marshal(map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"max_tokens":  150,
		"temperature": 0.7,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("X-Title", "zapsend")

	resp, err := httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("openrouter request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 256<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("openrouter returned %d: %s", resp.StatusCode, errorDetail(raw))
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("openrouter response: %w", err)
	}
	if len(payload.Choices) == 0 || payload.Choices[0].Message.Content == "" {
		return "", errors.New("openrouter returned no completion")
	}
	return payload.Choices[0].Message.Content, nil
}

func composeOllama(ctx context.Context, httpc *http.Client, cfg Config, tone, prompt string) (string, error) {
	host := strings.TrimRight(cfg.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := cfg.OllamaModel
	if model == "" {
		model = "llama2"
	}

	body, err := json.Marshal(map[string]any{
		"model": model,
		"prompt": fmt.Sprintf(
			"Create a short WhatsApp message (under 500 characters) that is %s in tone. %s", tone, prompt),
		"stream":  false,
		"options": map[string]any{"temperature": 0.7},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 256<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, errorDetail(raw))
	}

	var payload struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("ollama response: %w", err)
	}
	if payload.Response == "" {
		return "", errors.New("ollama returned no completion")
	}
	return payload.Response, nil
}

// buildPrompt keys placeholders in sorted order so the same request
// always yields the same prompt.
func buildPrompt(topic, tone string, placeholders map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a message about: %s. ", strings.TrimSpace(topic))
	if len(placeholders) > 0 {
		keys := make([]string, 0, len(placeholders))
		for k := range placeholders {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + ": " + placeholders[k]
		}
		fmt.Fprintf(&b, "Include these details: %s. ", strings.Join(pairs, ", "))
	}
	fmt.Fprintf(&b, "The tone should be %s.", tone)
	return b.String()
}

var (
	manyBreaks = regexp.MustCompile(`\n{3,}`)
	linkRE     = regexp.MustCompile(`https?://\S+`)
)

// sanitize makes provider output safe to send as-is: no links, no
// run-away blank space, bounded length.
func sanitize(text string) string {
	text = manyBreaks.ReplaceAllString(text, "\n\n")
	text = linkRE.ReplaceAllString(text, "[link removed]")
	if r := []rune(text); len(r) > 1000 {
		text = string(r[:997]) + "..."
	}
	return strings.TrimSpace(text)
}

func errorDetail(raw []byte) string {
	var m map[string]any
	if json.Unmarshal(raw, &m) == nil {
		switch v := m["error"].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if s, _ := v["message"].(string); s != "" {
				return s
			}
		}
	}
	return "no detail"
}
