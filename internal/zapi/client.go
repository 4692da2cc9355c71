// Package zapi is the Z-API WhatsApp client: the single "send one
// message" capability the dispatcher builds on.
package zapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"zapsend/pkg/logx"
)

// Setting keys that override the static config at send time, so an
// operator can rotate credentials without a restart.
const (
	SettingInstanceID    = "zapi.instance_id"
	SettingInstanceToken = "zapi.instance_token"
	SettingSendTextURL   = "zapi.send_text_url"
	SettingClientToken   = "zapi.client_token"
)

type Config struct {
	InstanceID    string
	InstanceToken string
	SendTextURL   string
	ClientToken   string
	Timeout       time.Duration // per-send bound; default 30s
}

// SettingsSource resolves operator-stored overrides. A nil source is
// valid (static config only).
type SettingsSource interface {
	Setting(ctx context.Context, key string) (string, bool)
}

// DeliveryError is a provider-side refusal or transport failure for
// one message. It is recorded per recipient, never fatal to a batch.
type DeliveryError struct {
	HTTPStatus int // 0 on transport errors
	Reason     string
}

func (e *DeliveryError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("delivery failed (http %d): %s", e.HTTPStatus, e.Reason)
	}
	return "delivery failed: " + e.Reason
}

// ErrNotConfigured means no send URL could be resolved from settings
// or config.
var ErrNotConfigured = errors.New("z-api not configured")

type Client struct {
	mu       sync.Mutex
	cfg      Config
	http     *http.Client
	settings SettingsSource
	log      logx.Logger
}

func New(cfg Config, settings SettingsSource, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: timeout},
		settings: settings,
		log:      log,
	}
}

// Apply swaps the static config at runtime.
func (c *Client) Apply(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	if cfg.Timeout > 0 && cfg.Timeout != c.http.Timeout {
		// Replace rather than mutate: in-flight sends keep their client.
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
}

// Send delivers one text message to phoneE164 (digits, no plus).
// It returns the provider's message id on success. Failures come back
// as *DeliveryError (retryable at a higher layer, never here) or
// ErrNotConfigured.
func (c *Client) Send(ctx context.Context, phoneE164, text string) (string, error) {
	sendURL, clientToken := c.effective(ctx)
	if sendURL == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(map[string]string{
		"phone":   phoneE164,
		"message": text,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if clientToken != "" {
		req.Header.Set("Client-Token", clientToken)
	}

	c.log.Debug("sending message", logx.String("to", maskPhone(phoneE164)))

	c.mu.Lock()
	httpc := c.http
	c.mu.Unlock()
	resp, err := httpc.Do(req)
	if err != nil {
		return "", &DeliveryError{Reason: transportReason(err)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload map[string]any
	_ = json.Unmarshal(raw, &payload)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		id := stringField(payload, "messageId")
		if id == "" {
			id = stringField(payload, "id")
		}
		c.log.Debug("message sent", logx.String("to", maskPhone(phoneE164)), logx.String("provider_id", id))
		return id, nil
	}

	reason := stringField(payload, "error")
	if reason == "" {
		reason = stringField(payload, "message")
	}
	if reason == "" {
		reason = fmt.Sprintf("provider returned %d", resp.StatusCode)
	}
	c.log.Warn("message rejected",
		logx.String("to", maskPhone(phoneE164)),
		logx.Int("http_status", resp.StatusCode),
		logx.String("reason", reason))
	return "", &DeliveryError{HTTPStatus: resp.StatusCode, Reason: reason}
}

// effective resolves the send URL and client token, preferring stored
// settings over static config, mirroring how credentials are entered
// at runtime through the settings table.
func (c *Client) effective(ctx context.Context) (sendURL, clientToken string) {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	get := func(key, fallback string) string {
		if c.settings != nil {
			if v, ok := c.settings.Setting(ctx, key); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return strings.TrimSpace(fallback)
	}

	sendURL = get(SettingSendTextURL, cfg.SendTextURL)
	clientToken = get(SettingClientToken, cfg.ClientToken)
	if sendURL != "" {
		return sendURL, clientToken
	}

	iid := get(SettingInstanceID, cfg.InstanceID)
	tok := get(SettingInstanceToken, cfg.InstanceToken)
	if iid != "" && tok != "" {
		sendURL = fmt.Sprintf("https://api.z-api.io/instances/%s/token/%s/send-text", iid, tok)
	}
	return sendURL, clientToken
}

func transportReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timeout"
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return "request timeout"
	}
	return "connection error: " + err.Error()
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// maskPhone keeps logs free of full recipient numbers.
func maskPhone(p string) string {
	if len(p) <= 8 {
		return p
	}
	return p[:4] + "..." + p[len(p)-4:]
}
