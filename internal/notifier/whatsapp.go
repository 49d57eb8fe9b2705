package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Result is the gateway's delivery outcome. Any outcome is telemetry for the
// engine, never a transactional failure.
type Result struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Session describes the gateway's messaging session state.
type Session struct {
	Status   string `json:"status"`
	LoggedIn bool   `json:"logged_in"`
	QR       string `json:"qr,omitempty"`
}

// WhatsAppClient talks to the WhatsApp gateway sidecar over HTTP. The session
// lives in the gateway process; this client holds no shared mutable state and
// is safe for concurrent use.
type WhatsAppClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewWhatsAppClient constructs a gateway client.
func NewWhatsAppClient(baseURL string, timeout time.Duration, logger *zap.Logger) *WhatsAppClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhatsAppClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Send delivers a text message to a phone number.
func (c *WhatsAppClient) Send(ctx context.Context, phone, message string) (*Result, error) {
	payload := map[string]string{"phone": phone, "message": message}
	var result Result
	if err := c.post(ctx, "/send", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// InitSession starts a gateway session, returning a QR code when a login is
// required.
func (c *WhatsAppClient) InitSession(ctx context.Context) (*Session, error) {
	var session Session
	if err := c.post(ctx, "/session", nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SessionStatus reports whether the gateway session is logged in.
func (c *WhatsAppClient) SessionStatus(ctx context.Context) (*Session, error) {
	var session Session
	if err := c.get(ctx, "/session", &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CloseSession tears down the gateway session.
func (c *WhatsAppClient) CloseSession(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/session", nil)
	if err != nil {
		return fmt.Errorf("build close session request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		return fmt.Errorf("close session: gateway returned %d", resp.StatusCode)
	}
	return nil
}

func (c *WhatsAppClient) post(ctx context.Context, path string, payload, out interface{}) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return fmt.Errorf("encode gateway payload: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *WhatsAppClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	return c.do(req, out)
}

func (c *WhatsAppClient) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned %d for %s", resp.StatusCode, req.URL.Path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
