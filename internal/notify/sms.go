package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SMSConfig holds configuration for an HTTP SMS gateway.
type SMSConfig struct {
	GatewayURL string   // Gateway endpoint to POST messages to
	APIKey     string   // Bearer token for the gateway
	From       string   // Sender id
	Recipients []string // Destination phone numbers
}

// Validate validates the SMS configuration.
func (c *SMSConfig) Validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("gateway URL is required")
	}
	if !strings.HasPrefix(c.GatewayURL, "https://") {
		return fmt.Errorf("gateway URL must use HTTPS")
	}
	if len(c.Recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	return nil
}

// SMSNotifier sends a terse notification through an HTTP SMS gateway.
type SMSNotifier struct {
	config     SMSConfig
	httpClient *http.Client
}

// NewSMSNotifier creates a new SMS notifier.
func NewSMSNotifier(config SMSConfig) (*SMSNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sms config: %w", err)
	}
	return &SMSNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Name returns "sms".
func (s *SMSNotifier) Name() string {
	return "sms"
}

// smsMessage is the gateway request body.
type smsMessage struct {
	From string   `json:"from,omitempty"`
	To   []string `json:"to"`
	Body string   `json:"body"`
}

// maxSMSBody caps the message at a single segment-ish size.
const maxSMSBody = 160

// Send posts one message covering all recipients.
func (s *SMSNotifier) Send(ctx context.Context, payload *Payload) error {
	body := fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(payload.Severity)), payload.Title, payload.Message)
	if len(body) > maxSMSBody {
		body = body[:maxSMSBody-3] + "..."
	}

	jsonData, err := json.Marshal(smsMessage{
		From: s.config.From,
		To:   s.config.Recipients,
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.GatewayURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sms gateway error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Close is a no-op for the SMS notifier.
func (s *SMSNotifier) Close() error {
	return nil
}
