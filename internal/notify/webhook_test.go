package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookSend(t *testing.T) {
	var gotBody []byte
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Get("X-Token")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(WebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"X-Token": "secret"},
	})
	if err != nil {
		t.Fatalf("NewWebhookNotifier: %v", err)
	}

	if err := n.Send(context.Background(), testPayload()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotHeader != "secret" {
		t.Errorf("header = %q", gotHeader)
	}

	var decoded Payload
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if decoded.AlertID != "alert-1" || decoded.Title != "error rate spike" {
		t.Errorf("payload = %+v", decoded)
	}
}

func TestWebhookSendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(WebhookConfig{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	err = n.Send(context.Background(), testPayload())
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("err = %v, want status in message", err)
	}
}

func TestWebhookConfigValidation(t *testing.T) {
	if _, err := NewWebhookNotifier(WebhookConfig{}); err == nil {
		t.Error("empty URL accepted")
	}
	if _, err := NewWebhookNotifier(WebhookConfig{URL: "ftp://example.com"}); err == nil {
		t.Error("non-http URL accepted")
	}
}

func TestSMSSendTruncates(t *testing.T) {
	var got smsMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	// Config validation requires https; point at the test server by
	// rewriting after construction.
	n, err := NewSMSNotifier(SMSConfig{
		GatewayURL: "https://gateway.example.com/send",
		APIKey:     "k",
		Recipients: []string{"+15550100"},
	})
	if err != nil {
		t.Fatal(err)
	}
	n.config.GatewayURL = srv.URL

	p := testPayload()
	p.Message = strings.Repeat("failure ", 50)
	if err := n.Send(context.Background(), p); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(got.Body) > maxSMSBody {
		t.Errorf("body length = %d, want <= %d", len(got.Body), maxSMSBody)
	}
	if !strings.HasSuffix(got.Body, "...") {
		t.Errorf("body = %q, want truncation marker", got.Body)
	}
	if len(got.To) != 1 || got.To[0] != "+15550100" {
		t.Errorf("recipients = %v", got.To)
	}
}

func TestSMSConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config SMSConfig
	}{
		{"missing url", SMSConfig{Recipients: []string{"+15550100"}}},
		{"plain http", SMSConfig{GatewayURL: "http://gw.example.com", Recipients: []string{"+15550100"}}},
		{"no recipients", SMSConfig{GatewayURL: "https://gw.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSMSNotifier(tt.config); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestEmailConfigValidation(t *testing.T) {
	valid := EmailConfig{
		Host:       "smtp.example.com",
		Port:       587,
		From:       "AITrail <alerts@example.com>",
		Recipients: []string{"ops@example.com"},
	}
	if _, err := NewEmailNotifier(valid); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*EmailConfig)
	}{
		{"missing host", func(c *EmailConfig) { c.Host = "" }},
		{"missing port", func(c *EmailConfig) { c.Port = 0 }},
		{"missing from", func(c *EmailConfig) { c.From = "" }},
		{"no recipients", func(c *EmailConfig) { c.Recipients = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			if _, err := NewEmailNotifier(config); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestEmailMessageFormat(t *testing.T) {
	n, err := NewEmailNotifier(EmailConfig{
		Host:       "smtp.example.com",
		Port:       587,
		From:       "AITrail <alerts@example.com>",
		Recipients: []string{"ops@example.com"},
	})
	if err != nil {
		t.Fatal(err)
	}

	msg := string(n.buildMessage("[CRITICAL] AITrail Alert: error rate spike", testPayload()))
	for _, want := range []string{
		"Subject: [CRITICAL] AITrail Alert: error rate spike",
		"To: ops@example.com",
		"Severity: critical",
		"Model:    gpt-4",
		"42% of operations failing",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"AITrail <alerts@example.com>", "alerts@example.com"},
		{"alerts@example.com", "alerts@example.com"},
	}
	for _, tt := range tests {
		if got := extractEmail(tt.in); got != tt.want {
			t.Errorf("extractEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
