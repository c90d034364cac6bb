// Package notify delivers outbound chat messages and webhooks over HTTP.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cascade/pkg/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body, computed
// with the per-endpoint secret. Receivers verify it before trusting the
// payload.
const SignatureHeader = "X-Cascade-Signature"

// deliveryLogger records delivery outcomes in the audit event log.
type deliveryLogger interface {
	LogEvent(ctx context.Context, eventType, source, taskID, ruleID, payload string) error
}

// HTTPSink implements domain.MessagingSink over plain HTTP. Chat messages
// post to a single configured incoming-webhook URL; webhooks post to the
// per-action URL.
type HTTPSink struct {
	chatURL string
	client  *http.Client
	log     deliveryLogger
}

// New creates a sink. chatURL may be empty, in which case SendChat fails
// until one is configured. log may be nil.
func New(chatURL string, log deliveryLogger) *HTTPSink {
	return &HTTPSink{
		chatURL: chatURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// SendChat posts the message to the configured chat webhook.
func (s *HTTPSink) SendChat(ctx context.Context, msg domain.ChatMessage) error {
	if s.chatURL == "" {
		return fmt.Errorf("no chat webhook URL configured")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	err = s.post(ctx, s.chatURL, body, nil)
	s.logDelivery(ctx, "chat_delivery", msg.Channel, err)
	if err != nil {
		return fmt.Errorf("chat delivery: %w", err)
	}
	return nil
}

// SendWebhook posts the payload to the request's URL, signing the body when
// a secret is set.
func (s *HTTPSink) SendWebhook(ctx context.Context, req domain.WebhookRequest) error {
	headers := map[string]string{}
	for k, v := range req.Headers {
		headers[k] = v
	}
	if req.Secret != "" {
		headers[SignatureHeader] = Sign(req.Secret, req.Payload)
	}
	err := s.post(ctx, req.URL, req.Payload, headers)
	s.logDelivery(ctx, "webhook_delivery", req.URL, err)
	if err != nil {
		return fmt.Errorf("webhook delivery: %w", err)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *HTTPSink) post(ctx context.Context, url string, body []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPSink) logDelivery(ctx context.Context, eventType, target string, err error) {
	if s.log == nil {
		return
	}
	payload := "delivered " + target
	if err != nil {
		payload = fmt.Sprintf("failed %s: %v", target, err)
	}
	_ = s.log.LogEvent(ctx, eventType, "notify", "", "", payload)
}
