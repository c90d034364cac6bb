package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cascade/pkg/domain"
)

type captureLog struct {
	entries []string
}

func (c *captureLog) LogEvent(ctx context.Context, eventType, source, taskID, ruleID, payload string) error {
	c.entries = append(c.entries, eventType+": "+payload)
	return nil
}

func TestSendChatPostsPayload(t *testing.T) {
	var got domain.ChatMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
	}))
	defer srv.Close()

	sink := New(srv.URL, nil)
	err := sink.SendChat(context.Background(), domain.ChatMessage{
		Channel: "#ops", Text: "deploy blocked", Color: "#dc3545",
	})
	if err != nil {
		t.Fatalf("SendChat: %v", err)
	}
	if got.Channel != "#ops" || got.Color != "#dc3545" {
		t.Errorf("got %+v", got)
	}
}

func TestSendChatWithoutURL(t *testing.T) {
	sink := New("", nil)
	if err := sink.SendChat(context.Background(), domain.ChatMessage{Channel: "#x"}); err == nil {
		t.Fatal("expected error with no chat URL")
	}
}

func TestSendWebhookSignsBody(t *testing.T) {
	payload := []byte(`{"event":"task_overdue"}`)
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	log := &captureLog{}
	sink := New("", log)
	err := sink.SendWebhook(context.Background(), domain.WebhookRequest{
		URL: srv.URL, Payload: payload, Secret: "s3cret",
	})
	if err != nil {
		t.Fatalf("SendWebhook: %v", err)
	}
	if string(gotBody) != string(payload) {
		t.Errorf("body = %s", gotBody)
	}
	if gotSig != Sign("s3cret", payload) {
		t.Errorf("signature = %q", gotSig)
	}
	if len(log.entries) != 1 {
		t.Fatalf("got %d log entries", len(log.entries))
	}
}

func TestSendWebhookWithoutSecretUnsigned(t *testing.T) {
	var signed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signed = r.Header.Get(SignatureHeader) != ""
	}))
	defer srv.Close()

	sink := New("", nil)
	err := sink.SendWebhook(context.Background(), domain.WebhookRequest{
		URL: srv.URL, Payload: []byte("{}"),
	})
	if err != nil {
		t.Fatalf("SendWebhook: %v", err)
	}
	if signed {
		t.Error("unsecreted webhook should not carry a signature header")
	}
}

func TestNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	log := &captureLog{}
	sink := New(srv.URL, log)
	if err := sink.SendChat(context.Background(), domain.ChatMessage{Channel: "#x"}); err == nil {
		t.Fatal("expected error on 502")
	}
	if len(log.entries) != 1 {
		t.Fatalf("got %d log entries", len(log.entries))
	}
}
