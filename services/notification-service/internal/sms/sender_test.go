package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWebhookSenderPostsJSON(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "tok", time.Second)
	if err := s.Send(context.Background(), "+56911112222", "hola"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["to"] != "+56911112222" || got["body"] != "hola" {
		t.Fatalf("unexpected payload %v", got)
	}
	if auth != "Bearer tok" {
		t.Fatalf("unexpected auth header %q", auth)
	}
}

func TestWebhookSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, "", time.Second).Send(context.Background(), "+1", "x")
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected 502 error, got %v", err)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	s, err := New("", "", "", 0)
	if err != nil || s.ProviderID() != "sms-noop" {
		t.Fatalf("expected noop sender, got %v %v", s, err)
	}
	if _, err := New("webhook", "", "", 0); err == nil {
		t.Fatalf("webhook without url must fail")
	}
	if _, err := New("carrier-pigeon", "", "", 0); err == nil {
		t.Fatalf("unknown provider must fail")
	}
	s, err = New("WEBHOOK", "http://sms.local/send", "", 0)
	if err != nil || s.ProviderID() != "sms-webhook" {
		t.Fatalf("expected webhook sender, got %v %v", s, err)
	}
}
