package alerts

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bowerhall/chatbridge/internal/stranger"
)

func TestAlertCooldown(t *testing.T) {
	var sent []string
	a := New(func(msg string) { sent = append(sent, msg) }, 10*time.Minute)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	a.Warn("stranger", "poll failed", nil)
	a.Warn("stranger", "poll failed", nil)
	if len(sent) != 1 {
		t.Fatalf("expected 1 alert during cooldown, got %d", len(sent))
	}

	a.Warn("stranger", "other", nil)
	if len(sent) != 2 {
		t.Fatalf("distinct messages should not share a cooldown, got %d", len(sent))
	}

	now = now.Add(11 * time.Minute)
	a.Warn("stranger", "poll failed", nil)
	if len(sent) != 3 {
		t.Errorf("expected alert after cooldown, got %d", len(sent))
	}
}

func TestAlertFormatting(t *testing.T) {
	var sent []string
	a := New(func(msg string) { sent = append(sent, msg) }, time.Minute)

	a.Critical("bridge", "down", errors.New("boom"))
	a.Warn("bridge", "slow", nil)
	a.Alert(SeverityInfo, "bridge", "note", nil)

	if sent[0] != "🚨 bridge: down\n\nError: boom" {
		t.Errorf("unexpected critical text %q", sent[0])
	}
	if sent[1] != "⚠️ bridge: slow" {
		t.Errorf("unexpected warn text %q", sent[1])
	}
	if sent[2] != "ℹ️ bridge: note" {
		t.Errorf("unexpected info text %q", sent[2])
	}
}

func TestSinkClassifiesErrors(t *testing.T) {
	var sent []string
	a := New(func(msg string) { sent = append(sent, msg) }, time.Minute)
	sink := a.Sink("stranger")

	sink(&stranger.CallbackError{Callback: "Message", Value: "oops"})
	sink(&stranger.TransportError{Method: "POST", URL: "http://x/start?randid=A", StatusCode: 500})
	sink(&stranger.TransportError{Method: "POST", URL: "http://x/start?randid=B", StatusCode: 500})
	sink(errors.New("bad batch"))

	if len(sent) != 3 {
		t.Fatalf("expected 3 alerts, got %d: %v", len(sent), sent)
	}
	if !strings.HasPrefix(sent[0], "🚨 stranger: handler for Message panicked") {
		t.Errorf("unexpected callback alert %q", sent[0])
	}
	if !strings.HasPrefix(sent[1], "⚠️ stranger: POST http://x/start failed") {
		t.Errorf("unexpected transport alert %q", sent[1])
	}
	if !strings.HasPrefix(sent[2], "⚠️ stranger: session error") {
		t.Errorf("unexpected generic alert %q", sent[2])
	}
}
