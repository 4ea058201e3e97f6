package stranger

import (
	"regexp"
	"testing"
)

func TestDecodeEventsNullClosesSession(t *testing.T) {
	for _, body := range []string{"null", " null\n", ""} {
		events, closed, err := DecodeEvents([]byte(body))
		if err != nil {
			t.Errorf("%q: unexpected error %v", body, err)
		}
		if !closed || events != nil {
			t.Errorf("%q: expected closed session, got closed=%v events=%v", body, closed, events)
		}
	}
}

func TestDecodeEventsBatch(t *testing.T) {
	events, closed, err := DecodeEvents([]byte(`[["waiting"],["gotMessage","hi",3],[],[42],["typing"]]`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if closed {
		t.Fatal("batch must not be treated as closed")
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Tag != "waiting" || len(events[0].Params) != 0 {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if events[1].Tag != "gotMessage" || stringParam(events[1].Params, 0) != "hi" || stringParam(events[1].Params, 1) != "3" {
		t.Errorf("unexpected second event %+v", events[1])
	}
	if events[2].Tag != "typing" {
		t.Errorf("unexpected third event %+v", events[2])
	}
}

func TestDecodeEventsEmptyBatch(t *testing.T) {
	events, closed, err := DecodeEvents([]byte(`[]`))
	if err != nil || closed || len(events) != 0 {
		t.Errorf("expected empty open batch, got %v %v %v", events, closed, err)
	}
}

func TestDecodeEventsMalformed(t *testing.T) {
	if _, _, err := DecodeEvents([]byte(`{"not":"events"}`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestStringParam(t *testing.T) {
	params := []any{"a", nil}
	if stringParam(params, 0) != "a" || stringParam(params, 1) != "" || stringParam(params, 5) != "" {
		t.Error("unexpected string params")
	}
}

func TestEventHandlersCoverProtocol(t *testing.T) {
	for _, tag := range []string{
		"waiting", "connected", "gotMessage", "typing", "stoppedTyping",
		"strangerDisconnected", "recaptchaRequired", "recaptchaRejected",
	} {
		if _, ok := eventHandlers[tag]; !ok {
			t.Errorf("no handler for %s", tag)
		}
	}
}

func TestRandomID(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z0-9]{8}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := randomID()
		if !re.MatchString(id) {
			t.Fatalf("bad random id %q", id)
		}
		seen[id] = true
	}
	if len(seen) < 95 {
		t.Errorf("random ids repeat too often: %d unique of 100", len(seen))
	}
}

func TestPickUserAgent(t *testing.T) {
	if got := pickUserAgent([]string{"only"}); got != "only" {
		t.Errorf("expected only, got %q", got)
	}
	if got := pickUserAgent(nil); got != DefaultUserAgents[0] && got != DefaultUserAgents[1] {
		t.Errorf("expected a default agent, got %q", got)
	}
}
