package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	xerrors "AgentFlow/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestFanoutDispatcherJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{channel: "ok"}
	broken := &recordingNotifier{channel: "broken", err: errors.New("unreachable")}
	dispatcher := NewFanout(ok, nil, broken)

	if got := dispatcher.Channels(); len(got) != 2 || got[0] != "broken" || got[1] != "ok" {
		t.Fatalf("unexpected channels: %v", got)
	}

	err := dispatcher.Notify(context.Background(), Event{Code: xerrors.CodePlanningFailure, Message: "failed"})
	if err == nil || !strings.Contains(err.Error(), "channel broken: unreachable") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.events) != 1 || ok.events[0].OccurredAt.IsZero() {
		t.Fatalf("expected event with timestamp, got %+v", ok.events)
	}

	var nilDispatcher *FanoutDispatcher
	if err := nilDispatcher.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("nil dispatcher should be a no-op: %v", err)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var received Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	notifier := &WebhookNotifier{URL: server.URL}
	event := Event{
		Code:        xerrors.CodeTimeout,
		Message:     "Execution failed: execution interrupted: deadline exceeded",
		Severity:    xerrors.SeverityWarning,
		ExecutionID: "exec-1",
		OccurredAt:  time.Unix(1700000000, 0).UTC(),
	}
	if err := notifier.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if received.ExecutionID != "exec-1" || received.Code != xerrors.CodeTimeout {
		t.Fatalf("unexpected payload: %+v", received)
	}
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := (&WebhookNotifier{URL: server.URL}).Notify(context.Background(), Event{Code: xerrors.CodeUnknown})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}

	if err := (&WebhookNotifier{}).Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("unconfigured webhook should be skipped: %v", err)
	}
}

func TestLogNotifier(t *testing.T) {
	event := Event{Code: xerrors.CodeToolFailure, Message: "step failed", Metadata: map[string]string{"b": "2", "a": "1"}}
	if err := (LogNotifier{}).Notify(context.Background(), event); err != nil {
		t.Fatalf("log notifier: %v", err)
	}
	if (LogNotifier{}).Channel() != ChannelLog {
		t.Fatalf("unexpected channel")
	}
}
